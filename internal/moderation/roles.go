package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

// RoleName represents the name of a moderation role
type RoleName string

const (
	RoleAdmin     RoleName = "admin"
	RoleModerator RoleName = "moderator"
	// RoleTagEditor may only see tag-suggestion reports and apply them.
	RoleTagEditor RoleName = "tag_editor"
)

// Role defines a set of capabilities
type Role struct {
	Name         RoleName     `json:"-"` // Set from map key during loading
	Description  string       `json:"description"`
	Capabilities []Capability `json:"capabilities"`
}

// Has checks if this role grants the given capability
func (r *Role) Has(capability Capability) bool {
	return slices.Contains(r.Capabilities, capability)
}

// RoleMember is a user that holds a moderation role
type RoleMember struct {
	ID   int64    `json:"id"`
	Name string   `json:"name,omitempty"`
	Role RoleName `json:"role"`
	Note string   `json:"note,omitempty"`
}

// RolesConfig represents the role file loaded from JSON
type RolesConfig struct {
	Roles   map[RoleName]*Role `json:"roles"`
	Members []RoleMember       `json:"members"`
}

// Validate checks that the config is valid
func (c *RolesConfig) Validate() error {
	if c.Roles == nil {
		c.Roles = make(map[RoleName]*Role)
	}

	known := AllCapabilities()
	for name, role := range c.Roles {
		for _, capability := range role.Capabilities {
			if !slices.Contains(known, capability) {
				return &ConfigError{
					Field:   "roles",
					Message: "role " + string(name) + " grants unknown capability: " + string(capability),
				}
			}
		}
	}

	for _, m := range c.Members {
		if _, ok := c.Roles[m.Role]; !ok {
			return &ConfigError{
				Field:   "members",
				Message: "member " + strconv.FormatInt(m.ID, 10) + " references unknown role: " + string(m.Role),
			}
		}
	}

	// Set role names from map keys
	for name, role := range c.Roles {
		role.Name = name
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "roles config error in " + e.Field + ": " + e.Message
}

// RoleService is an Authorizer backed by a local JSON role file. It is used
// when no remote Identity & Permission service is configured.
type RoleService struct {
	mu         sync.RWMutex
	config     *RolesConfig
	configPath string

	roles map[int64]*Role // member id -> role
}

var _ Authorizer = (*RoleService)(nil)

// NewRoleService creates a role service from the file at configPath.
// If configPath is empty the service is disabled and denies everything.
func NewRoleService(configPath string) (*RoleService, error) {
	s := &RoleService{
		configPath: configPath,
		roles:      make(map[int64]*Role),
	}

	if configPath == "" {
		log.Info().Msg("moderation: no roles file provided, all capabilities denied")
		return s, nil
	}

	if err := s.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load roles config: %w", err)
	}

	return s, nil
}

// NewRoleServiceFromConfig builds a role service from an in-memory config.
func NewRoleServiceFromConfig(config RolesConfig) (*RoleService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &RoleService{config: &config}
	s.rebuildLookup()
	return s, nil
}

// loadConfig reads and parses the config file
func (s *RoleService) loadConfig() error {
	data, err := os.ReadFile(s.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", s.configPath).Msg("moderation: roles file not found, all capabilities denied")
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config RolesConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = &config
	s.rebuildLookup()

	log.Info().
		Int("roles", len(config.Roles)).
		Int("members", len(config.Members)).
		Str("path", s.configPath).
		Msg("moderation: roles loaded")

	return nil
}

// rebuildLookup rebuilds the member lookup map from config.
// Caller must hold the write lock
func (s *RoleService) rebuildLookup() {
	s.roles = make(map[int64]*Role)

	if s.config == nil {
		return
	}

	for _, m := range s.config.Members {
		if role, ok := s.config.Roles[m.Role]; ok {
			s.roles[m.ID] = role
		}
	}
}

// Reload reloads the role file from disk
func (s *RoleService) Reload() error {
	if s.configPath == "" {
		return nil
	}
	return s.loadConfig()
}

// IsEnabled returns true if at least one member holds a role
func (s *RoleService) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config != nil && len(s.config.Members) > 0
}

// HasCapability implements Authorizer. A local file never fails, so the
// error is always nil.
func (s *RoleService) HasCapability(_ context.Context, actorID int64, capability Capability) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[actorID]
	if !ok {
		return false, nil
	}
	return role.Has(capability), nil
}

// RoleFor returns a copy of the role held by the given member, if any
func (s *RoleService) RoleFor(actorID int64) (*Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[actorID]
	if !ok {
		return nil, false
	}
	roleCopy := *role
	roleCopy.Capabilities = slices.Clone(role.Capabilities)
	return &roleCopy, true
}

// ListMembers returns all configured role members
func (s *RoleService) ListMembers() []RoleMember {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config == nil {
		return nil
	}
	return slices.Clone(s.config.Members)
}
