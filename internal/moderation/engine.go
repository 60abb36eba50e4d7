package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Defaults for the review workflow
const (
	DefaultQuorum          = 3
	DefaultReviewWindow    = 7 * 24 * time.Hour
	DefaultExtensionWindow = 3 * 24 * time.Hour

	// MaxReportReasonLength is the maximum length of a report reason, in runes
	MaxReportReasonLength = 500

	// MaxDeadlineDays bounds deadline and extension overrides
	MaxDeadlineDays = 365
)

// Config holds the tunable values of the review workflow.
type Config struct {
	// Quorum is the minimum number of votes before a majority decides.
	Quorum int
	// ReviewWindow is the time from session start to its deadline.
	ReviewWindow time.Duration
	// ExtensionWindow is how far the one-time extension pushes the deadline.
	ExtensionWindow time.Duration
}

// DefaultConfig returns the documented defaults (quorum 3, 7 day window,
// 3 day extension).
func DefaultConfig() Config {
	return Config{
		Quorum:          DefaultQuorum,
		ReviewWindow:    DefaultReviewWindow,
		ExtensionWindow: DefaultExtensionWindow,
	}
}

// Validate checks that the config is usable
func (c Config) Validate() error {
	if c.Quorum < 1 {
		return fmt.Errorf("quorum must be at least 1, got %d", c.Quorum)
	}
	if c.ReviewWindow <= 0 {
		return fmt.Errorf("review window must be positive, got %s", c.ReviewWindow)
	}
	if c.ExtensionWindow <= 0 {
		return fmt.Errorf("extension window must be positive, got %s", c.ExtensionWindow)
	}
	return nil
}

// Engine is the moderation workflow engine. It turns reports into triage
// decisions and timed review sessions and drives those sessions to closure.
// Engine is safe for concurrent use; all coordination happens in the Store.
type Engine struct {
	store   Store
	content ContentStore
	authz   Authorizer
	config  Config
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source. Used by tests and the sweep command.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine over the given store and collaborators.
func NewEngine(store Store, content ContentStore, authz Authorizer, config Config, opts ...Option) (*Engine, error) {
	if store == nil || content == nil || authz == nil {
		return nil, fmt.Errorf("moderation engine requires a store, a content store and an authorizer")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid moderation config: %w", err)
	}
	e := &Engine{
		store:   store,
		content: content,
		authz:   authz,
		config:  config,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's workflow configuration.
func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// authorize is the single capability gate run at the top of each operation.
func (e *Engine) authorize(ctx context.Context, actorID int64, capability Capability) error {
	ok, err := e.can(ctx, actorID, capability)
	if err != nil {
		return err
	}
	if !ok {
		log.Warn().Int64("actor_id", actorID).Str("capability", string(capability)).Msg("moderation: denied: insufficient permissions")
		return fmt.Errorf("%w: actor %d lacks %s", ErrPermissionDenied, actorID, capability)
	}
	return nil
}

func (e *Engine) can(ctx context.Context, actorID int64, capability Capability) (bool, error) {
	ok, err := e.authz.HasCapability(ctx, actorID, capability)
	if err != nil {
		return false, upstream("check capability", err)
	}
	return ok, nil
}

// record builds and appends one audit entry inside tx.
func (e *Engine) record(ctx context.Context, tx Queries, actor Actor, reportID, sessionID, contentID *int64, details ActionDetails) (*AdminAction, error) {
	action := &AdminAction{
		Actor:     actor,
		Type:      details.ActionType(),
		ReportID:  reportID,
		SessionID: sessionID,
		ContentID: contentID,
		Details:   details,
		CreatedAt: e.clock(),
	}
	if err := tx.AppendAction(ctx, action); err != nil {
		return nil, fmt.Errorf("append %s action: %w", action.Type, err)
	}
	return action, nil
}
