package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"tangled.org/booru.social/booru/internal/config"
	"tangled.org/booru.social/booru/internal/database/boltstore"
	"tangled.org/booru.social/booru/internal/database/sqlitestore"
	"tangled.org/booru.social/booru/internal/moderation"
	"tangled.org/booru.social/booru/internal/upstream"
)

// services holds everything a command needs, wired from the config.
type services struct {
	cfg    config.Config
	db     *sql.DB
	store  *sqlitestore.ModerationStore
	engine *moderation.Engine

	// Set only when the local content registry is used.
	content *boltstore.Store
	// Set only when authorization comes from a roles file.
	roles *moderation.RoleService
}

func openServices(ctx context.Context, cfg config.Config) (*services, error) {
	s := &services{cfg: cfg}

	db, err := sqlitestore.Open(ctx, sqlitestore.DefaultOptions(cfg.DatabasePath))
	if err != nil {
		return nil, err
	}
	s.db = db
	s.store = sqlitestore.NewModerationStore(db)
	log.Info().Str("path", cfg.DatabasePath).Msg("Moderation database opened")

	var content moderation.ContentStore
	if cfg.ContentServiceURL != "" {
		content, err = upstream.NewContentClient(upstream.ContentClientOptions{
			BaseURL: cfg.ContentServiceURL,
			Token:   cfg.ServiceToken,
			Timeout: cfg.UpstreamTimeout,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		log.Info().Str("url", cfg.ContentServiceURL).Msg("Using remote content service")
	} else {
		s.content, err = boltstore.Open(boltstore.Options{Path: cfg.ContentDBPath})
		if err != nil {
			s.Close()
			return nil, err
		}
		content = s.content.ContentStore()
		log.Info().Str("path", cfg.ContentDBPath).Msg("Using local content registry")
	}

	var authz moderation.Authorizer
	if cfg.IdentityServiceURL != "" {
		authz, err = upstream.NewIdentityClient(upstream.IdentityClientOptions{
			BaseURL:   cfg.IdentityServiceURL,
			Token:     cfg.ServiceToken,
			Timeout:   cfg.UpstreamTimeout,
			CacheSize: cfg.PermissionCacheMax,
			CacheTTL:  cfg.PermissionCacheTTL,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		log.Info().Str("url", cfg.IdentityServiceURL).Msg("Using identity service for capabilities")
	} else {
		s.roles, err = moderation.NewRoleService(cfg.RolesFile)
		if err != nil {
			s.Close()
			return nil, err
		}
		authz = s.roles
		log.Info().Str("file", cfg.RolesFile).Int("members", len(s.roles.ListMembers())).Msg("Using roles file for capabilities")
	}

	s.engine, err = moderation.NewEngine(s.store, content, authz, cfg.ModerationConfig())
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// statsSource adapts Engine.Stats to the metrics collector.
func (s *services) statsSource(ctx context.Context) (int, int, int, bool) {
	stats, err := s.engine.Stats(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to collect moderation stats")
		return 0, 0, 0, false
	}
	return stats.PendingReports, stats.OpenSessions, stats.ExpiredOpen, true
}

func (s *services) Close() error {
	var errs []error
	if s.content != nil {
		if err := s.content.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close content db: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close moderation db: %w", err))
		}
	}
	return errors.Join(errs...)
}
