// Package config holds the service configuration. Values come from command
// line flags, each of which can also be set through an environment variable.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/urfave/cli/v2"

	"tangled.org/booru.social/booru/internal/moderation"
)

// Config is the complete service configuration.
type Config struct {
	// DatabasePath is the SQLite file holding reports, sessions, votes and the audit log.
	DatabasePath string
	// ContentDBPath is the bbolt file of the local content registry, used
	// when ContentServiceURL is empty.
	ContentDBPath string
	// ContentServiceURL is the base URL of the remote content service.
	ContentServiceURL string
	// IdentityServiceURL is the base URL of the identity & permission service.
	// When empty, capabilities come from RolesFile.
	IdentityServiceURL string
	// ServiceToken is sent as a bearer token to both services.
	ServiceToken string
	// RolesFile is the JSON role configuration for local authorization.
	RolesFile string

	Quorum          int
	ReviewWindow    time.Duration
	ExtensionWindow time.Duration

	SweepInterval      time.Duration
	UpstreamTimeout    time.Duration
	PermissionCacheTTL time.Duration
	PermissionCacheMax int
	StatsInterval      time.Duration

	MetricsListen string
	Tracing       bool
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		DatabasePath:       "data/moderation.db",
		ContentDBPath:      "data/content.db",
		RolesFile:          "roles.json",
		Quorum:             moderation.DefaultQuorum,
		ReviewWindow:       moderation.DefaultReviewWindow,
		ExtensionWindow:    moderation.DefaultExtensionWindow,
		SweepInterval:      time.Hour,
		UpstreamTimeout:    10 * time.Second,
		PermissionCacheTTL: 30 * time.Second,
		PermissionCacheMax: 4096,
		StatsInterval:      time.Minute,
		MetricsListen:      ":9464",
	}
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	var errs []error
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.ContentServiceURL == "" && c.ContentDBPath == "" {
		errs = append(errs, errors.New("either a content service url or a content db path is required"))
	}
	for name, raw := range map[string]string{
		"content service url":  c.ContentServiceURL,
		"identity service url": c.IdentityServiceURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.ParseRequestURI(raw); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid %s %q", name, raw))
		}
	}
	if err := c.ModerationConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval))
	}
	if c.StatsInterval <= 0 {
		errs = append(errs, fmt.Errorf("stats interval must be positive, got %s", c.StatsInterval))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("upstream timeout must be positive, got %s", c.UpstreamTimeout))
	}
	if c.PermissionCacheTTL < 0 || c.PermissionCacheMax < 0 {
		errs = append(errs, errors.New("permission cache settings must not be negative"))
	}
	return errors.Join(errs...)
}

// ModerationConfig returns the workflow settings for the engine.
func (c Config) ModerationConfig() moderation.Config {
	return moderation.Config{
		Quorum:          c.Quorum,
		ReviewWindow:    c.ReviewWindow,
		ExtensionWindow: c.ExtensionWindow,
	}
}

// Flags returns the command line flags for every setting, defaulting to Defaults().
func Flags() []cli.Flag {
	d := Defaults()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "db-path",
			Usage:   "path of the SQLite moderation database",
			Value:   d.DatabasePath,
			EnvVars: []string{"BOORU_DB_PATH"},
		},
		&cli.StringFlag{
			Name:    "content-db-path",
			Usage:   "path of the local content registry (used without --content-url)",
			Value:   d.ContentDBPath,
			EnvVars: []string{"BOORU_CONTENT_DB_PATH"},
		},
		&cli.StringFlag{
			Name:    "content-url",
			Usage:   "base URL of the content service",
			EnvVars: []string{"BOORU_CONTENT_URL"},
		},
		&cli.StringFlag{
			Name:    "identity-url",
			Usage:   "base URL of the identity & permission service (roles file is used when empty)",
			EnvVars: []string{"BOORU_IDENTITY_URL"},
		},
		&cli.StringFlag{
			Name:    "service-token",
			Usage:   "bearer token for upstream services",
			EnvVars: []string{"BOORU_SERVICE_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "roles-file",
			Usage:   "JSON file mapping users to moderation roles",
			Value:   d.RolesFile,
			EnvVars: []string{"BOORU_ROLES_FILE"},
		},
		&cli.IntFlag{
			Name:    "quorum",
			Usage:   "minimum number of votes before a majority decides a review",
			Value:   d.Quorum,
			EnvVars: []string{"BOORU_REVIEW_QUORUM"},
		},
		&cli.DurationFlag{
			Name:    "review-window",
			Usage:   "default time from review start to deadline",
			Value:   d.ReviewWindow,
			EnvVars: []string{"BOORU_REVIEW_WINDOW"},
		},
		&cli.DurationFlag{
			Name:    "extension-window",
			Usage:   "how far the one-time extension pushes a deadline",
			Value:   d.ExtensionWindow,
			EnvVars: []string{"BOORU_EXTENSION_WINDOW"},
		},
		&cli.DurationFlag{
			Name:    "sweep-interval",
			Usage:   "time between reconciliation sweeps",
			Value:   d.SweepInterval,
			EnvVars: []string{"BOORU_SWEEP_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "upstream-timeout",
			Usage:   "timeout of a single upstream call",
			Value:   d.UpstreamTimeout,
			EnvVars: []string{"BOORU_UPSTREAM_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    "permission-cache-ttl",
			Usage:   "how long capability answers are cached (0 disables)",
			Value:   d.PermissionCacheTTL,
			EnvVars: []string{"BOORU_PERMISSION_CACHE_TTL"},
		},
		&cli.IntFlag{
			Name:    "permission-cache-size",
			Usage:   "maximum number of cached capability answers",
			Value:   d.PermissionCacheMax,
			EnvVars: []string{"BOORU_PERMISSION_CACHE_SIZE"},
		},
		&cli.DurationFlag{
			Name:    "stats-interval",
			Usage:   "how often queue gauges are refreshed",
			Value:   d.StatsInterval,
			EnvVars: []string{"BOORU_STATS_INTERVAL"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "listen address of the metrics and health endpoints",
			Value:   d.MetricsListen,
			EnvVars: []string{"BOORU_METRICS_LISTEN"},
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "export OpenTelemetry traces (OTEL_EXPORTER_OTLP_ENDPOINT)",
			EnvVars: []string{"BOORU_TRACING"},
		},
	}
}

// FromCLI builds and validates a Config from parsed flags.
func FromCLI(cctx *cli.Context) (Config, error) {
	c := Config{
		DatabasePath:       cctx.String("db-path"),
		ContentDBPath:      cctx.String("content-db-path"),
		ContentServiceURL:  cctx.String("content-url"),
		IdentityServiceURL: cctx.String("identity-url"),
		ServiceToken:       cctx.String("service-token"),
		RolesFile:          cctx.String("roles-file"),
		Quorum:             cctx.Int("quorum"),
		ReviewWindow:       cctx.Duration("review-window"),
		ExtensionWindow:    cctx.Duration("extension-window"),
		SweepInterval:      cctx.Duration("sweep-interval"),
		UpstreamTimeout:    cctx.Duration("upstream-timeout"),
		PermissionCacheTTL: cctx.Duration("permission-cache-ttl"),
		PermissionCacheMax: cctx.Int("permission-cache-size"),
		StatsInterval:      cctx.Duration("stats-interval"),
		MetricsListen:      cctx.String("metrics-listen"),
		Tracing:            cctx.Bool("tracing"),
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}
