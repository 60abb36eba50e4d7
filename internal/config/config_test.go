package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestDefaults_Valid(t *testing.T) {
	c := Defaults()
	require.NoError(t, c.Validate())

	mc := c.ModerationConfig()
	assert.Equal(t, 3, mc.Quorum)
	assert.Equal(t, 7*24*time.Hour, mc.ReviewWindow)
	assert.Equal(t, 3*24*time.Hour, mc.ExtensionWindow)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no database", func(c *Config) { c.DatabasePath = "" }},
		{"no content source", func(c *Config) { c.ContentDBPath = "" }},
		{"bad content url", func(c *Config) { c.ContentServiceURL = "content.internal" }},
		{"bad identity url", func(c *Config) { c.IdentityServiceURL = "://nope" }},
		{"zero quorum", func(c *Config) { c.Quorum = 0 }},
		{"negative window", func(c *Config) { c.ReviewWindow = -time.Hour }},
		{"zero extension", func(c *Config) { c.ExtensionWindow = 0 }},
		{"zero sweep interval", func(c *Config) { c.SweepInterval = 0 }},
		{"zero stats interval", func(c *Config) { c.StatsInterval = 0 }},
		{"zero upstream timeout", func(c *Config) { c.UpstreamTimeout = 0 }},
		{"negative cache size", func(c *Config) { c.PermissionCacheMax = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	t.Run("remote content without local db", func(t *testing.T) {
		c := Defaults()
		c.ContentDBPath = ""
		c.ContentServiceURL = "http://content.internal:8080"
		assert.NoError(t, c.Validate())
	})
}

func TestFromCLI(t *testing.T) {
	t.Setenv("BOORU_REVIEW_QUORUM", "5")

	var got Config
	app := &cli.App{
		Flags: Flags(),
		Action: func(cctx *cli.Context) error {
			var err error
			got, err = FromCLI(cctx)
			return err
		},
	}
	err := app.Run([]string{"booru", "--extension-window", "48h", "--identity-url", "http://identity:8080"})
	require.NoError(t, err)

	assert.Equal(t, 5, got.Quorum)
	assert.Equal(t, 48*time.Hour, got.ExtensionWindow)
	assert.Equal(t, 7*24*time.Hour, got.ReviewWindow)
	assert.Equal(t, "http://identity:8080", got.IdentityServiceURL)
	assert.Equal(t, "data/moderation.db", got.DatabasePath)
}

func TestFromCLI_Invalid(t *testing.T) {
	app := &cli.App{
		Flags: Flags(),
		Action: func(cctx *cli.Context) error {
			_, err := FromCLI(cctx)
			return err
		},
	}
	err := app.Run([]string{"booru", "--quorum", "0"})
	assert.ErrorContains(t, err, "quorum")
}
