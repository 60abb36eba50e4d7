package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled.org/booru.social/booru/internal/database/sqlitestore"
	"tangled.org/booru.social/booru/internal/moderation"
)

func TestConfigureLogging_JSON(t *testing.T) {
	originalLogger := log.Logger
	originalLevel := zerolog.GlobalLevel()
	defer func() {
		log.Logger = originalLogger
		zerolog.SetGlobalLevel(originalLevel)
	}()

	var buf bytes.Buffer
	configureLogging("warn", "json", &buf)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	log.Info().Msg("dropped")
	log.Warn().Int64("session_id", 42).Msg("moderation: sweep left sessions for retry")

	out := strings.TrimSpace(buf.String())
	require.NotContains(t, out, "dropped")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entry), "output: %s", out)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, float64(42), entry["session_id"])
	assert.Contains(t, entry, "time")
}

func TestConfigureLogging_DefaultLevel(t *testing.T) {
	originalLogger := log.Logger
	originalLevel := zerolog.GlobalLevel()
	defer func() {
		log.Logger = originalLogger
		zerolog.SetGlobalLevel(originalLevel)
	}()

	var buf bytes.Buffer
	configureLogging("verbose", "", &buf)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	log.Info().Msg("Roles file reloaded")
	assert.Contains(t, buf.String(), "Roles file reloaded")
}

func TestWriteActionsJSONL(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sessionID := int64(5)
	actions := []moderation.AdminAction{
		{
			ID:        "3lbdemo00000a",
			Actor:     moderation.System,
			Type:      moderation.ActionReviewClose,
			SessionID: &sessionID,
			Details:   moderation.ReviewCloseDetails{Outcome: moderation.OutcomeRemove, Reason: moderation.CloseReasonMajority, RemoveVotes: 3, Automatic: true},
			CreatedAt: at,
		},
		{
			ID:        "3lbdemo00000b",
			Actor:     moderation.Human(9),
			Type:      moderation.ActionReportDismiss,
			Details:   moderation.ReportDismissDetails{Notes: "duplicate"},
			CreatedAt: at.Add(time.Minute),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeActionsJSONL(&buf, actions))

	zr, err := zstd.NewReader(&buf)
	require.NoError(t, err)
	defer zr.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(zr)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)

	assert.Nil(t, lines[0]["actor_id"])
	assert.Equal(t, "review_close", lines[0]["action_type"])
	assert.Equal(t, float64(9), lines[1]["actor_id"])
	details := lines[1]["details"].(map[string]any)
	assert.Equal(t, "duplicate", details["notes"])
}

func TestOpsHandler(t *testing.T) {
	db, err := sqlitestore.Open(context.Background(), sqlitestore.DefaultOptions(filepath.Join(t.TempDir(), "moderation.db")))
	require.NoError(t, err)
	defer db.Close()

	h := (&services{db: db}).opsHandler()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, db.Close())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
