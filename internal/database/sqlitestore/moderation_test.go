package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled.org/booru.social/booru/internal/moderation"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *ModerationStore {
	t.Helper()
	db, err := Open(context.Background(), DefaultOptions(filepath.Join(t.TempDir(), "moderation.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewModerationStore(db)
}

func newReport(contentID, reporterID int64) *moderation.Report {
	return &moderation.Report{
		ContentID:  contentID,
		ReporterID: reporterID,
		Category:   moderation.CategorySpam,
		Reason:     "spam links",
		Status:     moderation.ReportStatusPending,
		CreatedAt:  baseTime,
	}
}

func newSession(contentID int64, deadline time.Time) *moderation.ReviewSession {
	return &moderation.ReviewSession{
		ContentID:   contentID,
		InitiatorID: 1,
		Type:        moderation.ReviewAppropriateness,
		Deadline:    deadline,
		Status:      moderation.SessionOpen,
		Outcome:     moderation.OutcomePending,
		CreatedAt:   baseTime,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moderation.db")
	require.NoError(t, Migrate(path))
	require.NoError(t, Migrate(path))
}

func TestReports(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		r := newReport(10, 100)
		require.NoError(t, store.CreateReport(ctx, r))
		assert.NotZero(t, r.ID)

		got, err := store.GetReport(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10), got.ContentID)
		assert.Equal(t, moderation.CategorySpam, got.Category)
		assert.Equal(t, moderation.ReportStatusPending, got.Status)
		assert.True(t, got.CreatedAt.Equal(baseTime))
		assert.Nil(t, got.ReviewerID)
		assert.Nil(t, got.ReviewedAt)
	})

	t.Run("get missing report", func(t *testing.T) {
		_, err := store.GetReport(ctx, 9999)
		assert.ErrorIs(t, err, moderation.ErrNotFound)
	})

	t.Run("one pending report per reporter and content", func(t *testing.T) {
		first := newReport(20, 200)
		require.NoError(t, store.CreateReport(ctx, first))

		err := store.CreateReport(ctx, newReport(20, 200))
		assert.ErrorIs(t, err, moderation.ErrDuplicateReport)
		assert.ErrorIs(t, err, moderation.ErrConflict)

		// Other reporters and other content are unaffected
		require.NoError(t, store.CreateReport(ctx, newReport(20, 201)))
		require.NoError(t, store.CreateReport(ctx, newReport(21, 200)))

		require.NoError(t, store.ResolveReport(ctx, first.ID, moderation.ResolveParams{
			Status:     moderation.ReportStatusDismissed,
			ReviewerID: 1,
			Notes:      "not spam",
			ReviewedAt: baseTime.Add(time.Hour),
		}))
		require.NoError(t, store.CreateReport(ctx, newReport(20, 200)))
	})

	t.Run("resolve is compare and set", func(t *testing.T) {
		r := newReport(30, 300)
		require.NoError(t, store.CreateReport(ctx, r))

		params := moderation.ResolveParams{
			Status:     moderation.ReportStatusReviewed,
			ReviewerID: 7,
			Notes:      "handled",
			ReviewedAt: baseTime.Add(time.Minute),
		}
		require.NoError(t, store.ResolveReport(ctx, r.ID, params))

		got, err := store.GetReport(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, moderation.ReportStatusReviewed, got.Status)
		require.NotNil(t, got.ReviewerID)
		assert.Equal(t, int64(7), *got.ReviewerID)
		assert.Equal(t, "handled", got.AdminNotes)
		require.NotNil(t, got.ReviewedAt)
		assert.True(t, got.ReviewedAt.Equal(params.ReviewedAt))

		err = store.ResolveReport(ctx, r.ID, params)
		assert.ErrorIs(t, err, moderation.ErrStale)

		err = store.ResolveReport(ctx, 9999, params)
		assert.ErrorIs(t, err, moderation.ErrNotFound)
	})

	t.Run("list with filters", func(t *testing.T) {
		tagReport := newReport(40, 400)
		tagReport.Category = moderation.CategoryTagSuggestion
		require.NoError(t, store.CreateReport(ctx, tagReport))

		tagOnly, err := store.ListReports(ctx, moderation.ReportFilter{Category: moderation.CategoryTagSuggestion})
		require.NoError(t, err)
		require.Len(t, tagOnly, 1)
		assert.Equal(t, tagReport.ID, tagOnly[0].ID)

		pending, err := store.ListReports(ctx, moderation.ReportFilter{Status: moderation.ReportStatusPending})
		require.NoError(t, err)
		for _, r := range pending {
			assert.Equal(t, moderation.ReportStatusPending, r.Status)
		}

		limited, err := store.ListReports(ctx, moderation.ReportFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		byContent, err := store.ListReports(ctx, moderation.ReportFilter{ContentID: 20})
		require.NoError(t, err)
		assert.Len(t, byContent, 3)
	})
}

func TestTagSuggestions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	r := newReport(1, 2)
	r.Category = moderation.CategoryTagSuggestion
	require.NoError(t, store.CreateReport(ctx, r))

	suggestions := []moderation.TagSuggestion{
		{ReportID: r.ID, TagID: 5, Direction: moderation.TagAdd},
		{ReportID: r.ID, TagID: 6, Direction: moderation.TagRemove},
		{ReportID: r.ID, TagID: 7, Direction: moderation.TagAdd},
	}
	require.NoError(t, store.CreateTagSuggestions(ctx, suggestions))
	for _, s := range suggestions {
		assert.NotZero(t, s.ID)
		assert.Equal(t, moderation.DecisionPending, s.Decision)
	}

	t.Run("duplicate suggestion conflicts", func(t *testing.T) {
		err := store.CreateTagSuggestions(ctx, []moderation.TagSuggestion{
			{ReportID: r.ID, TagID: 5, Direction: moderation.TagAdd},
		})
		assert.ErrorIs(t, err, moderation.ErrConflict)
	})

	t.Run("decide once", func(t *testing.T) {
		require.NoError(t, store.DecideTagSuggestion(ctx, suggestions[0].ID, moderation.DecisionAccepted))
		err := store.DecideTagSuggestion(ctx, suggestions[0].ID, moderation.DecisionRejected)
		assert.ErrorIs(t, err, moderation.ErrStale)
	})

	t.Run("reject remaining", func(t *testing.T) {
		n, err := store.RejectPendingTagSuggestions(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err := store.ListTagSuggestions(ctx, r.ID)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, moderation.DecisionAccepted, got[0].Decision)
		assert.Equal(t, moderation.DecisionRejected, got[1].Decision)
		assert.Equal(t, moderation.DecisionRejected, got[2].Decision)
	})
}

func TestSessions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	deadline := baseTime.Add(7 * 24 * time.Hour)

	t.Run("one open session per content", func(t *testing.T) {
		s := newSession(1, deadline)
		require.NoError(t, store.CreateSession(ctx, s))
		assert.NotZero(t, s.ID)

		err := store.CreateSession(ctx, newSession(1, deadline))
		assert.ErrorIs(t, err, moderation.ErrSessionOpen)
		assert.ErrorIs(t, err, moderation.ErrConflict)

		open, err := store.FindOpenSession(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, s.ID, open.ID)

		_, err = store.FindOpenSession(ctx, 2)
		assert.ErrorIs(t, err, moderation.ErrNotFound)

		require.NoError(t, store.CloseSession(ctx, s.ID, moderation.CloseParams{
			Outcome:  moderation.OutcomeKeep,
			ClosedAt: baseTime.Add(time.Hour),
		}))
		require.NoError(t, store.CreateSession(ctx, newSession(1, deadline)))
	})

	t.Run("close checks the expected deadline", func(t *testing.T) {
		s := newSession(10, deadline)
		require.NoError(t, store.CreateSession(ctx, s))

		stale := deadline.Add(-time.Hour)
		err := store.CloseSession(ctx, s.ID, moderation.CloseParams{
			Outcome:        moderation.OutcomeRemove,
			ClosedAt:       baseTime,
			ExpectDeadline: &stale,
		})
		assert.ErrorIs(t, err, moderation.ErrStale)

		require.NoError(t, store.CloseSession(ctx, s.ID, moderation.CloseParams{
			Outcome:        moderation.OutcomeRemove,
			ClosedAt:       baseTime,
			ExpectDeadline: &deadline,
		}))

		got, err := store.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, moderation.SessionClosed, got.Status)
		assert.Equal(t, moderation.OutcomeRemove, got.Outcome)
		require.NotNil(t, got.ClosedAt)

		err = store.CloseSession(ctx, s.ID, moderation.CloseParams{Outcome: moderation.OutcomeKeep, ClosedAt: baseTime})
		assert.ErrorIs(t, err, moderation.ErrStale)

		err = store.CloseSession(ctx, 9999, moderation.CloseParams{Outcome: moderation.OutcomeKeep, ClosedAt: baseTime})
		assert.ErrorIs(t, err, moderation.ErrNotFound)
	})

	t.Run("extend only once and only forward", func(t *testing.T) {
		s := newSession(20, deadline)
		require.NoError(t, store.CreateSession(ctx, s))

		err := store.ExtendSession(ctx, s.ID, deadline, deadline.Add(-time.Hour))
		assert.Error(t, err)

		later := deadline.Add(72 * time.Hour)
		require.NoError(t, store.ExtendSession(ctx, s.ID, deadline, later))

		got, err := store.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, got.ExtensionUsed)
		assert.True(t, got.Deadline.Equal(later))

		err = store.ExtendSession(ctx, s.ID, later, later.Add(time.Hour))
		assert.ErrorIs(t, err, moderation.ErrStale)
	})

	t.Run("list expired and by status", func(t *testing.T) {
		expired := newSession(30, baseTime.Add(-time.Minute))
		require.NoError(t, store.CreateSession(ctx, expired))

		got, err := store.ListExpiredSessions(ctx, baseTime)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, expired.ID, got[0].ID)

		open, err := store.ListSessions(ctx, moderation.SessionOpen)
		require.NoError(t, err)
		for _, s := range open {
			assert.Equal(t, moderation.SessionOpen, s.Status)
		}
		all, err := store.ListSessions(ctx, "")
		require.NoError(t, err)
		assert.Greater(t, len(all), len(open))
	})
}

func TestVotes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	s := newSession(1, baseTime.Add(time.Hour))
	require.NoError(t, store.CreateSession(ctx, s))

	vote := func(voter int64, value moderation.VoteValue, at time.Time) *moderation.Vote {
		return &moderation.Vote{
			SessionID: &s.ID,
			VoterID:   voter,
			Value:     value,
			CreatedAt: at,
			UpdatedAt: at,
		}
	}

	first := vote(1, moderation.VoteKeep, baseTime)
	require.NoError(t, store.UpsertVote(ctx, first))
	require.NoError(t, store.UpsertVote(ctx, vote(2, moderation.VoteRemove, baseTime)))

	t.Run("revote overwrites in place", func(t *testing.T) {
		again := vote(1, moderation.VoteRemove, baseTime.Add(time.Minute))
		require.NoError(t, store.UpsertVote(ctx, again))
		assert.Equal(t, first.ID, again.ID)
		assert.True(t, again.CreatedAt.Equal(baseTime), "created_at is kept on update")

		votes, err := store.ListVotes(ctx, s.ID)
		require.NoError(t, err)
		require.Len(t, votes, 2)

		tally, err := store.TallyVotes(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, moderation.Tally{Keep: 0, Remove: 2}, tally)
	})

	t.Run("same vote twice is one row", func(t *testing.T) {
		require.NoError(t, store.UpsertVote(ctx, vote(3, moderation.VoteKeep, baseTime)))
		require.NoError(t, store.UpsertVote(ctx, vote(3, moderation.VoteKeep, baseTime)))

		votes, err := store.ListVotes(ctx, s.ID)
		require.NoError(t, err)
		assert.Len(t, votes, 3)
	})

	t.Run("closed session rejects votes", func(t *testing.T) {
		require.NoError(t, store.CloseSession(ctx, s.ID, moderation.CloseParams{
			Outcome:  moderation.OutcomeRemove,
			ClosedAt: baseTime.Add(2 * time.Hour),
		}))
		err := store.UpsertVote(ctx, vote(4, moderation.VoteKeep, baseTime))
		assert.ErrorIs(t, err, moderation.ErrSessionClosed)

		tally, err := store.TallyVotes(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, tally.Total())
	})

	t.Run("empty tally", func(t *testing.T) {
		tally, err := store.TallyVotes(ctx, 9999)
		require.NoError(t, err)
		assert.Equal(t, moderation.Tally{}, tally)
	})
}

func TestActions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	human := &moderation.AdminAction{
		Actor:     moderation.Human(5),
		Type:      moderation.ActionReportDismiss,
		ReportID:  ptr(int64(1)),
		ContentID: ptr(int64(2)),
		Details:   moderation.ReportDismissDetails{Notes: "dup", RejectedSuggestions: 0},
		CreatedAt: baseTime,
	}
	require.NoError(t, store.AppendAction(ctx, human))
	assert.NotEmpty(t, human.ID)

	system := &moderation.AdminAction{
		Actor:     moderation.System,
		Type:      moderation.ActionReviewClose,
		SessionID: ptr(int64(3)),
		ContentID: ptr(int64(2)),
		Details: moderation.ReviewCloseDetails{
			Outcome:   moderation.OutcomeKeep,
			Reason:    moderation.CloseReasonDefault,
			KeepVotes: 1, RemoveVotes: 1,
			Automatic: true,
		},
		CreatedAt: baseTime.Add(time.Hour),
	}
	require.NoError(t, store.AppendAction(ctx, system))
	assert.NotEqual(t, human.ID, system.ID)

	// A row written by a newer build with a type this build does not know
	_, err := store.db.ExecContext(ctx, `
		INSERT INTO admin_actions (id, actor_id, action_type, details, created_at)
		VALUES ('3zzzzzzzzzzzz', 9, 'comment_hide', '{"comment_id":4}', ?)
	`, formatTime(baseTime.Add(2*time.Hour)))
	require.NoError(t, err)

	t.Run("list newest first with decoded details", func(t *testing.T) {
		actions, err := store.ListActions(ctx, moderation.ActionFilter{})
		require.NoError(t, err)
		require.Len(t, actions, 3)

		unknown := actions[0]
		assert.Equal(t, moderation.ActionUnknown, unknown.Type)
		details, ok := unknown.Details.(moderation.UnknownDetails)
		require.True(t, ok)
		assert.Equal(t, moderation.ActionType("comment_hide"), details.Type)
		assert.JSONEq(t, `{"comment_id":4}`, string(details.Raw))

		closed := actions[1]
		assert.True(t, closed.Automatic())
		assert.Equal(t, system.Details, closed.Details)

		dismissed := actions[2]
		assert.False(t, dismissed.Automatic())
		id, ok := dismissed.Actor.ID()
		assert.True(t, ok)
		assert.Equal(t, int64(5), id)
		assert.Equal(t, human.Details, dismissed.Details)
	})

	t.Run("filters", func(t *testing.T) {
		byReport, err := store.ListActions(ctx, moderation.ActionFilter{ReportID: 1})
		require.NoError(t, err)
		assert.Len(t, byReport, 1)

		byType, err := store.ListActions(ctx, moderation.ActionFilter{Type: moderation.ActionReviewClose})
		require.NoError(t, err)
		assert.Len(t, byType, 1)

		since, err := store.ListActions(ctx, moderation.ActionFilter{Since: baseTime.Add(30 * time.Minute)})
		require.NoError(t, err)
		assert.Len(t, since, 2)

		limited, err := store.ListActions(ctx, moderation.ActionFilter{ContentID: 2, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}

func TestPurgeContent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	r := newReport(1, 2)
	r.Category = moderation.CategoryTagSuggestion
	require.NoError(t, store.CreateReport(ctx, r))
	require.NoError(t, store.CreateTagSuggestions(ctx, []moderation.TagSuggestion{
		{ReportID: r.ID, TagID: 5, Direction: moderation.TagAdd},
	}))
	s := newSession(1, baseTime.Add(time.Hour))
	s.SourceReportID = &r.ID
	require.NoError(t, store.CreateSession(ctx, s))
	require.NoError(t, store.UpsertVote(ctx, &moderation.Vote{
		SessionID: &s.ID, VoterID: 3, Value: moderation.VoteKeep, CreatedAt: baseTime, UpdatedAt: baseTime,
	}))
	require.NoError(t, store.AppendAction(ctx, &moderation.AdminAction{
		Actor: moderation.Human(1), Type: moderation.ActionReviewStart, SessionID: &s.ID, ContentID: ptr(int64(1)),
		Details: moderation.ReviewStartDetails{Type: moderation.ReviewAppropriateness}, CreatedAt: baseTime,
	}))
	other := newReport(2, 2)
	require.NoError(t, store.CreateReport(ctx, other))

	reports, sessions, err := store.PurgeContent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, reports)
	assert.Equal(t, 1, sessions)

	_, err = store.GetReport(ctx, r.ID)
	assert.ErrorIs(t, err, moderation.ErrNotFound)
	_, err = store.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, moderation.ErrNotFound)

	suggestions, err := store.ListTagSuggestions(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
	votes, err := store.ListVotes(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, votes)

	actions, err := store.ListActions(ctx, moderation.ActionFilter{ContentID: 1})
	require.NoError(t, err)
	assert.Len(t, actions, 1, "audit rows survive a purge")

	_, err = store.GetReport(ctx, other.ID)
	assert.NoError(t, err)
}

func TestRunInTx(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var id int64
	err := store.RunInTx(ctx, func(ctx context.Context, tx moderation.Queries) error {
		r := newReport(1, 1)
		if err := tx.CreateReport(ctx, r); err != nil {
			return err
		}
		id = r.ID
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetReport(ctx, id)
	assert.ErrorIs(t, err, moderation.ErrNotFound, "rolled back")

	err = store.RunInTx(ctx, func(ctx context.Context, tx moderation.Queries) error {
		return tx.CreateReport(ctx, newReport(1, 1))
	})
	require.NoError(t, err)
}

func TestStats(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateReport(ctx, newReport(1, 1)))
	require.NoError(t, store.CreateReport(ctx, newReport(1, 2)))
	require.NoError(t, store.CreateSession(ctx, newSession(1, baseTime.Add(-time.Hour))))
	require.NoError(t, store.CreateSession(ctx, newSession(2, baseTime.Add(time.Hour))))

	stats, err := store.Stats(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, moderation.Stats{PendingReports: 2, OpenSessions: 2, ExpiredOpen: 1}, stats)
}

func ptr[T any](v T) *T {
	return &v
}
