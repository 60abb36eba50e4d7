package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"tangled.org/booru.social/booru/internal/metrics"
)

// StartSessionInput is the request to open a review session on a content item.
type StartSessionInput struct {
	ContentID int64
	// DeadlineDays overrides the configured review window, in whole days.
	DeadlineDays *int
}

// StartSession opens an appropriateness review directly, with no source report.
func (e *Engine) StartSession(ctx context.Context, actorID int64, in StartSessionInput) (*ReviewSession, error) {
	if err := e.authorize(ctx, actorID, CapReviewStart); err != nil {
		return nil, err
	}
	exists, err := e.content.Exists(ctx, in.ContentID)
	if err != nil {
		return nil, upstream("check content", err)
	}
	if !exists {
		return nil, fmt.Errorf("content %d: %w", in.ContentID, ErrNotFound)
	}
	session, err := e.openSession(ctx, Human(actorID), in.ContentID, nil, in.DeadlineDays)
	if err != nil {
		return nil, err
	}
	metrics.ReviewSessionsStartedTotal.WithLabelValues("direct").Inc()
	return session, nil
}

// openSession is shared by StartSession and Escalate. The content is put
// under review before the session row is written; if the write fails the
// previous visibility is restored. When source is set the report is resolved
// in the same transaction as the session insert.
func (e *Engine) openSession(ctx context.Context, actor Actor, contentID int64, source *Report, deadlineDays *int) (*ReviewSession, error) {
	window, err := windowFor(deadlineDays, e.config.ReviewWindow)
	if err != nil {
		return nil, err
	}

	// Fast path for the common conflict; the unique index is the real guard.
	if _, err := e.store.FindOpenSession(ctx, contentID); err == nil {
		return nil, fmt.Errorf("content %d: %w", contentID, ErrSessionOpen)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find open session: %w", err)
	}

	previous, err := e.content.Visibility(ctx, contentID)
	if err != nil {
		return nil, upstream("read visibility", err)
	}
	if err := e.content.SetVisibility(ctx, contentID, VisibilityUnderReview); err != nil {
		return nil, upstream("set visibility", err)
	}

	now := e.clock()
	session := &ReviewSession{
		ContentID:     contentID,
		InitiatorID:   humanID(actor),
		Type:          ReviewAppropriateness,
		Deadline:      now.Add(window),
		ExtensionUsed: false,
		Status:        SessionOpen,
		Outcome:       OutcomePending,
		CreatedAt:     now,
	}
	if source != nil {
		session.SourceReportID = int64Ptr(source.ID)
	}

	err = e.store.RunInTx(ctx, func(ctx context.Context, tx Queries) error {
		var reportID *int64
		if source != nil {
			reportID = int64Ptr(source.ID)
			err := tx.ResolveReport(ctx, source.ID, ResolveParams{
				Status:     ReportStatusReviewed,
				ReviewerID: session.InitiatorID,
				ReviewedAt: now,
			})
			if errors.Is(err, ErrStale) {
				return fmt.Errorf("report %d: %w", source.ID, ErrAlreadyProcessed)
			}
			if err != nil {
				return err
			}
		}
		if err := tx.CreateSession(ctx, session); err != nil {
			return err
		}
		_, err := e.record(ctx, tx, actor, reportID, int64Ptr(session.ID), int64Ptr(contentID), ReviewStartDetails{
			Type:           session.Type,
			Deadline:       session.Deadline,
			Escalated:      source != nil,
			PreviousStatus: previous,
		})
		return err
	})
	if err != nil {
		// A concurrent session that won the insert now owns the visibility.
		if _, ferr := e.store.FindOpenSession(ctx, contentID); ferr != nil {
			e.restoreVisibility(ctx, contentID, previous)
		}
		return nil, fmt.Errorf("start review session: %w", err)
	}

	log.Info().
		Int64("session_id", session.ID).
		Int64("content_id", contentID).
		Str("initiator", actor.String()).
		Time("deadline", session.Deadline).
		Bool("escalated", source != nil).
		Msg("moderation: review session started")
	return session, nil
}

// restoreVisibility undoes a visibility push whose transaction failed.
// Failures are logged; the request has already failed.
func (e *Engine) restoreVisibility(ctx context.Context, contentID int64, previous Visibility) {
	if err := e.content.SetVisibility(ctx, contentID, previous); err != nil {
		log.Error().Err(err).
			Int64("content_id", contentID).
			Str("visibility", string(previous)).
			Msg("moderation: failed to restore content visibility")
	}
}

// CloseEarly closes an open session before its deadline with an admin-chosen outcome.
func (e *Engine) CloseEarly(ctx context.Context, actorID int64, sessionID int64, outcome Outcome) (*ReviewSession, error) {
	if err := e.authorize(ctx, actorID, CapReviewCloseEarly); err != nil {
		return nil, err
	}
	if !outcome.Valid() {
		return nil, invalidArg("outcome must be %q or %q, got %q", OutcomeKeep, OutcomeRemove, outcome)
	}
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", sessionID, err)
	}
	if !session.IsOpen() {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrAlreadyClosed)
	}
	tally, err := e.store.TallyVotes(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("tally votes: %w", err)
	}

	closed, err := e.closeSession(ctx, Human(actorID), session, outcome, CloseReasonEarly, tally, nil)
	if errors.Is(err, ErrStale) {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrAlreadyClosed)
	}
	return closed, err
}

// closeSession pushes the outcome's visibility to the content store and then
// closes the session with its audit entry in one transaction. A failed push
// leaves the session open. If the transaction fails, including a lost race
// (ErrStale), the content visibility is re-synced with whatever state the
// session is actually in.
func (e *Engine) closeSession(ctx context.Context, actor Actor, session *ReviewSession, outcome Outcome, reason CloseReason, tally Tally, expectDeadline *time.Time) (*ReviewSession, error) {
	if err := e.content.SetVisibility(ctx, session.ContentID, outcome.Visibility()); err != nil {
		return nil, upstream("set visibility", err)
	}

	now := e.clock()
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx Queries) error {
		if err := tx.CloseSession(ctx, session.ID, CloseParams{
			Outcome:        outcome,
			ClosedAt:       now,
			ExpectDeadline: expectDeadline,
		}); err != nil {
			return err
		}
		_, err := e.record(ctx, tx, actor, session.SourceReportID, int64Ptr(session.ID), int64Ptr(session.ContentID), ReviewCloseDetails{
			Outcome:     outcome,
			Reason:      reason,
			KeepVotes:   tally.Keep,
			RemoveVotes: tally.Remove,
			Automatic:   actor.IsSystem(),
		})
		return err
	})
	if err != nil {
		e.resyncVisibility(ctx, session.ID)
		return nil, fmt.Errorf("close session %d: %w", session.ID, err)
	}

	closed := *session
	closed.Status = SessionClosed
	closed.Outcome = outcome
	closed.ClosedAt = &now

	metrics.ReviewSessionsClosedTotal.WithLabelValues(string(outcome), string(reason)).Inc()
	log.Info().
		Int64("session_id", session.ID).
		Int64("content_id", session.ContentID).
		Str("actor", actor.String()).
		Str("outcome", string(outcome)).
		Str("reason", string(reason)).
		Int("keep", tally.Keep).
		Int("remove", tally.Remove).
		Msg("moderation: review session closed")
	return &closed, nil
}

// resyncVisibility re-pushes the visibility implied by the session's stored
// state after a failed close.
func (e *Engine) resyncVisibility(ctx context.Context, sessionID int64) {
	current, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Int64("session_id", sessionID).Msg("moderation: failed to reload session for visibility resync")
		return
	}
	want := VisibilityUnderReview
	if !current.IsOpen() {
		want = current.Outcome.Visibility()
	}
	if err := e.content.SetVisibility(ctx, current.ContentID, want); err != nil {
		log.Error().Err(err).
			Int64("session_id", sessionID).
			Int64("content_id", current.ContentID).
			Str("visibility", string(want)).
			Msg("moderation: failed to resync content visibility")
	}
}

// ExtendSession pushes an open session's deadline forward by hand. It uses
// the same one-time extension as the reconciler.
func (e *Engine) ExtendSession(ctx context.Context, actorID int64, sessionID int64, days *int) (*ReviewSession, error) {
	if err := e.authorize(ctx, actorID, CapReviewExtend); err != nil {
		return nil, err
	}
	window, err := windowFor(days, e.config.ExtensionWindow)
	if err != nil {
		return nil, err
	}
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", sessionID, err)
	}
	if !session.IsOpen() {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrAlreadyClosed)
	}
	if session.ExtensionUsed {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrAlreadyExtended)
	}

	var extended *ReviewSession
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx Queries) error {
		tally, err := tx.TallyVotes(ctx, sessionID)
		if err != nil {
			return err
		}
		extended, err = e.extendSession(ctx, tx, Human(actorID), session, window, tally)
		return err
	})
	if errors.Is(err, ErrStale) {
		// Someone closed or extended it first; report which.
		if current, gerr := e.store.GetSession(ctx, sessionID); gerr == nil && !current.IsOpen() {
			return nil, fmt.Errorf("session %d: %w", sessionID, ErrAlreadyClosed)
		}
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrAlreadyExtended)
	}
	if err != nil {
		return nil, fmt.Errorf("extend session %d: %w", sessionID, err)
	}
	metrics.ReviewSessionsExtendedTotal.WithLabelValues("manual").Inc()
	return extended, nil
}

// extendSession moves the deadline forward by window and marks the extension
// used, inside tx. The window counts from the later of the old deadline and
// now, so a late sweep still grants the full extension.
func (e *Engine) extendSession(ctx context.Context, tx Queries, actor Actor, session *ReviewSession, window time.Duration, tally Tally) (*ReviewSession, error) {
	from := session.Deadline
	base := from
	if now := e.clock(); now.After(base) {
		base = now
	}
	to := base.Add(window)
	if err := tx.ExtendSession(ctx, session.ID, from, to); err != nil {
		return nil, err
	}
	_, err := e.record(ctx, tx, actor, session.SourceReportID, int64Ptr(session.ID), int64Ptr(session.ContentID), ReviewExtendDetails{
		PreviousDeadline: from,
		NewDeadline:      to,
		KeepVotes:        tally.Keep,
		RemoveVotes:      tally.Remove,
		Automatic:        actor.IsSystem(),
	})
	if err != nil {
		return nil, err
	}

	extended := *session
	extended.Deadline = to
	extended.ExtensionUsed = true

	log.Info().
		Int64("session_id", session.ID).
		Str("actor", actor.String()).
		Time("previous_deadline", from).
		Time("new_deadline", to).
		Msg("moderation: review session extended")
	return &extended, nil
}

// GetSession returns a single review session.
func (e *Engine) GetSession(ctx context.Context, actorID int64, sessionID int64) (*ReviewSession, error) {
	if err := e.authorize(ctx, actorID, CapReviewView); err != nil {
		return nil, err
	}
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", sessionID, err)
	}
	return session, nil
}

// ListSessions lists review sessions, optionally only those with the given status.
func (e *Engine) ListSessions(ctx context.Context, actorID int64, status *SessionStatus) ([]ReviewSession, error) {
	if err := e.authorize(ctx, actorID, CapReviewView); err != nil {
		return nil, err
	}
	var filter SessionStatus
	if status != nil {
		if *status != SessionOpen && *status != SessionClosed {
			return nil, invalidArg("unknown session status %q", *status)
		}
		filter = *status
	}
	sessions, err := e.store.ListSessions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// windowFor returns the override in whole days, or def when days is nil.
func windowFor(days *int, def time.Duration) (time.Duration, error) {
	if days == nil {
		return def, nil
	}
	if *days < 1 || *days > MaxDeadlineDays {
		return 0, invalidArg("deadline override must be between 1 and %d days, got %d", MaxDeadlineDays, *days)
	}
	return time.Duration(*days) * 24 * time.Hour, nil
}

// humanID returns the id of a human actor, zero for System.
func humanID(a Actor) int64 {
	id, _ := a.ID()
	return id
}
