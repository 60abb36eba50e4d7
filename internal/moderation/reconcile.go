package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"tangled.org/booru.social/booru/internal/metrics"
	"tangled.org/booru.social/booru/internal/tracing"
)

// DecisionKind is what the reconciler does with an expired session.
type DecisionKind string

const (
	DecideClose  DecisionKind = "close"
	DecideExtend DecisionKind = "extend"
)

// Decision is the verdict for one expired session.
type Decision struct {
	Kind    DecisionKind
	Outcome Outcome     // set when Kind is DecideClose
	Reason  CloseReason // set when Kind is DecideClose
}

// Decide applies the reconciliation rule to a tally:
//
//  1. quorum reached and no tie: close with the majority
//  2. otherwise, if the extension is unused: extend
//  3. otherwise: close with keep
func Decide(tally Tally, extensionUsed bool, quorum int) Decision {
	if tally.Total() >= quorum && tally.Keep != tally.Remove {
		outcome := OutcomeKeep
		if tally.Remove > tally.Keep {
			outcome = OutcomeRemove
		}
		return Decision{Kind: DecideClose, Outcome: outcome, Reason: CloseReasonMajority}
	}
	if !extensionUsed {
		return Decision{Kind: DecideExtend}
	}
	return Decision{Kind: DecideClose, Outcome: OutcomeKeep, Reason: CloseReasonDefault}
}

// SessionError is a per-session failure collected by a sweep.
type SessionError struct {
	SessionID int64
	ContentID int64
	Err       error
}

func (e SessionError) Error() string {
	return fmt.Sprintf("session %d (content %d): %v", e.SessionID, e.ContentID, e.Err)
}

func (e SessionError) Unwrap() error {
	return e.Err
}

// SweepSummary reports what one sweep did.
type SweepSummary struct {
	Processed int            `json:"processed"`
	Closed    int            `json:"closed"`
	Extended  int            `json:"extended"`
	Skipped   int            `json:"skipped"`
	Errored   int            `json:"errored"`
	Errors    []SessionError `json:"-"`
	Duration  time.Duration  `json:"duration"`
}

// Err joins the collected session errors, nil when there were none.
func (s SweepSummary) Err() error {
	if len(s.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(s.Errors))
	for i := range s.Errors {
		errs[i] = s.Errors[i]
	}
	return errors.Join(errs...)
}

type sessionResult int

const (
	resultClosed sessionResult = iota
	resultExtended
	resultSkipped
)

// Sweep evaluates every open session whose deadline has passed. Each session
// is handled in its own unit of work; a failure is recorded in the summary
// and the sweep moves on. Sweeps are idempotent and may overlap: a session
// that was closed or extended in the meantime is skipped.
//
// The returned error is only non-nil when the sweep could not start (the
// expired sessions could not be listed) or ctx was cancelled.
func (e *Engine) Sweep(ctx context.Context) (SweepSummary, error) {
	ctx, span := tracing.SweepSpan(ctx)
	defer span.End()

	start := time.Now()
	var summary SweepSummary
	defer func() {
		summary.Duration = time.Since(start)
		metrics.SweepRunsTotal.Inc()
		metrics.SweepDuration.Observe(summary.Duration.Seconds())
	}()

	now := e.clock()
	sessions, err := e.store.ListExpiredSessions(ctx, now)
	if err != nil {
		tracing.EndWithError(span, err)
		return summary, fmt.Errorf("list expired sessions: %w", err)
	}

	for i := range sessions {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Int("remaining", len(sessions)-i).Msg("moderation: sweep interrupted")
			return summary, err
		}

		session := &sessions[i]
		summary.Processed++
		result, err := e.reconcileSession(ctx, session)
		if err != nil {
			summary.Errored++
			summary.Errors = append(summary.Errors, SessionError{SessionID: session.ID, ContentID: session.ContentID, Err: err})
			metrics.SweepSessionsTotal.WithLabelValues("error").Inc()
			log.Error().Err(err).
				Int64("session_id", session.ID).
				Int64("content_id", session.ContentID).
				Msg("moderation: failed to reconcile session")
			continue
		}
		switch result {
		case resultClosed:
			summary.Closed++
			metrics.SweepSessionsTotal.WithLabelValues("closed").Inc()
		case resultExtended:
			summary.Extended++
			metrics.SweepSessionsTotal.WithLabelValues("extended").Inc()
		case resultSkipped:
			summary.Skipped++
			metrics.SweepSessionsTotal.WithLabelValues("skipped").Inc()
		}
	}

	if summary.Processed > 0 {
		log.Info().
			Int("processed", summary.Processed).
			Int("closed", summary.Closed).
			Int("extended", summary.Extended).
			Int("skipped", summary.Skipped).
			Int("errored", summary.Errored).
			Msg("moderation: sweep complete")
	}
	return summary, nil
}

// reconcileSession is the unit of work for one expired session. The deadline
// observed when listing is passed to the store as the expected value, so a
// session extended or closed by someone else in between is left alone.
func (e *Engine) reconcileSession(ctx context.Context, session *ReviewSession) (result sessionResult, err error) {
	tally, err := e.store.TallyVotes(ctx, session.ID)
	if err != nil {
		return 0, fmt.Errorf("tally votes: %w", err)
	}
	decision := Decide(tally, session.ExtensionUsed, e.config.Quorum)

	ctx, span := tracing.SessionSpan(ctx, string(decision.Kind), session.ID)
	defer func() {
		tracing.EndWithError(span, err)
		span.End()
	}()

	switch decision.Kind {
	case DecideExtend:
		err = e.store.RunInTx(ctx, func(ctx context.Context, tx Queries) error {
			_, err := e.extendSession(ctx, tx, System, session, e.config.ExtensionWindow, tally)
			return err
		})
		if errors.Is(err, ErrStale) {
			log.Debug().Int64("session_id", session.ID).Msg("moderation: session changed before extension, skipping")
			return resultSkipped, nil
		}
		if err != nil {
			return 0, err
		}
		metrics.ReviewSessionsExtendedTotal.WithLabelValues("automatic").Inc()
		return resultExtended, nil

	default:
		deadline := session.Deadline
		_, err = e.closeSession(ctx, System, session, decision.Outcome, decision.Reason, tally, &deadline)
		if errors.Is(err, ErrStale) {
			log.Debug().Int64("session_id", session.ID).Msg("moderation: session changed before close, skipping")
			return resultSkipped, nil
		}
		if err != nil {
			return 0, err
		}
		return resultClosed, nil
	}
}

// RunSweeps runs a sweep immediately and then every interval until ctx is
// cancelled. Sweep failures are logged and retried on the next tick.
func (e *Engine) RunSweeps(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	log.Info().Dur("interval", interval).Msg("moderation: reconciler started")

	run := func() {
		summary, err := e.Sweep(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("moderation: sweep failed")
		}
		if summary.Errored > 0 {
			log.Warn().Int("errored", summary.Errored).Msg("moderation: sweep left sessions for retry")
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("moderation: reconciler stopped")
			return nil
		case <-ticker.C:
			run()
		}
	}
}
