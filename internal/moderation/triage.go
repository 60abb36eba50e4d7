package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"tangled.org/booru.social/booru/internal/metrics"
)

// getPendingReport loads a report and checks that it still awaits triage.
func (e *Engine) getPendingReport(ctx context.Context, reportID int64) (*Report, error) {
	report, err := e.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("get report %d: %w", reportID, err)
	}
	if !report.IsPending() {
		return nil, fmt.Errorf("report %d is %s: %w", reportID, report.Status, ErrAlreadyProcessed)
	}
	return report, nil
}

// resolve is the compare-and-set transition of a pending report inside tx.
func resolve(ctx context.Context, tx Queries, reportID int64, params ResolveParams) error {
	err := tx.ResolveReport(ctx, reportID, params)
	if errors.Is(err, ErrStale) {
		return fmt.Errorf("report %d: %w", reportID, ErrAlreadyProcessed)
	}
	return err
}

// Dismiss closes a report without touching the content. Any tag suggestions
// attached to it are rejected.
func (e *Engine) Dismiss(ctx context.Context, actorID int64, reportID int64, notes string) (*Report, error) {
	if err := e.authorize(ctx, actorID, CapReportManage); err != nil {
		return nil, err
	}
	report, err := e.getPendingReport(ctx, reportID)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx Queries) error {
		if err := resolve(ctx, tx, reportID, ResolveParams{
			Status:     ReportStatusDismissed,
			ReviewerID: actorID,
			Notes:      notes,
			ReviewedAt: now,
		}); err != nil {
			return err
		}
		rejected, err := tx.RejectPendingTagSuggestions(ctx, reportID)
		if err != nil {
			return err
		}
		if rejected > 0 {
			metrics.TagSuggestionsTotal.WithLabelValues("rejected").Add(float64(rejected))
		}
		_, err = e.record(ctx, tx, Human(actorID), int64Ptr(reportID), nil, int64Ptr(report.ContentID), ReportDismissDetails{
			Notes:               notes,
			RejectedSuggestions: rejected,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("dismiss report %d: %w", reportID, err)
	}

	metrics.ReportResolutionsTotal.WithLabelValues("dismiss").Inc()
	log.Info().
		Int64("report_id", reportID).
		Int64("content_id", report.ContentID).
		Int64("actor_id", actorID).
		Msg("moderation: report dismissed")

	return markResolved(report, ReportStatusDismissed, actorID, notes, now), nil
}

// QuickAction resolves a report by setting the content's visibility directly.
func (e *Engine) QuickAction(ctx context.Context, actorID int64, reportID int64, newStatus Visibility) (*Report, error) {
	if err := e.authorize(ctx, actorID, CapReportManage); err != nil {
		return nil, err
	}
	if !newStatus.Valid() {
		return nil, invalidArg("unknown content status %q", newStatus)
	}
	report, err := e.getPendingReport(ctx, reportID)
	if err != nil {
		return nil, err
	}

	previous, err := e.content.Visibility(ctx, report.ContentID)
	if err != nil {
		return nil, upstream("read visibility", err)
	}
	if err := e.content.SetVisibility(ctx, report.ContentID, newStatus); err != nil {
		return nil, upstream("set visibility", err)
	}

	now := e.clock()
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx Queries) error {
		if err := resolve(ctx, tx, reportID, ResolveParams{
			Status:     ReportStatusReviewed,
			ReviewerID: actorID,
			ReviewedAt: now,
		}); err != nil {
			return err
		}
		if _, err := tx.RejectPendingTagSuggestions(ctx, reportID); err != nil {
			return err
		}
		_, err := e.record(ctx, tx, Human(actorID), int64Ptr(reportID), nil, int64Ptr(report.ContentID), ReportActionDetails{
			PreviousStatus: previous,
			NewStatus:      newStatus,
		})
		return err
	})
	if err != nil {
		e.restoreVisibility(ctx, report.ContentID, previous)
		return nil, fmt.Errorf("quick action on report %d: %w", reportID, err)
	}

	metrics.ReportResolutionsTotal.WithLabelValues("quick_action").Inc()
	log.Info().
		Int64("report_id", reportID).
		Int64("content_id", report.ContentID).
		Int64("actor_id", actorID).
		Str("previous_status", string(previous)).
		Str("new_status", string(newStatus)).
		Msg("moderation: quick action applied")

	return markResolved(report, ReportStatusReviewed, actorID, "", now), nil
}

// Escalate turns a pending report into a review session on its content. The
// report stays pending if the session cannot be opened.
func (e *Engine) Escalate(ctx context.Context, actorID int64, reportID int64, deadlineDays *int) (*ReviewSession, error) {
	if err := e.authorize(ctx, actorID, CapReportManage); err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, actorID, CapReviewStart); err != nil {
		return nil, err
	}
	report, err := e.getPendingReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.Category == CategoryTagSuggestion {
		return nil, fmt.Errorf("report %d: tag suggestions cannot be escalated: %w", reportID, ErrAlreadyProcessed)
	}

	session, err := e.openSession(ctx, Human(actorID), report.ContentID, report, deadlineDays)
	if err != nil {
		return nil, fmt.Errorf("escalate report %d: %w", reportID, err)
	}
	metrics.ReportResolutionsTotal.WithLabelValues("escalate").Inc()
	metrics.ReviewSessionsStartedTotal.WithLabelValues("escalation").Inc()
	return session, nil
}

// ListReports lists reports. Actors who may only apply tag suggestions see
// tag suggestion reports and nothing else.
func (e *Engine) ListReports(ctx context.Context, actorID int64, filter ReportFilter) ([]Report, error) {
	switch filter.Status {
	case "", ReportStatusPending, ReportStatusReviewed, ReportStatusDismissed:
	default:
		return nil, invalidArg("unknown report status %q", filter.Status)
	}
	if filter.Category != "" {
		filter.Category = ParseReportCategory(string(filter.Category))
	}

	full, err := e.can(ctx, actorID, CapReportView)
	if err != nil {
		return nil, err
	}
	if !full {
		if err := e.authorize(ctx, actorID, CapTagSuggestionApply); err != nil {
			return nil, err
		}
		filter.Category = CategoryTagSuggestion
	}

	reports, err := e.store.ListReports(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

// GetReport returns one report under the same visibility rules as ListReports.
func (e *Engine) GetReport(ctx context.Context, actorID int64, reportID int64) (*Report, error) {
	full, err := e.can(ctx, actorID, CapReportView)
	if err != nil {
		return nil, err
	}
	if !full {
		if err := e.authorize(ctx, actorID, CapTagSuggestionApply); err != nil {
			return nil, err
		}
	}
	report, err := e.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("get report %d: %w", reportID, err)
	}
	if !full && report.Category != CategoryTagSuggestion {
		return nil, fmt.Errorf("%w: actor %d may only view tag suggestion reports", ErrPermissionDenied, actorID)
	}
	return report, nil
}

// ListTagSuggestions returns the suggestions attached to a report.
func (e *Engine) ListTagSuggestions(ctx context.Context, actorID int64, reportID int64) ([]TagSuggestion, error) {
	if _, err := e.GetReport(ctx, actorID, reportID); err != nil {
		return nil, err
	}
	suggestions, err := e.store.ListTagSuggestions(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("list tag suggestions: %w", err)
	}
	return suggestions, nil
}

func markResolved(r *Report, status ReportStatus, reviewerID int64, notes string, at time.Time) *Report {
	out := *r
	out.Status = status
	out.ReviewerID = int64Ptr(reviewerID)
	out.AdminNotes = notes
	out.ReviewedAt = &at
	return &out
}
