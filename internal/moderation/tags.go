package moderation

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"tangled.org/booru.social/booru/internal/metrics"
)

// ApplyResult splits a report's suggestions into those applied to the
// content, those accepted but no longer applicable, and those rejected.
type ApplyResult struct {
	Report   *Report             `json:"report"`
	Applied  []TagSuggestion     `json:"applied"`
	Skipped  []SkippedSuggestion `json:"skipped"`
	Rejected []TagSuggestion     `json:"rejected"`
}

// ApplySuggestions resolves a tag suggestion report. Suggestions whose ids are
// in accepted are applied against the content's current tags; the rest are
// rejected. The tag mutation is pushed before the report is resolved and is
// reversed if resolving fails, except for changes a concurrent apply of the
// same report committed.
func (e *Engine) ApplySuggestions(ctx context.Context, actorID int64, reportID int64, accepted []int64, notes string) (*ApplyResult, error) {
	if err := e.authorize(ctx, actorID, CapTagSuggestionApply); err != nil {
		return nil, err
	}
	report, err := e.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("get report %d: %w", reportID, err)
	}
	if report.Category != CategoryTagSuggestion {
		return nil, fmt.Errorf("report %d has category %s: %w", reportID, report.Category, ErrInvalidCategory)
	}
	if !report.IsPending() {
		return nil, fmt.Errorf("report %d is %s: %w", reportID, report.Status, ErrAlreadyProcessed)
	}

	suggestions, err := e.store.ListTagSuggestions(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("list tag suggestions: %w", err)
	}
	acceptedSet := make(map[int64]bool, len(accepted))
	for _, id := range accepted {
		acceptedSet[id] = true
	}
	for id := range acceptedSet {
		if !containsSuggestion(suggestions, id) {
			return nil, invalidArg("suggestion %d does not belong to report %d", id, reportID)
		}
	}

	current, err := e.content.Tags(ctx, report.ContentID)
	if err != nil {
		return nil, upstream("read content tags", err)
	}

	result := &ApplyResult{}
	var add, remove []int64
	for _, s := range suggestions {
		if !acceptedSet[s.ID] {
			s.Decision = DecisionRejected
			result.Rejected = append(result.Rejected, s)
			continue
		}
		s.Decision = DecisionAccepted
		if reason, ok := applicable(s.Direction, s.TagID, current); !ok {
			result.Skipped = append(result.Skipped, SkippedSuggestion{
				SuggestionID: s.ID,
				TagID:        s.TagID,
				Direction:    s.Direction,
				Reason:       reason,
			})
			continue
		}
		if s.Direction == TagAdd {
			add = append(add, s.TagID)
		} else {
			remove = append(remove, s.TagID)
		}
		result.Applied = append(result.Applied, s)
	}

	mutated := len(add) > 0 || len(remove) > 0
	if mutated {
		if err := e.content.MutateTags(ctx, report.ContentID, add, remove); err != nil {
			return nil, upstream("mutate tags", err)
		}
	}

	now := e.clock()
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx Queries) error {
		if err := resolve(ctx, tx, reportID, ResolveParams{
			Status:     ReportStatusReviewed,
			ReviewerID: actorID,
			Notes:      notes,
			ReviewedAt: now,
		}); err != nil {
			return err
		}
		for _, s := range suggestions {
			decision := DecisionRejected
			if acceptedSet[s.ID] {
				decision = DecisionAccepted
			}
			if err := tx.DecideTagSuggestion(ctx, s.ID, decision); err != nil {
				return fmt.Errorf("decide suggestion %d: %w", s.ID, err)
			}
		}
		_, err := e.record(ctx, tx, Human(actorID), int64Ptr(reportID), nil, int64Ptr(report.ContentID), TagSuggestionApplyDetails{
			Added:    nonNil(add),
			Removed:  nonNil(remove),
			Skipped:  skippedTagIDs(result.Skipped),
			Rejected: suggestionTagIDs(result.Rejected),
			Notes:    notes,
		})
		return err
	})
	if err != nil {
		if mutated {
			e.revertTags(ctx, reportID, report.ContentID, add, remove, err)
		}
		return nil, fmt.Errorf("apply tag suggestions for report %d: %w", reportID, err)
	}

	metrics.ReportResolutionsTotal.WithLabelValues("tag_suggestion_apply").Inc()
	metrics.TagSuggestionsTotal.WithLabelValues("applied").Add(float64(len(result.Applied)))
	metrics.TagSuggestionsTotal.WithLabelValues("skipped").Add(float64(len(result.Skipped)))
	metrics.TagSuggestionsTotal.WithLabelValues("rejected").Add(float64(len(result.Rejected)))
	log.Info().
		Int64("report_id", reportID).
		Int64("content_id", report.ContentID).
		Int64("actor_id", actorID).
		Ints64("added", add).
		Ints64("removed", remove).
		Int("skipped", len(result.Skipped)).
		Int("rejected", len(result.Rejected)).
		Msg("moderation: tag suggestions applied")

	result.Report = markResolved(report, ReportStatusReviewed, actorID, notes, now)
	return result, nil
}

// revertTags undoes a tag mutation whose transaction failed. When the report
// was resolved by a concurrent apply, the tags that apply recorded as added or
// removed are left alone: both requests pushed them and the winner owns them.
func (e *Engine) revertTags(ctx context.Context, reportID, contentID int64, add, remove []int64, cause error) {
	if errors.Is(cause, ErrAlreadyProcessed) || errors.Is(cause, ErrStale) {
		winners, err := e.store.ListActions(ctx, ActionFilter{ReportID: reportID, Type: ActionTagSuggestionApply, Limit: 1})
		if err != nil {
			log.Error().Err(err).
				Int64("report_id", reportID).
				Int64("content_id", contentID).
				Msg("moderation: failed to load committed tag changes, leaving tags as pushed")
			return
		}
		if len(winners) > 0 {
			if d, ok := winners[0].Details.(TagSuggestionApplyDetails); ok {
				add = without(add, d.Added)
				remove = without(remove, d.Removed)
			}
		}
	}
	if len(add) == 0 && len(remove) == 0 {
		return
	}
	if err := e.content.MutateTags(ctx, contentID, remove, add); err != nil {
		log.Error().Err(err).
			Int64("report_id", reportID).
			Int64("content_id", contentID).
			Msg("moderation: failed to revert tag mutation")
	}
}

func without(ids, drop []int64) []int64 {
	var out []int64
	for _, id := range ids {
		if !slices.Contains(drop, id) {
			out = append(out, id)
		}
	}
	return out
}

func containsSuggestion(suggestions []TagSuggestion, id int64) bool {
	for _, s := range suggestions {
		if s.ID == id {
			return true
		}
	}
	return false
}

func skippedTagIDs(skipped []SkippedSuggestion) []int64 {
	ids := make([]int64, 0, len(skipped))
	for _, s := range skipped {
		ids = append(ids, s.TagID)
	}
	return ids
}

func suggestionTagIDs(suggestions []TagSuggestion) []int64 {
	ids := make([]int64, 0, len(suggestions))
	for _, s := range suggestions {
		ids = append(ids, s.TagID)
	}
	return ids
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
