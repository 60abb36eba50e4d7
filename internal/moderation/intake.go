package moderation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"tangled.org/booru.social/booru/internal/metrics"
)

// SuggestionInput is one proposed tag change submitted with a report.
type SuggestionInput struct {
	TagID     int64        `json:"tag_id"`
	Direction TagDirection `json:"direction"`
}

// FileReportInput is the request to file a report against a content item.
type FileReportInput struct {
	ContentID   int64
	ReporterID  int64
	Category    ReportCategory
	Reason      string
	Suggestions []SuggestionInput
}

// Skip reasons for suggestions dropped at intake or apply time.
const (
	SkipAlreadyTagged = "already_tagged"
	SkipNotTagged     = "not_tagged"
	SkipDuplicate     = "duplicate"
)

// SkippedSuggestion is a suggestion that would not change the content's tags.
// At intake it is not stored; at apply time it is accepted but not applied.
type SkippedSuggestion struct {
	SuggestionID int64        `json:"suggestion_id,omitempty"` // set at apply time
	TagID        int64        `json:"tag_id"`
	Direction    TagDirection `json:"direction"`
	Reason       string       `json:"reason"`
}

// FileReportResult is the report that was created plus the suggestions that
// were stored and those that were skipped.
type FileReportResult struct {
	Report      *Report             `json:"report"`
	Suggestions []TagSuggestion     `json:"suggestions,omitempty"`
	Skipped     []SkippedSuggestion `json:"skipped,omitempty"`
}

// FileReport records a user complaint. Any user may file a report, so there
// is no capability gate. Tag suggestions that would not change the content
// are returned as Skipped; the report is filed even when none remain.
func (e *Engine) FileReport(ctx context.Context, in FileReportInput) (*FileReportResult, error) {
	category := ParseReportCategory(string(in.Category))
	if category == CategoryTagSuggestion && len(in.Suggestions) == 0 {
		return nil, invalidArg("a tag suggestion report needs at least one suggestion")
	}
	if category != CategoryTagSuggestion && len(in.Suggestions) > 0 {
		return nil, invalidArg("tag suggestions are only accepted for category %q", CategoryTagSuggestion)
	}
	for _, s := range in.Suggestions {
		if !s.Direction.Valid() {
			return nil, invalidArg("unknown tag direction %q", s.Direction)
		}
	}

	exists, err := e.content.Exists(ctx, in.ContentID)
	if err != nil {
		return nil, upstream("check content", err)
	}
	if !exists {
		return nil, fmt.Errorf("content %d: %w", in.ContentID, ErrNotFound)
	}

	result := &FileReportResult{}
	var keep []SuggestionInput
	if len(in.Suggestions) > 0 {
		tags, err := e.content.Tags(ctx, in.ContentID)
		if err != nil {
			return nil, upstream("read content tags", err)
		}
		keep, result.Skipped = filterSuggestions(in.Suggestions, tags)
	}

	report := &Report{
		ContentID:  in.ContentID,
		ReporterID: in.ReporterID,
		Category:   category,
		Reason:     cleanReason(in.Reason),
		Status:     ReportStatusPending,
		CreatedAt:  e.clock(),
	}

	err = e.store.RunInTx(ctx, func(ctx context.Context, tx Queries) error {
		if err := tx.CreateReport(ctx, report); err != nil {
			return err
		}
		if len(keep) == 0 {
			return nil
		}
		suggestions := make([]TagSuggestion, 0, len(keep))
		for _, s := range keep {
			suggestions = append(suggestions, TagSuggestion{
				ReportID:  report.ID,
				TagID:     s.TagID,
				Direction: s.Direction,
				Decision:  DecisionPending,
			})
		}
		if err := tx.CreateTagSuggestions(ctx, suggestions); err != nil {
			return err
		}
		result.Suggestions = suggestions
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			log.Info().
				Int64("content_id", in.ContentID).
				Int64("reporter_id", in.ReporterID).
				Msg("moderation: duplicate report rejected")
		}
		return nil, fmt.Errorf("file report: %w", err)
	}

	metrics.ReportsFiledTotal.WithLabelValues(string(category)).Inc()
	log.Info().
		Int64("report_id", report.ID).
		Int64("content_id", report.ContentID).
		Int64("reporter_id", report.ReporterID).
		Str("category", string(category)).
		Int("suggestions", len(result.Suggestions)).
		Int("skipped", len(result.Skipped)).
		Msg("moderation: report filed")

	result.Report = report
	return result, nil
}

// filterSuggestions drops suggestions that would not change tags: additions
// of tags already present and removals of tags that are absent. Repeats of
// the same (tag, direction) pair are collapsed.
func filterSuggestions(in []SuggestionInput, current []int64) (keep []SuggestionInput, skipped []SkippedSuggestion) {
	seen := make(map[SuggestionInput]bool, len(in))
	for _, s := range in {
		if seen[s] {
			skipped = append(skipped, SkippedSuggestion{TagID: s.TagID, Direction: s.Direction, Reason: SkipDuplicate})
			continue
		}
		seen[s] = true

		if reason, ok := applicable(s.Direction, s.TagID, current); !ok {
			skipped = append(skipped, SkippedSuggestion{TagID: s.TagID, Direction: s.Direction, Reason: reason})
			continue
		}
		keep = append(keep, s)
	}
	return keep, skipped
}

// applicable reports whether a tag change would do anything against the
// current tag set, and if not, why.
func applicable(dir TagDirection, tagID int64, current []int64) (string, bool) {
	has := slices.Contains(current, tagID)
	switch {
	case dir == TagAdd && has:
		return SkipAlreadyTagged, false
	case dir == TagRemove && !has:
		return SkipNotTagged, false
	}
	return "", true
}

func cleanReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) <= MaxReportReasonLength {
		return reason
	}
	return string([]rune(reason)[:MaxReportReasonLength])
}
