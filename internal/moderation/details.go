package moderation

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType represents a type of moderation action
type ActionType string

const (
	ActionReportDismiss      ActionType = "report_dismiss"
	ActionReportAction       ActionType = "report_action"
	ActionReviewStart        ActionType = "review_start"
	ActionReviewVote         ActionType = "review_vote" // legacy rows only, votes are not audited
	ActionReviewClose        ActionType = "review_close"
	ActionReviewExtend       ActionType = "review_extend"
	ActionTagSuggestionApply ActionType = "tag_suggestion_apply"
	ActionContentPurge       ActionType = "content_purge"
	ActionUnknown            ActionType = "unknown"
)

// ParseActionType maps s onto a known action type, falling back to ActionUnknown.
func ParseActionType(s string) ActionType {
	switch t := ActionType(s); t {
	case ActionReportDismiss, ActionReportAction, ActionReviewStart, ActionReviewVote,
		ActionReviewClose, ActionReviewExtend, ActionTagSuggestionApply, ActionContentPurge:
		return t
	default:
		return ActionUnknown
	}
}

// ActionDetails is the structured payload of an AdminAction. Each action type
// has exactly one details struct.
type ActionDetails interface {
	ActionType() ActionType
}

// ReportDismissDetails is recorded when a report is dismissed without action.
type ReportDismissDetails struct {
	Notes               string `json:"notes,omitempty"`
	RejectedSuggestions int    `json:"rejected_suggestions"`
}

func (ReportDismissDetails) ActionType() ActionType { return ActionReportDismiss }

// ReportActionDetails is recorded when a quick action changes content visibility.
type ReportActionDetails struct {
	PreviousStatus Visibility `json:"previous_status"`
	NewStatus      Visibility `json:"new_status"`
}

func (ReportActionDetails) ActionType() ActionType { return ActionReportAction }

// ReviewStartDetails is recorded when a review session opens.
type ReviewStartDetails struct {
	Type      ReviewType `json:"type"`
	Deadline  time.Time  `json:"deadline"`
	Escalated bool       `json:"escalated"`
	// PreviousStatus is the content visibility before it went under review.
	PreviousStatus Visibility `json:"previous_status"`
}

func (ReviewStartDetails) ActionType() ActionType { return ActionReviewStart }

// ReviewVoteDetails decodes legacy vote rows.
type ReviewVoteDetails struct {
	Value VoteValue `json:"value"`
}

func (ReviewVoteDetails) ActionType() ActionType { return ActionReviewVote }

// CloseReason says why a session was closed with its outcome.
type CloseReason string

const (
	CloseReasonEarly    CloseReason = "early"    // admin closed before the deadline
	CloseReasonMajority CloseReason = "majority" // quorum reached with a majority
	CloseReasonDefault  CloseReason = "default"  // no decision after the extension
)

// ReviewCloseDetails is recorded when a session closes, by hand or by the reconciler.
type ReviewCloseDetails struct {
	Outcome     Outcome     `json:"outcome"`
	Reason      CloseReason `json:"reason"`
	KeepVotes   int         `json:"keep_votes"`
	RemoveVotes int         `json:"remove_votes"`
	Automatic   bool        `json:"automatic"`
}

func (ReviewCloseDetails) ActionType() ActionType { return ActionReviewClose }

// ReviewExtendDetails is recorded when a session uses its one extension.
type ReviewExtendDetails struct {
	PreviousDeadline time.Time `json:"previous_deadline"`
	NewDeadline      time.Time `json:"new_deadline"`
	KeepVotes        int       `json:"keep_votes"`
	RemoveVotes      int       `json:"remove_votes"`
	Automatic        bool      `json:"automatic"`
}

func (ReviewExtendDetails) ActionType() ActionType { return ActionReviewExtend }

// TagSuggestionApplyDetails lists the tag ids changed, skipped and rejected by ApplySuggestions.
type TagSuggestionApplyDetails struct {
	Added    []int64 `json:"added"`
	Removed  []int64 `json:"removed"`
	Skipped  []int64 `json:"skipped"`
	Rejected []int64 `json:"rejected"`
	Notes    string  `json:"notes,omitempty"`
}

func (TagSuggestionApplyDetails) ActionType() ActionType { return ActionTagSuggestionApply }

// ContentPurgeDetails counts the rows removed by PurgeContent.
type ContentPurgeDetails struct {
	Reports  int `json:"reports"`
	Sessions int `json:"sessions"`
}

func (ContentPurgeDetails) ActionType() ActionType { return ActionContentPurge }

// UnknownDetails keeps the raw payload of rows whose action type this build
// does not know.
type UnknownDetails struct {
	Type ActionType      `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

func (d UnknownDetails) ActionType() ActionType { return d.Type }

// MarshalJSON writes the stored payload back unchanged.
func (d UnknownDetails) MarshalJSON() ([]byte, error) {
	if len(d.Raw) == 0 {
		return []byte("{}"), nil
	}
	return d.Raw, nil
}

// DecodeDetails decodes a stored details payload for the given action type.
// Unknown types decode to UnknownDetails so that old rows stay readable.
func DecodeDetails(t ActionType, raw []byte) (ActionDetails, error) {
	var d ActionDetails
	switch t {
	case ActionReportDismiss:
		d = &ReportDismissDetails{}
	case ActionReportAction:
		d = &ReportActionDetails{}
	case ActionReviewStart:
		d = &ReviewStartDetails{}
	case ActionReviewVote:
		d = &ReviewVoteDetails{}
	case ActionReviewClose:
		d = &ReviewCloseDetails{}
	case ActionReviewExtend:
		d = &ReviewExtendDetails{}
	case ActionTagSuggestionApply:
		d = &TagSuggestionApplyDetails{}
	case ActionContentPurge:
		d = &ContentPurgeDetails{}
	default:
		return UnknownDetails{Type: t, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, d); err != nil {
			return nil, fmt.Errorf("decode %s details: %w", t, err)
		}
	}
	return deref(d), nil
}

// deref returns the value form of a decoded details pointer so that stored and
// freshly built actions compare equal.
func deref(d ActionDetails) ActionDetails {
	switch v := d.(type) {
	case *ReportDismissDetails:
		return *v
	case *ReportActionDetails:
		return *v
	case *ReviewStartDetails:
		return *v
	case *ReviewVoteDetails:
		return *v
	case *ReviewCloseDetails:
		return *v
	case *ReviewExtendDetails:
		return *v
	case *TagSuggestionApplyDetails:
		return *v
	case *ContentPurgeDetails:
		return *v
	}
	return d
}
