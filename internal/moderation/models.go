package moderation

import (
	"encoding/json"
	"strconv"
	"time"
)

// ReportCategory classifies a user report.
type ReportCategory string

const (
	CategorySpam          ReportCategory = "spam"
	CategoryInappropriate ReportCategory = "inappropriate"
	CategoryCopyright     ReportCategory = "copyright"
	CategoryTagSuggestion ReportCategory = "tag_suggestion"
	// CategoryOther is also the fallback for unrecognised values.
	CategoryOther ReportCategory = "other"
)

// ParseReportCategory maps s onto a known category, falling back to CategoryOther.
func ParseReportCategory(s string) ReportCategory {
	switch c := ReportCategory(s); c {
	case CategorySpam, CategoryInappropriate, CategoryCopyright, CategoryTagSuggestion:
		return c
	default:
		return CategoryOther
	}
}

// ReportStatus represents the status of a user report
type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "pending"
	ReportStatusReviewed  ReportStatus = "reviewed"
	ReportStatusDismissed ReportStatus = "dismissed"
)

// Report represents a user complaint against one content item
type Report struct {
	ID         int64          `json:"id"`
	ContentID  int64          `json:"content_id"`
	ReporterID int64          `json:"reporter_id"`
	Category   ReportCategory `json:"category"`
	Reason     string         `json:"reason,omitempty"`
	Status     ReportStatus   `json:"status"`
	AdminNotes string         `json:"admin_notes,omitempty"`
	ReviewerID *int64         `json:"reviewer_id,omitempty"`
	ReviewedAt *time.Time     `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// IsPending reports whether the report still awaits triage.
func (r *Report) IsPending() bool {
	return r.Status == ReportStatusPending
}

// ReviewType is the kind of question a review session votes on.
type ReviewType string

const (
	ReviewAppropriateness ReviewType = "appropriateness"
	ReviewTypeUnknown     ReviewType = "unknown"
)

// ParseReviewType maps s onto a known review type, falling back to ReviewTypeUnknown.
func ParseReviewType(s string) ReviewType {
	if ReviewType(s) == ReviewAppropriateness {
		return ReviewAppropriateness
	}
	return ReviewTypeUnknown
}

// SessionStatus is whether a review session still accepts votes.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// Outcome is the decision a review session reaches.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeKeep    Outcome = "keep"
	OutcomeRemove  Outcome = "remove"
)

// Visibility maps a decided outcome onto the content status it implies.
func (o Outcome) Visibility() Visibility {
	if o == OutcomeRemove {
		return VisibilityRemoved
	}
	return VisibilityActive
}

// Valid reports whether o is a final outcome (keep or remove).
func (o Outcome) Valid() bool {
	return o == OutcomeKeep || o == OutcomeRemove
}

// ReviewSession is a timed admin vote on whether a content item stays visible.
type ReviewSession struct {
	ID             int64         `json:"id"`
	ContentID      int64         `json:"content_id"`
	SourceReportID *int64        `json:"source_report_id,omitempty"`
	InitiatorID    int64         `json:"initiator_id"`
	Type           ReviewType    `json:"type"`
	Deadline       time.Time     `json:"deadline"`
	ExtensionUsed  bool          `json:"extension_used"`
	Status         SessionStatus `json:"status"`
	Outcome        Outcome       `json:"outcome"`
	CreatedAt      time.Time     `json:"created_at"`
	ClosedAt       *time.Time    `json:"closed_at,omitempty"`
}

// IsOpen reports whether the session still accepts votes.
func (s *ReviewSession) IsOpen() bool {
	return s.Status == SessionOpen
}

// VoteValue is an admin's position on a review session.
type VoteValue string

const (
	VoteKeep   VoteValue = "keep"
	VoteRemove VoteValue = "remove"
)

// Valid reports whether v is keep or remove.
func (v VoteValue) Valid() bool {
	return v == VoteKeep || v == VoteRemove
}

// Vote is one admin's current position on a review session.
// SessionID is nil only for legacy free-standing votes.
type Vote struct {
	ID        int64     `json:"id"`
	SessionID *int64    `json:"session_id,omitempty"`
	VoterID   int64     `json:"voter_id"`
	Value     VoteValue `json:"value"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tally is the vote count of a session at evaluation time.
type Tally struct {
	Keep   int `json:"keep"`
	Remove int `json:"remove"`
}

// Total is the number of votes cast.
func (t Tally) Total() int {
	return t.Keep + t.Remove
}

// TagDirection says whether a suggestion adds or removes a tag.
type TagDirection string

const (
	TagAdd    TagDirection = "add"
	TagRemove TagDirection = "remove"
)

// Valid reports whether d is add or remove.
func (d TagDirection) Valid() bool {
	return d == TagAdd || d == TagRemove
}

// SuggestionDecision is the triage state of a single tag suggestion.
type SuggestionDecision string

const (
	DecisionPending  SuggestionDecision = "pending"
	DecisionAccepted SuggestionDecision = "accepted"
	DecisionRejected SuggestionDecision = "rejected"
)

// TagSuggestion is a single proposed tag mutation attached to a tag-suggestion report.
type TagSuggestion struct {
	ID        int64              `json:"id"`
	ReportID  int64              `json:"report_id"`
	TagID     int64              `json:"tag_id"`
	Direction TagDirection       `json:"direction"`
	Decision  SuggestionDecision `json:"decision"`
}

// Actor identifies who performed a moderation action: a human admin or the
// system itself (the deadline reconciler, content purges).
type Actor struct {
	id     int64
	system bool
}

// System is the actor recorded for automatic actions.
var System = Actor{system: true}

// Human returns the actor for the admin or user with the given id.
func Human(id int64) Actor {
	return Actor{id: id}
}

// IsSystem reports whether a is the system actor.
func (a Actor) IsSystem() bool {
	return a.system
}

// ID returns the human actor's id. ok is false for the system actor.
func (a Actor) ID() (id int64, ok bool) {
	return a.id, !a.system
}

// Ptr returns the actor id as a nullable value, nil for the system actor.
func (a Actor) Ptr() *int64 {
	if a.system {
		return nil
	}
	id := a.id
	return &id
}

// ActorFromPtr is the inverse of Ptr.
func ActorFromPtr(id *int64) Actor {
	if id == nil {
		return System
	}
	return Human(*id)
}

func (a Actor) String() string {
	if a.system {
		return "system"
	}
	return strconv.FormatInt(a.id, 10)
}

// MarshalJSON encodes the actor as its id, or null for System.
func (a Actor) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Ptr())
}

func (a *Actor) UnmarshalJSON(data []byte) error {
	var id *int64
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*a = ActorFromPtr(id)
	return nil
}

// AdminAction is an immutable audit log entry.
type AdminAction struct {
	ID        string        `json:"id"` // TID
	Actor     Actor         `json:"actor_id"`
	Type      ActionType    `json:"action_type"`
	ReportID  *int64        `json:"report_id,omitempty"`
	SessionID *int64        `json:"session_id,omitempty"`
	ContentID *int64        `json:"content_id,omitempty"`
	Details   ActionDetails `json:"details"`
	CreatedAt time.Time     `json:"created_at"`
}

// Automatic reports whether the action was taken by the system rather than a human.
func (a *AdminAction) Automatic() bool {
	return a.Actor.IsSystem()
}

// Visibility is the content status held by the Content Store.
type Visibility string

const (
	VisibilityActive      Visibility = "active"
	VisibilityHidden      Visibility = "hidden"
	VisibilityUnderReview Visibility = "under_review"
	VisibilityRemoved     Visibility = "removed"
)

// Valid reports whether v is a known content status.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityActive, VisibilityHidden, VisibilityUnderReview, VisibilityRemoved:
		return true
	}
	return false
}

// Stats holds current counts for gauge metrics.
type Stats struct {
	PendingReports int
	OpenSessions   int
	ExpiredOpen    int
}

func int64Ptr(v int64) *int64 {
	return &v
}
