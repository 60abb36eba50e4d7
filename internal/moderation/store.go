package moderation

import (
	"context"
	"time"
)

// ReportFilter narrows ListReports. Zero values match everything.
type ReportFilter struct {
	Status    ReportStatus
	Category  ReportCategory
	ContentID int64
	Limit     int
}

// ActionFilter narrows ListActions. Zero values match everything.
type ActionFilter struct {
	ReportID  int64
	SessionID int64
	ContentID int64
	Type      ActionType
	Since     time.Time
	Limit     int
}

// ResolveParams describes the transition of a pending report to a final status.
type ResolveParams struct {
	Status     ReportStatus
	ReviewerID int64
	Notes      string
	ReviewedAt time.Time
}

// CloseParams describes the transition of an open session to closed.
// When ExpectDeadline is set the write only succeeds if the stored deadline
// still equals it, so a concurrent extension wins over a stale close.
type CloseParams struct {
	Outcome        Outcome
	ClosedAt       time.Time
	ExpectDeadline *time.Time
}

// Queries is the set of persistence operations the engine needs. It is
// implemented both by the store itself and by the transaction handle passed
// to Store.RunInTx.
//
// Compare-and-set writes (ResolveReport, CloseSession, ExtendSession,
// DecideTagSuggestion) return ErrStale when the row is not in the expected state.
type Queries interface {
	// Reports
	CreateReport(ctx context.Context, report *Report) error
	GetReport(ctx context.Context, id int64) (*Report, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]Report, error)
	ResolveReport(ctx context.Context, id int64, params ResolveParams) error

	// Tag suggestions
	CreateTagSuggestions(ctx context.Context, suggestions []TagSuggestion) error
	ListTagSuggestions(ctx context.Context, reportID int64) ([]TagSuggestion, error)
	DecideTagSuggestion(ctx context.Context, id int64, decision SuggestionDecision) error
	RejectPendingTagSuggestions(ctx context.Context, reportID int64) (int, error)

	// Review sessions
	CreateSession(ctx context.Context, session *ReviewSession) error
	GetSession(ctx context.Context, id int64) (*ReviewSession, error)
	FindOpenSession(ctx context.Context, contentID int64) (*ReviewSession, error)
	ListSessions(ctx context.Context, status SessionStatus) ([]ReviewSession, error) // "" lists all
	ListExpiredSessions(ctx context.Context, now time.Time) ([]ReviewSession, error)
	CloseSession(ctx context.Context, id int64, params CloseParams) error
	ExtendSession(ctx context.Context, id int64, from, to time.Time) error

	// Votes
	UpsertVote(ctx context.Context, vote *Vote) error
	ListVotes(ctx context.Context, sessionID int64) ([]Vote, error)
	TallyVotes(ctx context.Context, sessionID int64) (Tally, error)

	// Audit log
	AppendAction(ctx context.Context, action *AdminAction) error
	ListActions(ctx context.Context, filter ActionFilter) ([]AdminAction, error)

	// Housekeeping
	PurgeContent(ctx context.Context, contentID int64) (reports, sessions int, err error)
	Stats(ctx context.Context, now time.Time) (Stats, error)
}

// Store defines the persistence interface for moderation data.
// Implementations must be safe for concurrent use, must return ErrNotFound
// for missing rows and must enforce the uniqueness invariants (one pending
// report per content and reporter, one open session per content, one vote per
// session and voter) as constraints, returning ErrDuplicateReport and
// ErrSessionOpen respectively.
type Store interface {
	Queries

	// RunInTx runs fn inside a single transaction. The transaction commits
	// when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Queries) error) error
}
