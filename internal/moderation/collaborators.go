package moderation

import "context"

// ContentStore is the external service that owns content items. All calls
// are synchronous and may fail; the engine never holds a transaction open
// across them.
type ContentStore interface {
	Exists(ctx context.Context, contentID int64) (bool, error)
	Visibility(ctx context.Context, contentID int64) (Visibility, error)
	SetVisibility(ctx context.Context, contentID int64, status Visibility) error
	Tags(ctx context.Context, contentID int64) ([]int64, error)
	MutateTags(ctx context.Context, contentID int64, add, remove []int64) error
}

// Authorizer answers whether an actor holds a capability. It is backed by
// the Identity & Permission service or by a local role file (RoleService).
type Authorizer interface {
	HasCapability(ctx context.Context, actorID int64, capability Capability) (bool, error)
}

// Capability names a moderation permission checked at the top of every
// mutating operation.
type Capability string

const (
	CapReportView         Capability = "report.view"
	CapReportManage       Capability = "report.manage"
	CapReviewView         Capability = "review.view"
	CapReviewStart        Capability = "review.start"
	CapReviewVote         Capability = "review.vote"
	CapReviewCloseEarly   Capability = "review.close_early"
	CapReviewExtend       Capability = "review.extend"
	CapTagSuggestionApply Capability = "tag_suggestion.apply"
	CapAuditView          Capability = "audit.view"
)

// AllCapabilities returns all available capabilities
func AllCapabilities() []Capability {
	return []Capability{
		CapReportView,
		CapReportManage,
		CapReviewView,
		CapReviewStart,
		CapReviewVote,
		CapReviewCloseEarly,
		CapReviewExtend,
		CapTagSuggestionApply,
		CapAuditView,
	}
}
