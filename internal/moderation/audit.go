package moderation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ActionLinks are the optional references of an audit entry.
type ActionLinks struct {
	ReportID  *int64
	SessionID *int64
	ContentID *int64
}

// Record appends a standalone audit entry. Engine operations write their own
// entries inside their transactions; Record is for moderation actions taken
// elsewhere (comment or image moderation) that still belong in the log.
func (e *Engine) Record(ctx context.Context, actor Actor, links ActionLinks, details ActionDetails) (*AdminAction, error) {
	if details == nil {
		return nil, invalidArg("audit details are required")
	}
	var action *AdminAction
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx Queries) error {
		var err error
		action, err = e.record(ctx, tx, actor, links.ReportID, links.SessionID, links.ContentID, details)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record action: %w", err)
	}
	return action, nil
}

// ListActions reads the audit log, newest first.
func (e *Engine) ListActions(ctx context.Context, actorID int64, filter ActionFilter) ([]AdminAction, error) {
	if err := e.authorize(ctx, actorID, CapAuditView); err != nil {
		return nil, err
	}
	actions, err := e.store.ListActions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return actions, nil
}

// PurgeContent removes every report, suggestion, session and vote owned by a
// deleted content item. Audit entries that reference them are kept. It is
// called by the content owner's deletion path, not by admins, so there is no
// capability gate.
func (e *Engine) PurgeContent(ctx context.Context, contentID int64) (ContentPurgeDetails, error) {
	var details ContentPurgeDetails
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx Queries) error {
		reports, sessions, err := tx.PurgeContent(ctx, contentID)
		if err != nil {
			return err
		}
		details = ContentPurgeDetails{Reports: reports, Sessions: sessions}
		if reports == 0 && sessions == 0 {
			return nil
		}
		_, err = e.record(ctx, tx, System, nil, nil, int64Ptr(contentID), details)
		return err
	})
	if err != nil {
		return ContentPurgeDetails{}, fmt.Errorf("purge content %d: %w", contentID, err)
	}
	if details.Reports > 0 || details.Sessions > 0 {
		log.Info().
			Int64("content_id", contentID).
			Int("reports", details.Reports).
			Int("sessions", details.Sessions).
			Msg("moderation: purged moderation data for deleted content")
	}
	return details, nil
}

// Stats returns current queue sizes for gauges and health output.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	stats, err := e.store.Stats(ctx, e.clock())
	if err != nil {
		return Stats{}, fmt.Errorf("moderation stats: %w", err)
	}
	return stats, nil
}
