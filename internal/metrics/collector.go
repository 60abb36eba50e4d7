package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StatsSource provides the current counts for gauge metrics.
// Returning ok=false leaves the gauges untouched for this round.
type StatsSource func(ctx context.Context) (pendingReports, openSessions, expiredSessions int, ok bool)

// StartCollector launches a goroutine that periodically updates gauge metrics.
// It runs every interval until the context is cancelled.
func StartCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	// Do an initial collection immediately
	collect(ctx, src)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(ctx, src)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("Metrics collector started")
}

func collect(ctx context.Context, src StatsSource) {
	if src == nil {
		return
	}
	pending, open, expired, ok := src(ctx)
	if !ok {
		return
	}
	PendingReports.Set(float64(pending))
	OpenReviewSessions.Set(float64(open))
	ExpiredReviewSessions.Set(float64(expired))
}
