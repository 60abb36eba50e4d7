package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/metrics", "/metrics"},
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/debug/pprof/heap", "/debug/*"},
		{"/", "/other"},
		{"/reports/12", "/other"},
		{"/favicon.ico", "/other"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePath(tt.input))
		})
	}
}

func gaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func TestCollect(t *testing.T) {
	ctx := context.Background()

	collect(ctx, func(context.Context) (int, int, int, bool) {
		return 4, 2, 1, true
	})
	assert.Equal(t, 4.0, gaugeValue(PendingReports))
	assert.Equal(t, 2.0, gaugeValue(OpenReviewSessions))
	assert.Equal(t, 1.0, gaugeValue(ExpiredReviewSessions))

	// A failed source leaves the previous values in place
	collect(ctx, func(context.Context) (int, int, int, bool) {
		return 0, 0, 0, false
	})
	assert.Equal(t, 4.0, gaugeValue(PendingReports))

	collect(ctx, nil)
	assert.Equal(t, 2.0, gaugeValue(OpenReviewSessions))
}
