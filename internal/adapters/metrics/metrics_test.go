package metrics_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/alejandrodnm/squadbid/internal/adapters/metrics"
	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_CountsEvents(t *testing.T) {
	m := metrics.New()
	m.Publish(
		domain.Event{Seq: 1, Type: domain.EventDeposited, Amount: 500},
		domain.Event{Seq: 2, Type: domain.EventDeposited, Amount: 250},
		domain.Event{Seq: 3, Type: domain.EventBidCreated},
	)

	out := scrape(t, m)
	assert.Contains(t, out, `squadbid_events_total{type="account.deposited"} 2`)
	assert.Contains(t, out, `squadbid_events_total{type="bid.created"} 1`)
	assert.Contains(t, out, `squadbid_event_amount_total{type="account.deposited"} 750`)
	assert.Contains(t, out, "squadbid_last_event_seq 3")
}

func TestMetrics_CountsCycles(t *testing.T) {
	m := metrics.New()
	require.NoError(t, m.NotifyCycle(context.Background(), domain.CycleReport{
		Matched:  []domain.Match{{ID: "m1"}},
		Swept:    []string{"b1", "b2"},
		Skipped:  4,
		Warnings: []string{"oops"},
	}))

	out := scrape(t, m)
	assert.Contains(t, out, `squadbid_engine_actions_total{action="matched"} 1`)
	assert.Contains(t, out, `squadbid_engine_actions_total{action="swept"} 2`)
	assert.Contains(t, out, "squadbid_engine_skipped_total 4")
	assert.Contains(t, out, "squadbid_engine_warnings_total 1")
	assert.Contains(t, out, "go_goroutines")
}
