package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/squadbid/internal/adapters/notify"
	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeMatch(id string) domain.Match {
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	return domain.Match{
		ID:        id,
		PlayerA:   "alice",
		PlayerB:   "bob",
		PrizePool: 2_000_000,
		FeePool:   100_000,
		StartTime: start,
		EndTime:   start.Add(5 * time.Minute),
		Status:    domain.MatchActive,
	}
}

func TestConsole_NotifyCycle(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	err := n.NotifyCycle(context.Background(), domain.CycleReport{
		At:      time.Date(2026, 6, 1, 12, 5, 0, 0, time.UTC),
		Matched: []domain.Match{makeMatch("4f1c2d3e-aaaa-bbbb-cccc-000000000001")},
		Settled: []domain.SettlementResult{{
			MatchID:      "9e8d7c6b-aaaa-bbbb-cccc-000000000002",
			Status:       domain.MatchCompleted,
			Winner:       "carol",
			PerformanceA: decimal.RequireFromString("1.1"),
			PerformanceB: decimal.RequireFromString("0.95"),
		}},
		Disputed: []string{"m-disputed"},
		Swept:    []string{"bid-1", "bid-2"},
		Skipped:  3,
		Warnings: []string{"price m1: timeout"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "[12:05:00] matched:1 settled:1 disputed:1 swept:2 skipped:3")
	assert.Contains(t, out, "4f1c2d3e")
	assert.Contains(t, out, "2000000")
	assert.Contains(t, out, "carol")
	assert.Contains(t, out, "1.1000")
	assert.Contains(t, out, "disputed m-disputed")
	assert.Contains(t, out, "swept: bid-1, bid-2")
	assert.Contains(t, out, "price m1: timeout")
}

func TestConsole_ReportOpenBids(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.ReportOpenBids(nil)
	assert.Contains(t, buf.String(), "No open bids")

	buf.Reset()
	n.ReportOpenBids([]domain.Bid{{
		ID: "b-1", Creator: "alice", SquadID: 7, EscrowPrincipal: 1_000_000, EscrowFee: 50_000,
		Duration: 5 * time.Minute, CreatedAt: time.Now(),
	}})
	out := buf.String()
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "1000000")
	assert.Contains(t, out, "50000")
	assert.Contains(t, out, "5m0s")
}

func TestConsole_ReportMatches(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.ReportMatches(nil)
	assert.Contains(t, buf.String(), "No matches")

	buf.Reset()
	m := makeMatch("m-1")
	m.Status = domain.MatchCompleted
	m.PrizeClaimed = true
	m.ClaimedBy = "alice"
	n.ReportMatches([]domain.Match{m})
	out := buf.String()
	assert.Contains(t, out, "COMPLETED")
	assert.Contains(t, out, "alice")
}

func TestConsole_ReportSummary(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).ReportSummary(domain.Summary{
		OpenBids:        2,
		OpenEscrow:      2_100_000,
		Matches:         map[domain.MatchStatus]int{domain.MatchActive: 1, domain.MatchTied: 4},
		TreasuryBalance: 300,
		LastEventSeq:    42,
	})
	out := buf.String()
	assert.Contains(t, out, "Open bids:        2")
	assert.Contains(t, out, "2100000")
	assert.Contains(t, out, "#42")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("ACTIVE")), bytes.Index(buf.Bytes(), []byte("TIED")))
}
