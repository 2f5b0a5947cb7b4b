package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/alejandrodnm/squadbid/internal/ports"
)

// Matchmaker pairs open bids with equal stakes and duration, oldest first.
type Matchmaker struct {
	matcher BidMatcher
	reader  Reader
	clock   ports.Clock
	token   string
}

// NewMatchmaker crea un Matchmaker que firma con token (capacidad match).
func NewMatchmaker(matcher BidMatcher, reader Reader, clock ports.Clock, token string) *Matchmaker {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Matchmaker{matcher: matcher, reader: reader, clock: clock, token: token}
}

type poolKey struct {
	wager    int64
	duration time.Duration
}

// RunOnce proposes pairs from the current open-bid set. Rejected pairs are
// counted as skipped; an unexpected error stops the pool it happened in.
func (m *Matchmaker) RunOnce(ctx context.Context) (domain.CycleReport, error) {
	rep := domain.CycleReport{At: m.clock.Now()}

	open, err := m.reader.AllOpenBids(ctx)
	if err != nil {
		return rep, fmt.Errorf("engine.Matchmaker: open bids: %w", err)
	}

	pools := make(map[poolKey][]domain.Bid)
	var order []poolKey
	for _, b := range open {
		k := poolKey{wager: b.Wager, duration: b.Duration}
		if _, ok := pools[k]; !ok {
			order = append(order, k)
		}
		pools[k] = append(pools[k], b)
	}

	for _, k := range order {
		if err := m.pairPool(ctx, pools[k], &rep); err != nil {
			rep.Warnings = append(rep.Warnings, err.Error())
		}
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
	}
	return rep, nil
}

// pairPool greedily pairs each bid with the oldest compatible one after it.
func (m *Matchmaker) pairPool(ctx context.Context, bids []domain.Bid, rep *domain.CycleReport) error {
	used := make([]bool, len(bids))
	for i := range bids {
		if used[i] {
			continue
		}
		for j := i + 1; j < len(bids); j++ {
			if used[j] || !compatible(bids[i], bids[j]) {
				continue
			}
			match, err := m.matcher.MatchBids(ctx, bids[i].ID, bids[j].ID, m.token)
			if err == nil {
				used[i], used[j] = true, true
				rep.Matched = append(rep.Matched, match)
				break
			}
			if !expected(err) {
				return fmt.Errorf("engine.Matchmaker: pool %d/%s: %w", bids[i].Wager, bids[i].Duration, err)
			}
			rep.Skipped++
			slog.Debug("pair skipped", "bid_a", bids[i].ID, "bid_b", bids[j].ID, "reason", domain.CodeOf(err))
		}
	}
	return nil
}

func compatible(a, b domain.Bid) bool {
	return a.Creator != b.Creator && a.SquadID != b.SquadID
}
