package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/alejandrodnm/squadbid/internal/ports"
)

// Sweeper cancels open bids older than staleAfter on their creators' behalf.
type Sweeper struct {
	sweeper    BidSweeper
	reader     Reader
	clock      ports.Clock
	token      string
	staleAfter time.Duration
}

// NewSweeper crea un Sweeper; staleAfter <= 0 lo desactiva.
func NewSweeper(sweeper BidSweeper, reader Reader, clock ports.Clock, token string, staleAfter time.Duration) *Sweeper {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Sweeper{sweeper: sweeper, reader: reader, clock: clock, token: token, staleAfter: staleAfter}
}

// RunOnce sweeps every stale open bid.
func (s *Sweeper) RunOnce(ctx context.Context) (domain.CycleReport, error) {
	now := s.clock.Now()
	rep := domain.CycleReport{At: now}
	if s.staleAfter <= 0 {
		return rep, nil
	}

	open, err := s.reader.AllOpenBids(ctx)
	if err != nil {
		return rep, fmt.Errorf("engine.Sweeper: open bids: %w", err)
	}
	for _, b := range open {
		if b.Age(now) < s.staleAfter {
			// oldest first: everything after is younger
			break
		}
		_, err := s.sweeper.SweepBid(ctx, b.ID, s.token)
		switch {
		case err == nil:
			rep.Swept = append(rep.Swept, b.ID)
		case expected(err):
			rep.Skipped++
			slog.Debug("sweep skipped", "bid", b.ID, "reason", domain.CodeOf(err))
		default:
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("sweep %s: %v", b.ID, err))
		}
	}
	return rep, nil
}
