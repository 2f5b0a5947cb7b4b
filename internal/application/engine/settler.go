package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/alejandrodnm/squadbid/internal/ports"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Settler completes active matches whose end time has passed, using final
// prices at EndTime. A match the oracle cannot price within DisputeAfter of
// its end is disputed instead.
type Settler struct {
	settler      MatchSettler
	reader       Reader
	oracle       ports.PriceOracle
	clock        ports.Clock
	settleToken  string
	disputeToken string
	disputeAfter time.Duration
}

// NewSettler crea un Settler. disputeToken vacío desactiva las disputas.
func NewSettler(settler MatchSettler, reader Reader, oracle ports.PriceOracle, clock ports.Clock,
	settleToken, disputeToken string, disputeAfter time.Duration) *Settler {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Settler{
		settler:      settler,
		reader:       reader,
		oracle:       oracle,
		clock:        clock,
		settleToken:  settleToken,
		disputeToken: disputeToken,
		disputeAfter: disputeAfter,
	}
}

// RunOnce settles every ended match it can price.
func (s *Settler) RunOnce(ctx context.Context) (domain.CycleReport, error) {
	now := s.clock.Now()
	rep := domain.CycleReport{At: now}

	ended, err := s.reader.ActiveMatchesEndedBy(ctx, now)
	if err != nil {
		return rep, fmt.Errorf("engine.Settler: ended matches: %w", err)
	}

	for _, m := range ended {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		finalA, finalB, err := s.finalPrices(ctx, m)
		if err != nil {
			s.unpriced(ctx, m, now, err, &rep)
			continue
		}
		res, err := s.settler.CompleteMatch(ctx, m.ID, finalA, finalB, s.settleToken)
		switch {
		case err == nil:
			rep.Settled = append(rep.Settled, res)
		case expected(err):
			rep.Skipped++
			slog.Debug("settlement skipped", "match", m.ID, "reason", domain.CodeOf(err))
		default:
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("settle %s: %v", m.ID, err))
		}
	}
	return rep, nil
}

// unpriced handles a match whose final prices could not be fetched.
func (s *Settler) unpriced(ctx context.Context, m domain.Match, now time.Time, cause error, rep *domain.CycleReport) {
	if s.disputeToken == "" || now.Before(m.EndTime.Add(s.disputeAfter)) {
		slog.Warn("final prices unavailable", "match", m.ID, "err", cause)
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("price %s: %v", m.ID, cause))
		return
	}
	if _, err := s.settler.DisputeMatch(ctx, m.ID, s.disputeToken); err != nil {
		if expected(err) {
			rep.Skipped++
			return
		}
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("dispute %s: %v", m.ID, err))
		return
	}
	rep.Disputed = append(rep.Disputed, m.ID)
}

// finalPrices fetches both rosters at the match end in parallel.
func (s *Settler) finalPrices(ctx context.Context, m domain.Match) ([]decimal.Decimal, []decimal.Decimal, error) {
	squadA, err := s.reader.Squad(ctx, m.SquadA)
	if err != nil {
		return nil, nil, err
	}
	squadB, err := s.reader.Squad(ctx, m.SquadB)
	if err != nil {
		return nil, nil, err
	}

	finalA := make([]decimal.Decimal, domain.RosterSize)
	finalB := make([]decimal.Decimal, domain.RosterSize)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < domain.RosterSize; i++ {
		i := i
		g.Go(func() error {
			p, err := s.oracle.PriceAt(gctx, squadA.Roster[i], m.EndTime)
			finalA[i] = p
			return err
		})
		g.Go(func() error {
			p, err := s.oracle.PriceAt(gctx, squadB.Roster[i], m.EndTime)
			finalB[i] = p
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return finalA, finalB, nil
}
