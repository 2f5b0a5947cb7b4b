package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/squadbid/internal/application/journal"
	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/alejandrodnm/squadbid/internal/ports"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MatchBids pairs two open bids into an active match.
//
// Entry prices are fetched before the transaction opens; inside it every
// check is repeated against current state, both bids move Open → Matched
// with guarded updates and the match row is written. Any failure rolls the
// whole pairing back and leaves both bids Open.
func (s *Service) MatchBids(ctx context.Context, bidA, bidB, token string) (domain.Match, error) {
	if err := s.require(token, ports.CapMatch); err != nil {
		return domain.Match{}, fmt.Errorf("escrow.MatchBids: %w", err)
	}
	if bidA == bidB {
		return domain.Match{}, fmt.Errorf("escrow.MatchBids: %w: bid %s against itself", domain.ErrSelfMatch, bidA)
	}

	var pre pairing
	err := s.ledger.View(ctx, func(tx ports.LedgerTx) error {
		var err error
		pre, err = loadPairing(ctx, tx, bidA, bidB)
		return err
	})
	if err != nil {
		return domain.Match{}, fmt.Errorf("escrow.MatchBids: %w", err)
	}

	now := s.clock.Now()
	entryA, entryB, err := s.entryPrices(ctx, pre.squadA.Roster, pre.squadB.Roster, now)
	if err != nil {
		return domain.Match{}, fmt.Errorf("escrow.MatchBids: entry prices: %w", err)
	}
	weightsA, err := s.weights(pre.squadA)
	if err != nil {
		return domain.Match{}, fmt.Errorf("escrow.MatchBids: %w", err)
	}
	weightsB, err := s.weights(pre.squadB)
	if err != nil {
		return domain.Match{}, fmt.Errorf("escrow.MatchBids: %w", err)
	}

	var m domain.Match
	err = s.run(ctx, func(tx ports.LedgerTx, j *journal.Journal) error {
		p, err := loadPairing(ctx, tx, bidA, bidB)
		if err != nil {
			return err
		}
		if p.squadA.Roster != pre.squadA.Roster || p.squadB.Roster != pre.squadB.Roster {
			return fmt.Errorf("%w: roster changed while prices were fetched", domain.ErrBidNotOpen)
		}
		prize, err := domain.SumAmounts(p.a.EscrowPrincipal, p.b.EscrowPrincipal)
		if err != nil {
			return fmt.Errorf("prize pool: %w", err)
		}
		feePool, err := domain.SumAmounts(p.a.EscrowFee, p.b.EscrowFee)
		if err != nil {
			return fmt.Errorf("fee pool: %w", err)
		}

		m = domain.Match{
			ID:           uuid.NewString(),
			BidA:         p.a.ID,
			BidB:         p.b.ID,
			PlayerA:      p.a.Creator,
			PlayerB:      p.b.Creator,
			SquadA:       p.a.SquadID,
			SquadB:       p.b.SquadID,
			PrizePool:    prize,
			FeePool:      feePool,
			Duration:     p.a.Duration,
			StartTime:    now,
			EndTime:      now.Add(p.a.Duration),
			Status:       domain.MatchActive,
			EntryPricesA: entryA,
			EntryPricesB: entryB,
			WeightsA:     weightsA,
			WeightsB:     weightsB,
		}

		for _, b := range []domain.Bid{p.a, p.b} {
			ok, err := tx.TransitionBid(ctx, b.ID, domain.BidMatched, m.ID, now)
			if err != nil {
				return err
			}
			if !ok {
				return lostRace(ctx, tx, b.ID)
			}
		}
		if err := tx.InsertMatch(ctx, m); err != nil {
			return err
		}
		for _, b := range []domain.Bid{p.a, p.b} {
			if err := j.Record(ctx, domain.Event{
				Type: domain.EventMatchCreated, Account: b.Creator, BidID: b.ID, MatchID: m.ID,
				SquadID: b.SquadID, Amount: b.Total(), At: now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Match{}, fmt.Errorf("escrow.MatchBids: %w", err)
	}
	slog.Info("match created", "match", m.ID, "bid_a", bidA, "bid_b", bidB,
		"prize_pool", m.PrizePool, "ends", m.EndTime.Format(time.RFC3339))
	return m, nil
}

// pairing is a candidate pair of bids with the squads backing them.
type pairing struct {
	a, b           domain.Bid
	squadA, squadB domain.Squad
}

// loadPairing loads both bids and validates the pair in matcher order:
// open, distinct squads and creators, equal stakes and duration.
func loadPairing(ctx context.Context, tx ports.LedgerTx, bidA, bidB string) (pairing, error) {
	var p pairing
	var err error
	if p.a, err = tx.GetBid(ctx, bidA); err != nil {
		return p, err
	}
	if p.b, err = tx.GetBid(ctx, bidB); err != nil {
		return p, err
	}
	if err := notOpen(p.a); err != nil {
		return p, err
	}
	if err := notOpen(p.b); err != nil {
		return p, err
	}
	if p.a.SquadID == p.b.SquadID || p.a.Creator == p.b.Creator {
		return p, fmt.Errorf("%w: bids %s and %s share a squad or creator", domain.ErrSelfMatch, bidA, bidB)
	}
	if p.a.Wager != p.b.Wager || p.a.Duration != p.b.Duration {
		return p, fmt.Errorf("%w: %d/%s vs %d/%s", domain.ErrIncompatibleBids,
			p.a.Wager, p.a.Duration, p.b.Wager, p.b.Duration)
	}

	if p.squadA, err = tx.GetSquad(ctx, p.a.SquadID); err != nil {
		return p, err
	}
	if p.squadB, err = tx.GetSquad(ctx, p.b.SquadID); err != nil {
		return p, err
	}
	if p.squadA.Owner == p.squadB.Owner {
		return p, fmt.Errorf("%w: squads %d and %d share an owner", domain.ErrSelfMatch, p.squadA.ID, p.squadB.ID)
	}
	for _, sq := range []domain.Squad{p.squadA, p.squadB} {
		if !sq.IsAlive() {
			return p, fmt.Errorf("%w: squad %d has no lives left", domain.ErrSquadNotEligible, sq.ID)
		}
	}
	return p, nil
}

// entryPrices fetches both rosters' prices at now in parallel.
func (s *Service) entryPrices(ctx context.Context, rosterA, rosterB [domain.RosterSize]string, at time.Time) (domain.Prices, domain.Prices, error) {
	var pa, pb domain.Prices
	g, gctx := errgroup.WithContext(ctx)
	fetchRoster(gctx, g, s.oracle, rosterA, at, &pa)
	fetchRoster(gctx, g, s.oracle, rosterB, at, &pb)
	if err := g.Wait(); err != nil {
		return pa, pb, err
	}
	if err := domain.ValidateEntryPrices(pa); err != nil {
		return pa, pb, err
	}
	if err := domain.ValidateEntryPrices(pb); err != nil {
		return pa, pb, err
	}
	return pa, pb, nil
}

// fetchRoster schedules one oracle lookup per slot; each goroutine writes its own slot.
func fetchRoster(ctx context.Context, g *errgroup.Group, oracle ports.PriceOracle, roster [domain.RosterSize]string, at time.Time, out *domain.Prices) {
	for i, token := range roster {
		i, token := i, token
		g.Go(func() error {
			p, err := oracle.PriceAt(ctx, token, at)
			if err != nil {
				return err
			}
			out[i] = p
			return nil
		})
	}
}

func (s *Service) weights(sq domain.Squad) (domain.Weights, error) {
	w, err := s.cfg.Formations.Lookup(sq.Formation)
	if err != nil {
		return w, fmt.Errorf("%w: squad %d formation %q is not configured", domain.ErrConfiguration, sq.ID, sq.Formation)
	}
	return w, nil
}
