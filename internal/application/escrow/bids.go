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
)

// CreateBid escrows wager plus the upfront fee from creator and opens a bid
// backed by squadID.
func (s *Service) CreateBid(ctx context.Context, creator string, squadID int64, wager int64, duration time.Duration) (domain.Bid, error) {
	if err := s.cfg.Limits.Check(wager, duration); err != nil {
		return domain.Bid{}, fmt.Errorf("escrow.CreateBid: %w", err)
	}

	now := s.clock.Now()
	bid := domain.Bid{
		ID:        uuid.NewString(),
		Creator:   creator,
		SquadID:   squadID,
		Wager:     wager,
		Duration:  duration,
		Status:    domain.BidOpen,
		CreatedAt: now,
	}

	err := s.run(ctx, func(tx ports.LedgerTx, j *journal.Journal) error {
		sq, err := tx.GetSquad(ctx, squadID)
		if err != nil {
			return err
		}
		switch {
		case sq.Owner != creator:
			return fmt.Errorf("%w: squad %d is not owned by %s", domain.ErrSquadNotEligible, squadID, creator)
		case !sq.IsAlive():
			return fmt.Errorf("%w: squad %d has no lives left", domain.ErrSquadNotEligible, squadID)
		}
		pledged, err := tx.OpenBidForSquad(ctx, squadID)
		if err != nil {
			return err
		}
		if pledged {
			return fmt.Errorf("%w: squad %d already backs an open bid", domain.ErrSquadNotEligible, squadID)
		}

		fees, err := tx.CurrentFeeConfig(ctx)
		if err != nil {
			return err
		}
		fee, err := domain.UpfrontFee(wager, fees)
		if err != nil {
			return err
		}
		total, err := domain.TotalRequired(wager, fees)
		if err != nil {
			return err
		}
		if err := tx.Debit(ctx, creator, total); err != nil {
			return err
		}

		bid.EscrowPrincipal = wager
		bid.EscrowFee = fee
		bid.FeeVersion = fees.Version
		if err := tx.InsertBid(ctx, bid); err != nil {
			return err
		}
		return j.Record(ctx, domain.Event{
			Type: domain.EventBidCreated, Account: creator, BidID: bid.ID, SquadID: squadID, Amount: total, At: now,
		})
	})
	if err != nil {
		return domain.Bid{}, fmt.Errorf("escrow.CreateBid: %w", err)
	}
	slog.Info("bid created", "bid", bid.ID, "creator", creator, "wager", wager, "duration", duration)
	return bid, nil
}

// CancelBid closes an open bid on its creator's request and refunds the full escrow.
func (s *Service) CancelBid(ctx context.Context, bidID, requester string) (domain.Bid, error) {
	b, err := s.cancel(ctx, bidID, func(b domain.Bid, _ time.Time) error {
		if b.Creator != requester {
			return fmt.Errorf("%w: bid %s belongs to another account", domain.ErrNotAuthorized, b.ID)
		}
		return nil
	})
	if err != nil {
		return b, fmt.Errorf("escrow.CancelBid: %w", err)
	}
	slog.Info("bid cancelled", "bid", bidID, "refund", b.Total())
	return b, nil
}

// SweepBid cancels a bid on its creator's behalf. The caller needs the sweep
// capability and the bid must be older than the grace window.
func (s *Service) SweepBid(ctx context.Context, bidID, token string) (domain.Bid, error) {
	if err := s.require(token, ports.CapSweep); err != nil {
		return domain.Bid{}, fmt.Errorf("escrow.SweepBid: %w", err)
	}
	b, err := s.cancel(ctx, bidID, func(b domain.Bid, now time.Time) error {
		if b.Age(now) < s.cfg.GraceWindow {
			return fmt.Errorf("%w: bid %s is %s old", domain.ErrGraceNotElapsed, b.ID, b.Age(now).Round(time.Second))
		}
		return nil
	})
	if err != nil {
		return b, fmt.Errorf("escrow.SweepBid: %w", err)
	}
	slog.Info("stale bid swept", "bid", bidID, "refund", b.Total())
	return b, nil
}

// cancel runs the Open → Cancelled transition once allow accepts the bid.
func (s *Service) cancel(ctx context.Context, bidID string, allow func(domain.Bid, time.Time) error) (domain.Bid, error) {
	var out domain.Bid
	now := s.clock.Now()
	err := s.run(ctx, func(tx ports.LedgerTx, j *journal.Journal) error {
		b, err := tx.GetBid(ctx, bidID)
		if err != nil {
			return err
		}
		if err := allow(b, now); err != nil {
			return err
		}
		if err := notOpen(b); err != nil {
			return err
		}
		ok, err := tx.TransitionBid(ctx, b.ID, domain.BidCancelled, "", now)
		if err != nil {
			return err
		}
		if !ok {
			return lostRace(ctx, tx, b.ID)
		}
		if err := tx.Credit(ctx, b.Creator, b.Total()); err != nil {
			return err
		}
		b.Status = domain.BidCancelled
		b.ClosedAt = &now
		out = b
		return j.Record(ctx, domain.Event{
			Type: domain.EventBidCancelled, Account: b.Creator, BidID: b.ID, SquadID: b.SquadID, Amount: b.Total(), At: now,
		})
	})
	return out, err
}

// notOpen returns BidNotOpen chained with the specific terminal state.
func notOpen(b domain.Bid) error {
	if terr := b.TerminalError(); terr != nil {
		return fmt.Errorf("%w: bid %s: %w", domain.ErrBidNotOpen, b.ID, terr)
	}
	return nil
}

// lostRace reloads a bid whose guarded transition matched no row.
func lostRace(ctx context.Context, tx ports.LedgerTx, id string) error {
	b, err := tx.GetBid(ctx, id)
	if err != nil {
		return err
	}
	if err := notOpen(b); err != nil {
		return err
	}
	return fmt.Errorf("%w: bid %s changed concurrently", domain.ErrBidNotOpen, id)
}
