package escrow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/squadbid/internal/application/journal"
	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/alejandrodnm/squadbid/internal/ports"
	"github.com/shopspring/decimal"
)

// CompleteMatch settles an active match whose end time has passed. The
// loser's squad loses a life in the same transaction. No funds move here;
// payment is ClaimPrize.
func (s *Service) CompleteMatch(ctx context.Context, matchID string, finalA, finalB []decimal.Decimal, token string) (domain.SettlementResult, error) {
	if err := s.require(token, ports.CapSettle); err != nil {
		return domain.SettlementResult{}, fmt.Errorf("escrow.CompleteMatch: %w", err)
	}
	pricesA, err := domain.ParsePrices(finalA)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("escrow.CompleteMatch: squad A: %w", err)
	}
	pricesB, err := domain.ParsePrices(finalB)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("escrow.CompleteMatch: squad B: %w", err)
	}

	var res domain.SettlementResult
	now := s.clock.Now()
	err = s.run(ctx, func(tx ports.LedgerTx, j *journal.Journal) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.Status != domain.MatchActive {
			return fmt.Errorf("%w: match %s is %s", domain.ErrAlreadySettled, m.ID, m.Status)
		}
		if !m.Ended(now) {
			return fmt.Errorf("%w: match %s ends at %s", domain.ErrMatchNotEnded, m.ID, m.EndTime)
		}

		if res, err = domain.Settle(m, pricesA, pricesB); err != nil {
			return err
		}
		m.Apply(res)
		m.SettledAt = &now
		ok, err := tx.SettleMatch(ctx, m)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: match %s changed concurrently", domain.ErrAlreadySettled, m.ID)
		}

		evType := domain.EventMatchTied
		if res.Status == domain.MatchCompleted {
			evType = domain.EventMatchCompleted
			if err := applyLoss(ctx, tx, j, m); err != nil {
				return err
			}
		}
		return j.Record(ctx, domain.Event{
			Type: evType, Account: res.Winner, MatchID: m.ID, Amount: m.PrizePool, At: now,
		})
	})
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("escrow.CompleteMatch: %w", err)
	}
	slog.Info("match settled", "match", matchID, "status", res.Status, "winner", res.Winner,
		"perf_a", res.PerformanceA.String(), "perf_b", res.PerformanceB.String())
	return res, nil
}

// applyLoss decrements the losing squad's lives and records its death.
func applyLoss(ctx context.Context, tx ports.LedgerTx, j *journal.Journal, m domain.Match) error {
	squadID, account, ok := m.Loser()
	if !ok {
		return nil
	}
	sq, err := tx.GetSquad(ctx, squadID)
	if err != nil {
		return err
	}
	died := sq.ApplyLoss(*m.SettledAt)
	if err := tx.UpdateSquad(ctx, sq); err != nil {
		return err
	}
	if !died {
		return nil
	}
	slog.Info("squad died", "squad", squadID, "owner", account)
	return j.Record(ctx, domain.Event{Type: domain.EventSquadDied, Account: account, SquadID: squadID, MatchID: m.ID, At: *m.SettledAt})
}

// DisputeMatch moves an active match that was never settled to Disputed.
// It needs the arbitrate capability and DisputeAfter past the match end.
// Disputed matches are claimed as a split refund.
func (s *Service) DisputeMatch(ctx context.Context, matchID, token string) (domain.Match, error) {
	if err := s.require(token, ports.CapArbitrate); err != nil {
		return domain.Match{}, fmt.Errorf("escrow.DisputeMatch: %w", err)
	}
	var out domain.Match
	now := s.clock.Now()
	err := s.run(ctx, func(tx ports.LedgerTx, j *journal.Journal) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.Status != domain.MatchActive {
			return fmt.Errorf("%w: match %s is %s", domain.ErrAlreadySettled, m.ID, m.Status)
		}
		if opens := m.EndTime.Add(s.cfg.DisputeAfter); now.Before(opens) {
			return fmt.Errorf("%w: match %s can be disputed from %s", domain.ErrMatchNotEnded, m.ID, opens)
		}
		m.Status = domain.MatchDisputed
		m.SettledAt = &now
		ok, err := tx.SettleMatch(ctx, m)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: match %s changed concurrently", domain.ErrAlreadySettled, m.ID)
		}
		out = m
		return j.Record(ctx, domain.Event{Type: domain.EventMatchDisputed, MatchID: m.ID, Amount: m.PrizePool, At: now})
	})
	if err != nil {
		return out, fmt.Errorf("escrow.DisputeMatch: %w", err)
	}
	slog.Warn("match disputed", "match", matchID)
	return out, nil
}

// ClaimPrize pays a settled match out exactly once. A completed match pays
// the prize pool to its winner; a tied or disputed one refunds each
// principal. The fee pool always goes to the treasury.
func (s *Service) ClaimPrize(ctx context.Context, matchID, claimant string) ([]domain.Payout, error) {
	var payouts []domain.Payout
	now := s.clock.Now()
	err := s.run(ctx, func(tx ports.LedgerTx, j *journal.Journal) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if err := m.CanClaim(claimant); err != nil {
			return fmt.Errorf("match %s: %w", m.ID, err)
		}
		if payouts, err = m.Payouts(domain.TreasuryAccount); err != nil {
			return err
		}
		ok, err := tx.MarkPrizeClaimed(ctx, m.ID, claimant, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: match %s", domain.ErrAlreadyClaimed, m.ID)
		}
		for _, p := range payouts {
			if err := tx.Credit(ctx, p.Account, p.Amount); err != nil {
				return err
			}
			if err := j.Record(ctx, domain.Event{
				Type: domain.EventPrizeClaimed, Account: p.Account, MatchID: m.ID, Amount: p.Amount, At: now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("escrow.ClaimPrize: %w", err)
	}
	slog.Info("prize claimed", "match", matchID, "claimant", claimant, "payouts", len(payouts))
	return payouts, nil
}
