// Package escrow holds bid funds, pairs bids into matches and settles them.
//
// Every operation is one ledger transaction. Funds debited by CreateBid stay
// on the bid row until its terminal transition: a cancellation refunds them,
// a match moves them into the match pools, and a claim pays the pools out.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/squadbid/internal/application/journal"
	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/alejandrodnm/squadbid/internal/ports"
)

// Config contiene los parámetros del protocolo de escrow.
type Config struct {
	Limits       domain.BidLimits
	Formations   domain.Formations
	GraceWindow  time.Duration // antigüedad mínima para SweepBid
	DisputeAfter time.Duration // tras EndTime, un árbitro puede disputar
}

// Service implements the bid lifecycle, the matcher and settlement.
type Service struct {
	cfg       Config
	ledger    ports.Ledger
	oracle    ports.PriceOracle
	auth      ports.Authorizer
	clock     ports.Clock
	publisher ports.Publisher
}

// New crea un Service con todas las dependencias inyectadas.
func New(
	cfg Config,
	ledger ports.Ledger,
	oracle ports.PriceOracle,
	auth ports.Authorizer,
	clock ports.Clock,
	publisher ports.Publisher,
) *Service {
	if cfg.Formations == nil {
		cfg.Formations = domain.DefaultFormations()
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if publisher == nil {
		publisher = ports.NopPublisher{}
	}
	return &Service{
		cfg:       cfg,
		ledger:    ledger,
		oracle:    oracle,
		auth:      auth,
		clock:     clock,
		publisher: publisher,
	}
}

// require checks that token grants capability kind.
func (s *Service) require(token string, kind ports.Capability) error {
	if s.auth == nil || !s.auth.HasCapability(token, kind) {
		return fmt.Errorf("%w: %s", domain.ErrMissingCapability, kind)
	}
	return nil
}

func (s *Service) run(ctx context.Context, fn func(tx ports.LedgerTx, j *journal.Journal) error) error {
	return journal.Run(ctx, s.ledger, s.publisher, fn)
}

// EnsureFeeConfig stores cfg as the first fee version when none exists yet.
func (s *Service) EnsureFeeConfig(ctx context.Context, cfg domain.FeeConfig) (domain.FeeConfig, error) {
	var out domain.FeeConfig
	now := s.clock.Now()
	err := s.run(ctx, func(tx ports.LedgerTx, j *journal.Journal) error {
		cur, err := tx.CurrentFeeConfig(ctx)
		if err == nil {
			out = cur
			return nil
		}
		if !errors.Is(err, domain.ErrConfiguration) {
			return err
		}
		cfg.CreatedAt = now
		if cfg.Version, err = tx.SaveFeeConfig(ctx, cfg); err != nil {
			return err
		}
		out = cfg
		return j.Record(ctx, domain.Event{Type: domain.EventFeesUpdated, Amount: cfg.UpfrontBps, At: now})
	})
	if err != nil {
		return out, fmt.Errorf("escrow.EnsureFeeConfig: %w", err)
	}
	return out, nil
}

// SetFeeConfig appends a new fee version. Bids already open keep the fees
// they escrowed; only later bids use the new schedule.
func (s *Service) SetFeeConfig(ctx context.Context, token string, cfg domain.FeeConfig) (domain.FeeConfig, error) {
	if err := s.require(token, ports.CapAdmin); err != nil {
		return cfg, fmt.Errorf("escrow.SetFeeConfig: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("escrow.SetFeeConfig: %w", err)
	}
	now := s.clock.Now()
	cfg.CreatedAt = now
	err := s.run(ctx, func(tx ports.LedgerTx, j *journal.Journal) error {
		var err error
		if cfg.Version, err = tx.SaveFeeConfig(ctx, cfg); err != nil {
			return err
		}
		return j.Record(ctx, domain.Event{Type: domain.EventFeesUpdated, Amount: cfg.UpfrontBps, At: now})
	})
	if err != nil {
		return cfg, fmt.Errorf("escrow.SetFeeConfig: %w", err)
	}
	slog.Info("fee config updated", "version", cfg.Version, "upfront_bps", cfg.UpfrontBps)
	return cfg, nil
}

// FeeConfig devuelve el schedule vigente.
func (s *Service) FeeConfig(ctx context.Context) (domain.FeeConfig, error) {
	var cfg domain.FeeConfig
	err := s.ledger.View(ctx, func(tx ports.LedgerTx) error {
		var err error
		cfg, err = tx.CurrentFeeConfig(ctx)
		return err
	})
	if err != nil {
		return cfg, fmt.Errorf("escrow.FeeConfig: %w", err)
	}
	return cfg, nil
}

// Deposit credits an account. It stands in for the wallet transfer that
// funds an account's available balance.
func (s *Service) Deposit(ctx context.Context, token, account string, amount int64) (int64, error) {
	if err := s.require(token, ports.CapAdmin); err != nil {
		return 0, fmt.Errorf("escrow.Deposit: %w", err)
	}
	if account == "" || amount <= 0 {
		return 0, fmt.Errorf("escrow.Deposit: %w: need an account and a positive amount", domain.ErrInvalidParameters)
	}
	var bal int64
	now := s.clock.Now()
	err := s.run(ctx, func(tx ports.LedgerTx, j *journal.Journal) error {
		if err := tx.Credit(ctx, account, amount); err != nil {
			return err
		}
		var err error
		if bal, err = tx.Balance(ctx, account); err != nil {
			return err
		}
		return j.Record(ctx, domain.Event{Type: domain.EventDeposited, Account: account, Amount: amount, At: now})
	})
	if err != nil {
		return 0, fmt.Errorf("escrow.Deposit: %w", err)
	}
	return bal, nil
}

// Balance devuelve el saldo disponible de una cuenta.
func (s *Service) Balance(ctx context.Context, account string) (int64, error) {
	var bal int64
	err := s.ledger.View(ctx, func(tx ports.LedgerTx) error {
		var err error
		bal, err = tx.Balance(ctx, account)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("escrow.Balance: %w", err)
	}
	return bal, nil
}
