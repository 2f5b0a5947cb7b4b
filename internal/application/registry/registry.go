package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/squadbid/internal/application/journal"
	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/alejandrodnm/squadbid/internal/ports"
)

// Config contiene la configuración del registro de escuadrones.
type Config struct {
	Formations domain.Formations
	ReviveWait time.Duration // espera desde la muerte para una revival estándar
}

// Service owns squad rosters and life counters.
type Service struct {
	cfg       Config
	ledger    ports.Ledger
	clock     ports.Clock
	publisher ports.Publisher
}

// New crea un Service con todas las dependencias inyectadas.
func New(cfg Config, ledger ports.Ledger, clock ports.Clock, publisher ports.Publisher) *Service {
	if cfg.Formations == nil {
		cfg.Formations = domain.DefaultFormations()
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if publisher == nil {
		publisher = ports.NopPublisher{}
	}
	return &Service{cfg: cfg, ledger: ledger, clock: clock, publisher: publisher}
}

// CreateSquad registers a new squad with full lives and charges the squad fee.
func (s *Service) CreateSquad(ctx context.Context, owner, name, formation string, roster []string) (domain.Squad, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return domain.Squad{}, fmt.Errorf("registry.CreateSquad: %w: owner is required", domain.ErrInvalidParameters)
	}
	name, err := domain.ValidateSquadName(name)
	if err != nil {
		return domain.Squad{}, fmt.Errorf("registry.CreateSquad: %w", err)
	}
	if _, err := s.cfg.Formations.Lookup(formation); err != nil {
		return domain.Squad{}, fmt.Errorf("registry.CreateSquad: %w", err)
	}
	slots, err := domain.ValidateRoster(roster)
	if err != nil {
		return domain.Squad{}, fmt.Errorf("registry.CreateSquad: %w", err)
	}

	now := s.clock.Now()
	sq := domain.Squad{
		Owner:     owner,
		Name:      name,
		Formation: formation,
		Roster:    slots,
		Lives:     domain.StartingLives,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = journal.Run(ctx, s.ledger, s.publisher, func(tx ports.LedgerTx, j *journal.Journal) error {
		fees, err := tx.CurrentFeeConfig(ctx)
		if err != nil {
			return err
		}
		if err := s.charge(ctx, tx, owner, fees.SquadFee); err != nil {
			return err
		}
		id, err := tx.InsertSquad(ctx, sq)
		if err != nil {
			return err
		}
		sq.ID = id
		return j.Record(ctx, domain.Event{
			Type: domain.EventSquadCreated, Account: owner, SquadID: id, Amount: fees.SquadFee, At: now,
		})
	})
	if err != nil {
		return domain.Squad{}, fmt.Errorf("registry.CreateSquad: %w", err)
	}
	slog.Info("squad created", "squad", sq.ID, "owner", owner, "formation", formation)
	return sq, nil
}

// SquadChange is a partial squad update. Nil fields are left as they are;
// Formation and Roster must be given together.
type SquadChange struct {
	Name      *string
	Formation *string
	Roster    []string
}

// UpdateSquad applies every field of ch to an owned, unpledged squad in one
// transaction. Nothing is stored if any field is invalid.
func (s *Service) UpdateSquad(ctx context.Context, id int64, owner string, ch SquadChange) (domain.Squad, error) {
	apply, err := s.change(ch)
	if err != nil {
		return domain.Squad{}, fmt.Errorf("registry.UpdateSquad: %w", err)
	}
	sq, err := s.mutate(ctx, id, owner, apply)
	if err != nil {
		return sq, fmt.Errorf("registry.UpdateSquad: %w", err)
	}
	return sq, nil
}

// RenameSquad changes a squad's display name.
func (s *Service) RenameSquad(ctx context.Context, id int64, owner, name string) (domain.Squad, error) {
	return s.UpdateSquad(ctx, id, owner, SquadChange{Name: &name})
}

// UpdateRoster replaces formation and players of an unpledged squad.
func (s *Service) UpdateRoster(ctx context.Context, id int64, owner, formation string, roster []string) (domain.Squad, error) {
	return s.UpdateSquad(ctx, id, owner, SquadChange{Formation: &formation, Roster: roster})
}

// change validates ch up front and returns the mutation it describes.
func (s *Service) change(ch SquadChange) (func(*domain.Squad) error, error) {
	if ch.Name == nil && ch.Formation == nil && ch.Roster == nil {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrInvalidParameters)
	}
	if (ch.Formation == nil) != (ch.Roster == nil) {
		return nil, fmt.Errorf("%w: formation and roster must be sent together", domain.ErrInvalidParameters)
	}
	var name string
	if ch.Name != nil {
		var err error
		if name, err = domain.ValidateSquadName(*ch.Name); err != nil {
			return nil, err
		}
	}
	var slots [domain.RosterSize]string
	if ch.Roster != nil {
		if _, err := s.cfg.Formations.Lookup(*ch.Formation); err != nil {
			return nil, err
		}
		var err error
		if slots, err = domain.ValidateRoster(ch.Roster); err != nil {
			return nil, err
		}
	}
	return func(sq *domain.Squad) error {
		if ch.Name != nil {
			sq.Name = name
		}
		if ch.Roster != nil {
			sq.Formation = *ch.Formation
			sq.Roster = slots
		}
		return nil
	}, nil
}

// mutate loads an owned, unpledged squad, applies fn and stores it.
func (s *Service) mutate(ctx context.Context, id int64, owner string, fn func(*domain.Squad) error) (domain.Squad, error) {
	var out domain.Squad
	now := s.clock.Now()
	err := journal.Run(ctx, s.ledger, s.publisher, func(tx ports.LedgerTx, j *journal.Journal) error {
		sq, err := ownedUnpledged(ctx, tx, id, owner)
		if err != nil {
			return err
		}
		if err := fn(&sq); err != nil {
			return err
		}
		sq.UpdatedAt = now
		if err := tx.UpdateSquad(ctx, sq); err != nil {
			return err
		}
		out = sq
		return j.Record(ctx, domain.Event{Type: domain.EventSquadUpdated, Account: owner, SquadID: id, At: now})
	})
	return out, err
}

// DeleteSquad removes an owned squad that backs no Open bid or Active match.
func (s *Service) DeleteSquad(ctx context.Context, id int64, owner string) error {
	now := s.clock.Now()
	err := journal.Run(ctx, s.ledger, s.publisher, func(tx ports.LedgerTx, j *journal.Journal) error {
		if _, err := ownedUnpledged(ctx, tx, id, owner); err != nil {
			return err
		}
		if err := tx.DeleteSquad(ctx, id); err != nil {
			return err
		}
		return j.Record(ctx, domain.Event{Type: domain.EventSquadDeleted, Account: owner, SquadID: id, At: now})
	})
	if err != nil {
		return fmt.Errorf("registry.DeleteSquad: %w", err)
	}
	slog.Info("squad deleted", "squad", id, "owner", owner)
	return nil
}

// ReviveSquad restores a dead squad to full lives. A standard revival needs
// ReviveWait since death; an instant one may happen at any time at a higher fee.
func (s *Service) ReviveSquad(ctx context.Context, id int64, owner string, instant bool) (domain.Squad, error) {
	var out domain.Squad
	now := s.clock.Now()
	err := journal.Run(ctx, s.ledger, s.publisher, func(tx ports.LedgerTx, j *journal.Journal) error {
		sq, err := tx.GetSquad(ctx, id)
		if err != nil {
			return err
		}
		if sq.Owner != owner {
			return fmt.Errorf("%w: squad %d belongs to another account", domain.ErrNotAuthorized, id)
		}
		if sq.IsAlive() {
			return fmt.Errorf("%w: squad %d is alive", domain.ErrSquadNotEligible, id)
		}
		if !instant && sq.DeathTime != nil && now.Sub(*sq.DeathTime) < s.cfg.ReviveWait {
			return fmt.Errorf("%w: squad %d can be revived at %s", domain.ErrSquadNotEligible,
				id, sq.DeathTime.Add(s.cfg.ReviveWait).Format(time.RFC3339))
		}

		fees, err := tx.CurrentFeeConfig(ctx)
		if err != nil {
			return err
		}
		fee := fees.ReviveFee(instant)
		if err := s.charge(ctx, tx, owner, fee); err != nil {
			return err
		}
		sq.Revive(now)
		if err := tx.UpdateSquad(ctx, sq); err != nil {
			return err
		}
		out = sq
		return j.Record(ctx, domain.Event{Type: domain.EventSquadRevived, Account: owner, SquadID: id, Amount: fee, At: now})
	})
	if err != nil {
		return out, fmt.Errorf("registry.ReviveSquad: %w", err)
	}
	slog.Info("squad revived", "squad", id, "instant", instant)
	return out, nil
}

// GetSquad devuelve un escuadrón por id.
func (s *Service) GetSquad(ctx context.Context, id int64) (domain.Squad, error) {
	var sq domain.Squad
	err := s.ledger.View(ctx, func(tx ports.LedgerTx) error {
		var err error
		sq, err = tx.GetSquad(ctx, id)
		return err
	})
	if err != nil {
		return sq, fmt.Errorf("registry.GetSquad: %w", err)
	}
	return sq, nil
}

// IsAlive reports whether the squad has lives left.
func (s *Service) IsAlive(ctx context.Context, id int64) (bool, error) {
	sq, err := s.GetSquad(ctx, id)
	if err != nil {
		return false, err
	}
	return sq.IsAlive(), nil
}

// SquadsForAccount lists an owner's squads.
func (s *Service) SquadsForAccount(ctx context.Context, owner string) ([]domain.Squad, error) {
	var out []domain.Squad
	err := s.ledger.View(ctx, func(tx ports.LedgerTx) error {
		var err error
		out, err = tx.SquadsByOwner(ctx, owner)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("registry.SquadsForAccount: %w", err)
	}
	return out, nil
}

func (s *Service) charge(ctx context.Context, tx ports.LedgerTx, account string, fee int64) error {
	if fee <= 0 {
		return nil
	}
	if err := tx.Debit(ctx, account, fee); err != nil {
		return err
	}
	return tx.Credit(ctx, domain.TreasuryAccount, fee)
}

func ownedUnpledged(ctx context.Context, tx ports.LedgerTx, id int64, owner string) (domain.Squad, error) {
	sq, err := tx.GetSquad(ctx, id)
	if err != nil {
		return sq, err
	}
	if sq.Owner != owner {
		return sq, fmt.Errorf("%w: squad %d belongs to another account", domain.ErrNotAuthorized, id)
	}
	pledged, err := tx.SquadPledged(ctx, id)
	if err != nil {
		return sq, err
	}
	if pledged {
		return sq, fmt.Errorf("%w: squad %d backs an open bid or active match", domain.ErrSquadNotEligible, id)
	}
	return sq, nil
}
