// Package query serves read-only projections of the ledger. Each call reads
// inside one View transaction, so bids and matches come from one snapshot.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/alejandrodnm/squadbid/internal/ports"
)

// Facade exposes read-only ledger projections.
type Facade struct {
	ledger ports.Ledger
}

// New crea un Facade sobre el ledger dado.
func New(ledger ports.Ledger) *Facade {
	return &Facade{ledger: ledger}
}

// Eligibility is the answer to a can-cancel or can-claim question.
type Eligibility struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"` // error code when not allowed
}

func eligibility(err error) Eligibility {
	if err == nil {
		return Eligibility{Allowed: true}
	}
	return Eligibility{Reason: domain.CodeOf(err)}
}

func (f *Facade) view(ctx context.Context, op string, fn func(tx ports.LedgerTx) error) error {
	if err := f.ledger.View(ctx, fn); err != nil {
		return fmt.Errorf("query.%s: %w", op, err)
	}
	return nil
}

// OpenBidsForAccount lists the account's open bids, newest first.
func (f *Facade) OpenBidsForAccount(ctx context.Context, account string) ([]domain.Bid, error) {
	var out []domain.Bid
	err := f.view(ctx, "OpenBidsForAccount", func(tx ports.LedgerTx) error {
		var err error
		out, err = tx.BidsByCreator(ctx, account, domain.BidOpen)
		return err
	})
	return out, err
}

// BidsForAccount lists every bid the account created.
func (f *Facade) BidsForAccount(ctx context.Context, account string) ([]domain.Bid, error) {
	var out []domain.Bid
	err := f.view(ctx, "BidsForAccount", func(tx ports.LedgerTx) error {
		var err error
		out, err = tx.BidsByCreator(ctx, account, "")
		return err
	})
	return out, err
}

// AllOpenBids lists every open bid, oldest first.
func (f *Facade) AllOpenBids(ctx context.Context) ([]domain.Bid, error) {
	var out []domain.Bid
	err := f.view(ctx, "AllOpenBids", func(tx ports.LedgerTx) error {
		var err error
		out, err = tx.OpenBids(ctx)
		return err
	})
	return out, err
}

// MatchesForAccount lists the matches the account played, newest first.
func (f *Facade) MatchesForAccount(ctx context.Context, account string) ([]domain.Match, error) {
	var out []domain.Match
	err := f.view(ctx, "MatchesForAccount", func(tx ports.LedgerTx) error {
		var err error
		out, err = tx.MatchesByAccount(ctx, account)
		return err
	})
	return out, err
}

// ActiveMatchesEndedBy lists active matches whose end time has passed at t.
func (f *Facade) ActiveMatchesEndedBy(ctx context.Context, t time.Time) ([]domain.Match, error) {
	var out []domain.Match
	err := f.view(ctx, "ActiveMatchesEndedBy", func(tx ports.LedgerTx) error {
		var err error
		out, err = tx.ActiveMatchesEndedBy(ctx, t)
		return err
	})
	return out, err
}

// Bid devuelve una puja por id.
func (f *Facade) Bid(ctx context.Context, id string) (domain.Bid, error) {
	var out domain.Bid
	err := f.view(ctx, "Bid", func(tx ports.LedgerTx) error {
		var err error
		out, err = tx.GetBid(ctx, id)
		return err
	})
	return out, err
}

// Match devuelve un match por id.
func (f *Facade) Match(ctx context.Context, id string) (domain.Match, error) {
	var out domain.Match
	err := f.view(ctx, "Match", func(tx ports.LedgerTx) error {
		var err error
		out, err = tx.GetMatch(ctx, id)
		return err
	})
	return out, err
}

// Squad devuelve un escuadrón por id.
func (f *Facade) Squad(ctx context.Context, id int64) (domain.Squad, error) {
	var out domain.Squad
	err := f.view(ctx, "Squad", func(tx ports.LedgerTx) error {
		var err error
		out, err = tx.GetSquad(ctx, id)
		return err
	})
	return out, err
}

// Balance devuelve el saldo disponible de una cuenta.
func (f *Facade) Balance(ctx context.Context, account string) (int64, error) {
	var out int64
	err := f.view(ctx, "Balance", func(tx ports.LedgerTx) error {
		var err error
		out, err = tx.Balance(ctx, account)
		return err
	})
	return out, err
}

// CanCancel reports whether account may cancel the bid right now.
func (f *Facade) CanCancel(ctx context.Context, bidID, account string) (Eligibility, error) {
	var out Eligibility
	err := f.view(ctx, "CanCancel", func(tx ports.LedgerTx) error {
		b, err := tx.GetBid(ctx, bidID)
		if err != nil {
			return err
		}
		switch {
		case b.Creator != account:
			out = eligibility(domain.ErrNotAuthorized)
		default:
			out = eligibility(b.TerminalError())
		}
		return nil
	})
	return out, err
}

// CanClaim reports whether account may claim the match prize right now.
func (f *Facade) CanClaim(ctx context.Context, matchID, account string) (Eligibility, error) {
	var out Eligibility
	err := f.view(ctx, "CanClaim", func(tx ports.LedgerTx) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		out = eligibility(m.CanClaim(account))
		return nil
	})
	return out, err
}

// EventsSince returns up to limit events after seq.
func (f *Facade) EventsSince(ctx context.Context, seq int64, limit int) ([]domain.Event, error) {
	var out []domain.Event
	err := f.view(ctx, "EventsSince", func(tx ports.LedgerTx) error {
		var err error
		out, err = tx.EventsSince(ctx, seq, limit)
		return err
	})
	return out, err
}

// AccountView is everything one account holds, read from one snapshot.
type AccountView struct {
	Account  string
	Balance  int64
	OpenBids []domain.Bid
	Matches  []domain.Match
}

// Account returns balance, open bids and matches of account in one snapshot,
// so a bid consumed by a listed match is never reported as open.
func (f *Facade) Account(ctx context.Context, account string) (AccountView, error) {
	v := AccountView{Account: account}
	err := f.view(ctx, "Account", func(tx ports.LedgerTx) error {
		var err error
		if v.Balance, err = tx.Balance(ctx, account); err != nil {
			return err
		}
		if v.OpenBids, err = tx.BidsByCreator(ctx, account, domain.BidOpen); err != nil {
			return err
		}
		v.Matches, err = tx.MatchesByAccount(ctx, account)
		return err
	})
	return v, err
}

// Summary aggregates the ledger in one snapshot.
func (f *Facade) Summary(ctx context.Context) (domain.Summary, error) {
	var s domain.Summary
	err := f.view(ctx, "Summary", func(tx ports.LedgerTx) error {
		open, err := tx.OpenBids(ctx)
		if err != nil {
			return err
		}
		s.OpenBids = len(open)
		for _, b := range open {
			s.OpenEscrow += b.Total()
		}
		if s.Matches, err = tx.CountMatches(ctx); err != nil {
			return err
		}
		if s.TreasuryBalance, err = tx.Balance(ctx, domain.TreasuryAccount); err != nil {
			return err
		}
		s.LastEventSeq, err = tx.LastEventSeq(ctx)
		return err
	})
	return s, err
}
