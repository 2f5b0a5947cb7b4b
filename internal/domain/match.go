package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MatchStatus represents the lifecycle of a match.
type MatchStatus string

const (
	MatchActive    MatchStatus = "ACTIVE"
	MatchCompleted MatchStatus = "COMPLETED"
	MatchTied      MatchStatus = "TIED"
	MatchDisputed  MatchStatus = "DISPUTED"
)

// ParseMatchStatus decodes a stored status string.
func ParseMatchStatus(s string) (MatchStatus, error) {
	switch st := MatchStatus(s); st {
	case MatchActive, MatchCompleted, MatchTied, MatchDisputed:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown match status %q", ErrDecode, s)
}

// Terminal reports whether the match has left ACTIVE.
func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchTied || s == MatchDisputed
}

// Prices is one price per roster slot.
type Prices [RosterSize]decimal.Decimal

// Match is a funded, time-boxed contest between two matched bids.
type Match struct {
	ID        string
	BidA      string
	BidB      string
	PlayerA   string
	PlayerB   string
	SquadA    int64
	SquadB    int64
	PrizePool int64 // sum of both principals
	FeePool   int64 // sum of both fee escrows
	Duration  time.Duration
	StartTime time.Time
	EndTime   time.Time
	Status    MatchStatus
	Winner    string

	PrizeClaimed bool
	ClaimedBy    string
	ClaimedAt    *time.Time

	EntryPricesA Prices
	EntryPricesB Prices
	WeightsA     Weights
	WeightsB     Weights

	PerformanceA decimal.Decimal
	PerformanceB decimal.Decimal
	SettledAt    *time.Time
}

// Participant reports whether account played in the match.
func (m Match) Participant(account string) bool {
	return account != "" && (account == m.PlayerA || account == m.PlayerB)
}

// Ended reports whether the scheduled end has passed.
func (m Match) Ended(now time.Time) bool {
	return !now.Before(m.EndTime)
}

// Loser returns the squad and account that lost a completed match.
func (m Match) Loser() (int64, string, bool) {
	if m.Status != MatchCompleted {
		return 0, "", false
	}
	if m.Winner == m.PlayerA {
		return m.SquadB, m.PlayerB, true
	}
	return m.SquadA, m.PlayerA, true
}

// Payout is one credit made when a prize is claimed.
type Payout struct {
	Account string
	Amount  int64
}

// Payouts computes the credits for claiming a settled match. The fee pool
// always goes to treasury; ties and disputes refund each principal.
func (m Match) Payouts(treasury string) ([]Payout, error) {
	switch m.Status {
	case MatchCompleted:
		return []Payout{
			{Account: m.Winner, Amount: m.PrizePool},
			{Account: treasury, Amount: m.FeePool},
		}, nil
	case MatchTied, MatchDisputed:
		half := m.PrizePool / 2
		return []Payout{
			{Account: m.PlayerA, Amount: half},
			{Account: m.PlayerB, Amount: m.PrizePool - half},
			{Account: treasury, Amount: m.FeePool},
		}, nil
	}
	return nil, ErrNotSettled
}

// CanClaim checks the claim preconditions for account without mutating m.
func (m Match) CanClaim(account string) error {
	if !m.Status.Terminal() {
		return ErrNotSettled
	}
	if m.PrizeClaimed {
		return ErrAlreadyClaimed
	}
	switch m.Status {
	case MatchCompleted:
		if account != m.Winner {
			return ErrNotWinner
		}
	default:
		if !m.Participant(account) {
			return ErrNotAuthorized
		}
	}
	return nil
}
