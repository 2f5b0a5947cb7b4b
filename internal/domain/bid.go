package domain

import (
	"fmt"
	"time"
)

// BidStatus represents the lifecycle of a bid.
type BidStatus string

const (
	BidOpen      BidStatus = "OPEN"
	BidMatched   BidStatus = "MATCHED"
	BidCancelled BidStatus = "CANCELLED"
)

// ParseBidStatus decodes a stored status string.
func ParseBidStatus(s string) (BidStatus, error) {
	switch st := BidStatus(s); st {
	case BidOpen, BidMatched, BidCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown bid status %q", ErrDecode, s)
}

// Bid is one account's escrowed pledge looking for an opponent.
type Bid struct {
	ID              string
	Creator         string
	SquadID         int64
	Wager           int64
	Duration        time.Duration
	Status          BidStatus
	CreatedAt       time.Time
	EscrowPrincipal int64
	EscrowFee       int64
	FeeVersion      int64
	MatchID         string     // set once MATCHED
	ClosedAt        *time.Time // set by the terminal transition
}

// Total is the full amount held in escrow for the bid.
func (b Bid) Total() int64 {
	return b.EscrowPrincipal + b.EscrowFee
}

// Age devuelve cuánto tiempo lleva abierta la puja.
func (b Bid) Age(now time.Time) time.Duration {
	return now.Sub(b.CreatedAt)
}

// TerminalError returns the state conflict describing why a non-open bid
// cannot transition again, or nil if the bid is still open.
func (b Bid) TerminalError() error {
	switch b.Status {
	case BidOpen:
		return nil
	case BidMatched:
		return ErrAlreadyMatched
	case BidCancelled:
		return ErrAlreadyCancelled
	}
	return fmt.Errorf("%w: bid %s has status %q", ErrDecode, b.ID, b.Status)
}

// BidLimits bounds the parameters a bid may be created with.
type BidLimits struct {
	MinWager    int64
	MinDuration time.Duration
	MaxDuration time.Duration
}

// Check validates wager and duration against the limits.
func (l BidLimits) Check(wager int64, duration time.Duration) error {
	if wager <= 0 || wager < l.MinWager {
		return fmt.Errorf("%w: wager %d below minimum %d", ErrInvalidParameters, wager, l.MinWager)
	}
	if duration < l.MinDuration || duration > l.MaxDuration {
		return fmt.Errorf("%w: duration %s outside [%s, %s]", ErrInvalidParameters, duration, l.MinDuration, l.MaxDuration)
	}
	if duration%time.Second != 0 {
		return fmt.Errorf("%w: duration %s is not a whole number of seconds", ErrInvalidParameters, duration)
	}
	return nil
}
