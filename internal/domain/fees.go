package domain

import (
	"fmt"
	"math"
	"time"
)

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10_000

// FeeConfig is a versioned fee schedule. It is read-only to the protocol;
// new versions are written by an admin.
type FeeConfig struct {
	Version           int64
	UpfrontBps        int64 // fee charged on top of every wager
	SquadFee          int64 // charged once on squad creation
	ReviveStandardFee int64 // revival after the waiting period
	ReviveInstantFee  int64 // revival at any time
	CreatedAt         time.Time
}

// Validate rejects schedules the calculator cannot apply.
func (c FeeConfig) Validate() error {
	if c.UpfrontBps < 0 || c.UpfrontBps > BpsDenominator {
		return fmt.Errorf("%w: upfront bps %d out of range [0, %d]", ErrConfiguration, c.UpfrontBps, BpsDenominator)
	}
	if c.SquadFee < 0 || c.ReviveStandardFee < 0 || c.ReviveInstantFee < 0 {
		return fmt.Errorf("%w: negative fee", ErrConfiguration)
	}
	return nil
}

// UpfrontFee devuelve floor(wager * bps / 10000).
func UpfrontFee(wager int64, cfg FeeConfig) (int64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	if wager < 0 {
		return 0, fmt.Errorf("%w: negative wager %d", ErrInvalidParameters, wager)
	}
	if cfg.UpfrontBps > 0 && wager > math.MaxInt64/cfg.UpfrontBps {
		return 0, fmt.Errorf("%w: wager %d overflows fee computation", ErrInvalidParameters, wager)
	}
	return wager * cfg.UpfrontBps / BpsDenominator, nil
}

// TotalRequired is the amount debited from the creator when a bid is opened.
func TotalRequired(wager int64, cfg FeeConfig) (int64, error) {
	fee, err := UpfrontFee(wager, cfg)
	if err != nil {
		return 0, err
	}
	if wager > math.MaxInt64-fee {
		return 0, fmt.Errorf("%w: wager %d overflows total", ErrInvalidParameters, wager)
	}
	return wager + fee, nil
}

// ReviveFee returns the fee for a standard or instant revival.
func (c FeeConfig) ReviveFee(instant bool) int64 {
	if instant {
		return c.ReviveInstantFee
	}
	return c.ReviveStandardFee
}

// SumAmounts adds non-negative minor-unit amounts, rejecting a sum that
// does not fit in int64.
func SumAmounts(amounts ...int64) (int64, error) {
	var total int64
	for _, a := range amounts {
		if a < 0 {
			return 0, fmt.Errorf("%w: negative amount %d", ErrInvalidParameters, a)
		}
		if total > math.MaxInt64-a {
			return 0, fmt.Errorf("%w: amount %d overflows total %d", ErrInvalidParameters, a, total)
		}
		total += a
	}
	return total, nil
}
