package domain

// settlement.go: performance math for match settlement.
//
// Performance of a squad = Σ weight[i] × (final[i] − entry[i]) / entry[i].
// Everything is decimal so re-running Settle offline on the same inputs always
// yields the stored result; values are rounded to PerformanceScale places and
// compared exactly, which is the tie epsilon.

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PerformanceScale is the number of decimal places kept for performance values.
const PerformanceScale = 10

// SettlementResult is the outcome of completing a match.
type SettlementResult struct {
	MatchID      string
	Status       MatchStatus
	Winner       string
	PerformanceA decimal.Decimal
	PerformanceB decimal.Decimal
}

// ParsePrices validates a submitted price array: exactly RosterSize
// non-negative values.
func ParsePrices(values []decimal.Decimal) (Prices, error) {
	var p Prices
	if len(values) != RosterSize {
		return p, fmt.Errorf("%w: need %d prices, got %d", ErrInvalidPrices, RosterSize, len(values))
	}
	for i, v := range values {
		if v.IsNegative() {
			return p, fmt.Errorf("%w: slot %d has negative price %s", ErrInvalidPrices, i, v)
		}
		p[i] = v
	}
	return p, nil
}

// ValidateEntryPrices requires every entry price to be strictly positive,
// since it is the divisor of the performance ratio.
func ValidateEntryPrices(p Prices) error {
	for i, v := range p {
		if !v.IsPositive() {
			return fmt.Errorf("%w: entry price for slot %d must be positive, got %s", ErrInvalidPrices, i, v)
		}
	}
	return nil
}

// Performance computes the weighted fractional change from entry to final.
func Performance(weights Weights, entry, final Prices) (decimal.Decimal, error) {
	if err := ValidateEntryPrices(entry); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for i := 0; i < RosterSize; i++ {
		change := final[i].Sub(entry[i]).Div(entry[i])
		total = total.Add(weights[i].Mul(change))
	}
	return total.Round(PerformanceScale), nil
}

// Settle computes the outcome of an active match without mutating it.
// A strictly greater performance wins; equal performance is a tie.
func Settle(m Match, finalA, finalB Prices) (SettlementResult, error) {
	if m.Status != MatchActive {
		return SettlementResult{}, ErrAlreadySettled
	}
	perfA, err := Performance(m.WeightsA, m.EntryPricesA, finalA)
	if err != nil {
		return SettlementResult{}, err
	}
	perfB, err := Performance(m.WeightsB, m.EntryPricesB, finalB)
	if err != nil {
		return SettlementResult{}, err
	}

	res := SettlementResult{
		MatchID:      m.ID,
		PerformanceA: perfA,
		PerformanceB: perfB,
	}
	switch perfA.Cmp(perfB) {
	case 1:
		res.Status = MatchCompleted
		res.Winner = m.PlayerA
	case -1:
		res.Status = MatchCompleted
		res.Winner = m.PlayerB
	default:
		res.Status = MatchTied
	}
	return res, nil
}

// Apply copies a settlement result onto the match.
func (m *Match) Apply(res SettlementResult) {
	m.Status = res.Status
	m.Winner = res.Winner
	m.PerformanceA = res.PerformanceA
	m.PerformanceB = res.PerformanceB
}
