package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceOracle supplies token prices at specific instants.
type PriceOracle interface {
	// PriceAt returns the price of tokenID at the given time.
	PriceAt(ctx context.Context, tokenID string, at time.Time) (decimal.Decimal, error)
}
