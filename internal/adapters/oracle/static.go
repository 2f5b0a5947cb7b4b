package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/squadbid/internal/ports"
	"github.com/shopspring/decimal"
)

// Static is an in-memory price table. Prices do not depend on the requested
// instant; Set moves them.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

var _ ports.PriceOracle = (*Static)(nil)

// NewStatic builds a table from token → decimal string pairs.
func NewStatic(prices map[string]string) (*Static, error) {
	s := &Static{prices: make(map[string]decimal.Decimal, len(prices))}
	for token, v := range prices {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("oracle.NewStatic: token %s: %w", token, err)
		}
		s.prices[token] = d
	}
	return s, nil
}

// Set replaces the price of one token.
func (s *Static) Set(token string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[token] = price
}

func (s *Static) PriceAt(_ context.Context, tokenID string, _ time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[tokenID]
	if !ok {
		return decimal.Zero, fmt.Errorf("oracle.Static: no price for token %s", tokenID)
	}
	return p, nil
}
