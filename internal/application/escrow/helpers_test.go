package escrow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/squadbid/internal/adapters/oracle"
	"github.com/alejandrodnm/squadbid/internal/adapters/storage"
	"github.com/alejandrodnm/squadbid/internal/application/escrow"
	"github.com/alejandrodnm/squadbid/internal/application/registry"
	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/alejandrodnm/squadbid/internal/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	matchToken  = "match"
	settleToken = "settle"
	sweepToken  = "sweep"
	arbToken    = "arbitrate"
	adminToken  = "admin"

	wager    = int64(1_000_000)
	duration = 5 * time.Minute
)

var tokens = []string{"T1", "T2", "T3", "T4", "T5", "T6", "T7"}

// tokenAuth grants the capability whose name equals the token.
type tokenAuth struct{}

func (tokenAuth) HasCapability(token string, kind ports.Capability) bool {
	return token == string(kind)
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type failingOracle struct{}

func (failingOracle) PriceAt(context.Context, string, time.Time) (decimal.Decimal, error) {
	return decimal.Zero, context.DeadlineExceeded
}

type env struct {
	t        *testing.T
	db       *storage.SQLiteStorage
	clock    *fixedClock
	oracle   *oracle.Static
	escrow   *escrow.Service
	registry *registry.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	prices := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		prices[tok] = "100"
	}
	static, err := oracle.NewStatic(prices)
	require.NoError(t, err)

	clock := &fixedClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	e := &env{t: t, db: db, clock: clock, oracle: static}
	e.escrow = e.newEscrow(static)
	e.registry = registry.New(registry.Config{ReviveWait: 24 * time.Hour}, db, clock, nil)

	_, err = e.escrow.EnsureFeeConfig(context.Background(), domain.FeeConfig{UpfrontBps: 500})
	require.NoError(t, err)
	return e
}

func (e *env) newEscrow(o ports.PriceOracle) *escrow.Service {
	return escrow.New(escrow.Config{
		Limits:       domain.BidLimits{MinWager: 1000, MinDuration: time.Minute, MaxDuration: 30 * time.Minute},
		GraceWindow:  2 * time.Minute,
		DisputeAfter: 10 * time.Minute,
	}, e.db, o, tokenAuth{}, e.clock, nil)
}

// player funds account and gives it a balanced squad.
func (e *env) player(account string, funds int64) domain.Squad {
	e.t.Helper()
	ctx := context.Background()
	if funds > 0 {
		_, err := e.escrow.Deposit(ctx, adminToken, account, funds)
		require.NoError(e.t, err)
	}
	sq, err := e.registry.CreateSquad(ctx, account, account+" squad", "balanced", tokens)
	require.NoError(e.t, err)
	return sq
}

func (e *env) bid(account string, squad domain.Squad) domain.Bid {
	e.t.Helper()
	b, err := e.escrow.CreateBid(context.Background(), account, squad.ID, wager, duration)
	require.NoError(e.t, err)
	return b
}

func (e *env) balance(account string) int64 {
	e.t.Helper()
	bal, err := e.escrow.Balance(context.Background(), account)
	require.NoError(e.t, err)
	return bal
}

func (e *env) getBid(id string) domain.Bid {
	e.t.Helper()
	var b domain.Bid
	require.NoError(e.t, e.db.View(context.Background(), func(tx ports.LedgerTx) error {
		var err error
		b, err = tx.GetBid(context.Background(), id)
		return err
	}))
	return b
}

func (e *env) getMatch(id string) domain.Match {
	e.t.Helper()
	var m domain.Match
	require.NoError(e.t, e.db.View(context.Background(), func(tx ports.LedgerTx) error {
		var err error
		m, err = tx.GetMatch(context.Background(), id)
		return err
	}))
	return m
}

func (e *env) squad(id int64) domain.Squad {
	e.t.Helper()
	sq, err := e.registry.GetSquad(context.Background(), id)
	require.NoError(e.t, err)
	return sq
}

// matched creates two funded players with open bids and pairs them.
func (e *env) matched() domain.Match {
	e.t.Helper()
	sa := e.player("alice", 1_050_000)
	sb := e.player("bob", 1_050_000)
	a := e.bid("alice", sa)
	b := e.bid("bob", sb)
	m, err := e.escrow.MatchBids(context.Background(), a.ID, b.ID, matchToken)
	require.NoError(e.t, err)
	return m
}

// prices builds a price array of 100s with slot 0 set to first.
func prices(first string) []decimal.Decimal {
	out := make([]decimal.Decimal, domain.RosterSize)
	for i := range out {
		out[i] = decimal.NewFromInt(100)
	}
	out[0] = decimal.RequireFromString(first)
	return out
}
