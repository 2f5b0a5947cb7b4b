package storage_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alejandrodnm/squadbid/internal/adapters/storage"
	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/alejandrodnm/squadbid/internal/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makeSquad(owner string) domain.Squad {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return domain.Squad{
		Owner:     owner,
		Name:      "Moon Boys",
		Formation: "balanced",
		Roster:    [domain.RosterSize]string{"BTC", "ETH", "SOL", "SUI", "APT", "ARB", "OP"},
		Lives:     domain.StartingLives,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func makeBid(id, creator string, squadID int64) domain.Bid {
	return domain.Bid{
		ID:              id,
		Creator:         creator,
		SquadID:         squadID,
		Wager:           1_000_000,
		Duration:        5 * time.Minute,
		Status:          domain.BidOpen,
		CreatedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		EscrowPrincipal: 1_000_000,
		EscrowFee:       50_000,
		FeeVersion:      1,
	}
}

func prices(vals ...string) domain.Prices {
	var p domain.Prices
	for i, v := range vals {
		p[i] = decimal.RequireFromString(v)
	}
	return p
}

func TestSQLiteStorage_CreditDebit(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	err := db.InTx(ctx, func(tx ports.LedgerTx) error {
		require.NoError(t, tx.Credit(ctx, "alice", 500))
		require.NoError(t, tx.Debit(ctx, "alice", 200))
		bal, err := tx.Balance(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(300), bal)
		return nil
	})
	require.NoError(t, err)

	err = db.InTx(ctx, func(tx ports.LedgerTx) error {
		return tx.Debit(ctx, "alice", 301)
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	err = db.InTx(ctx, func(tx ports.LedgerTx) error {
		return tx.Debit(ctx, "nobody", 1)
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestSQLiteStorage_CreditOverflow(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	require.NoError(t, db.InTx(ctx, func(tx ports.LedgerTx) error {
		return tx.Credit(ctx, "alice", math.MaxInt64)
	}))

	err := db.InTx(ctx, func(tx ports.LedgerTx) error {
		return tx.Credit(ctx, "alice", 10)
	})
	assert.ErrorIs(t, err, domain.ErrInvalidParameters)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	require.NoError(t, db.View(ctx, func(tx ports.LedgerTx) error {
		bal, err := tx.Balance(ctx, "alice")
		assert.Equal(t, int64(math.MaxInt64), bal)
		return err
	}))
}

func TestSQLiteStorage_RollbackOnError(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.InTx(ctx, func(tx ports.LedgerTx) error {
		require.NoError(t, tx.Credit(ctx, "alice", 500))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = db.View(ctx, func(tx ports.LedgerTx) error {
		bal, err := tx.Balance(ctx, "alice")
		require.NoError(t, err)
		assert.Zero(t, bal)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLiteStorage_SquadRoundTrip(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	err := db.InTx(ctx, func(tx ports.LedgerTx) error {
		id1, err := tx.InsertSquad(ctx, makeSquad("alice"))
		require.NoError(t, err)
		id2, err := tx.InsertSquad(ctx, makeSquad("alice"))
		require.NoError(t, err)
		assert.Greater(t, id2, id1, "ids are assigned monotonically")

		s, err := tx.GetSquad(ctx, id1)
		require.NoError(t, err)
		assert.Equal(t, "Moon Boys", s.Name)
		assert.Equal(t, "SUI", s.Roster[3])
		assert.Nil(t, s.DeathTime)

		for s.IsAlive() {
			s.ApplyLoss(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
		}
		require.NoError(t, tx.UpdateSquad(ctx, s))

		got, err := tx.GetSquad(ctx, id1)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Lives)
		require.NotNil(t, got.DeathTime)

		squads, err := tx.SquadsByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, squads, 2)

		require.NoError(t, tx.DeleteSquad(ctx, id2))
		_, err = tx.GetSquad(ctx, id2)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLiteStorage_OneOpenBidPerSquad(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	err := db.InTx(ctx, func(tx ports.LedgerTx) error {
		require.NoError(t, tx.InsertBid(ctx, makeBid("b1", "alice", 1)))
		err := tx.InsertBid(ctx, makeBid("b2", "alice", 1))
		assert.ErrorIs(t, err, domain.ErrSquadNotEligible)

		open, err := tx.OpenBidForSquad(ctx, 1)
		require.NoError(t, err)
		assert.True(t, open)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLiteStorage_TransitionBidOnce(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 10, 0, 0, time.UTC)

	err := db.InTx(ctx, func(tx ports.LedgerTx) error {
		require.NoError(t, tx.InsertBid(ctx, makeBid("b1", "alice", 1)))

		ok, err := tx.TransitionBid(ctx, "b1", domain.BidCancelled, "", at)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.TransitionBid(ctx, "b1", domain.BidMatched, "m1", at)
		require.NoError(t, err)
		assert.False(t, ok, "a closed bid never transitions again")

		b, err := tx.GetBid(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, domain.BidCancelled, b.Status)
		require.NotNil(t, b.ClosedAt)
		assert.True(t, b.ClosedAt.Equal(at))
		assert.Equal(t, int64(1_050_000), b.Total())

		// the squad is free again
		require.NoError(t, tx.InsertBid(ctx, makeBid("b2", "alice", 1)))
		open, err := tx.OpenBids(ctx)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, "b2", open[0].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLiteStorage_MatchRoundTrip(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)

	m := domain.Match{
		ID: "m1", BidA: "b1", BidB: "b2", PlayerA: "alice", PlayerB: "bob", SquadA: 1, SquadB: 2,
		PrizePool: 2_000_000, FeePool: 100_000, Duration: 5 * time.Minute,
		StartTime: start, EndTime: start.Add(5 * time.Minute), Status: domain.MatchActive,
		EntryPricesA: prices("1", "2", "3", "4", "5", "6", "7"),
		EntryPricesB: prices("7", "6", "5", "4", "3", "2", "1.25"),
		WeightsA:     domain.DefaultFormations()["captain"],
		WeightsB:     domain.DefaultFormations()["balanced"],
	}

	err := db.InTx(ctx, func(tx ports.LedgerTx) error {
		require.NoError(t, tx.InsertMatch(ctx, m))

		got, err := tx.GetMatch(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, domain.MatchActive, got.Status)
		assert.True(t, got.EntryPricesB[6].Equal(decimal.RequireFromString("1.25")))
		assert.True(t, got.WeightsA[0].Equal(decimal.NewFromInt(2)))
		assert.True(t, got.EndTime.Equal(m.EndTime))

		ended, err := tx.ActiveMatchesEndedBy(ctx, start.Add(time.Minute))
		require.NoError(t, err)
		assert.Empty(t, ended)
		ended, err = tx.ActiveMatchesEndedBy(ctx, start.Add(5*time.Minute))
		require.NoError(t, err)
		assert.Len(t, ended, 1)

		claimedEarly, err := tx.MarkPrizeClaimed(ctx, "m1", "alice", start)
		require.NoError(t, err)
		assert.False(t, claimedEarly, "active matches cannot be claimed")

		settledAt := start.Add(6 * time.Minute)
		got.Status = domain.MatchCompleted
		got.Winner = "alice"
		got.PerformanceA = decimal.RequireFromString("0.05")
		got.PerformanceB = decimal.RequireFromString("0.02")
		got.SettledAt = &settledAt
		ok, err := tx.SettleMatch(ctx, got)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = tx.SettleMatch(ctx, got)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = tx.MarkPrizeClaimed(ctx, "m1", "alice", settledAt)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = tx.MarkPrizeClaimed(ctx, "m1", "alice", settledAt)
		require.NoError(t, err)
		assert.False(t, ok)

		final, err := tx.GetMatch(ctx, "m1")
		require.NoError(t, err)
		assert.True(t, final.PrizeClaimed)
		assert.Equal(t, "alice", final.ClaimedBy)
		assert.True(t, final.PerformanceA.Equal(decimal.RequireFromString("0.05")))

		byBob, err := tx.MatchesByAccount(ctx, "bob")
		require.NoError(t, err)
		assert.Len(t, byBob, 1)

		counts, err := tx.CountMatches(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[domain.MatchCompleted])
		return nil
	})
	require.NoError(t, err)
}

func TestSQLiteStorage_FeeConfigVersions(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()

	err := db.InTx(ctx, func(tx ports.LedgerTx) error {
		_, err := tx.CurrentFeeConfig(ctx)
		assert.ErrorIs(t, err, domain.ErrConfiguration)

		v1, err := tx.SaveFeeConfig(ctx, domain.FeeConfig{UpfrontBps: 500})
		require.NoError(t, err)
		v2, err := tx.SaveFeeConfig(ctx, domain.FeeConfig{UpfrontBps: 250, SquadFee: 10})
		require.NoError(t, err)
		assert.Greater(t, v2, v1)

		cur, err := tx.CurrentFeeConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, v2, cur.Version)
		assert.Equal(t, int64(250), cur.UpfrontBps)

		_, err = tx.SaveFeeConfig(ctx, domain.FeeConfig{UpfrontBps: 20_000})
		assert.ErrorIs(t, err, domain.ErrConfiguration)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLiteStorage_EventsSince(t *testing.T) {
	db := newStore(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := db.InTx(ctx, func(tx ports.LedgerTx) error {
		for _, typ := range []domain.EventType{domain.EventBidCreated, domain.EventBidCreated, domain.EventMatchCreated} {
			_, err := tx.AppendEvent(ctx, domain.Event{Type: typ, Account: "alice", At: at})
			require.NoError(t, err)
		}
		return nil
	})
	require.NoError(t, err)

	err = db.View(ctx, func(tx ports.LedgerTx) error {
		events, err := tx.EventsSince(ctx, 1, 0)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, int64(2), events[0].Seq)
		assert.Equal(t, domain.EventMatchCreated, events[1].Type)
		assert.True(t, events[1].At.Equal(at))
		return nil
	})
	require.NoError(t, err)
}
