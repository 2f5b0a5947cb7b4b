package journal_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/squadbid/internal/adapters/storage"
	"github.com/alejandrodnm/squadbid/internal/application/journal"
	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/alejandrodnm/squadbid/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *capturePublisher) Publish(events ...domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
}

func TestRun_PublishesAfterCommit(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()
	pub := &capturePublisher{}
	ctx := context.Background()

	err = journal.Run(ctx, db, pub, func(tx ports.LedgerTx, j *journal.Journal) error {
		require.NoError(t, j.Record(ctx, domain.Event{Type: domain.EventDeposited, Account: "a", Amount: 5, At: time.Now()}))
		require.NoError(t, j.Record(ctx, domain.Event{Type: domain.EventDeposited, Account: "b", Amount: 7, At: time.Now()}))
		assert.Empty(t, pub.events, "nothing is published before commit")
		return nil
	})
	require.NoError(t, err)
	require.Len(t, pub.events, 2)
	assert.Equal(t, int64(1), pub.events[0].Seq)
	assert.Equal(t, int64(2), pub.events[1].Seq)
}

func TestRun_RollbackPublishesNothing(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()
	pub := &capturePublisher{}
	ctx := context.Background()
	boom := errors.New("boom")

	err = journal.Run(ctx, db, pub, func(tx ports.LedgerTx, j *journal.Journal) error {
		require.NoError(t, j.Record(ctx, domain.Event{Type: domain.EventDeposited, At: time.Now()}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, pub.events)

	err = db.View(ctx, func(tx ports.LedgerTx) error {
		events, err := tx.EventsSince(ctx, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, events)
		return nil
	})
	require.NoError(t, err)
}
