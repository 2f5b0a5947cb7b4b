// Package journal runs ledger transitions that append events and publishes
// those events once the transaction commits.
package journal

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/alejandrodnm/squadbid/internal/ports"
)

// Journal collects the events appended inside one transaction.
type Journal struct {
	tx     ports.LedgerTx
	events []domain.Event
}

// Record appends e to the event log inside the current transaction.
func (j *Journal) Record(ctx context.Context, e domain.Event) error {
	seq, err := j.tx.AppendEvent(ctx, e)
	if err != nil {
		return fmt.Errorf("journal.Record %s: %w", e.Type, err)
	}
	e.Seq = seq
	j.events = append(j.events, e)
	return nil
}

// Run executes fn in one ledger transaction. Recorded events reach the
// publisher only if the transaction commits.
func Run(ctx context.Context, ledger ports.Ledger, pub ports.Publisher, fn func(tx ports.LedgerTx, j *Journal) error) error {
	var events []domain.Event
	err := ledger.InTx(ctx, func(tx ports.LedgerTx) error {
		j := &Journal{tx: tx}
		if err := fn(tx, j); err != nil {
			return err
		}
		events = j.events
		return nil
	})
	if err != nil {
		return err
	}
	if pub != nil && len(events) > 0 {
		pub.Publish(events...)
	}
	return nil
}
