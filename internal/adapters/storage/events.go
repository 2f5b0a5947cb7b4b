package storage

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/squadbid/internal/domain"
)

const defaultEventLimit = 500

// AppendEvent writes one entry to the transition log and returns its sequence number.
func (t *sqliteTx) AppendEvent(ctx context.Context, e domain.Event) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO events (type, account, bid_id, match_id, squad_id, amount, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.Type), e.Account, e.BidID, e.MatchID, e.SquadID, e.Amount, formatTime(e.At),
	)
	if err != nil {
		return 0, fmt.Errorf("storage.AppendEvent: %w", err)
	}
	return res.LastInsertId()
}

// EventsSince returns events with seq > seq in log order.
func (t *sqliteTx) EventsSince(ctx context.Context, seq int64, limit int) ([]domain.Event, error) {
	if limit <= 0 || limit > defaultEventLimit {
		limit = defaultEventLimit
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT seq, type, account, bid_id, match_id, squad_id, amount, at
		FROM events WHERE seq > ? ORDER BY seq LIMIT ?`, seq, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.EventsSince: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var typ, at string
		if err := rows.Scan(&e.Seq, &typ, &e.Account, &e.BidID, &e.MatchID, &e.SquadID, &e.Amount, &at); err != nil {
			return nil, fmt.Errorf("storage.EventsSince: scan: %w", err)
		}
		e.Type = domain.EventType(typ)
		if e.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("storage.EventsSince: %w: %v", domain.ErrDecode, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastEventSeq returns the newest sequence number, 0 for an empty log.
func (t *sqliteTx) LastEventSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := t.tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("storage.LastEventSeq: %w", err)
	}
	return seq, nil
}
