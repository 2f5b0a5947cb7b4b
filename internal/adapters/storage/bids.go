package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/squadbid/internal/domain"
)

const bidColumns = `id, creator, squad_id, wager, duration_ms, status, created_at,
       escrow_principal, escrow_fee, fee_version, match_id, closed_at`

// InsertBid stores a new OPEN bid. The partial unique index rejects a second
// OPEN bid for the same squad.
func (t *sqliteTx) InsertBid(ctx context.Context, b domain.Bid) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bids (id, creator, squad_id, wager, duration_ms, status, created_at,
		                  escrow_principal, escrow_fee, fee_version, match_id, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Creator, b.SquadID, b.Wager, b.Duration.Milliseconds(), string(b.Status),
		formatTime(b.CreatedAt), b.EscrowPrincipal, b.EscrowFee, b.FeeVersion, b.MatchID,
		formatTimePtr(b.ClosedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("storage.InsertBid: %w: squad %d already has an open bid", domain.ErrSquadNotEligible, b.SquadID)
		}
		return fmt.Errorf("storage.InsertBid: %w", err)
	}
	return nil
}

// GetBid loads one bid by id.
func (t *sqliteTx) GetBid(ctx context.Context, id string) (domain.Bid, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = ?`, id)
	b, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return b, fmt.Errorf("storage.GetBid: %w: bid %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return b, fmt.Errorf("storage.GetBid: %w", err)
	}
	return b, nil
}

// TransitionBid moves an OPEN bid to a terminal status. The WHERE guard makes
// the transition happen at most once; false means another writer got there first.
func (t *sqliteTx) TransitionBid(ctx context.Context, id string, to domain.BidStatus, matchID string, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bids SET status = ?, match_id = ?, closed_at = ?
		WHERE id = ? AND status = 'OPEN'`,
		string(to), matchID, formatTime(at), id,
	)
	if err != nil {
		return false, fmt.Errorf("storage.TransitionBid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.TransitionBid: rows affected: %w", err)
	}
	return n == 1, nil
}

// OpenBidForSquad reports whether the squad already backs an OPEN bid.
func (t *sqliteTx) OpenBidForSquad(ctx context.Context, squadID int64) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bids WHERE squad_id = ? AND status = 'OPEN'`, squadID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage.OpenBidForSquad: %w", err)
	}
	return n > 0, nil
}

// OpenBids returns every OPEN bid, oldest first.
func (t *sqliteTx) OpenBids(ctx context.Context) ([]domain.Bid, error) {
	return t.queryBids(ctx, `SELECT `+bidColumns+` FROM bids WHERE status = 'OPEN' ORDER BY created_at, id`)
}

// BidsByCreator returns a creator's bids, optionally filtered by status.
func (t *sqliteTx) BidsByCreator(ctx context.Context, creator string, status domain.BidStatus) ([]domain.Bid, error) {
	if status != "" {
		return t.queryBids(ctx, `SELECT `+bidColumns+` FROM bids WHERE creator = ? AND status = ?
			ORDER BY created_at DESC, id`, creator, string(status))
	}
	return t.queryBids(ctx, `SELECT `+bidColumns+` FROM bids WHERE creator = ?
		ORDER BY created_at DESC, id`, creator)
}

func (t *sqliteTx) queryBids(ctx context.Context, query string, args ...any) ([]domain.Bid, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.queryBids: %w", err)
	}
	defer rows.Close()

	var out []domain.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.queryBids: scan: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBid(row scanner) (domain.Bid, error) {
	var b domain.Bid
	var status, createdAt string
	var durationMs int64
	var closedAt sql.NullString
	if err := row.Scan(&b.ID, &b.Creator, &b.SquadID, &b.Wager, &durationMs, &status, &createdAt,
		&b.EscrowPrincipal, &b.EscrowFee, &b.FeeVersion, &b.MatchID, &closedAt); err != nil {
		return b, err
	}
	var err error
	b.Duration = time.Duration(durationMs) * time.Millisecond
	if b.Status, err = domain.ParseBidStatus(status); err != nil {
		return b, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return b, fmt.Errorf("%w: bid %s: %v", domain.ErrDecode, b.ID, err)
	}
	if b.ClosedAt, err = parseTimePtr(closedAt); err != nil {
		return b, fmt.Errorf("%w: bid %s: %v", domain.ErrDecode, b.ID, err)
	}
	return b, nil
}
