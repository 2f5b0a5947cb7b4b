package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/shopspring/decimal"
)

const matchColumns = `id, bid_a, bid_b, player_a, player_b, squad_a, squad_b, prize_pool, fee_pool,
       duration_ms, start_time, end_time, status, winner, prize_claimed, claimed_by, claimed_at,
       entry_prices_a, entry_prices_b, weights_a, weights_b, performance_a, performance_b, settled_at`

// InsertMatch stores a new ACTIVE match with its captured entry prices and weights.
func (t *sqliteTx) InsertMatch(ctx context.Context, m domain.Match) error {
	entryA, entryB, weightsA, weightsB, err := encodeMatchArrays(m)
	if err != nil {
		return fmt.Errorf("storage.InsertMatch: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO matches (id, bid_a, bid_b, player_a, player_b, squad_a, squad_b, prize_pool, fee_pool,
		                     duration_ms, start_time, end_time, status, winner, prize_claimed, claimed_by,
		                     claimed_at, entry_prices_a, entry_prices_b, weights_a, weights_b,
		                     performance_a, performance_b, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.BidA, m.BidB, m.PlayerA, m.PlayerB, m.SquadA, m.SquadB, m.PrizePool, m.FeePool,
		m.Duration.Milliseconds(), formatTime(m.StartTime), formatTime(m.EndTime), string(m.Status),
		m.Winner, boolToInt(m.PrizeClaimed), m.ClaimedBy, formatTimePtr(m.ClaimedAt),
		entryA, entryB, weightsA, weightsB,
		m.PerformanceA.String(), m.PerformanceB.String(), formatTimePtr(m.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("storage.InsertMatch: %w", err)
	}
	return nil
}

// GetMatch loads one match by id.
func (t *sqliteTx) GetMatch(ctx context.Context, id string) (domain.Match, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("storage.GetMatch: %w: match %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return m, fmt.Errorf("storage.GetMatch: %w", err)
	}
	return m, nil
}

// SettleMatch writes the terminal status and results, only while the row is ACTIVE.
func (t *sqliteTx) SettleMatch(ctx context.Context, m domain.Match) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE matches SET status = ?, winner = ?, performance_a = ?, performance_b = ?, settled_at = ?
		WHERE id = ? AND status = 'ACTIVE'`,
		string(m.Status), m.Winner, m.PerformanceA.String(), m.PerformanceB.String(),
		formatTimePtr(m.SettledAt), m.ID,
	)
	if err != nil {
		return false, fmt.Errorf("storage.SettleMatch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.SettleMatch: rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkPrizeClaimed flips prize_claimed exactly once on a settled match.
func (t *sqliteTx) MarkPrizeClaimed(ctx context.Context, id, claimant string, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE matches SET prize_claimed = 1, claimed_by = ?, claimed_at = ?
		WHERE id = ? AND prize_claimed = 0 AND status <> 'ACTIVE'`,
		claimant, formatTime(at), id,
	)
	if err != nil {
		return false, fmt.Errorf("storage.MarkPrizeClaimed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.MarkPrizeClaimed: rows affected: %w", err)
	}
	return n == 1, nil
}

// MatchesByAccount returns every match the account played, newest first.
func (t *sqliteTx) MatchesByAccount(ctx context.Context, account string) ([]domain.Match, error) {
	return t.queryMatches(ctx, `SELECT `+matchColumns+` FROM matches
		WHERE player_a = ? OR player_b = ? ORDER BY start_time DESC, id`, account, account)
}

// ActiveMatchesEndedBy returns ACTIVE matches whose end time is at or before t.
func (t *sqliteTx) ActiveMatchesEndedBy(ctx context.Context, at time.Time) ([]domain.Match, error) {
	return t.queryMatches(ctx, `SELECT `+matchColumns+` FROM matches
		WHERE status = 'ACTIVE' AND end_time <= ? ORDER BY end_time, id`, formatTime(at))
}

// CountMatches returns the number of matches per status.
func (t *sqliteTx) CountMatches(ctx context.Context) (map[domain.MatchStatus]int, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT status, COUNT(*) FROM matches GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("storage.CountMatches: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.MatchStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("storage.CountMatches: scan: %w", err)
		}
		st, err := domain.ParseMatchStatus(status)
		if err != nil {
			return nil, fmt.Errorf("storage.CountMatches: %w", err)
		}
		out[st] = n
	}
	return out, rows.Err()
}

func (t *sqliteTx) queryMatches(ctx context.Context, query string, args ...any) ([]domain.Match, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.queryMatches: %w", err)
	}
	defer rows.Close()

	var out []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.queryMatches: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func encodeMatchArrays(m domain.Match) (entryA, entryB, weightsA, weightsB string, err error) {
	parts := []any{m.EntryPricesA, m.EntryPricesB, m.WeightsA, m.WeightsB}
	out := make([]string, len(parts))
	for i, p := range parts {
		b, err := json.Marshal(p)
		if err != nil {
			return "", "", "", "", fmt.Errorf("marshal price array: %w", err)
		}
		out[i] = string(b)
	}
	return out[0], out[1], out[2], out[3], nil
}

func scanMatch(row scanner) (domain.Match, error) {
	var m domain.Match
	var durationMs int64
	var claimed int
	var status, startTime, endTime, entryA, entryB, weightsA, weightsB, perfA, perfB string
	var claimedAt, settledAt sql.NullString

	if err := row.Scan(&m.ID, &m.BidA, &m.BidB, &m.PlayerA, &m.PlayerB, &m.SquadA, &m.SquadB,
		&m.PrizePool, &m.FeePool, &durationMs, &startTime, &endTime, &status, &m.Winner,
		&claimed, &m.ClaimedBy, &claimedAt, &entryA, &entryB, &weightsA, &weightsB,
		&perfA, &perfB, &settledAt); err != nil {
		return m, err
	}

	var err error
	m.Duration = time.Duration(durationMs) * time.Millisecond
	m.PrizeClaimed = claimed == 1
	if m.Status, err = domain.ParseMatchStatus(status); err != nil {
		return m, err
	}

	decodeErr := func(field string, err error) error {
		return fmt.Errorf("%w: match %s %s: %v", domain.ErrDecode, m.ID, field, err)
	}
	if m.StartTime, err = parseTime(startTime); err != nil {
		return m, decodeErr("start_time", err)
	}
	if m.EndTime, err = parseTime(endTime); err != nil {
		return m, decodeErr("end_time", err)
	}
	if m.ClaimedAt, err = parseTimePtr(claimedAt); err != nil {
		return m, decodeErr("claimed_at", err)
	}
	if m.SettledAt, err = parseTimePtr(settledAt); err != nil {
		return m, decodeErr("settled_at", err)
	}
	if err := json.Unmarshal([]byte(entryA), &m.EntryPricesA); err != nil {
		return m, decodeErr("entry_prices_a", err)
	}
	if err := json.Unmarshal([]byte(entryB), &m.EntryPricesB); err != nil {
		return m, decodeErr("entry_prices_b", err)
	}
	if err := json.Unmarshal([]byte(weightsA), &m.WeightsA); err != nil {
		return m, decodeErr("weights_a", err)
	}
	if err := json.Unmarshal([]byte(weightsB), &m.WeightsB); err != nil {
		return m, decodeErr("weights_b", err)
	}
	if m.PerformanceA, err = decimal.NewFromString(perfA); err != nil {
		return m, decodeErr("performance_a", err)
	}
	if m.PerformanceB, err = decimal.NewFromString(perfB); err != nil {
		return m, decodeErr("performance_b", err)
	}
	return m, nil
}
