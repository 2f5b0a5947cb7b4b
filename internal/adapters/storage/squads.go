package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alejandrodnm/squadbid/internal/domain"
)

const squadColumns = `id, owner, name, formation, roster, lives, death_time, created_at, updated_at`

// InsertSquad stores a new squad and returns its monotonically assigned id.
func (t *sqliteTx) InsertSquad(ctx context.Context, s domain.Squad) (int64, error) {
	roster, err := json.Marshal(s.Roster)
	if err != nil {
		return 0, fmt.Errorf("storage.InsertSquad: marshal roster: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO squads (owner, name, formation, roster, lives, death_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Owner, s.Name, s.Formation, string(roster), s.Lives,
		formatTimePtr(s.DeathTime), formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("storage.InsertSquad: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage.InsertSquad: last insert id: %w", err)
	}
	return id, nil
}

// GetSquad loads one squad by id.
func (t *sqliteTx) GetSquad(ctx context.Context, id int64) (domain.Squad, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+squadColumns+` FROM squads WHERE id = ?`, id)
	s, err := scanSquad(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("storage.GetSquad: %w: squad %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return s, fmt.Errorf("storage.GetSquad: %w", err)
	}
	return s, nil
}

// UpdateSquad overwrites the mutable squad fields.
func (t *sqliteTx) UpdateSquad(ctx context.Context, s domain.Squad) error {
	roster, err := json.Marshal(s.Roster)
	if err != nil {
		return fmt.Errorf("storage.UpdateSquad: marshal roster: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE squads SET name = ?, formation = ?, roster = ?, lives = ?, death_time = ?, updated_at = ?
		WHERE id = ?`,
		s.Name, s.Formation, string(roster), s.Lives, formatTimePtr(s.DeathTime), formatTime(s.UpdatedAt), s.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateSquad: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.UpdateSquad: %w: squad %d", domain.ErrNotFound, s.ID)
	}
	return nil
}

// DeleteSquad removes a squad row.
func (t *sqliteTx) DeleteSquad(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM squads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage.DeleteSquad: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.DeleteSquad: %w: squad %d", domain.ErrNotFound, id)
	}
	return nil
}

// SquadsByOwner returns an owner's squads in creation order.
func (t *sqliteTx) SquadsByOwner(ctx context.Context, owner string) ([]domain.Squad, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+squadColumns+` FROM squads WHERE owner = ? ORDER BY id`, owner)
	if err != nil {
		return nil, fmt.Errorf("storage.SquadsByOwner: %w", err)
	}
	defer rows.Close()

	var out []domain.Squad
	for rows.Next() {
		s, err := scanSquad(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.SquadsByOwner: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SquadPledged reports whether the squad backs an OPEN bid or an ACTIVE match.
func (t *sqliteTx) SquadPledged(ctx context.Context, id int64) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM bids WHERE squad_id = ? AND status = 'OPEN') +
		       (SELECT COUNT(*) FROM matches WHERE (squad_a = ? OR squad_b = ?) AND status = 'ACTIVE')`,
		id, id, id,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage.SquadPledged: %w", err)
	}
	return n > 0, nil
}

func scanSquad(row scanner) (domain.Squad, error) {
	var s domain.Squad
	var roster, createdAt, updatedAt string
	var deathTime sql.NullString
	if err := row.Scan(&s.ID, &s.Owner, &s.Name, &s.Formation, &roster, &s.Lives, &deathTime, &createdAt, &updatedAt); err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(roster), &s.Roster); err != nil {
		return s, fmt.Errorf("%w: squad %d roster: %v", domain.ErrDecode, s.ID, err)
	}
	var err error
	if s.DeathTime, err = parseTimePtr(deathTime); err != nil {
		return s, fmt.Errorf("%w: squad %d: %v", domain.ErrDecode, s.ID, err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return s, fmt.Errorf("%w: squad %d: %v", domain.ErrDecode, s.ID, err)
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return s, fmt.Errorf("%w: squad %d: %v", domain.ErrDecode, s.ID, err)
	}
	return s, nil
}
