package storage

// sqlite.go: ledger persistence on SQLite (pure Go, no CGo).
//
// Tables:
//   accounts    : available balance per account (treasury included)
//   fee_configs : versioned fee schedules, newest row is current
//   squads      : rosters and life counters
//   bids        : escrowed pledges; at most one OPEN bid per squad (partial unique index)
//   matches     : paired bids, pools, entry prices and settlement results
//   events      : append-only transition log
//
// The pool holds a single connection, so transactions are serialized: every
// state transition is one BEGIN … COMMIT and nothing interleaves with it.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/squadbid/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    account    TEXT PRIMARY KEY,
    balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fee_configs (
    version             INTEGER PRIMARY KEY AUTOINCREMENT,
    upfront_bps         INTEGER NOT NULL,
    squad_fee           INTEGER NOT NULL DEFAULT 0,
    revive_standard_fee INTEGER NOT NULL DEFAULT 0,
    revive_instant_fee  INTEGER NOT NULL DEFAULT 0,
    created_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS squads (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    owner      TEXT NOT NULL,
    name       TEXT NOT NULL,
    formation  TEXT NOT NULL,
    roster     TEXT NOT NULL,
    lives      INTEGER NOT NULL DEFAULT 5,
    death_time TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bids (
    id               TEXT PRIMARY KEY,
    creator          TEXT NOT NULL,
    squad_id         INTEGER NOT NULL,
    wager            INTEGER NOT NULL,
    duration_ms      INTEGER NOT NULL,
    status           TEXT NOT NULL DEFAULT 'OPEN',
    created_at       TEXT NOT NULL,
    escrow_principal INTEGER NOT NULL,
    escrow_fee       INTEGER NOT NULL,
    fee_version      INTEGER NOT NULL,
    match_id         TEXT NOT NULL DEFAULT '',
    closed_at        TEXT
);

CREATE TABLE IF NOT EXISTS matches (
    id             TEXT PRIMARY KEY,
    bid_a          TEXT NOT NULL,
    bid_b          TEXT NOT NULL,
    player_a       TEXT NOT NULL,
    player_b       TEXT NOT NULL,
    squad_a        INTEGER NOT NULL,
    squad_b        INTEGER NOT NULL,
    prize_pool     INTEGER NOT NULL,
    fee_pool       INTEGER NOT NULL,
    duration_ms    INTEGER NOT NULL,
    start_time     TEXT NOT NULL,
    end_time       TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'ACTIVE',
    winner         TEXT NOT NULL DEFAULT '',
    prize_claimed  INTEGER NOT NULL DEFAULT 0,
    claimed_by     TEXT NOT NULL DEFAULT '',
    claimed_at     TEXT,
    entry_prices_a TEXT NOT NULL,
    entry_prices_b TEXT NOT NULL,
    weights_a      TEXT NOT NULL,
    weights_b      TEXT NOT NULL,
    performance_a  TEXT NOT NULL DEFAULT '0',
    performance_b  TEXT NOT NULL DEFAULT '0',
    settled_at     TEXT
);

CREATE TABLE IF NOT EXISTS events (
    seq      INTEGER PRIMARY KEY AUTOINCREMENT,
    type     TEXT NOT NULL,
    account  TEXT NOT NULL DEFAULT '',
    bid_id   TEXT NOT NULL DEFAULT '',
    match_id TEXT NOT NULL DEFAULT '',
    squad_id INTEGER NOT NULL DEFAULT 0,
    amount   INTEGER NOT NULL DEFAULT 0,
    at       TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_bids_open_squad ON bids(squad_id) WHERE status = 'OPEN';
CREATE INDEX IF NOT EXISTS idx_bids_status   ON bids(status, created_at);
CREATE INDEX IF NOT EXISTS idx_bids_creator  ON bids(creator);
CREATE INDEX IF NOT EXISTS idx_squads_owner  ON squads(owner);
CREATE INDEX IF NOT EXISTS idx_matches_a     ON matches(player_a);
CREATE INDEX IF NOT EXISTS idx_matches_b     ON matches(player_b);
CREATE INDEX IF NOT EXISTS idx_matches_state ON matches(status, end_time);
`

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// SQLiteStorage implementa ports.Ledger sobre SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ ports.Ledger = (*SQLiteStorage)(nil)

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer; also keeps ":memory:" on one connection
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// InTx runs fn in a read-write transaction and commits if it returns nil.
func (s *SQLiteStorage) InTx(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.InTx: begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.InTx: commit: %w", err)
	}
	return nil
}

// View runs fn in a transaction that is always rolled back.
func (s *SQLiteStorage) View(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.View: begin: %w", err)
	}
	defer tx.Rollback()
	return fn(&sqliteTx{tx: tx})
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// sqliteTx implements ports.LedgerTx on one *sql.Tx.
type sqliteTx struct {
	tx *sql.Tx
}

var _ ports.LedgerTx = (*sqliteTx)(nil)

// --- helpers internos ---

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
