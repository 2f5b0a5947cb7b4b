package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/squadbid/internal/domain"
)

// Balance returns the available balance; unknown accounts have zero.
func (t *sqliteTx) Balance(ctx context.Context, account string) (int64, error) {
	var bal int64
	err := t.tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE account = ?`, account).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage.Balance: %w", err)
	}
	return bal, nil
}

// Credit adds amount to the account, creating it if needed.
func (t *sqliteTx) Credit(ctx context.Context, account string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("storage.Credit: %w: negative amount %d", domain.ErrInvalidParameters, amount)
	}
	if amount == 0 {
		return nil
	}
	bal, err := t.Balance(ctx, account)
	if err != nil {
		return fmt.Errorf("storage.Credit: %w", err)
	}
	if _, err := domain.SumAmounts(bal, amount); err != nil {
		return fmt.Errorf("storage.Credit: account %s: %w", account, err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO accounts (account, balance, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
		    balance    = accounts.balance + excluded.balance,
		    updated_at = excluded.updated_at`,
		account, amount, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("storage.Credit: %w", err)
	}
	return nil
}

// Debit subtracts amount only if the balance covers it.
func (t *sqliteTx) Debit(ctx context.Context, account string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("storage.Debit: %w: negative amount %d", domain.ErrInvalidParameters, amount)
	}
	if amount == 0 {
		return nil
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance - ?, updated_at = ?
		WHERE account = ? AND balance >= ?`,
		amount, formatTime(time.Now()), account, amount,
	)
	if err != nil {
		return fmt.Errorf("storage.Debit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.Debit: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("storage.Debit: %w: account %s needs %d", domain.ErrInsufficientFunds, account, amount)
	}
	return nil
}

// CurrentFeeConfig returns the newest fee schedule.
func (t *sqliteTx) CurrentFeeConfig(ctx context.Context) (domain.FeeConfig, error) {
	var c domain.FeeConfig
	var createdAt string
	err := t.tx.QueryRowContext(ctx, `
		SELECT version, upfront_bps, squad_fee, revive_standard_fee, revive_instant_fee, created_at
		FROM fee_configs ORDER BY version DESC LIMIT 1`,
	).Scan(&c.Version, &c.UpfrontBps, &c.SquadFee, &c.ReviveStandardFee, &c.ReviveInstantFee, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("storage.CurrentFeeConfig: %w: no fee configuration stored", domain.ErrConfiguration)
	}
	if err != nil {
		return c, fmt.Errorf("storage.CurrentFeeConfig: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return c, fmt.Errorf("storage.CurrentFeeConfig: %w: %v", domain.ErrDecode, err)
	}
	return c, nil
}

// SaveFeeConfig appends a new version and returns its number.
func (t *sqliteTx) SaveFeeConfig(ctx context.Context, c domain.FeeConfig) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, fmt.Errorf("storage.SaveFeeConfig: %w", err)
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO fee_configs (upfront_bps, squad_fee, revive_standard_fee, revive_instant_fee, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.UpfrontBps, c.SquadFee, c.ReviveStandardFee, c.ReviveInstantFee, formatTime(createdAt),
	)
	if err != nil {
		return 0, fmt.Errorf("storage.SaveFeeConfig: %w", err)
	}
	return res.LastInsertId()
}
