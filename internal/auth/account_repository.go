package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/database"
)

// AccountStore persists accounts and their renewal slot.
//
// Only the Manager writes the renewal slot. SwapRenewalSlot is the single
// compare-and-swap that serialises concurrent rotations of one account.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, email, passwordHash string) (*Account, error)

	// CreateWithRenewal inserts an account and its first renewal slot in one
	// transaction. issue receives the new account and returns the slot; an
	// error from it leaves nothing behind.
	CreateWithRenewal(ctx context.Context, email, passwordHash string, issue func(*Account) (*RenewalSlot, error)) (*Account, error)

	// UpdateRenewalSlot replaces the slot unconditionally. A nil slot clears it.
	UpdateRenewalSlot(ctx context.Context, id string, slot *RenewalSlot) error

	// SwapRenewalSlot replaces the slot only while the stored token still
	// equals expectedToken, returning ErrSlotConflict otherwise.
	SwapRenewalSlot(ctx context.Context, id, expectedToken string, next *RenewalSlot) error
}

// SQLAccountRepository implements AccountStore over SQLite or Postgres.
type SQLAccountRepository struct {
	db *database.DB
}

// NewAccountRepository creates an account repository on db.
func NewAccountRepository(db *database.DB) *SQLAccountRepository {
	return &SQLAccountRepository{db: db}
}

const accountColumns = `id, email, password_hash, refresh_token, refresh_token_expires_at,
	refresh_token_issued_at, created_at, updated_at`

// Create inserts a new account with an empty renewal slot.
func (r *SQLAccountRepository) Create(ctx context.Context, email, passwordHash string) (*Account, error) {
	acc, now := newAccount(email, passwordHash)
	if err := r.insertAccount(ctx, r.db, acc, now); err != nil {
		return nil, err
	}
	return acc, nil
}

// CreateWithRenewal inserts the account and writes the slot returned by issue
// before committing, so a registration never leaves a half-made account.
func (r *SQLAccountRepository) CreateWithRenewal(ctx context.Context, email, passwordHash string, issue func(*Account) (*RenewalSlot, error)) (*Account, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning registration transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	acc, now := newAccount(email, passwordHash)
	if err := r.insertAccount(ctx, tx, acc, now); err != nil {
		return nil, err
	}

	slot, err := issue(acc)
	if err != nil {
		return nil, err
	}

	token, expiresAt, issuedAt := slotColumns(slot)
	if _, err := tx.ExecContext(ctx, r.db.Rebind(
		`UPDATE accounts SET refresh_token = ?, refresh_token_expires_at = ?, refresh_token_issued_at = ?
		 WHERE id = ?`),
		token, expiresAt, issuedAt, acc.ID,
	); err != nil {
		return nil, fmt.Errorf("storing renewal slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing registration: %w", err)
	}

	acc.Renewal = slot
	return acc, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func newAccount(email, passwordHash string) (*Account, string) {
	now := time.Now().UTC().Format(time.RFC3339)
	acc := &Account{
		ID:           "acc-" + uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
	}
	acc.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	acc.UpdatedAt = acc.CreatedAt
	return acc, now
}

func (r *SQLAccountRepository) insertAccount(ctx context.Context, ex execer, acc *Account, now string) error {
	_, err := ex.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO accounts (id, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
		acc.ID, acc.Email, acc.PasswordHash, now, now,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

// FindByID retrieves an account by its id.
func (r *SQLAccountRepository) FindByID(ctx context.Context, id string) (*Account, error) {
	return r.getAccount(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
}

// FindByEmail retrieves an account by its (normalised) email.
func (r *SQLAccountRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return r.getAccount(ctx, "SELECT "+accountColumns+" FROM accounts WHERE email = ?", email)
}

// UpdateRenewalSlot writes or clears the renewal slot.
func (r *SQLAccountRepository) UpdateRenewalSlot(ctx context.Context, id string, slot *RenewalSlot) error {
	token, expiresAt, issuedAt := slotColumns(slot)
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE accounts SET refresh_token = ?, refresh_token_expires_at = ?, refresh_token_issued_at = ?, updated_at = ?
		 WHERE id = ?`),
		token, expiresAt, issuedAt, now, id,
	)
	if err != nil {
		return fmt.Errorf("updating renewal slot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating renewal slot: %w", err)
	}
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SwapRenewalSlot is a compare-and-swap on the stored renewal token. The
// WHERE clause carries the comparison, so the check and the write are one
// atomic statement on both dialects.
func (r *SQLAccountRepository) SwapRenewalSlot(ctx context.Context, id, expectedToken string, next *RenewalSlot) error {
	token, expiresAt, issuedAt := slotColumns(next)
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE accounts SET refresh_token = ?, refresh_token_expires_at = ?, refresh_token_issued_at = ?, updated_at = ?
		 WHERE id = ? AND refresh_token = ?`),
		token, expiresAt, issuedAt, now, id, expectedToken,
	)
	if err != nil {
		return fmt.Errorf("swapping renewal slot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("swapping renewal slot: %w", err)
	}
	if rows == 0 {
		return ErrSlotConflict
	}
	return nil
}

func (r *SQLAccountRepository) getAccount(ctx context.Context, query string, args ...any) (*Account, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(query), args...)

	var (
		acc                  Account
		token                sql.NullString
		expiresAt, issuedAt  sql.NullInt64
		createdAt, updatedAt string
	)
	err := row.Scan(&acc.ID, &acc.Email, &acc.PasswordHash,
		&token, &expiresAt, &issuedAt,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	// The table CHECK keeps the three columns all-null or all-set.
	if token.Valid && expiresAt.Valid && issuedAt.Valid {
		acc.Renewal = &RenewalSlot{
			Token:     token.String,
			ExpiresAt: expiresAt.Int64,
			IssuedAt:  issuedAt.Int64,
		}
	}

	acc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	acc.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &acc, nil
}

func slotColumns(slot *RenewalSlot) (sql.NullString, sql.NullInt64, sql.NullInt64) {
	if slot == nil {
		return sql.NullString{}, sql.NullInt64{}, sql.NullInt64{}
	}
	return sql.NullString{String: slot.Token, Valid: true},
		sql.NullInt64{Int64: slot.ExpiresAt, Valid: true},
		sql.NullInt64{Int64: slot.IssuedAt, Valid: true}
}
