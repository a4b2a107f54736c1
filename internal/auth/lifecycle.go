package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/logging"
)

// LifecycleConfig holds token lifetimes in seconds.
type LifecycleConfig struct {
	AccessTTL      int64
	RenewalTTL     int64
	MinRotationTTL int64

	// RevokeOnReuse clears the renewal slot when a superseded renewal token
	// is presented, logging out the session that holds the current one.
	RevokeOnReuse bool
}

// Validate checks the lifetimes are usable together.
func (c LifecycleConfig) Validate() error {
	switch {
	case c.AccessTTL <= 0:
		return errors.New("access ttl must be positive")
	case c.RenewalTTL <= c.AccessTTL:
		return errors.New("renewal ttl must exceed access ttl")
	case c.MinRotationTTL <= 0 || c.MinRotationTTL > c.RenewalTTL:
		return errors.New("min rotation ttl must be in (0, renewal ttl]")
	}
	return nil
}

// Manager issues, rotates and revokes credentials. It is the only writer of
// an account's renewal slot.
//
// Renewal lifetime is a ceiling fixed at issuance: rotation hands out a new
// renewal token but never moves the ceiling, so a session ends at most
// RenewalTTL after the login that started it.
//
// Thread Safety: safe for concurrent use. Concurrent rotations of one
// account are serialised by AccountStore.SwapRenewalSlot.
type Manager struct {
	store  AccountStore
	codec  *Codec
	cfg    LifecycleConfig
	events EventSink
	logger *logging.Logger
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithEventSink routes lifecycle events to sink.
func WithEventSink(sink EventSink) ManagerOption {
	return func(m *Manager) {
		if sink != nil {
			m.events = sink
		}
	}
}

// WithLogger sets the logger used for rejected rotations.
func WithLogger(logger *logging.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager wires a Manager over store and codec.
func NewManager(store AccountStore, codec *Codec, cfg LifecycleConfig, opts ...ManagerOption) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("lifecycle config: %w", err)
	}

	m := &Manager{
		store:  store,
		codec:  codec,
		cfg:    cfg,
		events: nopSink{},
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "lifecycle")
	return m, nil
}

// Issue signs a fresh access/renewal pair for account and stores the
// renewal token as the account's only live one, replacing any previous.
func (m *Manager) Issue(ctx context.Context, account *Account) (*IssuedCredentials, error) {
	creds, slot, err := m.sign(account)
	if err != nil {
		return nil, err
	}
	if err := m.store.UpdateRenewalSlot(ctx, account.ID, slot); err != nil {
		return nil, fmt.Errorf("storing renewal slot: %w", err)
	}
	return creds, nil
}

// Enroll creates an account and issues its first credentials in a single
// store transaction. On any failure no account exists afterwards, so the
// email stays free for a retry.
func (m *Manager) Enroll(ctx context.Context, email, passwordHash string) (*Account, *IssuedCredentials, error) {
	var creds *IssuedCredentials
	account, err := m.store.CreateWithRenewal(ctx, email, passwordHash, func(acc *Account) (*RenewalSlot, error) {
		signed, slot, err := m.sign(acc)
		creds = signed
		return slot, err
	})
	if err != nil {
		return nil, nil, err
	}
	return account, creds, nil
}

func (m *Manager) sign(account *Account) (*IssuedCredentials, *RenewalSlot, error) {
	extra := Extra{Email: account.Email}

	access, err := m.codec.Sign(account.ID, TokenAccess, m.cfg.AccessTTL, extra)
	if err != nil {
		return nil, nil, err
	}
	renewal, err := m.codec.Sign(account.ID, TokenRenewal, m.cfg.RenewalTTL, extra)
	if err != nil {
		return nil, nil, err
	}

	slot := &RenewalSlot{
		Token:     renewal.Value,
		ExpiresAt: renewal.ExpiresAt,
		IssuedAt:  renewal.IssuedAt,
	}
	return &IssuedCredentials{
		AccessToken:           access.Value,
		AccessTokenExpiresAt:  access.ExpiresAt,
		RefreshToken:          renewal.Value,
		RefreshTokenExpiresAt: renewal.ExpiresAt,
		RefreshTokenIssuedAt:  renewal.IssuedAt,
	}, slot, nil
}

// Rotate exchanges a renewal token for a new pair.
//
// The presented token is single-use: the stored slot is swapped only while it
// still holds exactly that token, so of two concurrent rotations one wins and
// the other gets ErrUnauthorizedRenewal. Once the ceiling has passed the slot
// is cleared and ErrRenewalExpired is returned. That includes a token whose
// own expiry has passed, provided it is still the one held in the slot.
func (m *Manager) Rotate(ctx context.Context, presented string) (*IssuedCredentials, error) {
	claims, err := m.codec.Verify(presented, TokenRenewal)
	expired := errors.Is(err, ErrExpired)
	if err != nil && !expired {
		return nil, m.reject(ctx, "", "verify", fmt.Errorf("%w: %w", ErrUnauthorizedRenewal, err))
	}

	account, err := m.store.FindByID(ctx, claims.Subject)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, m.reject(ctx, claims.Subject, "account_missing", ErrUnauthorizedRenewal)
	}
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}

	slot := account.Renewal
	if slot == nil {
		return nil, m.reject(ctx, account.ID, "no_slot", ErrUnauthorizedRenewal)
	}

	if _, err := m.codec.Verify(slot.Token, TokenRenewal); err != nil && !errors.Is(err, ErrExpired) {
		return nil, m.reject(ctx, account.ID, "stored_invalid", fmt.Errorf("%w: stored token: %w", ErrUnauthorizedRenewal, err))
	}

	if subtle.ConstantTimeCompare([]byte(presented), []byte(slot.Token)) != 1 {
		if !expired {
			m.revokeOnReuse(ctx, account.ID, slot.Token)
		}
		return nil, m.reject(ctx, account.ID, "superseded", ErrUnauthorizedRenewal)
	}

	now := m.codec.Now()

	// A signed expiry is never earlier than the ceiling, so this only trips
	// on a slot edited out of band.
	if expired && now < slot.ExpiresAt {
		return nil, m.reject(ctx, account.ID, "verify", fmt.Errorf("%w: %w", ErrUnauthorizedRenewal, ErrExpired))
	}

	if now >= slot.ExpiresAt {
		if err := m.store.SwapRenewalSlot(ctx, account.ID, slot.Token, nil); err != nil && !errors.Is(err, ErrSlotConflict) {
			return nil, fmt.Errorf("clearing expired renewal slot: %w", err)
		}
		m.emit(ctx, Event{Type: EventRenewalExpired, AccountID: account.ID, Email: account.Email})
		return nil, ErrRenewalExpired
	}

	extra := Extra{Email: account.Email}
	access, err := m.codec.Sign(account.ID, TokenAccess, m.cfg.AccessTTL, extra)
	if err != nil {
		return nil, err
	}
	renewal, err := m.codec.Sign(account.ID, TokenRenewal, max(slot.ExpiresAt-now, m.cfg.MinRotationTTL), extra)
	if err != nil {
		return nil, err
	}

	next := &RenewalSlot{
		Token:     renewal.Value,
		ExpiresAt: slot.ExpiresAt,
		IssuedAt:  slot.IssuedAt,
	}
	if err := m.store.SwapRenewalSlot(ctx, account.ID, slot.Token, next); err != nil {
		if errors.Is(err, ErrSlotConflict) {
			return nil, m.reject(ctx, account.ID, "lost_race", ErrUnauthorizedRenewal)
		}
		return nil, fmt.Errorf("rotating renewal slot: %w", err)
	}

	m.emit(ctx, Event{Type: EventRotated, AccountID: account.ID, Email: account.Email})

	return &IssuedCredentials{
		AccessToken:           access.Value,
		AccessTokenExpiresAt:  access.ExpiresAt,
		RefreshToken:          renewal.Value,
		RefreshTokenExpiresAt: slot.ExpiresAt,
		RefreshTokenIssuedAt:  slot.IssuedAt,
	}, nil
}

// Revoke clears the account's renewal slot unconditionally.
func (m *Manager) Revoke(ctx context.Context, accountID string) error {
	if err := m.store.UpdateRenewalSlot(ctx, accountID, nil); err != nil {
		return fmt.Errorf("revoking renewal slot: %w", err)
	}
	return nil
}

// Now exposes the manager clock in epoch seconds.
func (m *Manager) Now() int64 {
	return m.codec.Now()
}

func (m *Manager) revokeOnReuse(ctx context.Context, accountID, current string) {
	if !m.cfg.RevokeOnReuse {
		return
	}
	err := m.store.SwapRenewalSlot(ctx, accountID, current, nil)
	if err != nil && !errors.Is(err, ErrSlotConflict) {
		m.logger.Error("revoking reused renewal chain", "account_id", accountID, "error", err)
		return
	}
	m.logger.Warn("superseded renewal token presented, session revoked", "account_id", accountID)
}

func (m *Manager) reject(ctx context.Context, accountID, reason string, err error) error {
	m.logger.Debug("renewal rejected", "account_id", accountID, "reason", reason, "error", err)
	m.emit(ctx, Event{Type: EventRotationRejected, AccountID: accountID, Reason: reason})
	return err
}

func (m *Manager) emit(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Unix(m.codec.Now(), 0).UTC()
	}
	m.events.Record(ctx, e)
}
