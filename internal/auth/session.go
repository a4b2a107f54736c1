package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// dummyPassword seeds the hash compared against when a login names an
// unknown email, so both failure paths run one hash comparison.
const dummyPassword = "authd-dummy-password-never-valid"

// Service orchestrates the register, login, refresh and logout flows.
type Service struct {
	store     AccountStore
	hasher    Hasher
	manager   *Manager
	events    EventSink
	dummyHash string
}

// NewService wires the session flows. It hashes a dummy password up front,
// which costs one hash at startup.
func NewService(store AccountStore, hasher Hasher, manager *Manager, events EventSink) (*Service, error) {
	if events == nil {
		events = nopSink{}
	}

	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("preparing dummy hash: %w", err)
	}

	return &Service{
		store:     store,
		hasher:    hasher,
		manager:   manager,
		events:    events,
		dummyHash: dummy,
	}, nil
}

// NormalizeEmail lower-cases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and issues its first credentials.
func (s *Service) Register(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	account, creds, err := s.manager.Enroll(ctx, email, hash)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, Event{Type: EventRegistered, AccountID: account.ID, Email: email})
	return &Session{Account: account, Credentials: creds}, nil
}

// Login checks email and password and issues new credentials, replacing
// any renewal token the account already held.
//
// Unknown email and wrong password both return ErrInvalidCredentials after
// exactly one hash comparison.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)

	account, err := s.store.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		s.hasher.Compare(password, s.dummyHash)
		s.emit(ctx, Event{Type: EventLoginFailed, Email: email, Reason: "unknown_email"})
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("loading account: %w", err)
	}

	if !s.hasher.Compare(password, account.PasswordHash) {
		s.emit(ctx, Event{Type: EventLoginFailed, AccountID: account.ID, Email: email, Reason: "wrong_password"})
		return nil, ErrInvalidCredentials
	}

	creds, err := s.manager.Issue(ctx, account)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, Event{Type: EventLogin, AccountID: account.ID, Email: email})
	return &Session{Account: account, Credentials: creds}, nil
}

// Refresh rotates a renewal token. See Manager.Rotate.
func (s *Service) Refresh(ctx context.Context, renewalToken string) (*IssuedCredentials, error) {
	return s.manager.Rotate(ctx, renewalToken)
}

// Logout revokes the account's renewal token.
func (s *Service) Logout(ctx context.Context, accountID string) error {
	if err := s.manager.Revoke(ctx, accountID); err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventLogout, AccountID: accountID})
	return nil
}

// Profile returns the current view of an account.
func (s *Service) Profile(ctx context.Context, accountID string) (*Account, error) {
	account, err := s.store.FindByID(ctx, accountID)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrUnauthenticated
	}
	return account, err
}

func (s *Service) emit(ctx context.Context, e Event) {
	e.At = time.Unix(s.manager.Now(), 0).UTC()
	s.events.Record(ctx, e)
}
