package auth

import (
	"context"
	"errors"
	"fmt"
)

// TokenCarrier exposes the raw access token candidates of a request.
// Either method returns "" when its source is absent.
type TokenCarrier interface {
	BearerToken() string
	CookieToken() string
}

// Authenticator resolves the account behind an access token.
// It only reads from the store.
type Authenticator struct {
	codec      *Codec
	store      AccountStore
	fromHeader bool
	fromCookie bool
}

// AuthenticatorOption customises an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithSources restricts which token sources are consulted.
// Both are enabled by default.
func WithSources(header, cookie bool) AuthenticatorOption {
	return func(a *Authenticator) {
		a.fromHeader = header
		a.fromCookie = cookie
	}
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(codec *Codec, store AccountStore, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{codec: codec, store: store, fromHeader: true, fromCookie: true}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate finds the access token (header first, then cookie), verifies
// it and loads its account.
//
// A renewal token yields ErrWrongType. Every other failure, including a
// subject without an account, collapses to ErrUnauthenticated. Store
// failures are returned wrapped and unclassified.
func (a *Authenticator) Authenticate(ctx context.Context, carrier TokenCarrier) (*Account, error) {
	token := a.extract(carrier)
	if token == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := a.codec.Verify(token, TokenAccess)
	if err != nil {
		if errors.Is(err, ErrTypeMismatch) {
			return nil, ErrWrongType
		}
		return nil, ErrUnauthenticated
	}

	account, err := a.store.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("resolving account: %w", err)
	}
	return account, nil
}

func (a *Authenticator) extract(carrier TokenCarrier) string {
	if a.fromHeader {
		if token := carrier.BearerToken(); token != "" {
			return token
		}
	}
	if a.fromCookie {
		return carrier.CookieToken()
	}
	return ""
}

type accountContextKey struct{}

// WithAccount returns a copy of ctx carrying account.
func WithAccount(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, account)
}

// AccountFromContext returns the authenticated account, or nil.
func AccountFromContext(ctx context.Context) *Account {
	account, _ := ctx.Value(accountContextKey{}).(*Account) //nolint:errcheck // type assertion, not error
	return account
}
