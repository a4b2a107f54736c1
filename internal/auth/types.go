package auth

import (
	"errors"
	"time"
)

// TokenType is the type tag embedded in every signed token.
type TokenType string

// Token types. Access and renewal tokens are never interchangeable.
const (
	TokenAccess  TokenType = "access"
	TokenRenewal TokenType = "renewal"
)

// Account is a registered identity plus its single renewal slot.
type Account struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Renewal      *RenewalSlot `json:"-"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// RenewalSlot holds the one live renewal token of an account.
// A nil *RenewalSlot means the account has no renewal token; when present,
// all three fields are set. Instants are epoch seconds.
type RenewalSlot struct {
	Token     string
	ExpiresAt int64 // ceiling: fixed at first issuance, kept across rotations
	IssuedAt  int64 // issuance of the first token in the chain
}

// IssuedCredentials is the result of login, registration or rotation.
// Instants are epoch seconds so the transport can derive cookie lifetimes.
type IssuedCredentials struct {
	AccessToken           string `json:"accessToken"`
	AccessTokenExpiresAt  int64  `json:"accessTokenExpiresAt"`
	RefreshToken          string `json:"refreshToken"`
	RefreshTokenExpiresAt int64  `json:"refreshTokenExpiresAt"`
	RefreshTokenIssuedAt  int64  `json:"refreshTokenIssuedAt"`
}

// Session pairs an account with freshly issued credentials.
type Session struct {
	Account     *Account
	Credentials *IssuedCredentials
}

// Client-facing error taxonomy. All of these map to 4xx responses.
var (
	// ErrInvalidCredentials is returned for an unknown email and for a wrong
	// password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrDuplicateAccount is returned when registering an email that exists.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrUnauthorizedRenewal covers malformed, expired, mismatched or
	// superseded renewal tokens.
	ErrUnauthorizedRenewal = errors.New("invalid refresh token")

	// ErrRenewalExpired means the renewal ceiling has passed. Terminal: the
	// account must log in again.
	ErrRenewalExpired = errors.New("refresh token has expired, please login again")

	// ErrUnauthenticated is returned by the request authenticator for a
	// missing or invalid access token, or an account that no longer exists.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrWrongType is returned when a renewal token is presented where an
	// access token is required.
	ErrWrongType = errors.New("wrong token type")
)

// Codec errors.
var (
	ErrInvalidSignature = errors.New("token signature, issuer or audience invalid")
	ErrTypeMismatch     = errors.New("token type mismatch")
	ErrExpired          = errors.New("token expired")
)

// Store errors.
var (
	ErrAccountNotFound = errors.New("account not found")

	// ErrSlotConflict is returned by a compare-and-swap on the renewal slot
	// when the stored token is no longer the expected one.
	ErrSlotConflict = errors.New("renewal slot changed concurrently")
)
