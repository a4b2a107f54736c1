package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the payload of every token signed by the Codec.
type Claims struct {
	jwt.RegisteredClaims
	Type  TokenType `json:"token_type"`
	Email string    `json:"email,omitempty"`
}

// Extra carries optional denormalised claims.
type Extra struct {
	Email string
}

// SignedToken is a signed token string with the instants embedded in it.
type SignedToken struct {
	Value     string
	IssuedAt  int64
	ExpiresAt int64
}

// Codec signs and verifies HS256 tokens bound to one issuer and audience.
//
// Thread Safety: safe for concurrent use; it holds no mutable state.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// CodecOption customises a Codec.
type CodecOption func(*Codec)

// WithClock replaces time.Now. The Lifecycle Manager reads time through
// the codec, so one clock drives signing, verification and rotation.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// NewCodec returns a Codec for the given secret, issuer and audience.
func NewCodec(secret, issuer, audience string, opts ...CodecOption) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("codec: signing secret is required")
	}

	c := &Codec{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Now returns the codec clock truncated to whole seconds.
func (c *Codec) Now() int64 {
	return c.now().Unix()
}

// Sign issues a token for subject with the given type and lifetime.
func (c *Codec) Sign(subject string, typ TokenType, ttlSeconds int64, extra Extra) (SignedToken, error) {
	if ttlSeconds <= 0 {
		return SignedToken{}, fmt.Errorf("signing %s token: non-positive ttl %d", typ, ttlSeconds)
	}

	iat := c.Now()
	exp := iat + ttlSeconds

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(time.Unix(iat, 0)),
			ExpiresAt: jwt.NewNumericDate(time.Unix(exp, 0)),
			ID:        uuid.NewString(),
		},
		Type:  typ,
		Email: extra.Email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return SignedToken{}, fmt.Errorf("signing %s token: %w", typ, err)
	}

	return SignedToken{Value: signed, IssuedAt: iat, ExpiresAt: exp}, nil
}

// Verify checks a token and returns its claims.
//
// Checks run in a fixed order: signature, algorithm, issuer and audience
// (ErrInvalidSignature), then the type tag (ErrTypeMismatch), then expiry
// (ErrExpired). Library claim validation is disabled so that expiry is
// judged here, in whole seconds, against the codec clock.
//
// An expired token is returned with its claims alongside ErrExpired, since
// every other check already passed.
func (c *Codec) Verify(tokenString string, expected TokenType) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	if claims.Issuer != c.issuer {
		return nil, fmt.Errorf("%w: issuer %q", ErrInvalidSignature, claims.Issuer)
	}
	if !slices.Contains(claims.Audience, c.audience) {
		return nil, fmt.Errorf("%w: audience %v", ErrInvalidSignature, claims.Audience)
	}
	if claims.Subject == "" || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing required claims", ErrInvalidSignature)
	}

	if claims.Type != expected {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrTypeMismatch, claims.Type, expected)
	}

	if c.Now() >= claims.ExpiresAt.Unix() {
		return claims, ErrExpired
	}

	return claims, nil
}
