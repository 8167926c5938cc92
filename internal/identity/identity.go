// Package identity resolves a bearer credential to the account whose
// backup slot a session may use.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when a credential cannot be verified.
var ErrUnauthenticated = errors.New("unauthenticated")

// Account is an authenticated user.
type Account struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Verifier checks a credential and returns its account.
type Verifier interface {
	Verify(ctx context.Context, token string) (Account, error)
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies and issues HS256 tokens. The subject claim is the
// account id.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewJWTVerifier returns a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &JWTVerifier{secret: []byte(secret), now: time.Now}, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Account{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil || !parsed.Valid {
		return Account{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if c.Subject == "" {
		return Account{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return Account{ID: c.Subject, Email: c.Email}, nil
}

// Issue signs a token for acct valid for ttl. A zero ttl never expires.
func (v *JWTVerifier) Issue(acct Account, ttl time.Duration) (string, error) {
	if acct.ID == "" {
		return "", errors.New("issue token: account id is empty")
	}
	now := v.now()
	c := claims{
		Email: acct.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  acct.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return signed, nil
}

// Unverified reads the account from a token's claims without checking its
// signature or expiry. Clients use it when the slot server holds the secret
// and rejects bad tokens itself.
type Unverified struct{}

func (Unverified) Verify(ctx context.Context, token string) (Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Account{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if c.Subject == "" {
		return Account{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return Account{ID: c.Subject, Email: c.Email}, nil
}

// Static accepts exactly one token. It stands in for an identity provider
// in tests and single-user setups.
type Static struct {
	Token   string
	Account Account
}

func (s Static) Verify(ctx context.Context, token string) (Account, error) {
	if s.Token == "" || token != s.Token {
		return Account{}, ErrUnauthenticated
	}
	return s.Account, nil
}

// Local is a verifier for sessions without a remote slot. Every token,
// including the empty one, maps to the same local account.
type Local struct{}

// LocalAccount is the account used when no identity provider is configured.
var LocalAccount = Account{ID: "local"}

func (Local) Verify(ctx context.Context, token string) (Account, error) {
	return LocalAccount, nil
}
