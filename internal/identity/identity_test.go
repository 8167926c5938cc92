package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_IssueVerify(t *testing.T) {
	v, err := NewJWTVerifier("s3cret")
	require.NoError(t, err)

	token, err := v.Issue(Account{ID: "acct-1", Email: "baker@example.com"}, time.Hour)
	require.NoError(t, err)

	acct, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, Account{ID: "acct-1", Email: "baker@example.com"}, acct)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v, err := NewJWTVerifier("s3cret")
	require.NoError(t, err)
	other, err := NewJWTVerifier("different")
	require.NoError(t, err)

	foreign, err := other.Issue(Account{ID: "acct-1"}, time.Hour)
	require.NoError(t, err)

	expired, err := v.Issue(Account{ID: "acct-1"}, time.Minute)
	require.NoError(t, err)
	v.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: "acct-1"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":      "",
		"garbage":    "not.a.jwt",
		"wrong key":  foreign,
		"expired":    expired,
		"no subject": noSubject,
		"wrong alg":  hs512,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnauthenticated))
		})
	}
}

func TestJWTVerifier_ZeroTTLNeverExpires(t *testing.T) {
	v, err := NewJWTVerifier("s3cret")
	require.NoError(t, err)
	token, err := v.Issue(Account{ID: "acct-1"}, 0)
	require.NoError(t, err)

	v.now = func() time.Time { return time.Now().AddDate(10, 0, 0) }
	_, err = v.Verify(context.Background(), token)
	assert.NoError(t, err)
}

func TestNewJWTVerifier_EmptySecret(t *testing.T) {
	_, err := NewJWTVerifier("")
	assert.Error(t, err)

	v, _ := NewJWTVerifier("x")
	_, err = v.Issue(Account{}, time.Hour)
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	s := Static{Token: "abc", Account: Account{ID: "acct-1"}}

	acct, err := s.Verify(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", acct.ID)

	_, err = s.Verify(context.Background(), "abd")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = Static{}.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLocal(t *testing.T) {
	acct, err := Local{}.Verify(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, LocalAccount, acct)
}

func TestUnverified(t *testing.T) {
	issuer, err := NewJWTVerifier("server-only")
	require.NoError(t, err)
	token, err := issuer.Issue(Account{ID: "acct-9", Email: "a@example.com"}, time.Hour)
	require.NoError(t, err)

	acct, err := Unverified{}.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, Account{ID: "acct-9", Email: "a@example.com"}, acct)

	for _, bad := range []string{"", "not-a-jwt"} {
		_, err := Unverified{}.Verify(context.Background(), bad)
		assert.True(t, errors.Is(err, ErrUnauthenticated), "token %q", bad)
	}
}
