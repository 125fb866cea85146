package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToken(t *testing.T) {
	secret := []byte("s3cret")

	token, err := IssueToken(secret, "issuer", 42, time.Minute)
	require.NoError(t, err)

	userID, err := ParseToken(token, secret, "issuer")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), userID)

	// 不校验签发方
	userID, err = ParseToken(token, secret, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), userID)

	_, err = ParseToken(token, []byte("other"), "issuer")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken(token, secret, "another-issuer")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := IssueToken(secret, "issuer", 42, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired, secret, "issuer")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = IssueToken(secret, "issuer", 0, time.Minute)
	assert.Error(t, err)
}

func TestParseTokenRejectsBadSubject(t *testing.T) {
	secret := []byte("s3cret")
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = ParseToken(token, secret, "")
	assert.ErrorIs(t, err, ErrInvalidSubject)
}

func TestParseTokenRejectsOtherAlgorithms(t *testing.T) {
	secret := []byte("s3cret")
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(secret)
	require.NoError(t, err)

	_, err = ParseToken(token, secret, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
