package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("secret")

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("auth0|42", "alice", "alice@example.com", time.Hour, testKey)
	require.NoError(t, err)

	claims, err := ParseToken(token, testKey)
	require.NoError(t, err)
	assert.Equal(t, "auth0|42", claims.Subject)
	assert.Equal(t, "alice", claims.Name)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateToken("u1", "", "", -time.Minute, testKey)
	require.NoError(t, err)

	_, err = ParseToken(token, testKey)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseToken_WrongKey(t *testing.T) {
	token, err := GenerateToken("u1", "", "", time.Hour, testKey)
	require.NoError(t, err)

	_, err = ParseToken(token, []byte("other"))
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseToken_MissingSubject(t *testing.T) {
	token, err := GenerateToken("", "", "", time.Hour, testKey)
	require.NoError(t, err)

	_, err = ParseToken(token, testKey)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
