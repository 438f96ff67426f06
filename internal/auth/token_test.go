package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	s := NewSigner([]byte("topsecret"))

	token := s.Mint("user-1", time.Hour)
	userID, err := s.Verify(token)

	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestSignerRejectsExpired(t *testing.T) {
	s := NewSigner([]byte("topsecret"))

	token := s.Mint("user-1", -time.Minute)
	_, err := s.Verify(token)

	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestSignerRejectsTampering(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	token := s.Mint("user-1", time.Hour)

	cases := map[string]string{
		"swapped user":   strings.Replace(token, "user-1", "user-2", 1),
		"truncated":      token[:len(token)-2],
		"missing parts":  "user-1:12345",
		"empty user":     strings.TrimPrefix(token, "user-1"),
		"bad expiry":     "user-1:soon:" + strings.Split(token, ":")[2],
		"empty token":    "",
		"foreign secret": NewSigner([]byte("other")).Mint("user-1", time.Hour),
	}
	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Verify(bad)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
