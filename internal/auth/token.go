// Package auth implements the HMAC bearer tokens the API trusts for uploader
// identity. Session issuance and OAuth live in the account service; this
// package only signs and verifies the compact token it hands out.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken covers malformed or tampered tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired covers well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Signer mints and verifies user tokens of the form
// "<userID>:<expiresUnix>:<hex signature>".
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Mint returns a token for the user valid for ttl.
func (s *Signer) Mint(userID string, ttl time.Duration) string {
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("%s:%d:%s", userID, expires, s.sign(userID, expires))
}

// Verify checks signature and expiry and returns the user id.
func (s *Signer) Verify(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}
	userID, expiresStr, signature := parts[0], parts[1], parts[2]
	if userID == "" {
		return "", ErrInvalidToken
	}
	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	expected := s.sign(userID, expires)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", ErrInvalidToken
	}
	if time.Unix(expires, 0).Before(time.Now()) {
		return "", ErrTokenExpired
	}
	return userID, nil
}

func (s *Signer) sign(userID string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", userID, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}
