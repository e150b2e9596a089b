package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

const tokenBytes = 32

// TokenIssuer generates opaque single-use tokens for verification and reset links.
type TokenIssuer struct {
	entropy io.Reader
	now     func() time.Time
}

// NewTokenIssuer returns an issuer backed by crypto/rand and the wall clock.
func NewTokenIssuer() *TokenIssuer {
	return &TokenIssuer{entropy: rand.Reader, now: time.Now}
}

// WithClock replaces the time source.
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	if now != nil {
		i.now = now
	}
	return i
}

// Issue returns a hex token with 256 bits of randomness and its expiry.
func (i *TokenIssuer) Issue(ttl time.Duration) (string, time.Time, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(i.entropy, buf); err != nil {
		return "", time.Time{}, fmt.Errorf("read token entropy: %w", err)
	}
	return hex.EncodeToString(buf), i.now().UTC().Add(ttl), nil
}
