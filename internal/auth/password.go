package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordMismatch is returned when a plaintext does not match its hash.
var ErrPasswordMismatch = errors.New("password does not match")

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), normalizeCost(cost))
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return err
	}
	return nil
}

// TimingEqualizer holds a throwaway hash at the same cost as real account hashes,
// so a login for an unknown email spends as long in bcrypt as a wrong password does.
type TimingEqualizer struct {
	cost int
	hash []byte
}

// NewTimingEqualizer hashes a fixed secret at cost.
func NewTimingEqualizer(cost int) *TimingEqualizer {
	cost = normalizeCost(cost)
	// Only fails when the entropy source does; Compare then hashes per call at the same cost.
	hash, _ := bcrypt.GenerateFromPassword([]byte("account-service-timing-equalizer"), cost)
	return &TimingEqualizer{cost: cost, hash: hash}
}

// Compare burns one bcrypt round and always fails.
func (e *TimingEqualizer) Compare(plain string) error {
	if e.hash == nil {
		_, _ = bcrypt.GenerateFromPassword([]byte(plain), e.cost)
		return ErrPasswordMismatch
	}
	_ = bcrypt.CompareHashAndPassword(e.hash, []byte(plain))
	return ErrPasswordMismatch
}

// Cost reports the bcrypt cost of the held hash.
func (e *TimingEqualizer) Cost() int {
	if cost, err := bcrypt.Cost(e.hash); err == nil {
		return cost
	}
	return e.cost
}

func normalizeCost(cost int) int {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return cost
}
