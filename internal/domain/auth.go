package domain

import "time"

// RevokedToken marks a bearer token as unusable until it would have expired anyway.
type RevokedToken struct {
	Token     string
	AccountID string
	ExpiresAt time.Time
}

// Expired reports whether the record can be pruned.
func (r RevokedToken) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
