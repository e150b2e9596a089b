package events

import (
	"time"

	"github.com/spec-kit/account-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAccountRegistered     EventType = "account_registered"
	EventEmailVerified         EventType = "email_verified"
	EventVerificationReissued  EventType = "verification_reissued"
	EventLoginSucceeded        EventType = "login_succeeded"
	EventLoginFailed           EventType = "login_failed"
	EventPasswordResetRequest  EventType = "password_reset_requested"
	EventPasswordResetComplete EventType = "password_reset_completed"
	EventNotificationFailed    EventType = "notification_failed"
	EventLoggedOut             EventType = "logged_out"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	AccountID string      `json:"account_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// AccountRegisteredPayload payload.
type AccountRegisteredPayload struct {
	Role domain.Role `json:"role"`
}

// LoginFailedPayload payload. Reason is internal only and never returned to callers.
type LoginFailedPayload struct {
	Reason string `json:"reason"`
}

// NotificationFailedPayload payload.
type NotificationFailedPayload struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}
