package dto

import (
	"time"

	"github.com/spec-kit/account-service/internal/domain"
)

// RegisterRequest payload for sign-up.
type RegisterRequest struct {
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	Phone                string `json:"phone"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordResetRequest payload asking for a reset link.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// PasswordResetConfirmRequest payload setting a new password.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// MessageResponse is the body of lifecycle endpoints that only acknowledge.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginResponse carries the public identity and the access token.
type LoginResponse struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Role        domain.Role `json:"role"`
	AccessToken string      `json:"access_token"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// AccountResponse is the admin view of an account.
type AccountResponse struct {
	ID        string               `json:"id"`
	Email     string               `json:"email"`
	FirstName string               `json:"first_name"`
	LastName  string               `json:"last_name"`
	Phone     string               `json:"phone"`
	Role      domain.Role          `json:"role"`
	Status    domain.AccountStatus `json:"status"`
}

// NewAccountResponse maps a domain account, leaving out credentials and tokens.
func NewAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Phone:     a.Phone,
		Role:      a.Role,
		Status:    a.Status,
	}
}

// NewAccountListResponse maps a slice of accounts.
func NewAccountListResponse(accounts []domain.Account) []AccountResponse {
	out := make([]AccountResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, NewAccountResponse(&accounts[i]))
	}
	return out
}
