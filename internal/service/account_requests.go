package service

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"

	"github.com/spec-kit/account-service/internal/auth"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

const maxNameLength = 30

// RegisterRequest carries the sign-up form.
type RegisterRequest struct {
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	Phone                string `json:"phone"`
}

// Normalize trims free-text fields and lower-cases the email.
func (r *RegisterRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Phone = strings.TrimSpace(r.Phone)
}

// Validate checks the form against the password policy and the default phone region.
func (r RegisterRequest) Validate(policy *auth.PasswordPolicy, phoneRegion string) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, policy.Rules(r.Email)...),
		validation.Field(&r.PasswordConfirmation, validation.Required, validation.By(matches(r.Password))),
		validation.Field(&r.FirstName, validation.RuneLength(0, maxNameLength)),
		validation.Field(&r.LastName, validation.RuneLength(0, maxNameLength)),
		validation.Field(&r.Phone, validation.By(validPhone(phoneRegion))),
	)
}

// LoginRequest carries credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// PasswordResetRequest asks for a reset link.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

func (r PasswordResetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// PasswordResetConfirmRequest sets a new password with a reset token.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// Validate checks shape only; strength is checked once the owning account is known.
func (r PasswordResetConfirmRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
	)
}

// SuperuserRequest bootstraps an administrator.
type SuperuserRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (r SuperuserRequest) Validate(policy *auth.PasswordPolicy) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, policy.Rules(r.Email)...),
		validation.Field(&r.FirstName, validation.RuneLength(0, maxNameLength)),
		validation.Field(&r.LastName, validation.RuneLength(0, maxNameLength)),
	)
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone formats a valid number as E.164. Empty input stays empty.
func NormalizePhone(phone, region string) (string, error) {
	if phone == "" {
		return "", nil
	}
	num, err := phonenumbers.Parse(phone, region)
	if err != nil {
		return "", errors.New("enter a valid phone number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("enter a valid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func validPhone(region string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		_, err := NormalizePhone(s, region)
		return err
	}
}

func matches(password string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != password {
			return errors.New("passwords do not match")
		}
		return nil
	}
}

// validationError turns ozzo field errors into a VALIDATION_FAILED error with per-field details.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		details := make(map[string]any, len(fieldErrs))
		for field, fieldErr := range fieldErrs {
			if fieldErr != nil {
				details[field] = fieldErr.Error()
			}
		}
		return apperrors.NewValidationError("validation failed", details)
	}
	return apperrors.NewValidationError(err.Error(), nil)
}
