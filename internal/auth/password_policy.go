package auth

import (
	"errors"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/spec-kit/account-service/internal/config"
)

var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"12345678":    {},
	"123456789":   {},
	"1234567890":  {},
	"qwerty123":   {},
	"qwertyuiop":  {},
	"iloveyou":    {},
	"letmein123":  {},
	"welcome1":    {},
	"admin123":    {},
	"abc12345":    {},
	"passw0rd":    {},
}

// PasswordPolicy validates new passwords against the configured strength rules.
type PasswordPolicy struct {
	minLength     int
	maxLength     int
	requireLetter bool
	requireDigit  bool
}

// NewPasswordPolicy builds a policy, filling sensible defaults for unset limits.
func NewPasswordPolicy(cfg config.PasswordPolicyConfig) *PasswordPolicy {
	p := &PasswordPolicy{
		minLength:     cfg.MinLength,
		maxLength:     cfg.MaxLength,
		requireLetter: cfg.RequireLetter,
		requireDigit:  cfg.RequireDigit,
	}
	if p.minLength <= 0 {
		p.minLength = 8
	}
	// bcrypt ignores everything past 72 bytes but the limit is on characters here.
	if p.maxLength <= 0 || p.maxLength < p.minLength {
		p.maxLength = 128
	}
	return p
}

// Rules returns the ozzo rules for a password field. email, when given, feeds the similarity check.
func (p *PasswordPolicy) Rules(email string) []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.RuneLength(p.minLength, p.maxLength),
		validation.By(p.composition),
		validation.By(notCommon),
		validation.By(notSimilarTo(email)),
	}
}

// Validate checks a single password outside of a struct.
func (p *PasswordPolicy) Validate(password, email string) error {
	return validation.Validate(password, p.Rules(email)...)
}

func (p *PasswordPolicy) composition(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	var letter, digit, other bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		default:
			other = true
		}
	}
	if !letter && !other {
		return errors.New("password cannot be entirely numeric")
	}
	if p.requireLetter && !letter {
		return errors.New("password must contain a letter")
	}
	if p.requireDigit && !digit {
		return errors.New("password must contain a digit")
	}
	return nil
}

func notCommon(value interface{}) error {
	s, _ := value.(string)
	if _, ok := commonPasswords[strings.ToLower(s)]; ok {
		return errors.New("password is too common")
	}
	return nil
}

func notSimilarTo(email string) validation.RuleFunc {
	local := strings.ToLower(email)
	if i := strings.IndexByte(local, '@'); i >= 0 {
		local = local[:i]
	}
	return func(value interface{}) error {
		s, _ := value.(string)
		if len(local) < 4 || s == "" {
			return nil
		}
		if strings.Contains(strings.ToLower(s), local) {
			return errors.New("password is too similar to the email address")
		}
		return nil
	}
}
