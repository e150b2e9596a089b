package domain

import "time"

// Role is the application-level role of an account.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleUser    Role = "USER"
	RoleManager Role = "MANAGER"
)

// AccountStatus is tracked independently of the IsActive login gate.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusInactive  AccountStatus = "INACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
)

// Account is a registered identity with credentials, role and lifecycle state.
type Account struct {
	ID                      string
	Email                   string
	PasswordHash            string
	FirstName               string
	LastName                string
	Phone                   string
	Role                    Role
	Status                  AccountStatus
	IsActive                bool
	EmailVerified           bool
	IsStaff                 bool
	IsSuperuser             bool
	VerificationToken       *string
	VerificationTokenExpiry *time.Time
	ResetToken              *string
	ResetTokenExpires       *time.Time
	LastLogin               *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// FullName joins the profile names, skipping empty parts.
func (a *Account) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	default:
		return a.FirstName + " " + a.LastName
	}
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	cp.VerificationToken = cloneString(a.VerificationToken)
	cp.VerificationTokenExpiry = cloneTime(a.VerificationTokenExpiry)
	cp.ResetToken = cloneString(a.ResetToken)
	cp.ResetTokenExpires = cloneTime(a.ResetTokenExpires)
	cp.LastLogin = cloneTime(a.LastLogin)
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
