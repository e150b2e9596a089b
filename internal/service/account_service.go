package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/repository"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

var errDuplicateEmail = apperrors.NewValidationError("validation failed", map[string]any{
	"email": "an account with this email already exists",
})

// AccountService coordinates the account lifecycle: registration, verification, login and password reset.
type AccountService struct {
	accounts   repository.AccountRepository
	notifier   Notifier
	dispatcher events.Dispatcher
	logger     *zap.Logger
	issuer     *auth.TokenIssuer
	policy     *auth.PasswordPolicy
	timing     *auth.TimingEqualizer
	now        func() time.Time

	bcryptCost           int
	verificationTTL      time.Duration
	resetTTL             time.Duration
	phoneRegion          string
	requireResetDelivery bool
}

// AccountDependencies encapsulates collaborators for the account service.
type AccountDependencies struct {
	Accounts   repository.AccountRepository
	Notifier   Notifier
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Issuer     *auth.TokenIssuer
	Clock      func() time.Time
}

// NewAccountService builds the service.
func NewAccountService(cfg config.Config, deps AccountDependencies) *AccountService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	issuer := deps.Issuer
	if issuer == nil {
		issuer = auth.NewTokenIssuer().WithClock(clock)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		accounts:             deps.Accounts,
		notifier:             deps.Notifier,
		dispatcher:           deps.Dispatcher,
		logger:               logger,
		issuer:               issuer,
		policy:               auth.NewPasswordPolicy(cfg.Password),
		timing:               auth.NewTimingEqualizer(cfg.Auth.BcryptCost),
		now:                  clock,
		bcryptCost:           cfg.Auth.BcryptCost,
		verificationTTL:      cfg.Auth.VerificationTTL(),
		resetTTL:             cfg.Auth.PasswordResetTTL(),
		phoneRegion:          cfg.App.PhoneRegion,
		requireResetDelivery: cfg.Notification.RequireResetDelivery,
	}
}

// Register creates an inactive, unverified account and sends the verification link.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*domain.Account, error) {
	req.Normalize()
	if err := req.Validate(s.policy, s.phoneRegion); err != nil {
		return nil, validationError(err)
	}
	phone, err := NormalizePhone(req.Phone, s.phoneRegion)
	if err != nil {
		return nil, apperrors.NewValidationError("validation failed", map[string]any{"phone": err.Error()})
	}

	if _, err := s.accounts.GetByEmail(ctx, req.Email); err == nil {
		return nil, errDuplicateEmail
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, apperrors.NewInternalError(err)
	}

	hash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("hash password: %w", err))
	}
	token, expiry, err := s.issuer.Issue(s.verificationTTL)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	account := &domain.Account{
		ID:                      uuid.NewString(),
		Email:                   req.Email,
		PasswordHash:            hash,
		FirstName:               req.FirstName,
		LastName:                req.LastName,
		Phone:                   phone,
		Role:                    domain.RoleUser,
		Status:                  domain.AccountStatusInactive,
		IsActive:                false,
		EmailVerified:           false,
		VerificationToken:       &token,
		VerificationTokenExpiry: &expiry,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, errDuplicateEmail
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.logger.Info("account registered", zap.String("account_id", account.ID))
	s.publish(ctx, events.EventAccountRegistered, account.ID, events.AccountRegisteredPayload{Role: account.Role})

	if err := s.notifier.SendVerification(ctx, account, token); err != nil {
		s.notificationFailed(ctx, account.ID, "verification", err)
	}
	return account, nil
}

// VerifyEmail consumes a verification token, activating its account exactly once.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (*domain.Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.NewValidationError("missing verification code", nil)
	}

	account, err := s.accounts.GetByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, apperrors.NewNotFoundMessage("invalid verification code")
		}
		return nil, apperrors.NewInternalError(err)
	}

	now := s.now().UTC()
	if account.VerificationTokenExpiry == nil || now.After(*account.VerificationTokenExpiry) {
		return nil, apperrors.NewExpired("verification code expired")
	}

	verified, err := s.accounts.ConsumeVerificationToken(ctx, token, now)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, apperrors.NewNotFoundMessage("invalid verification code")
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.logger.Info("email verified", zap.String("account_id", verified.ID))
	s.publish(ctx, events.EventEmailVerified, verified.ID, nil)
	return verified, nil
}

// Login authenticates credentials. Unverified accounts get a fresh verification link instead.
func (s *AccountService) Login(ctx context.Context, req LoginRequest) (*domain.Account, error) {
	req.Email = NormalizeEmail(req.Email)
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	account, err := s.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, repository.ErrAccountNotFound) {
			return nil, apperrors.NewInternalError(err)
		}
		_ = s.timing.Compare(req.Password)
		s.publish(ctx, events.EventLoginFailed, "", events.LoginFailedPayload{Reason: "unknown_email"})
		return nil, apperrors.NewInvalidCredentials()
	}

	if err := auth.ComparePassword(account.PasswordHash, req.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("compare password hash", zap.String("account_id", account.ID), zap.Error(err))
		}
		s.publish(ctx, events.EventLoginFailed, account.ID, events.LoginFailedPayload{Reason: "bad_password"})
		return nil, apperrors.NewInvalidCredentials()
	}

	if !account.EmailVerified {
		if err := s.reissueVerification(ctx, account); err != nil {
			return nil, err
		}
		return nil, apperrors.NewEmailNotVerified("please verify your email before logging in; a new verification link has been sent")
	}

	if !account.IsActive {
		s.publish(ctx, events.EventLoginFailed, account.ID, events.LoginFailedPayload{Reason: "inactive"})
		return nil, apperrors.NewInvalidCredentials()
	}

	now := s.now().UTC()
	if err := s.accounts.TouchLastLogin(ctx, account.ID, now); err != nil {
		s.logger.Warn("stamp last login", zap.String("account_id", account.ID), zap.Error(err))
	} else {
		account.LastLogin = &now
	}

	s.publish(ctx, events.EventLoginSucceeded, account.ID, nil)
	return account, nil
}

func (s *AccountService) reissueVerification(ctx context.Context, account *domain.Account) error {
	token, expiry, err := s.issuer.Issue(s.verificationTTL)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := s.accounts.ReissueVerificationToken(ctx, account.ID, token, expiry); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			// verified concurrently; the old link already did its job
			return nil
		}
		return apperrors.NewInternalError(err)
	}
	account.VerificationToken = &token
	account.VerificationTokenExpiry = &expiry

	s.publish(ctx, events.EventVerificationReissued, account.ID, nil)
	if err := s.notifier.SendVerification(ctx, account, token); err != nil {
		s.notificationFailed(ctx, account.ID, "verification", err)
	}
	return nil
}

// RequestPasswordReset issues a reset token for the account and emails the reset link.
func (s *AccountService) RequestPasswordReset(ctx context.Context, req PasswordResetRequest) error {
	req.Email = NormalizeEmail(req.Email)
	if err := req.Validate(); err != nil {
		return validationError(err)
	}

	account, err := s.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return apperrors.NewNotFoundMessage("user with this email does not exist")
		}
		return apperrors.NewInternalError(err)
	}

	token, expiry, err := s.issuer.Issue(s.resetTTL)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := s.accounts.SetResetToken(ctx, account.ID, token, expiry); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return apperrors.NewNotFoundMessage("user with this email does not exist")
		}
		return apperrors.NewInternalError(err)
	}
	account.ResetToken = &token
	account.ResetTokenExpires = &expiry

	s.publish(ctx, events.EventPasswordResetRequest, account.ID, nil)

	if err := s.notifier.SendPasswordReset(ctx, account, token); err != nil {
		s.notificationFailed(ctx, account.ID, "password_reset", err)
		if s.requireResetDelivery {
			return apperrors.NewInternalError(err)
		}
	}
	return nil
}

// ConfirmPasswordReset consumes a reset token and replaces the password hash.
func (s *AccountService) ConfirmPasswordReset(ctx context.Context, req PasswordResetConfirmRequest) error {
	req.Token = strings.TrimSpace(req.Token)
	if err := req.Validate(); err != nil {
		return validationError(err)
	}

	account, err := s.accounts.GetByResetToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return apperrors.NewNotFoundMessage("invalid reset token")
		}
		return apperrors.NewInternalError(err)
	}

	now := s.now().UTC()
	if account.ResetTokenExpires == nil || now.After(*account.ResetTokenExpires) {
		return apperrors.NewExpired("reset token expired")
	}

	if err := s.policy.Validate(req.NewPassword, account.Email); err != nil {
		return apperrors.NewValidationError("validation failed", map[string]any{"new_password": err.Error()})
	}

	hash, err := auth.HashPassword(req.NewPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("hash password: %w", err))
	}
	if _, err := s.accounts.ConsumeResetToken(ctx, req.Token, hash, now); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return apperrors.NewNotFoundMessage("invalid reset token")
		}
		return apperrors.NewInternalError(err)
	}

	s.logger.Info("password reset completed", zap.String("account_id", account.ID))
	s.publish(ctx, events.EventPasswordResetComplete, account.ID, nil)
	return nil
}

// CreateSuperuser creates an administrator, or promotes the account that already owns the email.
// The returned flag reports whether a new account was created.
func (s *AccountService) CreateSuperuser(ctx context.Context, req SuperuserRequest) (*domain.Account, bool, error) {
	req.Email = NormalizeEmail(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := req.Validate(s.policy); err != nil {
		return nil, false, validationError(err)
	}

	hash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, false, apperrors.NewInternalError(fmt.Errorf("hash password: %w", err))
	}

	existing, err := s.accounts.GetByEmail(ctx, req.Email)
	switch {
	case err == nil:
		promoteToSuperuser(existing, hash)
		if req.FirstName != "" {
			existing.FirstName = req.FirstName
		}
		if req.LastName != "" {
			existing.LastName = req.LastName
		}
		if err := s.accounts.Update(ctx, existing); err != nil {
			return nil, false, apperrors.NewInternalError(err)
		}
		s.logger.Info("account promoted to superuser", zap.String("account_id", existing.ID))
		return existing, false, nil
	case !errors.Is(err, repository.ErrAccountNotFound):
		return nil, false, apperrors.NewInternalError(err)
	}

	account := &domain.Account{
		ID:        uuid.NewString(),
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	promoteToSuperuser(account, hash)
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, false, errDuplicateEmail
		}
		return nil, false, apperrors.NewInternalError(err)
	}
	s.logger.Info("superuser created", zap.String("account_id", account.ID))
	return account, true, nil
}

func promoteToSuperuser(account *domain.Account, passwordHash string) {
	account.PasswordHash = passwordHash
	account.Role = domain.RoleAdmin
	account.Status = domain.AccountStatusActive
	account.IsActive = true
	account.EmailVerified = true
	account.IsStaff = true
	account.IsSuperuser = true
	account.VerificationToken = nil
	account.VerificationTokenExpiry = nil
}

func (s *AccountService) notificationFailed(ctx context.Context, accountID, kind string, err error) {
	s.logger.Warn("notification delivery failed",
		zap.String("account_id", accountID),
		zap.String("kind", kind),
		zap.Error(err),
	)
	s.publish(ctx, events.EventNotificationFailed, accountID, events.NotificationFailedPayload{Kind: kind, Error: err.Error()})
}

func (s *AccountService) publish(ctx context.Context, eventType events.EventType, accountID string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		AccountID: accountID,
		Timestamp: s.now().UTC(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event", zap.String("event", string(eventType)), zap.Error(err))
	}
}
