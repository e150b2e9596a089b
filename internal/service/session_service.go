package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/repository"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

// SessionService mints bearer tokens after a successful login and revokes them on logout.
type SessionService struct {
	tokens     *auth.TokenManager
	revoked    repository.RevokedTokenRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewSessionService creates the service.
func NewSessionService(tokens *auth.TokenManager, revoked repository.RevokedTokenRepository, dispatcher events.Dispatcher, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{tokens: tokens, revoked: revoked, dispatcher: dispatcher, logger: logger}
}

// IssueAccessToken signs a token for an authenticated account.
func (s *SessionService) IssueAccessToken(account *domain.Account) (string, time.Time, error) {
	token, expiresAt, err := s.tokens.GenerateToken(account)
	if err != nil {
		return "", time.Time{}, apperrors.NewInternalError(err)
	}
	return token, expiresAt, nil
}

// Logout revokes the bearer token until it would have expired.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	record := domain.RevokedToken{Token: token, AccountID: claims.AccountID, ExpiresAt: expiresAt}
	if err := s.revoked.Revoke(ctx, record); err != nil {
		return apperrors.NewInternalError(err)
	}

	s.logger.Info("access token revoked", zap.String("account_id", claims.AccountID))
	if s.dispatcher != nil {
		event := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventLoggedOut,
			AccountID: claims.AccountID,
			Timestamp: time.Now().UTC(),
		}
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("publish event", zap.String("event", string(event.Type)), zap.Error(err))
		}
	}
	return nil
}
