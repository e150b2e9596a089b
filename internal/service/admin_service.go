package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/repository"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

// AdminService exposes read-only account queries to staff and superusers.
type AdminService struct {
	accounts repository.AccountRepository
}

// NewAdminService creates the service.
func NewAdminService(accounts repository.AccountRepository) *AdminService {
	return &AdminService{accounts: accounts}
}

// ListAccounts returns every account ordered by email.
func (s *AdminService) ListAccounts(ctx context.Context, caller *domain.Account) ([]domain.Account, error) {
	if err := authorize(caller); err != nil {
		return nil, err
	}
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return accounts, nil
}

// GetAccount returns a single account by id.
func (s *AdminService) GetAccount(ctx context.Context, caller *domain.Account, id string) (*domain.Account, error) {
	if err := authorize(caller); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NewNotFound("account", map[string]any{"id": id})
	}
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, apperrors.NewNotFound("account", map[string]any{"id": id})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return account, nil
}

func authorize(caller *domain.Account) error {
	if !auth.HasElevatedPrivilege(caller) {
		return apperrors.NewForbidden("you do not have permission to perform this action")
	}
	return nil
}
