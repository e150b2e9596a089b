package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/account-service/internal/domain"
)

// MemoryAccountRepository keeps accounts in process memory with the same
// uniqueness and conditional-update guarantees as the Postgres repository.
type MemoryAccountRepository struct {
	mu             sync.RWMutex
	byID           map[string]*domain.Account
	byEmail        map[string]string
	byVerification map[string]string
	byReset        map[string]string
}

var _ AccountRepository = (*MemoryAccountRepository)(nil)

// NewMemoryAccountRepository returns an empty store.
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:           make(map[string]*domain.Account),
		byEmail:        make(map[string]string),
		byVerification: make(map[string]string),
		byReset:        make(map[string]string),
	}
}

func (r *MemoryAccountRepository) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[account.Email]; exists {
		return ErrDuplicateEmail
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	r.put(account.Clone())
	return nil
}

func (r *MemoryAccountRepository) Update(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[account.ID]
	if !ok {
		return ErrAccountNotFound
	}
	if owner, taken := r.byEmail[account.Email]; taken && owner != account.ID {
		return ErrDuplicateEmail
	}
	r.drop(current)
	account.UpdatedAt = time.Now().UTC()
	r.put(account.Clone())
	return nil
}

func (r *MemoryAccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(id)
}

func (r *MemoryAccountRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byEmail[email])
}

func (r *MemoryAccountRepository) GetByVerificationToken(_ context.Context, token string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byVerification[token])
}

func (r *MemoryAccountRepository) GetByResetToken(_ context.Context, token string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byReset[token])
}

func (r *MemoryAccountRepository) List(_ context.Context) ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]domain.Account, 0, len(r.byID))
	for _, account := range r.byID {
		accounts = append(accounts, *account.Clone())
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Email < accounts[j].Email })
	return accounts, nil
}

func (r *MemoryAccountRepository) ConsumeVerificationToken(_ context.Context, token string, now time.Time) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.byID[r.byVerification[token]]
	if !ok || account.VerificationTokenExpiry == nil || now.After(*account.VerificationTokenExpiry) {
		return nil, ErrAccountNotFound
	}
	delete(r.byVerification, token)
	account.IsActive = true
	account.EmailVerified = true
	account.VerificationToken = nil
	account.VerificationTokenExpiry = nil
	account.UpdatedAt = time.Now().UTC()
	return account.Clone(), nil
}

func (r *MemoryAccountRepository) ReissueVerificationToken(_ context.Context, id, token string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.byID[id]
	if !ok || account.EmailVerified {
		return ErrAccountNotFound
	}
	if account.VerificationToken != nil {
		delete(r.byVerification, *account.VerificationToken)
	}
	account.VerificationToken = &token
	account.VerificationTokenExpiry = &expiry
	account.UpdatedAt = time.Now().UTC()
	r.byVerification[token] = id
	return nil
}

func (r *MemoryAccountRepository) SetResetToken(_ context.Context, id, token string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	if account.ResetToken != nil {
		delete(r.byReset, *account.ResetToken)
	}
	account.ResetToken = &token
	account.ResetTokenExpires = &expiry
	account.UpdatedAt = time.Now().UTC()
	r.byReset[token] = id
	return nil
}

func (r *MemoryAccountRepository) ConsumeResetToken(_ context.Context, token, passwordHash string, now time.Time) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.byID[r.byReset[token]]
	if !ok || account.ResetTokenExpires == nil || now.After(*account.ResetTokenExpires) {
		return nil, ErrAccountNotFound
	}
	delete(r.byReset, token)
	account.PasswordHash = passwordHash
	account.ResetToken = nil
	account.ResetTokenExpires = nil
	account.UpdatedAt = time.Now().UTC()
	return account.Clone(), nil
}

func (r *MemoryAccountRepository) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.LastLogin = &at
	return nil
}

// lookup expects the read lock to be held.
func (r *MemoryAccountRepository) lookup(id string) (*domain.Account, error) {
	account, ok := r.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account.Clone(), nil
}

func (r *MemoryAccountRepository) put(account *domain.Account) {
	r.byID[account.ID] = account
	r.byEmail[account.Email] = account.ID
	if account.VerificationToken != nil {
		r.byVerification[*account.VerificationToken] = account.ID
	}
	if account.ResetToken != nil {
		r.byReset[*account.ResetToken] = account.ID
	}
}

func (r *MemoryAccountRepository) drop(account *domain.Account) {
	delete(r.byEmail, account.Email)
	if account.VerificationToken != nil {
		delete(r.byVerification, *account.VerificationToken)
	}
	if account.ResetToken != nil {
		delete(r.byReset, *account.ResetToken)
	}
}
