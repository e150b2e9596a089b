package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/account-service/internal/domain"
)

// AccountRepository defines persistence access for accounts.
//
// The Consume*/Reissue*/SetResetToken methods are single conditional writes: they either apply
// completely or report ErrAccountNotFound, so concurrent callers cannot both win.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	Update(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByVerificationToken(ctx context.Context, token string) (*domain.Account, error)
	GetByResetToken(ctx context.Context, token string) (*domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)

	ConsumeVerificationToken(ctx context.Context, token string, now time.Time) (*domain.Account, error)
	ReissueVerificationToken(ctx context.Context, id, token string, expiry time.Time) error
	SetResetToken(ctx context.Context, id, token string, expiry time.Time) error
	ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) (*domain.Account, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

const accountColumns = `id, email, password_hash, first_name, last_name, phone, role, status,
        is_active, email_verified, is_staff, is_superuser,
        verification_token, verification_token_expiry, reset_token, reset_token_expires,
        last_login, created_at, updated_at`

type accountRepository struct {
	db DBTX
}

// NewAccountRepository returns a Postgres-backed implementation.
func NewAccountRepository(db DBTX) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	const query = `
        INSERT INTO accounts (id, email, password_hash, first_name, last_name, phone, role, status,
            is_active, email_verified, is_staff, is_superuser, verification_token, verification_token_expiry)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		account.Phone,
		account.Role,
		account.Status,
		account.IsActive,
		account.EmailVerified,
		account.IsStaff,
		account.IsSuperuser,
		account.VerificationToken,
		account.VerificationTokenExpiry,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *accountRepository) Update(ctx context.Context, account *domain.Account) error {
	const query = `
        UPDATE accounts SET email=$1, password_hash=$2, first_name=$3, last_name=$4, phone=$5,
            role=$6, status=$7, is_active=$8, email_verified=$9, is_staff=$10, is_superuser=$11,
            verification_token=$12, verification_token_expiry=$13, reset_token=$14, reset_token_expires=$15,
            updated_at=NOW()
        WHERE id=$16`

	cmd, err := r.db.Exec(ctx, query,
		account.Email,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		account.Phone,
		account.Role,
		account.Status,
		account.IsActive,
		account.EmailVerified,
		account.IsStaff,
		account.IsSuperuser,
		account.VerificationToken,
		account.VerificationTokenExpiry,
		account.ResetToken,
		account.ResetTokenExpires,
		account.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("update account: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id)
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email=$1`, email)
}

func (r *accountRepository) GetByVerificationToken(ctx context.Context, token string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE verification_token=$1`, token)
}

func (r *accountRepository) GetByResetToken(ctx context.Context, token string) (*domain.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE reset_token=$1`, token)
}

func (r *accountRepository) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (r *accountRepository) ConsumeVerificationToken(ctx context.Context, token string, now time.Time) (*domain.Account, error) {
	const query = `
        UPDATE accounts SET is_active=TRUE, email_verified=TRUE,
            verification_token=NULL, verification_token_expiry=NULL, updated_at=NOW()
        WHERE verification_token=$1 AND verification_token_expiry >= $2
        RETURNING ` + accountColumns
	return r.getOne(ctx, query, token, now)
}

func (r *accountRepository) ReissueVerificationToken(ctx context.Context, id, token string, expiry time.Time) error {
	const query = `
        UPDATE accounts SET verification_token=$2, verification_token_expiry=$3, updated_at=NOW()
        WHERE id=$1 AND email_verified=FALSE`
	return r.execOne(ctx, "reissue verification token", query, id, token, expiry)
}

func (r *accountRepository) SetResetToken(ctx context.Context, id, token string, expiry time.Time) error {
	const query = `
        UPDATE accounts SET reset_token=$2, reset_token_expires=$3, updated_at=NOW()
        WHERE id=$1`
	return r.execOne(ctx, "set reset token", query, id, token, expiry)
}

func (r *accountRepository) ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) (*domain.Account, error) {
	const query = `
        UPDATE accounts SET password_hash=$2, reset_token=NULL, reset_token_expires=NULL, updated_at=NOW()
        WHERE reset_token=$1 AND reset_token_expires >= $3
        RETURNING ` + accountColumns
	return r.getOne(ctx, query, token, passwordHash, now)
}

func (r *accountRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE accounts SET last_login=$2 WHERE id=$1`
	return r.execOne(ctx, "touch last login", query, id, at)
}

func (r *accountRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Account, error) {
	account, err := scanAccount(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("query account: %w", err)
	}
	return account, nil
}

func (r *accountRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.FirstName,
		&account.LastName,
		&account.Phone,
		&account.Role,
		&account.Status,
		&account.IsActive,
		&account.EmailVerified,
		&account.IsStaff,
		&account.IsSuperuser,
		&account.VerificationToken,
		&account.VerificationTokenExpiry,
		&account.ResetToken,
		&account.ResetTokenExpires,
		&account.LastLogin,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &account, nil
}
