package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/repository"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

const strongPassword = "Str0ng-pass!"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentMail struct {
	kind  string
	email string
	token string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeNotifier) SendVerification(_ context.Context, account *domain.Account, token string) error {
	return f.record("verification", account, token)
}

func (f *fakeNotifier) SendPasswordReset(_ context.Context, account *domain.Account, token string) error {
	return f.record("password_reset", account, token)
}

func (f *fakeNotifier) record(kind string, account *domain.Account, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{kind: kind, email: account.Email, token: token})
	return nil
}

func (f *fakeNotifier) last(kind string) (sentMail, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].kind == kind {
			return f.sent[i], true
		}
	}
	return sentMail{}, false
}

type recordedEvents struct {
	mu    sync.Mutex
	types []events.EventType
}

func (r *recordedEvents) handler(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
	return nil
}

func (r *recordedEvents) has(t events.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.types {
		if got == t {
			return true
		}
	}
	return false
}

type fixture struct {
	svc      *AccountService
	accounts *repository.MemoryAccountRepository
	notifier *fakeNotifier
	clock    *testClock
	events   *recordedEvents
	cfg      config.Config
}

func testConfig() config.Config {
	return config.Config{
		App: config.AppConfig{PhoneRegion: "US"},
		Auth: config.AuthConfig{
			JWTSecret:               "test-secret",
			AccessTokenTTLMinutes:   15,
			VerificationTTLMinutes:  30,
			PasswordResetTTLMinutes: 30,
			BcryptCost:              4,
		},
		Password: config.PasswordPolicyConfig{MinLength: 8, MaxLength: 128},
	}
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	f := &fixture{
		accounts: repository.NewMemoryAccountRepository(),
		notifier: &fakeNotifier{},
		clock:    newTestClock(),
		events:   &recordedEvents{},
		cfg:      cfg,
	}
	dispatcher := events.NewInMemoryDispatcher()
	for _, et := range []events.EventType{
		events.EventAccountRegistered,
		events.EventEmailVerified,
		events.EventVerificationReissued,
		events.EventLoginSucceeded,
		events.EventLoginFailed,
		events.EventPasswordResetRequest,
		events.EventPasswordResetComplete,
		events.EventNotificationFailed,
	} {
		dispatcher.Subscribe(et, f.events.handler)
	}

	f.svc = NewAccountService(cfg, AccountDependencies{
		Accounts:   f.accounts,
		Notifier:   f.notifier,
		Dispatcher: dispatcher,
		Clock:      f.clock.Now,
	})
	return f
}

func (f *fixture) register(t *testing.T, email string) *domain.Account {
	t.Helper()
	account, err := f.svc.Register(context.Background(), RegisterRequest{
		Email:                email,
		Password:             strongPassword,
		PasswordConfirmation: strongPassword,
	})
	require.NoError(t, err)
	return account
}

func (f *fixture) registerVerified(t *testing.T, email string) *domain.Account {
	t.Helper()
	f.register(t, email)
	mail, ok := f.notifier.last("verification")
	require.True(t, ok)
	account, err := f.svc.VerifyEmail(context.Background(), mail.token)
	require.NoError(t, err)
	return account
}

func TestRegister_CreatesInactiveAccountWithFutureToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, err := f.svc.Register(ctx, RegisterRequest{
		Email:                "  Alice@Example.COM ",
		Password:             strongPassword,
		PasswordConfirmation: strongPassword,
		FirstName:            "Alice",
		Phone:                "(650) 253-0000",
	})
	require.NoError(t, err)

	stored, err := f.accounts.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, stored.ID)
	assert.False(t, stored.IsActive)
	assert.False(t, stored.EmailVerified)
	assert.Equal(t, domain.AccountStatusInactive, stored.Status)
	assert.Equal(t, domain.RoleUser, stored.Role)
	assert.Equal(t, "+16502530000", stored.Phone)
	assert.NotEqual(t, strongPassword, stored.PasswordHash)
	assert.NoError(t, auth.ComparePassword(stored.PasswordHash, strongPassword))

	require.NotNil(t, stored.VerificationToken)
	require.NotNil(t, stored.VerificationTokenExpiry)
	assert.True(t, stored.VerificationTokenExpiry.After(f.clock.Now()))
	assert.Equal(t, f.clock.Now().Add(30*time.Minute), *stored.VerificationTokenExpiry)

	mail, ok := f.notifier.last("verification")
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", mail.email)
	assert.Equal(t, *stored.VerificationToken, mail.token)
	assert.True(t, f.events.has(events.EventAccountRegistered))
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	first := f.register(t, "bob@example.com")

	_, err := f.svc.Register(context.Background(), RegisterRequest{
		Email:                "BOB@example.com",
		Password:             "An0ther-pass!",
		PasswordConfirmation: "An0ther-pass!",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	stored, err := f.accounts.GetByEmail(context.Background(), "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, first.PasswordHash, stored.PasswordHash)
}

func TestRegister_ValidationFailures(t *testing.T) {
	tests := []struct {
		name  string
		req   RegisterRequest
		field string
	}{
		{
			name:  "bad email",
			req:   RegisterRequest{Email: "not-an-email", Password: strongPassword, PasswordConfirmation: strongPassword},
			field: "email",
		},
		{
			name:  "confirmation mismatch",
			req:   RegisterRequest{Email: "carol@example.com", Password: strongPassword, PasswordConfirmation: "Str0ng-pass?"},
			field: "password_confirmation",
		},
		{
			name:  "too short",
			req:   RegisterRequest{Email: "carol@example.com", Password: "Ab1!", PasswordConfirmation: "Ab1!"},
			field: "password",
		},
		{
			name:  "entirely numeric",
			req:   RegisterRequest{Email: "carol@example.com", Password: "8675309123", PasswordConfirmation: "8675309123"},
			field: "password",
		},
		{
			name:  "common password",
			req:   RegisterRequest{Email: "carol@example.com", Password: "password123", PasswordConfirmation: "password123"},
			field: "password",
		},
		{
			name:  "similar to email",
			req:   RegisterRequest{Email: "carolina@example.com", Password: "carolina-99", PasswordConfirmation: "carolina-99"},
			field: "password",
		},
		{
			name:  "bad phone",
			req:   RegisterRequest{Email: "carol@example.com", Password: strongPassword, PasswordConfirmation: strongPassword, Phone: "12345"},
			field: "phone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Register(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrValidation))

			domainErr := apperrors.ToDomainError(err)
			assert.Contains(t, domainErr.Details, tt.field)

			accounts, listErr := f.accounts.List(context.Background())
			require.NoError(t, listErr)
			assert.Empty(t, accounts)
		})
	}
}

func TestRegister_NotificationFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")

	account := f.register(t, "dave@example.com")

	stored, err := f.accounts.GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.VerificationToken)
	assert.True(t, f.events.has(events.EventNotificationFailed))
}

func TestVerifyEmail_OnceThenNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "erin@example.com")
	mail, _ := f.notifier.last("verification")

	account, err := f.svc.VerifyEmail(ctx, mail.token)
	require.NoError(t, err)
	assert.True(t, account.IsActive)
	assert.True(t, account.EmailVerified)
	assert.Nil(t, account.VerificationToken)
	assert.Nil(t, account.VerificationTokenExpiry)
	assert.Equal(t, domain.AccountStatusInactive, account.Status)

	_, err = f.svc.VerifyEmail(ctx, mail.token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.True(t, f.events.has(events.EventEmailVerified))
}

func TestVerifyEmail_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.register(t, "frank@example.com")
	mail, _ := f.notifier.last("verification")

	f.clock.Advance(31 * time.Minute)

	_, err := f.svc.VerifyEmail(ctx, mail.token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrExpired))

	stored, err := f.accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.False(t, stored.EmailVerified)
	require.NotNil(t, stored.VerificationToken)
	assert.Equal(t, mail.token, *stored.VerificationToken)
}

func TestVerifyEmail_AtExactExpiryStillValid(t *testing.T) {
	f := newFixture(t)
	f.register(t, "gina@example.com")
	mail, _ := f.notifier.last("verification")

	f.clock.Advance(30 * time.Minute)

	_, err := f.svc.VerifyEmail(context.Background(), mail.token)
	require.NoError(t, err)
}

func TestVerifyEmail_MissingAndUnknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyEmail(context.Background(), "  ")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = f.svc.VerifyEmail(context.Background(), "deadbeef")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestVerifyEmail_ConcurrentActivatesOnce(t *testing.T) {
	f := newFixture(t)
	f.register(t, "hank@example.com")
	mail, _ := f.notifier.last("verification")

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		notFound  int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.VerifyEmail(context.Background(), mail.token)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperrors.ErrNotFound):
				notFound++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, notFound)
}

func TestLogin_UniformInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "ivy@example.com")

	_, unknownErr := f.svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: strongPassword})
	_, wrongErr := f.svc.Login(ctx, LoginRequest{Email: "ivy@example.com", Password: "Wr0ng-pass!"})

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.True(t, errors.Is(unknownErr, apperrors.ErrInvalidCredentials))
	assert.True(t, errors.Is(wrongErr, apperrors.ErrInvalidCredentials))
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
	assert.True(t, f.events.has(events.EventLoginFailed))
}

func TestLogin_UnknownEmailPaysSameBcryptCost(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Auth.BcryptCost = 6 })
	ctx := context.Background()
	f.registerVerified(t, "kim@example.com")

	stored, err := f.accounts.GetByEmail(ctx, "kim@example.com")
	require.NoError(t, err)
	accountCost, err := bcrypt.Cost([]byte(stored.PasswordHash))
	require.NoError(t, err)

	assert.Equal(t, 6, accountCost)
	assert.Equal(t, accountCost, f.svc.timing.Cost())

	_, err = f.svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: strongPassword})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registered := f.registerVerified(t, "jack@example.com")

	account, err := f.svc.Login(ctx, LoginRequest{Email: " JACK@example.com", Password: strongPassword})
	require.NoError(t, err)
	assert.Equal(t, registered.ID, account.ID)
	assert.Equal(t, domain.RoleUser, account.Role)
	require.NotNil(t, account.LastLogin)
	assert.Equal(t, f.clock.Now(), *account.LastLogin)

	stored, err := f.accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)
	assert.True(t, f.events.has(events.EventLoginSucceeded))
}

func TestLogin_UnverifiedReissuesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.register(t, "kate@example.com")
	original, _ := f.notifier.last("verification")
	before, err := f.accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)

	_, err = f.svc.Login(ctx, LoginRequest{Email: "kate@example.com", Password: strongPassword})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrEmailNotVerified))

	after, err := f.accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, after.VerificationToken)
	assert.NotEqual(t, original.token, *after.VerificationToken)
	assert.True(t, after.VerificationTokenExpiry.After(*before.VerificationTokenExpiry))

	resent, ok := f.notifier.last("verification")
	require.True(t, ok)
	assert.Equal(t, *after.VerificationToken, resent.token)

	_, err = f.svc.VerifyEmail(ctx, original.token)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = f.svc.VerifyEmail(ctx, resent.token)
	assert.NoError(t, err)
	assert.True(t, f.events.has(events.EventVerificationReissued))
}

func TestLogin_UnverifiedWithWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.register(t, "liam@example.com")

	_, err := f.svc.Login(context.Background(), LoginRequest{Email: "liam@example.com", Password: "Wr0ng-pass!"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidCredentials))
	assert.Len(t, f.notifier.sent, 1)
}

func TestLogin_VerifiedButDeactivated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.registerVerified(t, "mia@example.com")

	account.IsActive = false
	require.NoError(t, f.accounts.Update(ctx, account))

	_, err := f.svc.Login(ctx, LoginRequest{Email: "mia@example.com", Password: strongPassword})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidCredentials))
}

func TestPasswordReset_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.registerVerified(t, "nina@example.com")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, PasswordResetRequest{Email: "Nina@example.com"}))
	mail, ok := f.notifier.last("password_reset")
	require.True(t, ok)

	const newPassword = "N3w-secret-value"
	require.NoError(t, f.svc.ConfirmPasswordReset(ctx, PasswordResetConfirmRequest{Token: mail.token, NewPassword: newPassword}))

	stored, err := f.accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.NoError(t, auth.ComparePassword(stored.PasswordHash, newPassword))
	assert.Nil(t, stored.ResetToken)
	assert.Nil(t, stored.ResetTokenExpires)

	err = f.svc.ConfirmPasswordReset(ctx, PasswordResetConfirmRequest{Token: mail.token, NewPassword: "Y3t-another-one"})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = f.svc.Login(ctx, LoginRequest{Email: "nina@example.com", Password: newPassword})
	assert.NoError(t, err)
	assert.True(t, f.events.has(events.EventPasswordResetComplete))
}

func TestPasswordReset_LeavesVerificationTokenAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.register(t, "omar@example.com")
	verification, _ := f.notifier.last("verification")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, PasswordResetRequest{Email: "omar@example.com"}))

	stored, err := f.accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.VerificationToken)
	assert.Equal(t, verification.token, *stored.VerificationToken)
	assert.NotNil(t, stored.ResetToken)
}

func TestPasswordReset_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.registerVerified(t, "pia@example.com")
	require.NoError(t, f.svc.RequestPasswordReset(ctx, PasswordResetRequest{Email: "pia@example.com"}))
	mail, _ := f.notifier.last("password_reset")

	f.clock.Advance(time.Hour)

	err := f.svc.ConfirmPasswordReset(ctx, PasswordResetConfirmRequest{Token: mail.token, NewPassword: "N3w-secret-value"})
	assert.True(t, errors.Is(err, apperrors.ErrExpired))

	stored, err := f.accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.PasswordHash, stored.PasswordHash)
}

func TestPasswordReset_UnknownEmailAndBadShape(t *testing.T) {
	f := newFixture(t)

	err := f.svc.RequestPasswordReset(context.Background(), PasswordResetRequest{Email: "ghost@example.com"})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	err = f.svc.RequestPasswordReset(context.Background(), PasswordResetRequest{Email: "ghost"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestPasswordReset_DeliveryPolicy(t *testing.T) {
	t.Run("best effort", func(t *testing.T) {
		f := newFixture(t)
		f.registerVerified(t, "quinn@example.com")
		f.notifier.err = errors.New("smtp down")

		err := f.svc.RequestPasswordReset(context.Background(), PasswordResetRequest{Email: "quinn@example.com"})
		assert.NoError(t, err)
		assert.True(t, f.events.has(events.EventNotificationFailed))
	})

	t.Run("required", func(t *testing.T) {
		f := newFixture(t, func(c *config.Config) { c.Notification.RequireResetDelivery = true })
		account := f.registerVerified(t, "quinn@example.com")
		f.notifier.err = errors.New("smtp down")

		err := f.svc.RequestPasswordReset(context.Background(), PasswordResetRequest{Email: "quinn@example.com"})
		require.Error(t, err)
		assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))

		stored, getErr := f.accounts.GetByID(context.Background(), account.ID)
		require.NoError(t, getErr)
		assert.NotNil(t, stored.ResetToken)
	})
}

func TestConfirmPasswordReset_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "rosa@example.com")
	require.NoError(t, f.svc.RequestPasswordReset(ctx, PasswordResetRequest{Email: "rosa@example.com"}))
	mail, _ := f.notifier.last("password_reset")

	err := f.svc.ConfirmPasswordReset(ctx, PasswordResetConfirmRequest{Token: "", NewPassword: "N3w-secret-value"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	err = f.svc.ConfirmPasswordReset(ctx, PasswordResetConfirmRequest{Token: "unknown", NewPassword: "N3w-secret-value"})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	err = f.svc.ConfirmPasswordReset(ctx, PasswordResetConfirmRequest{Token: mail.token, NewPassword: "short"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.Contains(t, apperrors.ToDomainError(err).Details, "new_password")

	// a rejected password leaves the token usable
	assert.NoError(t, f.svc.ConfirmPasswordReset(ctx, PasswordResetConfirmRequest{Token: mail.token, NewPassword: "N3w-secret-value"}))
}

func TestCreateSuperuser(t *testing.T) {
	t.Run("creates", func(t *testing.T) {
		f := newFixture(t)
		account, created, err := f.svc.CreateSuperuser(context.Background(), SuperuserRequest{Email: "root@example.com", Password: strongPassword})
		require.NoError(t, err)
		assert.True(t, created)
		assert.True(t, account.IsStaff)
		assert.True(t, account.IsSuperuser)
		assert.True(t, account.IsActive)
		assert.True(t, account.EmailVerified)
		assert.Equal(t, domain.RoleAdmin, account.Role)
		assert.Equal(t, domain.AccountStatusActive, account.Status)

		_, err = f.svc.Login(context.Background(), LoginRequest{Email: "root@example.com", Password: strongPassword})
		assert.NoError(t, err)
	})

	t.Run("promotes existing", func(t *testing.T) {
		f := newFixture(t)
		registered := f.register(t, "sam@example.com")

		account, created, err := f.svc.CreateSuperuser(context.Background(), SuperuserRequest{Email: "sam@example.com", Password: "N3w-secret-value"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, registered.ID, account.ID)

		stored, err := f.accounts.GetByID(context.Background(), registered.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsSuperuser)
		assert.Nil(t, stored.VerificationToken)
	})

	t.Run("weak password", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.svc.CreateSuperuser(context.Background(), SuperuserRequest{Email: "root@example.com", Password: "1234"})
		assert.True(t, errors.Is(err, apperrors.ErrValidation))
	})
}
