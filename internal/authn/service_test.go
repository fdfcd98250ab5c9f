package authn_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/examdesk/examdesk/internal/accounts"
	"github.com/examdesk/examdesk/internal/authn"
	"github.com/examdesk/examdesk/internal/perms"
	"github.com/examdesk/examdesk/internal/shared"
	_ "github.com/examdesk/examdesk/testing"
)

type stubAccounts struct {
	account     *accounts.Account
	matrix      perms.Matrix
	permsErr    error
	lastLoginID int64
}

func (s *stubAccounts) FindByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	if s.account == nil || s.account.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.account, nil
}

func (s *stubAccounts) Get(ctx context.Context, id int64) (*accounts.Account, error) {
	if s.account == nil || s.account.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.account, nil
}

func (s *stubAccounts) EffectivePermissions(ctx context.Context, acct *accounts.Account) (perms.Matrix, error) {
	if s.permsErr != nil {
		return nil, s.permsErr
	}
	return s.matrix, nil
}

func (s *stubAccounts) TouchLastLogin(ctx context.Context, id int64) error {
	s.lastLoginID = id
	return nil
}

type stubAlerts struct {
	emails  []string
	reasons []string
}

func (s *stubAlerts) EnqueueSecurityAlert(ctx context.Context, email, reason string) error {
	s.emails = append(s.emails, email)
	s.reasons = append(s.reasons, reason)
	return nil
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(hash)
}

func activeAccount(t *testing.T) *accounts.Account {
	t.Helper()
	return &accounts.Account{
		ID:             42,
		Email:          "staff@examdesk.local",
		Name:           "Staff Member",
		PasswordHash:   hashPassword(t, "correct-horse"),
		Classification: perms.ClassificationSubadmin,
		Status:         accounts.StatusActive,
	}
}

func TestLoginSuccess(t *testing.T) {
	source := &stubAccounts{
		account: activeAccount(t),
		matrix:  perms.Matrix{perms.ModuleBlogs: {View: true}},
	}
	svc := authn.NewService(source, authn.NewTokenManager("secret", time.Hour), nil, nil, nil, nil, nil)

	result, err := svc.Login(context.Background(), "staff@examdesk.local", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Token == "" {
		t.Fatal("no token issued")
	}
	if result.Actor.ID != 42 {
		t.Fatalf("actor id = %d", result.Actor.ID)
	}
	if !result.Permissions.Allows(perms.ModuleBlogs, perms.ActionView) {
		t.Fatal("resolved permissions missing")
	}
	if source.lastLoginID != 42 {
		t.Fatal("last login not touched")
	}
	if time.Until(result.ExpiresAt) <= 0 {
		t.Fatal("expiry not in the future")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	source := &stubAccounts{account: activeAccount(t)}
	svc := authn.NewService(source, authn.NewTokenManager("secret", time.Hour), nil, nil, nil, nil, nil)

	_, err := svc.Login(context.Background(), "staff@examdesk.local", "wrong")
	if !errors.Is(err, shared.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if source.lastLoginID != 0 {
		t.Fatal("failed login must not touch last login")
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := authn.NewService(&stubAccounts{}, authn.NewTokenManager("secret", time.Hour), nil, nil, nil, nil, nil)

	_, err := svc.Login(context.Background(), "nobody@examdesk.local", "whatever")
	if !errors.Is(err, shared.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginSuspendedAccount(t *testing.T) {
	acct := activeAccount(t)
	acct.Status = accounts.StatusSuspended
	source := &stubAccounts{account: acct}
	alerts := &stubAlerts{}
	svc := authn.NewService(source, authn.NewTokenManager("secret", time.Hour), nil, alerts, nil, nil, nil)

	// Even the correct password must be rejected with the suspension error,
	// so a suspended owner cannot probe credentials.
	_, err := svc.Login(context.Background(), "staff@examdesk.local", "correct-horse")
	if !errors.Is(err, shared.ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}
	if len(alerts.emails) != 1 || alerts.emails[0] != "staff@examdesk.local" {
		t.Fatalf("expected one security alert, got %v", alerts.emails)
	}
	if source.lastLoginID != 0 {
		t.Fatal("suspended login must not touch last login")
	}
}

func TestLoginStoreFaultPropagates(t *testing.T) {
	source := &stubAccounts{
		account:  activeAccount(t),
		permsErr: errors.New("connection reset"),
	}
	svc := authn.NewService(source, authn.NewTokenManager("secret", time.Hour), nil, nil, nil, nil, nil)

	_, err := svc.Login(context.Background(), "staff@examdesk.local", "correct-horse")
	if err == nil || errors.Is(err, shared.ErrInvalidCredentials) {
		t.Fatalf("store fault must not masquerade as bad credentials, got %v", err)
	}
}

func TestWhoami(t *testing.T) {
	source := &stubAccounts{
		account: activeAccount(t),
		matrix:  perms.Matrix{perms.ModuleVideos: {View: true}},
	}
	svc := authn.NewService(source, authn.NewTokenManager("secret", time.Hour), nil, nil, nil, nil, nil)

	profile, matrix, err := svc.Whoami(context.Background(), 42)
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if profile.Email != "staff@examdesk.local" {
		t.Fatalf("profile email = %s", profile.Email)
	}
	if !matrix.Allows(perms.ModuleVideos, perms.ActionView) {
		t.Fatal("permissions missing from whoami")
	}
}

func TestWhoamiMissingAccount(t *testing.T) {
	svc := authn.NewService(&stubAccounts{}, authn.NewTokenManager("secret", time.Hour), nil, nil, nil, nil, nil)
	if _, _, err := svc.Whoami(context.Background(), 9); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
