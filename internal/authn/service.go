package authn

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/examdesk/examdesk/internal/accounts"
	"github.com/examdesk/examdesk/internal/perms"
	"github.com/examdesk/examdesk/internal/shared"
)

// AccountSource provides the account operations login depends on.
// Implemented by the accounts service.
type AccountSource interface {
	FindByEmail(ctx context.Context, email string) (*accounts.Account, error)
	Get(ctx context.Context, id int64) (*accounts.Account, error)
	EffectivePermissions(ctx context.Context, acct *accounts.Account) (perms.Matrix, error)
	TouchLastLogin(ctx context.Context, id int64) error
}

// AlertEnqueuer queues a security alert for out-of-band delivery. Optional.
type AlertEnqueuer interface {
	EnqueueSecurityAlert(ctx context.Context, email, reason string) error
}

// LoginMetrics counts login attempt outcomes. Optional.
type LoginMetrics interface {
	ObserveLogin(outcome string)
}

// Service wraps the login flow: credential verification, permission
// resolution and token issuance.
type Service struct {
	accounts AccountSource
	tokens   *TokenManager
	denylist *Denylist
	alerts   AlertEnqueuer
	audit    *shared.AuditLogger
	metrics  LoginMetrics
	logger   *slog.Logger
}

// NewService constructs a Service. denylist, alerts, audit and metrics may be nil.
func NewService(accounts AccountSource, tokens *TokenManager, denylist *Denylist, alerts AlertEnqueuer, audit *shared.AuditLogger, metrics LoginMetrics, logger *slog.Logger) *Service {
	return &Service{accounts: accounts, tokens: tokens, denylist: denylist, alerts: alerts, audit: audit, metrics: metrics, logger: logger}
}

// LoginResult is returned to a successfully authenticated client.
type LoginResult struct {
	Token       string
	ExpiresAt   time.Time
	Actor       accounts.Profile
	Permissions perms.Matrix
}

// Login validates email/password credentials and issues a signed token. The
// token is the only session artifact; logout is client-side discard.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	acct, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.observeLogin("failure")
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}

	// Status is checked before the password comparison, as a suspended
	// account must not authenticate even with correct credentials.
	if acct.Suspended() {
		s.observeLogin("suspended")
		s.alertSuspendedAttempt(ctx, acct)
		s.recordLogin(ctx, acct.ID, "login.suspended")
		return nil, shared.ErrAccountSuspended
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		s.observeLogin("failure")
		s.recordLogin(ctx, acct.ID, "login.failed")
		return nil, shared.ErrInvalidCredentials
	}

	matrix, err := s.accounts.EffectivePermissions(ctx, acct)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(acct.ID, acct.Classification, acct.Email, acct.Name)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.TouchLastLogin(ctx, acct.ID); err != nil && s.logger != nil {
		s.logger.Warn("touch last login", slog.Int64("account_id", acct.ID), slog.Any("error", err))
	}
	s.observeLogin("success")
	s.recordLogin(ctx, acct.ID, "login.success")

	return &LoginResult{Token: token, ExpiresAt: expiresAt, Actor: acct.Profile(), Permissions: matrix}, nil
}

// Whoami returns the stored profile and freshly resolved permissions for an
// authenticated actor.
func (s *Service) Whoami(ctx context.Context, actorID int64) (accounts.Profile, perms.Matrix, error) {
	acct, err := s.accounts.Get(ctx, actorID)
	if err != nil {
		return accounts.Profile{}, nil, err
	}
	matrix, err := s.accounts.EffectivePermissions(ctx, acct)
	if err != nil {
		return accounts.Profile{}, nil, err
	}
	return acct.Profile(), matrix, nil
}

// RevokeTokens invalidates every outstanding token for the actor via the
// deny-list. Invoked when an account is suspended.
func (s *Service) RevokeTokens(ctx context.Context, actorID int64) error {
	return s.denylist.Revoke(ctx, actorID)
}

func (s *Service) observeLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveLogin(outcome)
	}
}

func (s *Service) alertSuspendedAttempt(ctx context.Context, acct *accounts.Account) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.EnqueueSecurityAlert(ctx, acct.Email, "login attempt on suspended account"); err != nil && s.logger != nil {
		s.logger.Warn("enqueue security alert", slog.Any("error", err))
	}
}

func (s *Service) recordLogin(ctx context.Context, actorID int64, action string) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditEntry{ActorID: actorID, Action: action, Entity: "admin_account", EntityID: strconv.FormatInt(actorID, 10)}
	if err := s.audit.Record(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
