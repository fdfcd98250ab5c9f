package accounts

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"github.com/examdesk/examdesk/internal/perms"
	"github.com/examdesk/examdesk/internal/shared"
)

// ErrInvalidClassification rejects account writes with an unknown tier.
var ErrInvalidClassification = errors.New("accounts: invalid classification")

// RolePermissionSource resolves a role reference to its permission map.
// Implemented by the roles service.
type RolePermissionSource interface {
	RolePermissions(ctx context.Context, roleID int64) (perms.Matrix, error)
}

// Service handles administrator account business logic.
type Service struct {
	repo   RepositoryPort
	roles  RolePermissionSource
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService builds a Service instance. audit may be nil in tests.
func NewService(repo RepositoryPort, roles RolePermissionSource, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: roles, audit: audit, logger: logger}
}

var emailFolder = cases.Fold()

// FoldEmail normalizes an email for case-insensitive identity.
func FoldEmail(email string) string {
	return emailFolder.String(strings.TrimSpace(email))
}

// FindByEmail fetches an account by case-insensitive email.
func (s *Service) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.repo.FindByEmail(ctx, FoldEmail(email))
}

// Get fetches an account by id.
func (s *Service) Get(ctx context.Context, id int64) (*Account, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns one page of accounts with pagination metadata.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Account, shared.Pagination, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, perPage, total)
	accts, err := s.repo.List(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return accts, p, nil
}

// CreateInput collects the fields for a new account.
type CreateInput struct {
	Email          string
	Name           string
	Phone          string
	Password       string
	Classification perms.Classification
	RoleID         *int64
	Custom         perms.Matrix
}

// Create hashes the password and stores a new active account.
func (s *Service) Create(ctx context.Context, in CreateInput, createdBy *int64) (*Account, error) {
	if !in.Classification.Valid() {
		return nil, ErrInvalidClassification
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acct := &Account{
		Email:          FoldEmail(in.Email),
		Name:           strings.TrimSpace(in.Name),
		Phone:          strings.TrimSpace(in.Phone),
		PasswordHash:   string(hash),
		Classification: in.Classification,
		RoleID:         in.RoleID,
		Custom:         in.Custom,
		Status:         StatusActive,
		CreatedBy:      createdBy,
	}
	if err := s.repo.Create(ctx, acct); err != nil {
		return nil, err
	}
	s.record(ctx, createdBy, "account.create", acct.ID)
	return acct, nil
}

// UpdateInput collects the mutable fields of an account. A nil Custom clears
// the custom-permissions object, reverting the account to role-derived grants.
type UpdateInput struct {
	Email          string
	Name           string
	Phone          string
	Classification perms.Classification
	RoleID         *int64
	Custom         perms.Matrix
}

// Update rewrites an account's identity and grant fields.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput, actorID *int64) (*Account, error) {
	if !in.Classification.Valid() {
		return nil, ErrInvalidClassification
	}
	acct, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	acct.Email = FoldEmail(in.Email)
	acct.Name = strings.TrimSpace(in.Name)
	acct.Phone = strings.TrimSpace(in.Phone)
	acct.Classification = in.Classification
	acct.RoleID = in.RoleID
	acct.Custom = in.Custom
	if err := s.repo.Update(ctx, acct); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "account.update", acct.ID)
	return acct, nil
}

// SetStatus suspends or reactivates an account.
func (s *Service) SetStatus(ctx context.Context, id int64, status Status, actorID *int64) error {
	if status != StatusActive && status != StatusSuspended {
		return errors.New("accounts: invalid status")
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return err
	}
	s.record(ctx, actorID, "account.status."+string(status), id)
	return nil
}

// TouchLastLogin records a successful login on the account.
func (s *Service) TouchLastLogin(ctx context.Context, id int64) error {
	return s.repo.TouchLastLogin(ctx, id)
}

// EffectivePermissions computes the account's permission matrix. The role
// reference is weak: a role deleted after assignment resolves to no grants
// rather than an error.
func (s *Service) EffectivePermissions(ctx context.Context, acct *Account) (perms.Matrix, error) {
	var rolePerms perms.Matrix
	if acct.Classification != perms.ClassificationSuperadmin && acct.Custom == nil && acct.RoleID != nil && s.roles != nil {
		rp, err := s.roles.RolePermissions(ctx, *acct.RoleID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			if s.logger != nil {
				s.logger.Warn("account references missing role", slog.Int64("account_id", acct.ID), slog.Int64("role_id", *acct.RoleID))
			}
		case err != nil:
			return nil, err
		default:
			rolePerms = rp
		}
	}
	return perms.Resolve(acct.Classification, acct.Custom, rolePerms), nil
}

func (s *Service) record(ctx context.Context, actorID *int64, action string, entityID int64) {
	if s.audit == nil {
		return
	}
	var actor int64
	if actorID != nil {
		actor = *actorID
	}
	entry := shared.AuditEntry{ActorID: actor, Action: action, Entity: "admin_account", EntityID: strconv.FormatInt(entityID, 10)}
	if err := s.audit.Record(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
