package roles

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/examdesk/examdesk/internal/perms"
	"github.com/examdesk/examdesk/internal/shared"
)

// ErrNameRequired rejects roles without a name.
var ErrNameRequired = errors.New("roles: role name required")

// Service orchestrates role catalog operations.
type Service struct {
	repo   RepositoryPort
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs a Service. audit may be nil in tests.
func NewService(repo RepositoryPort, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// Get fetches a role by id.
func (s *Service) Get(ctx context.Context, id int64) (*Role, error) {
	return s.repo.Get(ctx, id)
}

// Create inserts a new role.
func (s *Service) Create(ctx context.Context, name, description string, permissions perms.Matrix, createdBy *int64) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if permissions == nil {
		permissions = perms.Matrix{}
	}
	role := &Role{Name: name, Description: strings.TrimSpace(description), Permissions: permissions, CreatedBy: createdBy}
	if err := s.repo.Create(ctx, role); err != nil {
		return nil, err
	}
	s.record(ctx, createdBy, "role.create", role.ID)
	return role, nil
}

// Update rewrites an existing role.
func (s *Service) Update(ctx context.Context, id int64, name, description string, permissions perms.Matrix, actorID *int64) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	role, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	role.Name = name
	role.Description = strings.TrimSpace(description)
	if permissions == nil {
		permissions = perms.Matrix{}
	}
	role.Permissions = permissions
	if err := s.repo.Update(ctx, role); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "role.update", role.ID)
	return role, nil
}

// Delete removes a role. When accounts still reference it the deletion is
// refused with shared.ErrRoleInUse and the count of blocking assignments.
func (s *Service) Delete(ctx context.Context, id int64, actorID *int64) (int, error) {
	blocking, err := s.repo.Delete(ctx, id)
	if err != nil {
		return blocking, err
	}
	s.record(ctx, actorID, "role.delete", id)
	return 0, nil
}

// RolePermissions resolves a role reference to its permission map. Satisfies
// the accounts package's RolePermissionSource.
func (s *Service) RolePermissions(ctx context.Context, roleID int64) (perms.Matrix, error) {
	role, err := s.repo.Get(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return role.Permissions, nil
}

func (s *Service) record(ctx context.Context, actorID *int64, action string, entityID int64) {
	if s.audit == nil {
		return
	}
	var actor int64
	if actorID != nil {
		actor = *actorID
	}
	entry := shared.AuditEntry{ActorID: actor, Action: action, Entity: "role", EntityID: strconv.FormatInt(entityID, 10)}
	if err := s.audit.Record(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
