package roles

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examdesk/examdesk/internal/platform/db"
	"github.com/examdesk/examdesk/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	List(ctx context.Context) ([]Role, error)
	Get(ctx context.Context, id int64) (*Role, error)
	Create(ctx context.Context, role *Role) error
	Update(ctx context.Context, role *Role) error
	// Delete removes the role unless any account still references it, in
	// which case it returns shared.ErrRoleInUse and the blocking count.
	Delete(ctx context.Context, id int64) (int, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all roles ordered by name.
func (r *Repository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, permissions, created_by, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// Get fetches a role by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, description, permissions, created_by, created_at, updated_at FROM roles WHERE id = $1`, id)
	return scanRole(row)
}

// Create inserts a new role.
func (r *Repository) Create(ctx context.Context, role *Role) error {
	permsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, description, permissions, created_by) VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`,
		role.Name, role.Description, permsJSON, role.CreatedBy,
	).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	return translateUnique(err)
}

// Update rewrites name, description and permission map.
func (r *Repository) Update(ctx context.Context, role *Role) error {
	permsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE roles SET name = $2, description = $3, permissions = $4, updated_at = NOW() WHERE id = $1`,
		role.ID, role.Name, role.Description, permsJSON,
	)
	if err != nil {
		return translateUnique(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a role behind the referential guard. The count check and
// the delete run in one transaction so a concurrent assignment cannot slip
// between them.
func (r *Repository) Delete(ctx context.Context, id int64) (int, error) {
	var blocking int
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM admin_accounts WHERE role_id = $1`, id).Scan(&blocking); err != nil {
			return err
		}
		if blocking > 0 {
			return shared.ErrRoleInUse
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
	return blocking, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*Role, error) {
	var role Role
	var permsJSON []byte
	err := row.Scan(&role.ID, &role.Name, &role.Description, &permsJSON, &role.CreatedBy, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if permsJSON != nil {
		if err := json.Unmarshal(permsJSON, &role.Permissions); err != nil {
			return nil, err
		}
	}
	return &role, nil
}

func translateUnique(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicateRole
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)
