package accounts

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examdesk/examdesk/internal/perms"
	"github.com/examdesk/examdesk/internal/shared"
)

// RepositoryPort defines data access methods for administrator accounts.
type RepositoryPort interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id int64) (*Account, error)
	List(ctx context.Context, limit, offset int) ([]Account, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, acct *Account) error
	Update(ctx context.Context, acct *Account) error
	SetStatus(ctx context.Context, id int64, status Status) error
	TouchLastLogin(ctx context.Context, id int64) error
}

const accountColumns = `id, email, name, phone, password_hash, classification, role_id, custom_permissions, status, created_by, created_at, last_login_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByEmail fetches an account by its case-folded email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM admin_accounts WHERE email = $1`, email)
	return scanAccount(row)
}

// FindByID fetches an account by id.
func (r *Repository) FindByID(ctx context.Context, id int64) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM admin_accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// List returns accounts ordered by creation time.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM admin_accounts ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accts []Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accts = append(accts, *acct)
	}
	return accts, rows.Err()
}

// Count returns the total number of accounts.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM admin_accounts`).Scan(&total)
	return total, err
}

// Create inserts a new account and backfills its id and creation time.
func (r *Repository) Create(ctx context.Context, acct *Account) error {
	customJSON, err := marshalCustom(acct.Custom)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO admin_accounts (email, name, phone, password_hash, classification, role_id, custom_permissions, status, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		acct.Email, acct.Name, acct.Phone, acct.PasswordHash, acct.Classification, acct.RoleID, customJSON, acct.Status, acct.CreatedBy,
	).Scan(&acct.ID, &acct.CreatedAt)
	return translateUnique(err, shared.ErrDuplicateEmail)
}

// Update rewrites the mutable fields of an account.
func (r *Repository) Update(ctx context.Context, acct *Account) error {
	customJSON, err := marshalCustom(acct.Custom)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE admin_accounts SET email = $2, name = $3, phone = $4, classification = $5, role_id = $6, custom_permissions = $7 WHERE id = $1`,
		acct.ID, acct.Email, acct.Name, acct.Phone, acct.Classification, acct.RoleID, customJSON,
	)
	if err != nil {
		return translateUnique(err, shared.ErrDuplicateEmail)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetStatus flips the account between active and suspended.
func (r *Repository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE admin_accounts SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// TouchLastLogin records a successful login.
func (r *Repository) TouchLastLogin(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE admin_accounts SET last_login_at = NOW() WHERE id = $1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var acct Account
	var customJSON []byte
	err := row.Scan(
		&acct.ID, &acct.Email, &acct.Name, &acct.Phone, &acct.PasswordHash,
		&acct.Classification, &acct.RoleID, &customJSON, &acct.Status,
		&acct.CreatedBy, &acct.CreatedAt, &acct.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if customJSON != nil {
		if err := json.Unmarshal(customJSON, &acct.Custom); err != nil {
			return nil, err
		}
	}
	return &acct, nil
}

func marshalCustom(m perms.Matrix) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// translateUnique converts a unique-constraint violation into the matching
// domain error.
func translateUnique(err error, domainErr error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domainErr
	}
	return err
}

var _ RepositoryPort = (*Repository)(nil)
