// Package accounts manages administrator account records: the credential
// store behind login and every fine-grained permission check.
package accounts

import (
	"time"

	"github.com/examdesk/examdesk/internal/perms"
)

// Status marks whether an account may use the console at all.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Account represents a stored administrator account. Email is persisted
// case-folded so identity is case-insensitive. Custom is nil when the account
// has no custom-permissions object; a non-nil empty matrix is an explicit
// "deny everything" override.
type Account struct {
	ID             int64
	Email          string
	Name           string
	Phone          string
	PasswordHash   string
	Classification perms.Classification
	RoleID         *int64
	Custom         perms.Matrix
	Status         Status
	CreatedBy      *int64
	CreatedAt      time.Time
	LastLoginAt    *time.Time
}

// Suspended reports whether the account is a hard deny for protected actions.
func (a Account) Suspended() bool {
	return a.Status == StatusSuspended
}

// Profile is the public projection of an account; the password hash never
// leaves the package.
type Profile struct {
	ID             int64                `json:"id"`
	Email          string               `json:"email"`
	Name           string               `json:"name"`
	Phone          string               `json:"phone,omitempty"`
	Classification perms.Classification `json:"classification"`
	RoleID         *int64               `json:"roleId,omitempty"`
	Status         Status               `json:"status"`
	CreatedAt      time.Time            `json:"createdAt"`
	LastLoginAt    *time.Time           `json:"lastLoginAt,omitempty"`
}

// Profile returns the public projection.
func (a Account) Profile() Profile {
	return Profile{
		ID:             a.ID,
		Email:          a.Email,
		Name:           a.Name,
		Phone:          a.Phone,
		Classification: a.Classification,
		RoleID:         a.RoleID,
		Status:         a.Status,
		CreatedAt:      a.CreatedAt,
		LastLoginAt:    a.LastLoginAt,
	}
}
