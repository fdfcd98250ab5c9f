// Package roles manages the role catalog: named, reusable permission
// templates that administrator accounts can reference.
package roles

import (
	"time"

	"github.com/examdesk/examdesk/internal/perms"
)

// Role represents a reusable permission template.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Permissions perms.Matrix `json:"permissions"`
	CreatedBy   *int64       `json:"createdBy,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}
