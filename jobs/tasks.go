package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSecurityAlert is the task type for security notification emails.
	TaskTypeSecurityAlert = "mail:security_alert"
	// TaskTypeAuditPrune is the task type for trimming old audit log rows.
	TaskTypeAuditPrune = "audit:prune"
	// TaskTypeGrantsIntegrity is the task type for the permission grant scan.
	TaskTypeGrantsIntegrity = "grants:integrity"
)

// SecurityAlertPayload describes a security event worth notifying about.
type SecurityAlertPayload struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// AuditPrunePayload configures the audit log retention job.
type AuditPrunePayload struct {
	RetentionDays int `json:"retentionDays"`
}

// GrantsIntegrityPayload configures the grant integrity scan.
type GrantsIntegrityPayload struct {
	Limit int `json:"limit"`
}

// NewSecurityAlertTask constructs an Asynq task.
func NewSecurityAlertTask(payload SecurityAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSecurityAlert, data), nil
}

// NewAuditPruneTask constructs an Asynq task.
func NewAuditPruneTask(payload AuditPrunePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditPrune, data), nil
}

// NewGrantsIntegrityTask constructs an Asynq task.
func NewGrantsIntegrityTask(payload GrantsIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGrantsIntegrity, data), nil
}

// HandleSecurityAlertTask processes TaskTypeSecurityAlert tasks.
func HandleSecurityAlertTask(ctx context.Context, t *asynq.Task) error {
	var payload SecurityAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: deliver via SMTP once the mail relay is provisioned.
	fmt.Printf("[jobs] security alert for %s reason=%s\n", payload.Email, payload.Reason)
	return nil
}
