package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Queue and task type names.
const (
	QueueDefault = "default"

	TaskPaymentReminderScan = "quotations:payment_reminder_scan"
	TaskIdempotencyCleanup  = "maintenance:idempotency_cleanup"
)

// PaymentReminderScanPayload parameterises one reminder sweep.
type PaymentReminderScanPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewPaymentReminderScanTask builds the reminder sweep task.
func NewPaymentReminderScanTask(payload PaymentReminderScanPayload) (*asynq.Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentReminderScan, raw), nil
}

// IdempotencyCleanupPayload parameterises key retention.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, raw), nil
}
