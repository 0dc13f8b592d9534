package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lumenluz/lumenluz-backoffice/internal/shared"
)

// IdempotencyCleaner prunes expired idempotency keys on a schedule.
type IdempotencyCleaner struct {
	store  *shared.IdempotencyStore
	logger *slog.Logger
}

// NewIdempotencyCleaner wires the cleanup handler.
func NewIdempotencyCleaner(store *shared.IdempotencyStore, logger *slog.Logger) *IdempotencyCleaner {
	return &IdempotencyCleaner{store: store, logger: logger}
}

// HandleTask processes one cleanup task.
func (c *IdempotencyCleaner) HandleTask(ctx context.Context, task *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("idempotency cleanup payload: %w", err)
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if err := c.store.Cleanup(ctx, retention); err != nil {
		return fmt.Errorf("idempotency cleanup: %w", err)
	}
	c.logger.Info("idempotency cleanup done", slog.Duration("retention", retention))
	return nil
}
