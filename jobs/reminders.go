package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/lumenluz/lumenluz-backoffice/internal/quotations"
	"github.com/lumenluz/lumenluz-backoffice/internal/shared"
)

const reminderPageSize = 100

// QuotationLister pages through quotations for the reminder sweep.
type QuotationLister interface {
	List(ctx context.Context, req quotations.ListRequest) ([]quotations.Quotation, int, error)
}

// ReminderNotifier delivers one payment reminder to a customer. The default
// implementation only logs; a messaging gateway can be swapped in.
type ReminderNotifier interface {
	Notify(ctx context.Context, q quotations.Quotation) error
}

// LogNotifier writes reminders to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, q quotations.Quotation) error {
	n.Logger.Info("payment reminder",
		slog.String("quotation_id", q.ID),
		slog.String("customer", q.CustomerName),
		slog.String("phone", q.Phone),
		slog.String("balance", shared.FormatAmount(q.Balance)),
	)
	return nil
}

// ReminderScanner sweeps open unpaid quotations and emits reminders, at most
// one per quotation within the suppression window.
type ReminderScanner struct {
	lister   QuotationLister
	notifier ReminderNotifier
	redis    *redis.Client
	audit    *shared.AuditLogger
	logger   *slog.Logger
	window   time.Duration
	now      func() time.Time
}

// NewReminderScanner wires the sweep dependencies.
func NewReminderScanner(lister QuotationLister, notifier ReminderNotifier, rdb *redis.Client, audit *shared.AuditLogger, logger *slog.Logger, window time.Duration) *ReminderScanner {
	return &ReminderScanner{
		lister:   lister,
		notifier: notifier,
		redis:    rdb,
		audit:    audit,
		logger:   logger,
		window:   window,
		now:      time.Now,
	}
}

// HandleTask processes one reminder scan task.
func (s *ReminderScanner) HandleTask(ctx context.Context, task *asynq.Task) error {
	var payload PaymentReminderScanPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("reminder scan payload: %w", err)
	}
	if payload.OlderThan <= 0 {
		return fmt.Errorf("reminder scan: older_than must be positive")
	}

	cutoff := s.now().Add(-payload.OlderThan)
	paid := false
	page := 1
	var sent atomic.Int64
	for {
		batch, total, err := s.lister.List(ctx, quotations.ListRequest{
			Paid:    &paid,
			To:      &cutoff,
			Page:    page,
			PerPage: reminderPageSize,
		})
		if err != nil {
			return fmt.Errorf("reminder scan list page %d: %w", page, err)
		}
		if len(batch) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for _, q := range batch {
			g.Go(func() error {
				ok, err := s.remind(gctx, q)
				if err != nil {
					return err
				}
				if ok {
					sent.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if page*reminderPageSize >= total {
			break
		}
		page++
	}

	s.logger.Info("reminder scan done", slog.Int64("sent", sent.Load()))
	return nil
}

func (s *ReminderScanner) remind(ctx context.Context, q quotations.Quotation) (bool, error) {
	acquired, err := s.redis.SetNX(ctx, shared.ReminderKey(q.ID), s.now().Format(time.RFC3339), s.window).Result()
	if err != nil {
		return false, fmt.Errorf("reminder lock %s: %w", q.ID, err)
	}
	if !acquired {
		return false, nil
	}

	if err := s.notifier.Notify(ctx, q); err != nil {
		// Release the lock so the next sweep retries this quotation.
		s.redis.Del(ctx, shared.ReminderKey(q.ID))
		return false, fmt.Errorf("reminder notify %s: %w", q.ID, err)
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			OperatorID: "system",
			Action:     "payment_reminder_sent",
			Entity:     "quotation",
			EntityID:   q.ID,
			Meta: map[string]any{
				"balance": q.Balance,
				"phone":   q.Phone,
			},
		}); err != nil {
			s.logger.Warn("reminder audit", slog.String("quotation_id", q.ID), slog.Any("error", err))
		}
	}
	return true, nil
}
