package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/pharmaos/pharmaos/internal/trace"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeRecallNotice is the task type for recall notifications.
	TaskTypeRecallNotice = "recall:notify"
)

// NewRecallNoticeTask constructs an Asynq task from a recall notice.
func NewRecallNoticeTask(notice trace.RecallNotice) (*asynq.Task, error) {
	data, err := json.Marshal(notice)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRecallNotice, data), nil
}

// RecallNotifier delivers recall notices to the affected customers.
type RecallNotifier struct {
	logger *slog.Logger
	mailer Mailer
}

// NewRecallNotifier constructs the task handler.
func NewRecallNotifier(logger *slog.Logger, mailer Mailer) *RecallNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if mailer == nil {
		mailer = NewLoggingMailer(logger)
	}
	return &RecallNotifier{logger: logger, mailer: mailer}
}

// HandleRecallNotice processes TaskTypeRecallNotice tasks. A malformed
// payload is dropped instead of retried.
func (n *RecallNotifier) HandleRecallNotice(ctx context.Context, t *asynq.Task) error {
	var notice trace.RecallNotice
	if err := json.Unmarshal(t.Payload(), &notice); err != nil {
		n.logger.Error("recall notice payload", slog.Any("error", err))
		return asynq.SkipRetry
	}
	if len(notice.Recipients) == 0 {
		n.logger.Warn("recall notice without recipients", slog.String("batch", notice.BatchNumber))
		return nil
	}
	subject := fmt.Sprintf("URGENT: Product Recall - %s (Batch %s)", notice.ProductName, notice.BatchNumber)
	body := renderRecallNotice(notice)
	if err := n.mailer.Send(ctx, notice.Recipients, subject, body); err != nil {
		return fmt.Errorf("send recall notice: %w", err)
	}
	n.logger.Info("recall notice sent",
		slog.String("batch", notice.BatchNumber),
		slog.Int("recipients", len(notice.Recipients)),
	)
	return nil
}

func renderRecallNotice(notice trace.RecallNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A recall has been initiated for %s, batch %s.\n\n", notice.ProductName, notice.BatchNumber)
	b.WriteString("Please quarantine any remaining units immediately and contact your distributor for return instructions.\n")
	if notice.InitiatedBy != "" {
		fmt.Fprintf(&b, "\nInitiated by: %s\n", notice.InitiatedBy)
	}
	return b.String()
}
