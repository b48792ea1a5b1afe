// Package notify delivers the outcome of an application run.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// New builds the notifier chain for cfg. The log notifier is always present;
// email is added when enabled.
func New(cfg config.NotifyConfig, logger *zap.Logger) (schemas.Notifier, error) {
	notifiers := Multi{NewLogNotifier(logger)}
	if cfg.Email {
		email, err := NewEmailNotifier(cfg, logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, email)
	}
	return notifiers, nil
}

// Multi fans an event out to every notifier, even when some fail.
type Multi []schemas.Notifier

func (m Multi) Send(ctx context.Context, event schemas.ApplicationEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes the event as a structured log entry.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (l *LogNotifier) Send(_ context.Context, event schemas.ApplicationEvent) error {
	r := event.Report
	fields := []zap.Field{
		zap.String("run_id", event.RunID),
		zap.String("job_url", event.JobURL),
		zap.String("company", event.Job.Company),
		zap.String("position", event.Job.Position),
		zap.String("status", string(schemas.StatusFor(r))),
		zap.Int("fields_filled", r.FieldsFilled),
		zap.Int("total_fields", r.TotalFields),
		zap.Int("attempts", len(r.Attempts)),
	}
	if r.Success {
		l.logger.Info("Application run succeeded.", fields...)
		return nil
	}
	l.logger.Warn("Application run failed.", append(fields, zap.Strings("errors", r.Errors))...)
	return nil
}
