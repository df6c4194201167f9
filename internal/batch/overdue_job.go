package batch

import (
	"circulation-engine/internal/domain/circulation"
	"circulation-engine/internal/event"
	"circulation-engine/internal/infrastructure/monitoring"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

const reportActor = "system/overdue-report"

// OverdueReportJob scans the ledger for open loans past their due date and
// publishes one overdue-notice audit entry per loan. It is reporting only:
// overdue status is always computed on read, and bans stay a manual
// administrative action, so the job never mutates loans or members.
type OverdueReportJob struct {
	repo   circulation.Repository
	pub    event.AuditPublisher
	logger *slog.Logger
}

func NewOverdueReportJob(repo circulation.Repository, pub event.AuditPublisher, logger *slog.Logger) *OverdueReportJob {
	if repo == nil || pub == nil || logger == nil {
		panic("OverdueReportJob dependencies cannot be nil")
	}
	return &OverdueReportJob{
		repo:   repo,
		pub:    pub,
		logger: logger.With("job", "OverdueReport"),
	}
}

func (j *OverdueReportJob) Run(ctx context.Context) error {
	startTime := time.Now()
	j.logger.InfoContext(ctx, "Starting overdue loan report job.")

	overdue, err := j.repo.GetOverdueOpenLoans(ctx, startTime)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to get overdue loans, aborting job.", slog.Any("error", err))
		return fmt.Errorf("cannot run job, failed to get overdue loans: %w", err)
	}

	monitoring.SetOverdueLoans(len(overdue))
	j.logger.InfoContext(ctx, "Fetched overdue open loans.", slog.Int("count", len(overdue)))

	if len(overdue) == 0 {
		j.logger.InfoContext(ctx, "No overdue loans found.",
			slog.Duration("duration", time.Since(startTime)))
		return nil
	}

	var publishErrors int
	for _, ln := range overdue {
		select {
		case <-ctx.Done():
			j.logger.WarnContext(ctx, "Overdue report job cancelled mid-run.", slog.Any("error", ctx.Err()))
			return ctx.Err()
		default:
		}

		entry := event.NewAuditEntry(event.ActionOverdueNotice, reportActor, "loan", strconv.FormatInt(ln.ID, 10))
		entry.After = map[string]any{
			"copyId":   ln.CopyID,
			"memberId": ln.MemberID,
			"dueDate":  ln.DueDate,
			"daysLate": int(startTime.Sub(ln.DueDate).Hours() / 24),
		}
		if pubErr := j.pub.PublishAuditEntry(ctx, entry); pubErr != nil {
			j.logger.ErrorContext(ctx, "Failed to publish overdue notice",
				slog.Int64("loanID", ln.ID), slog.Any("error", pubErr))
			publishErrors++
		}
	}

	j.logger.InfoContext(ctx, "Overdue loan report job finished.",
		slog.Int("overdue", len(overdue)),
		slog.Int("publish_errors", publishErrors),
		slog.Duration("duration", time.Since(startTime)))

	if publishErrors > 0 {
		return fmt.Errorf("overdue report finished with %d publish errors", publishErrors)
	}
	return nil
}
