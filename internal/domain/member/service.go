package member

import (
	"circulation-engine/internal/event"
	"circulation-engine/internal/infrastructure/monitoring"
	"circulation-engine/internal/pkg/apperrors"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Service interface {
	GetMember(ctx context.Context, memberID int64) (*Member, error)

	// Ban blocks the member from future checkouts. It does not touch the
	// member's open loans; those stay returnable.
	Ban(ctx context.Context, memberID int64, cause, operatorID string) error

	// Unban lifts the ban. Unbanning a member who is not banned succeeds
	// without effect.
	Unban(ctx context.Context, memberID int64, operatorID string) error
}

var _ Service = (*memberService)(nil)

type memberService struct {
	repo   Repository
	pub    event.AuditPublisher
	logger *slog.Logger
}

func NewService(repo Repository, pub event.AuditPublisher, logger *slog.Logger) Service {
	if repo == nil {
		panic("member repository cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to member.NewService, using default stderr handler")
	}

	return &memberService{
		repo:   repo,
		pub:    pub,
		logger: logger.With(slog.String("component", "memberService")),
	}
}

func (s *memberService) GetMember(ctx context.Context, memberID int64) (*Member, error) {
	s.logger.InfoContext(ctx, "Getting member", slog.Int64("memberID", memberID))

	m, err := s.repo.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "Member not found", slog.Int64("memberID", memberID))
			return nil, fmt.Errorf("%w: member with ID %d not found", apperrors.ErrNotFound, memberID)
		}
		s.logger.ErrorContext(ctx, "Repository failed to find member", slog.Any("error", err))
		return nil, fmt.Errorf("failed to get member %d: %w", memberID, err)
	}
	return m, nil
}

func (s *memberService) Ban(ctx context.Context, memberID int64, cause, operatorID string) error {
	logCtx := s.logger.With(slog.Int64("memberID", memberID), slog.String("operator", operatorID))
	logCtx.InfoContext(ctx, "Attempting to ban member")

	cause = strings.TrimSpace(cause)
	if cause == "" {
		logCtx.WarnContext(ctx, "Validation failed: ban cause is empty")
		return apperrors.NewValidationError("cause", "ban cause cannot be empty")
	}

	m, err := s.repo.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, apperrors.ErrNotFound) {
			logCtx.WarnContext(ctx, "Member not found")
			return fmt.Errorf("%w: member with ID %d not found", apperrors.ErrNotFound, memberID)
		}
		logCtx.ErrorContext(ctx, "Failed to load member before ban", slog.Any("error", err))
		return fmt.Errorf("failed to load member %d: %w", memberID, err)
	}

	wasBanned := m.Banned
	previousCause := m.BanCauseText()

	if err := s.repo.SetBan(ctx, memberID, cause); err != nil {
		logCtx.ErrorContext(ctx, "Repository failed to set ban", slog.Any("error", err))
		monitoring.RecordCirculation("ban", "failure")
		return fmt.Errorf("failed to ban member %d: %w", memberID, err)
	}

	monitoring.RecordCirculation("ban", "success")
	logCtx.InfoContext(ctx, "Member banned", slog.String("cause", cause))

	entry := event.NewAuditEntry(event.ActionBan, operatorID, "member", strconv.FormatInt(memberID, 10))
	entry.Before = map[string]any{"banned": wasBanned, "cause": previousCause}
	entry.After = map[string]any{"banned": true, "cause": cause}
	if pubErr := s.pub.PublishAuditEntry(ctx, entry); pubErr != nil {
		logCtx.ErrorContext(ctx, "Member banned, but FAILED to publish audit entry", slog.Any("error", pubErr))
	}
	return nil
}

func (s *memberService) Unban(ctx context.Context, memberID int64, operatorID string) error {
	logCtx := s.logger.With(slog.Int64("memberID", memberID), slog.String("operator", operatorID))
	logCtx.InfoContext(ctx, "Attempting to unban member")

	m, err := s.repo.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, apperrors.ErrNotFound) {
			logCtx.WarnContext(ctx, "Member not found")
			return fmt.Errorf("%w: member with ID %d not found", apperrors.ErrNotFound, memberID)
		}
		logCtx.ErrorContext(ctx, "Failed to load member before unban", slog.Any("error", err))
		return fmt.Errorf("failed to load member %d: %w", memberID, err)
	}

	if !m.Banned {
		logCtx.InfoContext(ctx, "Member is not banned, unban is a no-op")
		return nil
	}

	previousCause := m.BanCauseText()
	if err := s.repo.ClearBan(ctx, memberID); err != nil {
		logCtx.ErrorContext(ctx, "Repository failed to clear ban", slog.Any("error", err))
		monitoring.RecordCirculation("unban", "failure")
		return fmt.Errorf("failed to unban member %d: %w", memberID, err)
	}

	monitoring.RecordCirculation("unban", "success")
	logCtx.InfoContext(ctx, "Member unbanned")

	entry := event.NewAuditEntry(event.ActionUnban, operatorID, "member", strconv.FormatInt(memberID, 10))
	entry.Before = map[string]any{"banned": true, "cause": previousCause}
	entry.After = map[string]any{"banned": false}
	if pubErr := s.pub.PublishAuditEntry(ctx, entry); pubErr != nil {
		logCtx.ErrorContext(ctx, "Member unbanned, but FAILED to publish audit entry", slog.Any("error", pubErr))
	}
	return nil
}
