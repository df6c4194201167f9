package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"circulation-engine/internal/domain/member"
	"circulation-engine/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
)

const memberColumns = `id, card_number, name, membership_start, membership_end, banned, ban_cause, banned_at, total_loans, late_returns, created_at, updated_at`

type MemberRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ member.Repository = (*MemberRepository)(nil)

func NewMemberRepository(db DBPool, logger *slog.Logger) *MemberRepository {
	if db == nil {
		panic("DBPool cannot be nil for MemberRepository")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewMemberRepository, using default stderr handler")
	}
	return &MemberRepository{
		db:     db,
		logger: logger.With("component", "MemberRepository"),
	}
}

func (r *MemberRepository) Save(ctx context.Context, m *member.Member) error {
	if m == nil {
		return fmt.Errorf("%w: member cannot be nil", apperrors.ErrInvalidArgument)
	}

	if m.MemberID == 0 {
		return r.createMember(ctx, m)
	}
	return r.updateMember(ctx, m)
}

func (r *MemberRepository) createMember(ctx context.Context, m *member.Member) error {
	r.logger.InfoContext(ctx, "Attempting to insert new member", slog.String("card_number", m.CardNumber))

	query := `
        INSERT INTO members (card_number, name, membership_start, membership_end, banned, ban_cause, banned_at, total_loans, late_returns, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		m.CardNumber,
		m.Name,
		m.MembershipStart,
		m.MembershipEnd,
		m.Banned,
		m.BanCause,
		m.BannedAt,
		m.TotalLoans,
		m.LateReturns,
	).Scan(
		&m.MemberID,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	if err != nil {
		translatedErr := translateDBError(err, r.logger)
		if errors.Is(translatedErr, apperrors.ErrConflict) {
			r.logger.WarnContext(ctx, "Failed to insert member due to unique constraint violation", slog.String("card_number", m.CardNumber))
			return translatedErr
		}
		r.logger.ErrorContext(ctx, "Failed to insert member", slog.Any("error", err))
		return fmt.Errorf("%w: failed to insert member: %w", apperrors.ErrDatabase, err)
	}

	r.logger.InfoContext(ctx, "Member inserted successfully", slog.Int64("memberID", m.MemberID))
	return nil
}

func (r *MemberRepository) updateMember(ctx context.Context, m *member.Member) error {
	r.logger.InfoContext(ctx, "Attempting to update member", slog.Int64("memberID", m.MemberID))

	query := `
        UPDATE members
        SET card_number = $1,
            name = $2,
            membership_start = $3,
            membership_end = $4,
            banned = $5,
            ban_cause = $6,
            banned_at = $7,
            updated_at = NOW()
        WHERE id = $8`

	cmdTag, err := r.db.Exec(ctx, query,
		m.CardNumber,
		m.Name,
		m.MembershipStart,
		m.MembershipEnd,
		m.Banned,
		m.BanCause,
		m.BannedAt,
		m.MemberID,
	)

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update member", slog.Any("error", err))
		return translateDBError(err, r.logger)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Member update affected zero rows", slog.Int64("memberID", m.MemberID))
		return member.ErrNotFound
	}
	return nil
}

func (r *MemberRepository) FindByID(ctx context.Context, memberID int64) (*member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`

	m, err := scanMember(r.db.QueryRow(ctx, query, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Member not found", "member_id", memberID)
			return nil, member.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to find member by ID", "member_id", memberID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return m, nil
}

func (r *MemberRepository) FindByCardNumber(ctx context.Context, cardNumber string) (*member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE card_number = $1`

	m, err := scanMember(r.db.QueryRow(ctx, query, cardNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Member not found by card number", "card_number", cardNumber)
			return nil, member.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to find member by card number", "card_number", cardNumber, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return m, nil
}

func (r *MemberRepository) SetBan(ctx context.Context, memberID int64, cause string) error {
	query := `
        UPDATE members
        SET banned = TRUE, ban_cause = $1, banned_at = NOW(), updated_at = NOW()
        WHERE id = $2`

	cmdTag, err := r.db.Exec(ctx, query, cause, memberID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to set ban", "member_id", memberID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Ban update affected zero rows", "member_id", memberID)
		return member.ErrNotFound
	}
	r.logger.InfoContext(ctx, "Member ban set in DB", "member_id", memberID)
	return nil
}

func (r *MemberRepository) ClearBan(ctx context.Context, memberID int64) error {
	query := `
        UPDATE members
        SET banned = FALSE, ban_cause = NULL, banned_at = NULL, updated_at = NOW()
        WHERE id = $1`

	cmdTag, err := r.db.Exec(ctx, query, memberID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to clear ban", "member_id", memberID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Ban clear affected zero rows", "member_id", memberID)
		return member.ErrNotFound
	}
	r.logger.InfoContext(ctx, "Member ban cleared in DB", "member_id", memberID)
	return nil
}

func scanMember(row pgx.Row) (*member.Member, error) {
	var m member.Member
	err := row.Scan(
		&m.MemberID, &m.CardNumber, &m.Name, &m.MembershipStart, &m.MembershipEnd,
		&m.Banned, &m.BanCause, &m.BannedAt, &m.TotalLoans, &m.LateReturns,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
