package postgres

import (
	"circulation-engine/internal/domain/circulation"
	"circulation-engine/internal/domain/member"
	"circulation-engine/internal/infrastructure/monitoring"
	"circulation-engine/internal/pkg/apperrors"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pashagolub/pgxmock/v4"
)

type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

var _ DBPool = (*pgxpool.Pool)(nil)

var _ DBPool = (pgxmock.PgxPoolIface)(nil)

var errMsgFormat = "%w: %w"

const loanColumns = `id, copy_id, member_id, checked_out_at, due_date, returned_at, renewal_count, checkout_operator, return_operator, version, created_at, updated_at`

type CirculationRepository struct {
	db     DBPool
	logger *slog.Logger
}

func NewCirculationRepository(db DBPool, logger *slog.Logger) *CirculationRepository {
	return &CirculationRepository{db: db, logger: logger.With("component", "CirculationRepository")}
}

func (r *CirculationRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to begin transaction", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return tx, nil
}

func (r *CirculationRepository) CommitTx(ctx context.Context, tx pgx.Tx) error {
	err := tx.Commit(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

func (r *CirculationRepository) RollbackTx(ctx context.Context, tx pgx.Tx) error {
	err := tx.Rollback(ctx)

	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.ErrorContext(ctx, "Failed to rollback transaction", "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

// GetCopyForUpdate locks the copy row for the rest of the transaction. This
// is the per-copy critical section: two concurrent checkouts of the same
// copy serialize here, so the second one sees the flipped status.
func (r *CirculationRepository) GetCopyForUpdate(ctx context.Context, tx pgx.Tx, copyID int64) (*circulation.Copy, error) {
	query := `
        SELECT id, barcode, title, status, created_at, updated_at
        FROM copies
        WHERE id = $1
        FOR UPDATE`

	var cp circulation.Copy
	err := tx.QueryRow(ctx, query, copyID).Scan(
		&cp.CopyID, &cp.Barcode, &cp.Title, &cp.Status, &cp.CreatedAt, &cp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Copy not found", "copy_id", copyID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to lock copy", "copy_id", copyID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return &cp, nil
}

// GetMemberForUpdate locks the member row. Always called after the copy lock
// so concurrent transactions take the two locks in the same order.
func (r *CirculationRepository) GetMemberForUpdate(ctx context.Context, tx pgx.Tx, memberID int64) (*member.Member, error) {
	query := `
        SELECT id, card_number, name, membership_start, membership_end, banned, ban_cause, banned_at, total_loans, late_returns, created_at, updated_at
        FROM members
        WHERE id = $1
        FOR UPDATE`

	var m member.Member
	err := tx.QueryRow(ctx, query, memberID).Scan(
		&m.MemberID, &m.CardNumber, &m.Name, &m.MembershipStart, &m.MembershipEnd,
		&m.Banned, &m.BanCause, &m.BannedAt, &m.TotalLoans, &m.LateReturns,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Member not found", "member_id", memberID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to lock member", "member_id", memberID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return &m, nil
}

func (r *CirculationRepository) CountOpenLoansByMemberInTx(ctx context.Context, tx pgx.Tx, memberID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM loans WHERE member_id = $1 AND returned_at IS NULL`
	err := tx.QueryRow(ctx, query, memberID).Scan(&count)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to count open loans", "member_id", memberID, "error", err)
		return 0, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return count, nil
}

func (r *CirculationRepository) InsertLoanInTx(ctx context.Context, tx pgx.Tx, newLoan *circulation.Loan) (*circulation.Loan, error) {
	loanSQL := `
        INSERT INTO loans (copy_id, member_id, checked_out_at, due_date, renewal_count, checkout_operator, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, 1, NOW(), NOW())
        RETURNING ` + loanColumns

	created, err := scanLoan(tx.QueryRow(ctx, loanSQL,
		newLoan.CopyID, newLoan.MemberID, newLoan.CheckedOutAt, newLoan.DueDate,
		newLoan.RenewalCount, newLoan.CheckoutOperator,
	))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert loan", "copy_id", newLoan.CopyID, "error", err)
		return nil, translateDBError(err, r.logger)
	}
	r.logger.InfoContext(ctx, "Loan created in DB", "loan_id", created.ID, "copy_id", created.CopyID)
	return created, nil
}

func (r *CirculationRepository) UpdateCopyStatusInTx(ctx context.Context, tx pgx.Tx, copyID int64, status circulation.CopyStatus) error {
	sql := `UPDATE copies SET status = $1, updated_at = NOW() WHERE id = $2`
	cmdTag, err := tx.Exec(ctx, sql, status, copyID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update copy status", "copy_id", copyID, "status", status, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() != 1 {
		r.logger.ErrorContext(ctx, "Copy status update affected zero rows", "copy_id", copyID, "status", status)
		return fmt.Errorf("%w: copy status update affected zero rows", apperrors.ErrDatabase)
	}
	return nil
}

func (r *CirculationRepository) IncrementMemberTotalLoansInTx(ctx context.Context, tx pgx.Tx, memberID int64) error {
	sql := `UPDATE members SET total_loans = total_loans + 1, updated_at = NOW() WHERE id = $1`
	cmdTag, err := tx.Exec(ctx, sql, memberID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to increment total loans", "member_id", memberID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() != 1 {
		return fmt.Errorf("%w: member counter update affected zero rows", apperrors.ErrDatabase)
	}
	return nil
}

func (r *CirculationRepository) IncrementMemberLateReturnsInTx(ctx context.Context, tx pgx.Tx, memberID int64) error {
	sql := `UPDATE members SET late_returns = late_returns + 1, updated_at = NOW() WHERE id = $1`
	cmdTag, err := tx.Exec(ctx, sql, memberID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to increment late returns", "member_id", memberID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() != 1 {
		return fmt.Errorf("%w: member counter update affected zero rows", apperrors.ErrDatabase)
	}
	return nil
}

func (r *CirculationRepository) FindOpenLoanByCopyForUpdate(ctx context.Context, tx pgx.Tx, copyID int64) (*circulation.Loan, error) {
	query := `
        SELECT ` + loanColumns + `
        FROM loans
        WHERE copy_id = $1 AND returned_at IS NULL
        FOR UPDATE`

	ln, err := scanLoan(tx.QueryRow(ctx, query, copyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.InfoContext(ctx, "No open loan found for copy", "copy_id", copyID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to find/lock open loan", "copy_id", copyID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return ln, nil
}

func (r *CirculationRepository) GetLoanForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*circulation.Loan, error) {
	query := `
        SELECT ` + loanColumns + `
        FROM loans
        WHERE id = $1
        FOR UPDATE`

	ln, err := scanLoan(tx.QueryRow(ctx, query, loanID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Loan not found", "loan_id", loanID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to lock loan", "loan_id", loanID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return ln, nil
}

func (r *CirculationRepository) CloseLoanInTx(ctx context.Context, tx pgx.Tx, loanID int64, returnedAt time.Time, operatorID string, version int64) error {
	sql := `
        UPDATE loans
        SET returned_at = $1, return_operator = $2, version = version + 1, updated_at = NOW()
        WHERE id = $3 AND version = $4 AND returned_at IS NULL`

	cmdTag, err := tx.Exec(ctx, sql, returnedAt, operatorID, loanID, version)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to close loan", "loan_id", loanID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() != 1 {
		r.logger.WarnContext(ctx, "Loan close matched zero rows, version conflict", "loan_id", loanID, "expected_version", version)
		return fmt.Errorf("%w: loan %d version mismatch", apperrors.ErrConflict, loanID)
	}
	return nil
}

func (r *CirculationRepository) RenewLoanInTx(ctx context.Context, tx pgx.Tx, loanID int64, newDueDate time.Time, version int64) error {
	sql := `
        UPDATE loans
        SET due_date = $1, renewal_count = renewal_count + 1, version = version + 1, updated_at = NOW()
        WHERE id = $2 AND version = $3 AND returned_at IS NULL`

	cmdTag, err := tx.Exec(ctx, sql, newDueDate, loanID, version)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to renew loan", "loan_id", loanID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() != 1 {
		r.logger.WarnContext(ctx, "Loan renewal matched zero rows, version conflict", "loan_id", loanID, "expected_version", version)
		return fmt.Errorf("%w: loan %d version mismatch", apperrors.ErrConflict, loanID)
	}
	r.logger.InfoContext(ctx, "Loan renewed in DB", "loan_id", loanID, "new_due_date", newDueDate)
	return nil
}

func (r *CirculationRepository) GetLoanByID(ctx context.Context, loanID int64) (*circulation.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	status := "success"
	startTime := time.Now()

	ln, err := scanLoan(r.db.QueryRow(ctx, query, loanID))

	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetLoanByID", status, time.Since(startTime))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Loan not found", "loan_id", loanID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to get loan by ID", "loan_id", loanID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return ln, nil
}

func (r *CirculationRepository) GetCopyByID(ctx context.Context, copyID int64) (*circulation.Copy, error) {
	query := `
        SELECT id, barcode, title, status, created_at, updated_at
        FROM copies
        WHERE id = $1`
	status := "success"
	startTime := time.Now()

	var cp circulation.Copy
	err := r.db.QueryRow(ctx, query, copyID).Scan(
		&cp.CopyID, &cp.Barcode, &cp.Title, &cp.Status, &cp.CreatedAt, &cp.UpdatedAt,
	)

	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetCopyByID", status, time.Since(startTime))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Copy not found", "copy_id", copyID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to get copy by ID", "copy_id", copyID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return &cp, nil
}

func (r *CirculationRepository) GetOpenLoanByCopy(ctx context.Context, copyID int64) (*circulation.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE copy_id = $1 AND returned_at IS NULL`

	ln, err := scanLoan(r.db.QueryRow(ctx, query, copyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to get open loan by copy", "copy_id", copyID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return ln, nil
}

func (r *CirculationRepository) GetLoansByMember(ctx context.Context, memberID int64) ([]*circulation.Loan, error) {
	query := `
        SELECT ` + loanColumns + `
        FROM loans
        WHERE member_id = $1
        ORDER BY checked_out_at DESC`

	rows, err := r.db.Query(ctx, query, memberID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query loans by member", "member_id", memberID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	return collectLoans(rows, r.logger, ctx)
}

func (r *CirculationRepository) GetOverdueOpenLoans(ctx context.Context, asOf time.Time) ([]*circulation.Loan, error) {
	query := `
        SELECT ` + loanColumns + `
        FROM loans
        WHERE returned_at IS NULL AND due_date < $1
        ORDER BY due_date ASC`

	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query overdue loans", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	return collectLoans(rows, r.logger, ctx)
}

func scanLoan(row pgx.Row) (*circulation.Loan, error) {
	var ln circulation.Loan
	err := row.Scan(
		&ln.ID, &ln.CopyID, &ln.MemberID, &ln.CheckedOutAt, &ln.DueDate,
		&ln.ReturnedAt, &ln.RenewalCount, &ln.CheckoutOperator, &ln.ReturnOperator,
		&ln.Version, &ln.CreatedAt, &ln.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ln, nil
}

func collectLoans(rows pgx.Rows, logger *slog.Logger, ctx context.Context) ([]*circulation.Loan, error) {
	loans := make([]*circulation.Loan, 0)
	for rows.Next() {
		ln, err := scanLoan(rows)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to scan loan row", "error", err)
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		loans = append(loans, ln)
	}

	if err := rows.Err(); err != nil {
		logger.ErrorContext(ctx, "Error iterating loan rows", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return loans, nil
}

func translateDBError(err error, contextLogger *slog.Logger) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {

		if pgErr.Code == "23505" {
			contextLogger.Warn("Database unique constraint violation", "detail", pgErr.Detail, "constraint", pgErr.ConstraintName)
			return fmt.Errorf("%w: %s", apperrors.ErrConflict, pgErr.ConstraintName)
		}

		contextLogger.Error("PostgreSQL specific error", "code", pgErr.Code, "message", pgErr.Message, "detail", pgErr.Detail)
		return fmt.Errorf("%w: db error code %s", apperrors.ErrDatabase, pgErr.Code)
	}

	contextLogger.Error("Generic database error", "error", err)
	return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
}
