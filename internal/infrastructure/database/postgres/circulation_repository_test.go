package postgres

import (
	"circulation-engine/internal/domain/circulation"
	"circulation-engine/internal/pkg/apperrors"
	"context"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

const pgxmockExpectationsNotMetMsg = "pgxmock expectations were not met"

var (
	checkedOutAt = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	dueDate      = checkedOutAt.AddDate(0, 0, 14)
	createdAt    = checkedOutAt
	updatedAt    = checkedOutAt
)

func setupCirculationRepo(t *testing.T) (context.Context, *CirculationRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to open a stub database connection: %v", err)
	}

	ctx := context.Background()
	repo := NewCirculationRepository(mockPool, logger)

	return ctx, repo, mockPool
}

func loanRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "copy_id", "member_id", "checked_out_at", "due_date", "returned_at",
		"renewal_count", "checkout_operator", "return_operator", "version", "created_at", "updated_at",
	})
}

func TestGetCopyForUpdate(t *testing.T) {
	ctx, repo, mockPool := setupCirculationRepo(t)
	defer mockPool.Close()

	query := `
        SELECT id, barcode, title, status, created_at, updated_at
        FROM copies
        WHERE id = $1
        FOR UPDATE`

	t.Run("locks and returns the copy", func(t *testing.T) {
		mockPool.ExpectBegin()
		mockPool.ExpectQuery(regexp.QuoteMeta(query)).WithArgs(int64(1)).
			WillReturnRows(pgxmock.NewRows([]string{"id", "barcode", "title", "status", "created_at", "updated_at"}).
				AddRow(int64(1), "BC-001", "Le Petit Prince", "AVAILABLE", createdAt, updatedAt))

		tx, err := repo.BeginTx(ctx)
		require.NoError(t, err)

		cp, err := repo.GetCopyForUpdate(ctx, tx, 1)

		require.NoError(t, err)
		assert.Equal(t, int64(1), cp.CopyID)
		assert.Equal(t, circulation.CopyStatusAvailable, cp.Status)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})

	t.Run("unknown copy maps to not found", func(t *testing.T) {
		mockPool.ExpectBegin()
		mockPool.ExpectQuery(regexp.QuoteMeta(query)).WithArgs(int64(99)).WillReturnError(pgx.ErrNoRows)

		tx, err := repo.BeginTx(ctx)
		require.NoError(t, err)

		_, err = repo.GetCopyForUpdate(ctx, tx, 99)

		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})
}

func TestInsertLoanInTx(t *testing.T) {
	ctx, repo, mockPool := setupCirculationRepo(t)
	defer mockPool.Close()

	newLoan := circulation.NewLoan(1, 2, "op-1", checkedOutAt, circulation.Policy{LoanPeriodDays: 14, MaxRenewals: 2, MaxConcurrentLoans: 5})

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(regexp.QuoteMeta(`INSERT INTO loans`)).WithArgs(
		newLoan.CopyID, newLoan.MemberID, newLoan.CheckedOutAt, newLoan.DueDate,
		newLoan.RenewalCount, newLoan.CheckoutOperator,
	).WillReturnRows(loanRows().
		AddRow(int64(10), int64(1), int64(2), checkedOutAt, dueDate, nil, 0, "op-1", nil, int64(1), createdAt, updatedAt))

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)

	created, err := repo.InsertLoanInTx(ctx, tx, newLoan)

	require.NoError(t, err)
	assert.Equal(t, int64(10), created.ID)
	assert.Equal(t, int64(1), created.Version)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestCloseLoanInTx(t *testing.T) {
	ctx, repo, mockPool := setupCirculationRepo(t)
	defer mockPool.Close()

	query := `
        UPDATE loans
        SET returned_at = $1, return_operator = $2, version = version + 1, updated_at = NOW()
        WHERE id = $3 AND version = $4 AND returned_at IS NULL`

	returnedAt := dueDate.AddDate(0, 0, 2)

	t.Run("closes the loan", func(t *testing.T) {
		mockPool.ExpectBegin()
		mockPool.ExpectExec(regexp.QuoteMeta(query)).
			WithArgs(returnedAt, "op-1", int64(10), int64(1)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		tx, err := repo.BeginTx(ctx)
		require.NoError(t, err)

		err = repo.CloseLoanInTx(ctx, tx, 10, returnedAt, "op-1", 1)

		assert.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})

	t.Run("stale version maps to conflict", func(t *testing.T) {
		mockPool.ExpectBegin()
		mockPool.ExpectExec(regexp.QuoteMeta(query)).
			WithArgs(returnedAt, "op-1", int64(10), int64(1)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		tx, err := repo.BeginTx(ctx)
		require.NoError(t, err)

		err = repo.CloseLoanInTx(ctx, tx, 10, returnedAt, "op-1", 1)

		assert.ErrorIs(t, err, apperrors.ErrConflict)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})
}

func TestRenewLoanInTx(t *testing.T) {
	ctx, repo, mockPool := setupCirculationRepo(t)
	defer mockPool.Close()

	query := `
        UPDATE loans
        SET due_date = $1, renewal_count = renewal_count + 1, version = version + 1, updated_at = NOW()
        WHERE id = $2 AND version = $3 AND returned_at IS NULL`

	newDue := dueDate.AddDate(0, 0, 14)

	t.Run("advances the due date", func(t *testing.T) {
		mockPool.ExpectBegin()
		mockPool.ExpectExec(regexp.QuoteMeta(query)).
			WithArgs(newDue, int64(10), int64(1)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		tx, err := repo.BeginTx(ctx)
		require.NoError(t, err)

		err = repo.RenewLoanInTx(ctx, tx, 10, newDue, 1)

		assert.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})

	t.Run("stale version maps to conflict", func(t *testing.T) {
		mockPool.ExpectBegin()
		mockPool.ExpectExec(regexp.QuoteMeta(query)).
			WithArgs(newDue, int64(10), int64(1)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		tx, err := repo.BeginTx(ctx)
		require.NoError(t, err)

		err = repo.RenewLoanInTx(ctx, tx, 10, newDue, 1)

		assert.ErrorIs(t, err, apperrors.ErrConflict)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})
}

func TestFindOpenLoanByCopyForUpdate(t *testing.T) {
	ctx, repo, mockPool := setupCirculationRepo(t)
	defer mockPool.Close()

	t.Run("returns the open loan", func(t *testing.T) {
		mockPool.ExpectBegin()
		mockPool.ExpectQuery(regexp.QuoteMeta(`FROM loans`)).WithArgs(int64(1)).
			WillReturnRows(loanRows().
				AddRow(int64(10), int64(1), int64(2), checkedOutAt, dueDate, nil, 0, "op-1", nil, int64(1), createdAt, updatedAt))

		tx, err := repo.BeginTx(ctx)
		require.NoError(t, err)

		ln, err := repo.FindOpenLoanByCopyForUpdate(ctx, tx, 1)

		require.NoError(t, err)
		assert.Equal(t, int64(10), ln.ID)
		assert.True(t, ln.IsOpen())
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})

	t.Run("no open loan maps to not found", func(t *testing.T) {
		mockPool.ExpectBegin()
		mockPool.ExpectQuery(regexp.QuoteMeta(`FROM loans`)).WithArgs(int64(1)).WillReturnError(pgx.ErrNoRows)

		tx, err := repo.BeginTx(ctx)
		require.NoError(t, err)

		_, err = repo.FindOpenLoanByCopyForUpdate(ctx, tx, 1)

		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})
}

func TestCountOpenLoansByMemberInTx(t *testing.T) {
	ctx, repo, mockPool := setupCirculationRepo(t)
	defer mockPool.Close()

	mockPool.ExpectBegin()
	mockPool.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM loans WHERE member_id = $1 AND returned_at IS NULL`)).
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)

	count, err := repo.CountOpenLoansByMemberInTx(ctx, tx, 2)

	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestUpdateCopyStatusInTx(t *testing.T) {
	ctx, repo, mockPool := setupCirculationRepo(t)
	defer mockPool.Close()

	query := `UPDATE copies SET status = $1, updated_at = NOW() WHERE id = $2`

	mockPool.ExpectBegin()
	mockPool.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs(circulation.CopyStatusOnLoan, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)

	err = repo.UpdateCopyStatusInTx(ctx, tx, 1, circulation.CopyStatusOnLoan)

	assert.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestGetLoanByID(t *testing.T) {
	ctx, repo, mockPool := setupCirculationRepo(t)
	defer mockPool.Close()

	t.Run("returns the loan", func(t *testing.T) {
		mockPool.ExpectQuery(regexp.QuoteMeta(`FROM loans WHERE id = $1`)).WithArgs(int64(10)).
			WillReturnRows(loanRows().
				AddRow(int64(10), int64(1), int64(2), checkedOutAt, dueDate, nil, 1, "op-1", nil, int64(2), createdAt, updatedAt))

		ln, err := repo.GetLoanByID(ctx, 10)

		require.NoError(t, err)
		assert.Equal(t, int64(10), ln.ID)
		assert.Equal(t, 1, ln.RenewalCount)
		assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
	})

	t.Run("unknown loan maps to not found", func(t *testing.T) {
		mockPool.ExpectQuery(regexp.QuoteMeta(`FROM loans WHERE id = $1`)).WithArgs(int64(99)).WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetLoanByID(ctx, 99)

		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestGetLoansByMember(t *testing.T) {
	ctx, repo, mockPool := setupCirculationRepo(t)
	defer mockPool.Close()

	returnedAt := dueDate.AddDate(0, 0, -1)
	op := "op-1"

	mockPool.ExpectQuery(regexp.QuoteMeta(`WHERE member_id = $1`)).WithArgs(int64(2)).
		WillReturnRows(loanRows().
			AddRow(int64(11), int64(3), int64(2), checkedOutAt, dueDate, nil, 0, "op-1", nil, int64(1), createdAt, updatedAt).
			AddRow(int64(10), int64(1), int64(2), checkedOutAt, dueDate, &returnedAt, 0, "op-1", &op, int64(2), createdAt, updatedAt))

	loans, err := repo.GetLoansByMember(ctx, 2)

	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.True(t, loans[0].IsOpen())
	assert.False(t, loans[1].IsOpen())
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestGetOverdueOpenLoans(t *testing.T) {
	ctx, repo, mockPool := setupCirculationRepo(t)
	defer mockPool.Close()

	asOf := dueDate.AddDate(0, 0, 5)

	mockPool.ExpectQuery(regexp.QuoteMeta(`WHERE returned_at IS NULL AND due_date < $1`)).WithArgs(asOf).
		WillReturnRows(loanRows().
			AddRow(int64(10), int64(1), int64(2), checkedOutAt, dueDate, nil, 0, "op-1", nil, int64(1), createdAt, updatedAt))

	loans, err := repo.GetOverdueOpenLoans(ctx, asOf)

	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.True(t, loans[0].IsOverdue(asOf))
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}
