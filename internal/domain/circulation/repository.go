package circulation

import (
	"context"
	"time"

	"circulation-engine/internal/domain/member"

	"github.com/jackc/pgx/v5"
)

// Repository is the circulation ledger: the single writer-of-record for loan
// and copy-availability state. Mutating operations run inside one
// transaction; the *ForUpdate methods take row locks so that concurrent
// operations on the same copy or member serialize. Lock order is always copy
// before member.
type Repository interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)

	CommitTx(ctx context.Context, tx pgx.Tx) error

	RollbackTx(ctx context.Context, tx pgx.Tx) error

	GetCopyForUpdate(ctx context.Context, tx pgx.Tx, copyID int64) (*Copy, error)

	GetMemberForUpdate(ctx context.Context, tx pgx.Tx, memberID int64) (*member.Member, error)

	CountOpenLoansByMemberInTx(ctx context.Context, tx pgx.Tx, memberID int64) (int, error)

	InsertLoanInTx(ctx context.Context, tx pgx.Tx, loan *Loan) (*Loan, error)

	UpdateCopyStatusInTx(ctx context.Context, tx pgx.Tx, copyID int64, status CopyStatus) error

	IncrementMemberTotalLoansInTx(ctx context.Context, tx pgx.Tx, memberID int64) error

	IncrementMemberLateReturnsInTx(ctx context.Context, tx pgx.Tx, memberID int64) error

	FindOpenLoanByCopyForUpdate(ctx context.Context, tx pgx.Tx, copyID int64) (*Loan, error)

	GetLoanForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*Loan, error)

	// CloseLoanInTx sets the return timestamp. The update matches on the
	// loan's version; zero affected rows means a concurrent writer got
	// there first.
	CloseLoanInTx(ctx context.Context, tx pgx.Tx, loanID int64, returnedAt time.Time, operatorID string, version int64) error

	// RenewLoanInTx advances the due date and bumps the renewal count, with
	// the same version match as CloseLoanInTx.
	RenewLoanInTx(ctx context.Context, tx pgx.Tx, loanID int64, newDueDate time.Time, version int64) error

	GetLoanByID(ctx context.Context, loanID int64) (*Loan, error)

	GetCopyByID(ctx context.Context, copyID int64) (*Copy, error)

	GetOpenLoanByCopy(ctx context.Context, copyID int64) (*Loan, error)

	GetLoansByMember(ctx context.Context, memberID int64) ([]*Loan, error)

	GetOverdueOpenLoans(ctx context.Context, asOf time.Time) ([]*Loan, error)
}
