package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"circulation-engine/internal/domain/circulation"
	"circulation-engine/internal/infrastructure/monitoring"
	"circulation-engine/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
)

// PolicyRepository reads the highest-version policy row. The engine never
// writes policies except to seed the defaults on first start; policy changes
// are an administrative INSERT of a new version.
type PolicyRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ circulation.PolicyProvider = (*PolicyRepository)(nil)

func NewPolicyRepository(db DBPool, logger *slog.Logger) *PolicyRepository {
	if db == nil {
		panic("DBPool cannot be nil for PolicyRepository")
	}
	return &PolicyRepository{
		db:     db,
		logger: logger.With("component", "PolicyRepository"),
	}
}

func (r *PolicyRepository) Current(ctx context.Context) (circulation.Policy, error) {
	query := `
        SELECT version, loan_period_days, max_renewals, max_concurrent_loans
        FROM policies
        ORDER BY version DESC
        LIMIT 1`
	status := "success"
	startTime := time.Now()

	var pol circulation.Policy
	err := r.db.QueryRow(ctx, query).Scan(
		&pol.Version, &pol.LoanPeriodDays, &pol.MaxRenewals, &pol.MaxConcurrentLoans,
	)

	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetCurrentPolicy", status, time.Since(startTime))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.ErrorContext(ctx, "No policy row found, engine is not seeded")
			return circulation.Policy{}, fmt.Errorf("%w: no loan policy configured", apperrors.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to read current policy", "error", err)
		return circulation.Policy{}, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return pol, nil
}

// EnsureSeeded inserts the configured default policy as version 1 when the
// policies table is empty.
func (r *PolicyRepository) EnsureSeeded(ctx context.Context, pol circulation.Policy) error {
	if err := pol.Validate(); err != nil {
		return err
	}

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM policies`).Scan(&count); err != nil {
		r.logger.ErrorContext(ctx, "Failed to count policy rows", "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if count > 0 {
		return nil
	}

	insertSQL := `
        INSERT INTO policies (version, loan_period_days, max_renewals, max_concurrent_loans, created_at)
        VALUES (1, $1, $2, $3, NOW())`

	if _, err := r.db.Exec(ctx, insertSQL, pol.LoanPeriodDays, pol.MaxRenewals, pol.MaxConcurrentLoans); err != nil {
		r.logger.ErrorContext(ctx, "Failed to seed default policy", "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	r.logger.InfoContext(ctx, "Seeded default loan policy",
		"loan_period_days", pol.LoanPeriodDays,
		"max_renewals", pol.MaxRenewals,
		"max_concurrent_loans", pol.MaxConcurrentLoans)
	return nil
}
