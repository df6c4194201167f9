package circulation

import (
	"context"
	"fmt"

	"circulation-engine/internal/pkg/apperrors"
)

// Policy is the loan policy in force: how long a loan runs, how often it can
// be renewed, and how many copies one member may hold at once. Every engine
// operation snapshots the policy once at the start and uses that snapshot
// throughout, so a concurrent policy change cannot split one decision across
// two policy versions.
type Policy struct {
	LoanPeriodDays     int   `json:"loanPeriodDays"`
	MaxRenewals        int   `json:"maxRenewals"`
	MaxConcurrentLoans int   `json:"maxConcurrentLoans"`
	Version            int64 `json:"version"`
}

func (p Policy) Validate() error {
	if p.LoanPeriodDays <= 0 {
		return fmt.Errorf("%w: loan period must be positive", apperrors.ErrInvalidArgument)
	}
	if p.MaxRenewals < 0 {
		return fmt.Errorf("%w: max renewals cannot be negative", apperrors.ErrInvalidArgument)
	}
	if p.MaxConcurrentLoans <= 0 {
		return fmt.Errorf("%w: max concurrent loans must be positive", apperrors.ErrInvalidArgument)
	}
	return nil
}

type PolicyProvider interface {
	Current(ctx context.Context) (Policy, error)
}
