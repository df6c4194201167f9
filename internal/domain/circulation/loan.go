package circulation

import (
	"time"
)

type CopyStatus string

const (
	CopyStatusAvailable CopyStatus = "AVAILABLE"
	CopyStatusOnLoan    CopyStatus = "ON_LOAN"
)

// Copy is one physical, individually trackable instance of a title. The
// engine only ever flips its status; the rest of the record belongs to
// cataloging.
type Copy struct {
	CopyID    int64      `json:"copyId"`
	Barcode   string     `json:"barcode"`
	Title     string     `json:"title"`
	Status    CopyStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type Loan struct {
	ID               int64      `json:"id"`
	CopyID           int64      `json:"copyId"`
	MemberID         int64      `json:"memberId"`
	CheckedOutAt     time.Time  `json:"checkedOutAt"`
	DueDate          time.Time  `json:"dueDate"`
	ReturnedAt       *time.Time `json:"returnedAt,omitempty"`
	RenewalCount     int        `json:"renewalCount"`
	CheckoutOperator string     `json:"checkoutOperator"`
	ReturnOperator   *string    `json:"returnOperator,omitempty"`
	Version          int64      `json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func NewLoan(copyID, memberID int64, operatorID string, now time.Time, pol Policy) *Loan {
	return &Loan{
		CopyID:           copyID,
		MemberID:         memberID,
		CheckedOutAt:     now,
		DueDate:          now.AddDate(0, 0, pol.LoanPeriodDays),
		RenewalCount:     0,
		CheckoutOperator: operatorID,
	}
}

func (l *Loan) IsOpen() bool {
	return l.ReturnedAt == nil
}

// IsOverdue is a pure function of the loan and the given instant. A closed
// loan is never overdue, no matter when it is asked.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.ReturnedAt == nil && now.After(l.DueDate)
}

func (l *Loan) RenewalsRemaining(pol Policy) int {
	remaining := pol.MaxRenewals - l.RenewalCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AnnotatedLoan pairs a loan with its overdue flag computed at read time.
// The flag is never stored, so it cannot go stale across day boundaries.
type AnnotatedLoan struct {
	Loan    *Loan `json:"loan"`
	Overdue bool  `json:"overdue"`
}

func Annotate(loans []*Loan, now time.Time) []AnnotatedLoan {
	annotated := make([]AnnotatedLoan, 0, len(loans))
	for _, l := range loans {
		annotated = append(annotated, AnnotatedLoan{Loan: l, Overdue: l.IsOverdue(now)})
	}
	return annotated
}
