package dto

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"circulation-engine/internal/domain/circulation"
)

type CheckoutRequest struct {
	CopyID     int64  `json:"copyId"`
	MemberID   int64  `json:"memberId"`
	OperatorID string `json:"operatorId"`
}

func (r *CheckoutRequest) Validate() error {
	if r.CopyID <= 0 {
		return fmt.Errorf("copyId must be positive")
	}
	if r.MemberID <= 0 {
		return fmt.Errorf("memberId must be positive")
	}
	if strings.TrimSpace(r.OperatorID) == "" {
		return fmt.Errorf("operatorId is required")
	}
	return nil
}

type ReturnRequest struct {
	OperatorID string `json:"operatorId"`
}

func (r *ReturnRequest) Validate() error {
	if strings.TrimSpace(r.OperatorID) == "" {
		return fmt.Errorf("operatorId is required")
	}
	return nil
}

type RenewRequest struct {
	OperatorID string `json:"operatorId"`
}

func (r *RenewRequest) Validate() error {
	if strings.TrimSpace(r.OperatorID) == "" {
		return fmt.Errorf("operatorId is required")
	}
	return nil
}

type CheckoutResponse struct {
	LoanID  string    `json:"loanId"`
	CopyID  string    `json:"copyId"`
	DueDate time.Time `json:"dueDate"`
}

type ReturnResponse struct {
	LoanID     string    `json:"loanId"`
	CopyID     string    `json:"copyId"`
	ReturnedAt time.Time `json:"returnedAt"`
	WasLate    bool      `json:"wasLate"`
}

type RenewResponse struct {
	LoanID            string    `json:"loanId"`
	NewDueDate        time.Time `json:"newDueDate"`
	RenewalsRemaining int       `json:"renewalsRemaining"`
}

type LoanResponse struct {
	ID               string     `json:"id"`
	CopyID           string     `json:"copyId"`
	MemberID         string     `json:"memberId"`
	CheckedOutAt     time.Time  `json:"checkedOutAt"`
	DueDate          time.Time  `json:"dueDate"`
	ReturnedAt       *time.Time `json:"returnedAt,omitempty"`
	RenewalCount     int        `json:"renewalCount"`
	CheckoutOperator string     `json:"checkoutOperator"`
	Overdue          bool       `json:"overdue"`
}

type MemberLoansResponse struct {
	MemberID string         `json:"memberId"`
	Loans    []LoanResponse `json:"loans"`
}

type CopyStatusResponse struct {
	CopyID      string        `json:"copyId"`
	Barcode     string        `json:"barcode"`
	Title       string        `json:"title"`
	Status      string        `json:"status"`
	CurrentLoan *LoanResponse `json:"currentLoan,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type TokenRequest struct {
	Username string `json:"username"`
}

func NewCheckoutResponse(ln *circulation.Loan) CheckoutResponse {
	return CheckoutResponse{
		LoanID:  strconv.FormatInt(ln.ID, 10),
		CopyID:  strconv.FormatInt(ln.CopyID, 10),
		DueDate: ln.DueDate,
	}
}

func NewReturnResponse(res *circulation.ReturnResult) ReturnResponse {
	resp := ReturnResponse{
		LoanID:  strconv.FormatInt(res.Loan.ID, 10),
		CopyID:  strconv.FormatInt(res.Loan.CopyID, 10),
		WasLate: res.WasLate,
	}
	if res.Loan.ReturnedAt != nil {
		resp.ReturnedAt = *res.Loan.ReturnedAt
	}
	return resp
}

func NewRenewResponse(res *circulation.RenewResult) RenewResponse {
	return RenewResponse{
		LoanID:            strconv.FormatInt(res.Loan.ID, 10),
		NewDueDate:        res.NewDueDate,
		RenewalsRemaining: res.RenewalsRemaining,
	}
}

func NewLoanResponse(al circulation.AnnotatedLoan) LoanResponse {
	ln := al.Loan
	return LoanResponse{
		ID:               strconv.FormatInt(ln.ID, 10),
		CopyID:           strconv.FormatInt(ln.CopyID, 10),
		MemberID:         strconv.FormatInt(ln.MemberID, 10),
		CheckedOutAt:     ln.CheckedOutAt,
		DueDate:          ln.DueDate,
		ReturnedAt:       ln.ReturnedAt,
		RenewalCount:     ln.RenewalCount,
		CheckoutOperator: ln.CheckoutOperator,
		Overdue:          al.Overdue,
	}
}

func NewMemberLoansResponse(memberID int64, loans []circulation.AnnotatedLoan) MemberLoansResponse {
	resp := MemberLoansResponse{
		MemberID: strconv.FormatInt(memberID, 10),
		Loans:    make([]LoanResponse, 0, len(loans)),
	}
	for _, al := range loans {
		resp.Loans = append(resp.Loans, NewLoanResponse(al))
	}
	return resp
}

func NewCopyStatusResponse(view *circulation.CopyStatusView) CopyStatusResponse {
	resp := CopyStatusResponse{
		CopyID:  strconv.FormatInt(view.Copy.CopyID, 10),
		Barcode: view.Copy.Barcode,
		Title:   view.Copy.Title,
		Status:  string(view.Copy.Status),
	}
	if view.CurrentLoan != nil {
		lr := NewLoanResponse(circulation.AnnotatedLoan{Loan: view.CurrentLoan, Overdue: view.CurrentLoan.IsOverdue(time.Now())})
		resp.CurrentLoan = &lr
	}
	return resp
}
