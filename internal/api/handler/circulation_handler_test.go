package handler

import (
	"bytes"
	"circulation-engine/internal/api/handler/dto"
	"circulation-engine/internal/domain/circulation"
	"circulation-engine/internal/pkg/apperrors"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockCirculationService struct {
	mock.Mock
}

func (m *MockCirculationService) Checkout(ctx context.Context, copyID, memberID int64, operatorID string) (*circulation.Loan, error) {
	args := m.Called(ctx, copyID, memberID, operatorID)
	if ln, ok := args.Get(0).(*circulation.Loan); ok {
		return ln, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCirculationService) ReturnCopy(ctx context.Context, copyID int64, operatorID string) (*circulation.ReturnResult, error) {
	args := m.Called(ctx, copyID, operatorID)
	if result, ok := args.Get(0).(*circulation.ReturnResult); ok {
		return result, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCirculationService) Renew(ctx context.Context, loanID int64, operatorID string) (*circulation.RenewResult, error) {
	args := m.Called(ctx, loanID, operatorID)
	if result, ok := args.Get(0).(*circulation.RenewResult); ok {
		return result, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCirculationService) GetLoan(ctx context.Context, loanID int64) (*circulation.AnnotatedLoan, error) {
	args := m.Called(ctx, loanID)
	if annotated, ok := args.Get(0).(*circulation.AnnotatedLoan); ok {
		return annotated, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCirculationService) GetMemberLoans(ctx context.Context, memberID int64) ([]circulation.AnnotatedLoan, error) {
	args := m.Called(ctx, memberID)
	if loans, ok := args.Get(0).([]circulation.AnnotatedLoan); ok {
		return loans, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCirculationService) GetCopyStatus(ctx context.Context, copyID int64) (*circulation.CopyStatusView, error) {
	args := m.Called(ctx, copyID)
	if view, ok := args.Get(0).(*circulation.CopyStatusView); ok {
		return view, args.Error(1)
	}
	return nil, args.Error(1)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, &chi.Context{
		URLParams: chi.RouteParams{Keys: []string{key}, Values: []string{value}},
	}))
}

func TestCirculationHandlerCheckout(t *testing.T) {
	mockService := new(MockCirculationService)
	handler := NewCirculationHandler(mockService, logger)

	t.Run("successfully checks out a copy", func(t *testing.T) {
		reqBody := dto.CheckoutRequest{CopyID: 42, MemberID: 7, OperatorID: "op-1"}
		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/loans", bytes.NewReader(body))
		rec := httptest.NewRecorder()

		dueDate := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
		mockService.On("Checkout", mock.Anything, int64(42), int64(7), "op-1").
			Return(&circulation.Loan{ID: 1, CopyID: 42, MemberID: 7, DueDate: dueDate}, nil)

		handler.Checkout(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp dto.CheckoutResponse
		err := json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.NoError(t, err)
		assert.Equal(t, "1", resp.LoanID)
		assert.Equal(t, "42", resp.CopyID)
		assert.True(t, dueDate.Equal(resp.DueDate))
		mockService.AssertExpectations(t)
	})

	t.Run("rejects invalid payload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/loans", bytes.NewReader([]byte(`{}`)))
		rec := httptest.NewRecorder()

		handler.Checkout(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockService.AssertNotCalled(t, "Checkout")
	})

	t.Run("returns conflict when copy is unavailable", func(t *testing.T) {
		reqBody := dto.CheckoutRequest{CopyID: 43, MemberID: 7, OperatorID: "op-1"}
		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/loans", bytes.NewReader(body))
		rec := httptest.NewRecorder()

		mockService.On("Checkout", mock.Anything, int64(43), int64(7), "op-1").
			Return((*circulation.Loan)(nil), apperrors.ErrCopyUnavailable)

		handler.Checkout(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("returns forbidden with cause for banned member", func(t *testing.T) {
		reqBody := dto.CheckoutRequest{CopyID: 44, MemberID: 8, OperatorID: "op-1"}
		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/loans", bytes.NewReader(body))
		rec := httptest.NewRecorder()

		mockService.On("Checkout", mock.Anything, int64(44), int64(8), "op-1").
			Return((*circulation.Loan)(nil), apperrors.NewBanError("repeated late returns"))

		handler.Checkout(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		var resp dto.ErrorResponse
		err := json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.NoError(t, err)
		assert.Contains(t, resp.Error.Message, "repeated late returns")
		mockService.AssertExpectations(t)
	})

	t.Run("returns not found for unknown member", func(t *testing.T) {
		reqBody := dto.CheckoutRequest{CopyID: 45, MemberID: 999, OperatorID: "op-1"}
		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/loans", bytes.NewReader(body))
		rec := httptest.NewRecorder()

		mockService.On("Checkout", mock.Anything, int64(45), int64(999), "op-1").
			Return((*circulation.Loan)(nil), apperrors.ErrNotFound)

		handler.Checkout(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		mockService.AssertExpectations(t)
	})
}

func TestCirculationHandlerReturnCopy(t *testing.T) {
	mockService := new(MockCirculationService)
	handler := NewCirculationHandler(mockService, logger)

	t.Run("successfully returns a copy", func(t *testing.T) {
		returnedAt := time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)
		mockService.On("ReturnCopy", mock.Anything, int64(42), "op-2").
			Return(&circulation.ReturnResult{
				Loan:    &circulation.Loan{ID: 1, CopyID: 42, ReturnedAt: &returnedAt},
				WasLate: true,
			}, nil)

		body, _ := json.Marshal(dto.ReturnRequest{OperatorID: "op-2"})
		req := httptest.NewRequest(http.MethodPost, "/copies/42/return", bytes.NewReader(body))
		req = withURLParam(req, "copyID", "42")
		rec := httptest.NewRecorder()

		handler.ReturnCopy(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp dto.ReturnResponse
		err := json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.NoError(t, err)
		assert.Equal(t, "1", resp.LoanID)
		assert.True(t, resp.WasLate)
		mockService.AssertExpectations(t)
	})

	t.Run("returns error for invalid copy ID", func(t *testing.T) {
		body, _ := json.Marshal(dto.ReturnRequest{OperatorID: "op-2"})
		req := httptest.NewRequest(http.MethodPost, "/copies/invalid/return", bytes.NewReader(body))
		req = withURLParam(req, "copyID", "invalid")
		rec := httptest.NewRecorder()

		handler.ReturnCopy(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockService.AssertNotCalled(t, "ReturnCopy")
	})

	t.Run("returns error when copy has no active loan", func(t *testing.T) {
		mockService.On("ReturnCopy", mock.Anything, int64(50), "op-2").
			Return((*circulation.ReturnResult)(nil), apperrors.ErrNoActiveLoan)

		body, _ := json.Marshal(dto.ReturnRequest{OperatorID: "op-2"})
		req := httptest.NewRequest(http.MethodPost, "/copies/50/return", bytes.NewReader(body))
		req = withURLParam(req, "copyID", "50")
		rec := httptest.NewRecorder()

		handler.ReturnCopy(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp dto.ErrorResponse
		err := json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.NoError(t, err)
		assert.Contains(t, resp.Error.Message, "no active loan")
		mockService.AssertExpectations(t)
	})
}

func TestCirculationHandlerRenew(t *testing.T) {
	mockService := new(MockCirculationService)
	handler := NewCirculationHandler(mockService, logger)

	t.Run("successfully renews a loan", func(t *testing.T) {
		newDue := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
		mockService.On("Renew", mock.Anything, int64(1), "op-3").
			Return(&circulation.RenewResult{
				Loan:              &circulation.Loan{ID: 1, DueDate: newDue, RenewalCount: 1},
				NewDueDate:        newDue,
				RenewalsRemaining: 1,
			}, nil)

		body, _ := json.Marshal(dto.RenewRequest{OperatorID: "op-3"})
		req := httptest.NewRequest(http.MethodPost, "/loans/1/renewals", bytes.NewReader(body))
		req = withURLParam(req, "loanID", "1")
		rec := httptest.NewRecorder()

		handler.Renew(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp dto.RenewResponse
		err := json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.NoError(t, err)
		assert.Equal(t, "1", resp.LoanID)
		assert.Equal(t, 1, resp.RenewalsRemaining)
		assert.True(t, newDue.Equal(resp.NewDueDate))
		mockService.AssertExpectations(t)
	})

	t.Run("returns error when renewal limit reached", func(t *testing.T) {
		mockService.On("Renew", mock.Anything, int64(2), "op-3").
			Return((*circulation.RenewResult)(nil), apperrors.ErrRenewalLimitReached)

		body, _ := json.Marshal(dto.RenewRequest{OperatorID: "op-3"})
		req := httptest.NewRequest(http.MethodPost, "/loans/2/renewals", bytes.NewReader(body))
		req = withURLParam(req, "loanID", "2")
		rec := httptest.NewRecorder()

		handler.Renew(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("returns conflict when loan changed concurrently", func(t *testing.T) {
		mockService.On("Renew", mock.Anything, int64(3), "op-3").
			Return((*circulation.RenewResult)(nil), apperrors.ErrConflict)

		body, _ := json.Marshal(dto.RenewRequest{OperatorID: "op-3"})
		req := httptest.NewRequest(http.MethodPost, "/loans/3/renewals", bytes.NewReader(body))
		req = withURLParam(req, "loanID", "3")
		rec := httptest.NewRecorder()

		handler.Renew(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		mockService.AssertExpectations(t)
	})
}

func TestCirculationHandlerGetLoan(t *testing.T) {
	mockService := new(MockCirculationService)
	handler := NewCirculationHandler(mockService, logger)

	t.Run("successfully retrieves loan details", func(t *testing.T) {
		loanID := int64(123)
		mockService.On("GetLoan", mock.Anything, loanID).
			Return(&circulation.AnnotatedLoan{Loan: &circulation.Loan{ID: loanID, CopyID: 42}, Overdue: true}, nil)

		req := httptest.NewRequest(http.MethodGet, "/loans/123", nil)
		req = withURLParam(req, "loanID", "123")
		rec := httptest.NewRecorder()

		handler.GetLoan(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp dto.LoanResponse
		err := json.NewDecoder(rec.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Equal(t, "123", resp.ID)
		assert.True(t, resp.Overdue)
		mockService.AssertExpectations(t)
	})

	t.Run("returns error for invalid loan ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/loans/invalid", nil)
		req = withURLParam(req, "loanID", "invalid")
		rec := httptest.NewRecorder()

		handler.GetLoan(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp dto.ErrorResponse
		err := json.NewDecoder(rec.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Contains(t, resp.Error.Message, "invalid syntax")
	})

	t.Run("returns error when loan not found", func(t *testing.T) {
		loanID := int64(2)
		mockService.On("GetLoan", mock.Anything, loanID).
			Return((*circulation.AnnotatedLoan)(nil), apperrors.ErrNotFound)

		req := httptest.NewRequest(http.MethodGet, "/loans/2", nil)
		req = withURLParam(req, "loanID", "2")
		rec := httptest.NewRecorder()

		handler.GetLoan(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		var resp dto.ErrorResponse
		err := json.NewDecoder(rec.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Equal(t, "Resource not found.", resp.Error.Message)
		mockService.AssertExpectations(t)
	})

	t.Run("returns internal server error for unexpected errors", func(t *testing.T) {
		loanID := int64(3)
		mockService.On("GetLoan", mock.Anything, loanID).
			Return((*circulation.AnnotatedLoan)(nil), errors.New("unexpected error"))

		req := httptest.NewRequest(http.MethodGet, "/loans/3", nil)
		req = withURLParam(req, "loanID", "3")
		rec := httptest.NewRecorder()

		handler.GetLoan(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp dto.ErrorResponse
		err := json.NewDecoder(rec.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Equal(t, "An unexpected error occurred.", resp.Error.Message)
		mockService.AssertExpectations(t)
	})
}

func TestCirculationHandlerGetMemberLoans(t *testing.T) {
	mockService := new(MockCirculationService)
	handler := NewCirculationHandler(mockService, logger)

	t.Run("successfully lists member loans", func(t *testing.T) {
		memberID := int64(7)
		loans := []circulation.AnnotatedLoan{
			{Loan: &circulation.Loan{ID: 1, CopyID: 42, MemberID: memberID}, Overdue: false},
			{Loan: &circulation.Loan{ID: 2, CopyID: 43, MemberID: memberID}, Overdue: true},
		}
		mockService.On("GetMemberLoans", mock.Anything, memberID).Return(loans, nil)

		req := httptest.NewRequest(http.MethodGet, "/members/7/loans", nil)
		req = withURLParam(req, "memberID", "7")
		rec := httptest.NewRecorder()

		handler.GetMemberLoans(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp dto.MemberLoansResponse
		err := json.NewDecoder(rec.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Equal(t, "7", resp.MemberID)
		assert.Len(t, resp.Loans, 2)
		assert.True(t, resp.Loans[1].Overdue)
		mockService.AssertExpectations(t)
	})

	t.Run("returns empty list when member has no loans", func(t *testing.T) {
		memberID := int64(8)
		mockService.On("GetMemberLoans", mock.Anything, memberID).Return([]circulation.AnnotatedLoan{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/members/8/loans", nil)
		req = withURLParam(req, "memberID", "8")
		rec := httptest.NewRecorder()

		handler.GetMemberLoans(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp dto.MemberLoansResponse
		err := json.NewDecoder(rec.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Empty(t, resp.Loans)
		mockService.AssertExpectations(t)
	})
}

func TestCirculationHandlerGetCopyStatus(t *testing.T) {
	mockService := new(MockCirculationService)
	handler := NewCirculationHandler(mockService, logger)

	t.Run("successfully retrieves copy on loan", func(t *testing.T) {
		copyID := int64(42)
		mockService.On("GetCopyStatus", mock.Anything, copyID).
			Return(&circulation.CopyStatusView{
				Copy: &circulation.Copy{
					CopyID:  copyID,
					Barcode: "BC-0042",
					Title:   "The Go Programming Language",
					Status:  circulation.CopyStatusOnLoan,
				},
				CurrentLoan: &circulation.Loan{ID: 1, CopyID: copyID, MemberID: 7},
			}, nil)

		req := httptest.NewRequest(http.MethodGet, "/copies/42", nil)
		req = withURLParam(req, "copyID", "42")
		rec := httptest.NewRecorder()

		handler.GetCopyStatus(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp dto.CopyStatusResponse
		err := json.NewDecoder(rec.Body).Decode(&resp)
		assert.NoError(t, err)
		assert.Equal(t, "42", resp.CopyID)
		assert.Equal(t, string(circulation.CopyStatusOnLoan), resp.Status)
		assert.NotNil(t, resp.CurrentLoan)
		assert.Equal(t, "1", resp.CurrentLoan.ID)
		mockService.AssertExpectations(t)
	})

	t.Run("returns error when copy not found", func(t *testing.T) {
		copyID := int64(999)
		mockService.On("GetCopyStatus", mock.Anything, copyID).
			Return((*circulation.CopyStatusView)(nil), apperrors.ErrNotFound)

		req := httptest.NewRequest(http.MethodGet, "/copies/999", nil)
		req = withURLParam(req, "copyID", "999")
		rec := httptest.NewRecorder()

		handler.GetCopyStatus(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		mockService.AssertExpectations(t)
	})
}
