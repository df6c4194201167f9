package handler

import (
	"circulation-engine/internal/api/handler/dto"
	"circulation-engine/internal/domain/circulation"
	"circulation-engine/internal/pkg/apperrors"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type CirculationHandler struct {
	service circulation.Service
	logger  *slog.Logger
}

func NewCirculationHandler(s circulation.Service, l *slog.Logger) *CirculationHandler {
	return &CirculationHandler{
		service: s,
		logger:  l.With("component", "CirculationHandler"),
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("no request body")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Default().Error("Failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":{"message":"Internal server error"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, err error) {
	status, message, field := http.StatusInternalServerError, "An unexpected error occurred.", ""
	var validationError *apperrors.ValidationError
	var banError *apperrors.BanError
	var appErr *apperrors.AppError

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, message = http.StatusNotFound, "Resource not found."
	case errors.As(err, &banError):
		status, message = http.StatusForbidden, banError.Error()
	case errors.Is(err, apperrors.ErrMemberBanned):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, apperrors.ErrCopyUnavailable), errors.Is(err, apperrors.ErrConflict):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, apperrors.ErrMembershipExpired),
		errors.Is(err, apperrors.ErrLoanLimitReached),
		errors.Is(err, apperrors.ErrNoActiveLoan),
		errors.Is(err, apperrors.ErrRenewalLimitReached),
		errors.Is(err, apperrors.ErrLoanOverdue):
		status, message = http.StatusBadRequest, err.Error()
	case errors.As(err, &validationError):
		status, message, field = http.StatusBadRequest, validationError.Message, validationError.Field
	case errors.Is(err, apperrors.ErrInvalidArgument), errors.Is(err, apperrors.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.As(err, &appErr):
		message = appErr.Error()
	default:
		slog.Default().Error("Unhandled internal error", "error", err)
	}

	resp := dto.ErrorResponse{
		Error: dto.ErrorDetail{
			Message: message,
			Field:   field,
		},
	}
	respondJSON(w, status, resp)
}

func idFromURL(r *http.Request, param string) (int64, error) {
	idStr := chi.URLParam(r, param)
	if idStr == "" {
		return 0, fmt.Errorf("%s not found in URL path", param)
	}
	return strconv.ParseInt(idStr, 10, 64)
}

// Checkout lends a copy to a member.
//
// @Summary Check out a copy
// @Description Lends the copy to the member, enforcing availability, membership validity, ban status and the concurrent-loan cap in one atomic step.
// @Tags Circulation
// @Accept json
// @Produce json
// @Param request body dto.CheckoutRequest true "Checkout request payload"
// @Success 201 {object} dto.CheckoutResponse "Loan successfully created"
// @Failure 400 {object} dto.ErrorResponse "Invalid request or business rule violation"
// @Failure 403 {object} dto.ErrorResponse "Member is banned"
// @Failure 404 {object} dto.ErrorResponse "Copy or member not found"
// @Failure 409 {object} dto.ErrorResponse "Copy is not available"
// @Router /loans [post]
// @Security BearerAuth
func (h *CirculationHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req dto.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	created, err := h.service.Checkout(r.Context(), req.CopyID, req.MemberID, req.OperatorID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.NewCheckoutResponse(created))
}

// ReturnCopy closes the open loan for a copy.
//
// @Summary Return a copy
// @Description Closes the unique open loan for the copy and frees it. Returning is always permitted, even for banned members.
// @Tags Circulation
// @Accept json
// @Produce json
// @Param copyID path int true "Copy ID"
// @Param request body dto.ReturnRequest true "Return request payload"
// @Success 200 {object} dto.ReturnResponse "Copy successfully returned"
// @Failure 400 {object} dto.ErrorResponse "No active loan for this copy"
// @Failure 404 {object} dto.ErrorResponse "Copy not found"
// @Router /copies/{copyID}/return [post]
// @Security BearerAuth
func (h *CirculationHandler) ReturnCopy(w http.ResponseWriter, r *http.Request) {
	copyID, err := idFromURL(r, "copyID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	var req dto.ReturnRequest
	if err := decodeJSON(r, &req); err != nil || req.Validate() != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	result, err := h.service.ReturnCopy(r.Context(), copyID, req.OperatorID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewReturnResponse(result))
}

// Renew extends an open loan.
//
// @Summary Renew a loan
// @Description Advances the due date by one loan period counted from the current due date, within the renewal cap. Overdue loans and banned members cannot renew.
// @Tags Circulation
// @Accept json
// @Produce json
// @Param loanID path int true "Loan ID"
// @Param request body dto.RenewRequest true "Renew request payload"
// @Success 200 {object} dto.RenewResponse "Loan successfully renewed"
// @Failure 400 {object} dto.ErrorResponse "Renewal limit reached or loan overdue"
// @Failure 403 {object} dto.ErrorResponse "Member is banned"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 409 {object} dto.ErrorResponse "Loan changed concurrently, retry"
// @Router /loans/{loanID}/renewals [post]
// @Security BearerAuth
func (h *CirculationHandler) Renew(w http.ResponseWriter, r *http.Request) {
	loanID, err := idFromURL(r, "loanID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	var req dto.RenewRequest
	if err := decodeJSON(r, &req); err != nil || req.Validate() != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	result, err := h.service.Renew(r.Context(), loanID, req.OperatorID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewRenewResponse(result))
}

// GetLoan retrieves one loan with its computed overdue flag.
//
// @Summary Retrieve loan details
// @Tags Circulation
// @Produce json
// @Param loanID path int true "Loan ID"
// @Success 200 {object} dto.LoanResponse "Loan details"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Router /loans/{loanID} [get]
// @Security BearerAuth
func (h *CirculationHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := idFromURL(r, "loanID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	annotated, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewLoanResponse(*annotated))
}

// GetMemberLoans lists a member's loans with computed overdue flags.
//
// @Summary List loans for a member
// @Tags Circulation
// @Produce json
// @Param memberID path int true "Member ID"
// @Success 200 {object} dto.MemberLoansResponse "Member loans"
// @Failure 400 {object} dto.ErrorResponse "Invalid member ID"
// @Router /members/{memberID}/loans [get]
// @Security BearerAuth
func (h *CirculationHandler) GetMemberLoans(w http.ResponseWriter, r *http.Request) {
	memberID, err := idFromURL(r, "memberID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	loans, err := h.service.GetMemberLoans(r.Context(), memberID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewMemberLoansResponse(memberID, loans))
}

// GetCopyStatus retrieves a copy's availability and its open loan, if any.
//
// @Summary Retrieve copy status
// @Tags Circulation
// @Produce json
// @Param copyID path int true "Copy ID"
// @Success 200 {object} dto.CopyStatusResponse "Copy status"
// @Failure 404 {object} dto.ErrorResponse "Copy not found"
// @Router /copies/{copyID} [get]
// @Security BearerAuth
func (h *CirculationHandler) GetCopyStatus(w http.ResponseWriter, r *http.Request) {
	copyID, err := idFromURL(r, "copyID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	view, err := h.service.GetCopyStatus(r.Context(), copyID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewCopyStatusResponse(view))
}
