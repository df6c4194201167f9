package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"circulation-engine/internal/event"
	"circulation-engine/internal/infrastructure/monitoring"
	"circulation-engine/internal/pkg/apperrors"
)

type ReturnResult struct {
	Loan    *Loan
	WasLate bool
}

type RenewResult struct {
	Loan              *Loan
	NewDueDate        time.Time
	RenewalsRemaining int
}

type CopyStatusView struct {
	Copy        *Copy
	CurrentLoan *Loan
}

type Service interface {
	// Checkout lends the copy to the member. Preconditions are checked in
	// order inside one transaction: copy available, membership valid,
	// member not banned, member under the concurrent-loan cap.
	Checkout(ctx context.Context, copyID, memberID int64, operatorID string) (*Loan, error)

	// ReturnCopy closes the unique open loan for the copy and frees it.
	// Returning a copy with no open loan fails with ErrNoActiveLoan; a
	// second return is the same error, never a second close.
	ReturnCopy(ctx context.Context, copyID int64, operatorID string) (*ReturnResult, error)

	// Renew extends the open loan's due date by one loan period counted
	// from the current due date. Blocked past the renewal cap, past the
	// due date, and for banned members.
	Renew(ctx context.Context, loanID int64, operatorID string) (*RenewResult, error)

	GetLoan(ctx context.Context, loanID int64) (*AnnotatedLoan, error)

	GetMemberLoans(ctx context.Context, memberID int64) ([]AnnotatedLoan, error)

	GetCopyStatus(ctx context.Context, copyID int64) (*CopyStatusView, error)
}

var _ Service = (*circulationService)(nil)

type circulationService struct {
	repo     Repository
	policies PolicyProvider
	pub      event.AuditPublisher
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, policies PolicyProvider, pub event.AuditPublisher, logger *slog.Logger) Service {
	if repo == nil || policies == nil || pub == nil {
		panic("circulation service dependencies cannot be nil")
	}
	return &circulationService{
		repo:     repo,
		policies: policies,
		pub:      pub,
		logger:   logger.With(slog.String("component", "circulationService")),
		now:      time.Now,
	}
}

func (s *circulationService) Checkout(ctx context.Context, copyID, memberID int64, operatorID string) (createdLoan *Loan, err error) {
	logCtx := s.logger.With(slog.Int64("copyID", copyID), slog.Int64("memberID", memberID), slog.String("operator", operatorID))
	logCtx.InfoContext(ctx, "Processing checkout")

	pol, err := s.policies.Current(ctx)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to read loan policy", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not read loan policy: %v", apperrors.ErrInternalServer, err)
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not begin transaction: %v", apperrors.ErrInternalServer, err)
	}

	defer func() {
		if p := recover(); p != nil {
			logCtx.ErrorContext(ctx, "Panic occurred during checkout", slog.Any("error", p))
			_ = s.repo.RollbackTx(ctx, tx)
			panic(p)
		} else if err != nil {
			monitoring.RecordCirculation("checkout", "failure")
			_ = s.repo.RollbackTx(ctx, tx)
		}
	}()

	cp, err := s.repo.GetCopyForUpdate(ctx, tx, copyID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: copy with ID %d not found", apperrors.ErrNotFound, copyID)
		}
		return nil, fmt.Errorf("%w: could not lock copy %d: %v", apperrors.ErrInternalServer, copyID, err)
	}
	if cp.Status != CopyStatusAvailable {
		logCtx.WarnContext(ctx, "Copy is not available", slog.String("status", string(cp.Status)))
		return nil, fmt.Errorf("%w: copy %d is %s", apperrors.ErrCopyUnavailable, copyID, cp.Status)
	}

	mem, err := s.repo.GetMemberForUpdate(ctx, tx, memberID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: member with ID %d not found", apperrors.ErrNotFound, memberID)
		}
		return nil, fmt.Errorf("%w: could not lock member %d: %v", apperrors.ErrInternalServer, memberID, err)
	}

	now := s.now()
	if !mem.MembershipValidAt(now) {
		logCtx.WarnContext(ctx, "Membership is not valid",
			slog.Time("membershipStart", mem.MembershipStart),
			slog.Time("membershipEnd", mem.MembershipEnd))
		return nil, fmt.Errorf("%w: member %d", apperrors.ErrMembershipExpired, memberID)
	}
	if mem.Banned {
		logCtx.WarnContext(ctx, "Member is banned", slog.String("cause", mem.BanCauseText()))
		return nil, apperrors.NewBanError(mem.BanCauseText())
	}

	openCount, err := s.repo.CountOpenLoansByMemberInTx(ctx, tx, memberID)
	if err != nil {
		return nil, fmt.Errorf("%w: could not count open loans for member %d: %v", apperrors.ErrInternalServer, memberID, err)
	}
	if openCount >= pol.MaxConcurrentLoans {
		logCtx.WarnContext(ctx, "Member reached concurrent loan limit",
			slog.Int("openLoans", openCount), slog.Int("limit", pol.MaxConcurrentLoans))
		return nil, fmt.Errorf("%w: member %d holds %d open loans", apperrors.ErrLoanLimitReached, memberID, openCount)
	}

	created, err := s.repo.InsertLoanInTx(ctx, tx, NewLoan(copyID, memberID, operatorID, now, pol))
	if err != nil {
		return nil, fmt.Errorf("%w: could not create loan: %v", apperrors.ErrInternalServer, err)
	}
	if err = s.repo.UpdateCopyStatusInTx(ctx, tx, copyID, CopyStatusOnLoan); err != nil {
		return nil, fmt.Errorf("%w: could not mark copy %d on loan: %v", apperrors.ErrInternalServer, copyID, err)
	}
	if err = s.repo.IncrementMemberTotalLoansInTx(ctx, tx, memberID); err != nil {
		return nil, fmt.Errorf("%w: could not update member loan counter: %v", apperrors.ErrInternalServer, err)
	}

	if err = s.repo.CommitTx(ctx, tx); err != nil {
		logCtx.ErrorContext(ctx, "Failed to commit checkout transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not commit transaction: %v", apperrors.ErrDatabase, err)
	}

	monitoring.RecordCirculation("checkout", "success")
	logCtx.InfoContext(ctx, "Checkout successful", slog.Int64("loanID", created.ID), slog.Time("dueDate", created.DueDate))

	entry := event.NewAuditEntry(event.ActionCheckout, operatorID, "loan", strconv.FormatInt(created.ID, 10))
	entry.Before = map[string]any{"copyStatus": string(CopyStatusAvailable)}
	entry.After = map[string]any{
		"copyStatus": string(CopyStatusOnLoan),
		"copyId":     copyID,
		"memberId":   memberID,
		"dueDate":    created.DueDate,
	}
	if pubErr := s.pub.PublishAuditEntry(ctx, entry); pubErr != nil {
		logCtx.ErrorContext(ctx, "Checkout committed, but FAILED to publish audit entry", slog.Any("error", pubErr))
	}

	return created, nil
}

func (s *circulationService) ReturnCopy(ctx context.Context, copyID int64, operatorID string) (result *ReturnResult, err error) {
	logCtx := s.logger.With(slog.Int64("copyID", copyID), slog.String("operator", operatorID))
	logCtx.InfoContext(ctx, "Processing return")

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not begin transaction: %v", apperrors.ErrInternalServer, err)
	}

	defer func() {
		if p := recover(); p != nil {
			logCtx.ErrorContext(ctx, "Panic occurred during return", slog.Any("error", p))
			_ = s.repo.RollbackTx(ctx, tx)
			panic(p)
		} else if err != nil {
			monitoring.RecordCirculation("return", "failure")
			_ = s.repo.RollbackTx(ctx, tx)
		}
	}()

	cp, err := s.repo.GetCopyForUpdate(ctx, tx, copyID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: copy with ID %d not found", apperrors.ErrNotFound, copyID)
		}
		return nil, fmt.Errorf("%w: could not lock copy %d: %v", apperrors.ErrInternalServer, copyID, err)
	}

	ln, err := s.repo.FindOpenLoanByCopyForUpdate(ctx, tx, copyID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logCtx.InfoContext(ctx, "No open loan for copy, nothing to return")
			return nil, fmt.Errorf("%w: copy %d", apperrors.ErrNoActiveLoan, copyID)
		}
		return nil, fmt.Errorf("%w: could not find open loan for copy %d: %v", apperrors.ErrInternalServer, copyID, err)
	}

	now := s.now()
	wasLate := now.After(ln.DueDate)

	if err = s.repo.CloseLoanInTx(ctx, tx, ln.ID, now, operatorID, ln.Version); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			logCtx.WarnContext(ctx, "Loan was modified concurrently during return", slog.Int64("loanID", ln.ID))
			return nil, fmt.Errorf("%w: loan %d changed concurrently, retry", apperrors.ErrConflict, ln.ID)
		}
		return nil, fmt.Errorf("%w: could not close loan %d: %v", apperrors.ErrInternalServer, ln.ID, err)
	}
	if err = s.repo.UpdateCopyStatusInTx(ctx, tx, copyID, CopyStatusAvailable); err != nil {
		return nil, fmt.Errorf("%w: could not free copy %d: %v", apperrors.ErrInternalServer, copyID, err)
	}
	if wasLate {
		if err = s.repo.IncrementMemberLateReturnsInTx(ctx, tx, ln.MemberID); err != nil {
			return nil, fmt.Errorf("%w: could not update member late-return counter: %v", apperrors.ErrInternalServer, err)
		}
	}

	if err = s.repo.CommitTx(ctx, tx); err != nil {
		logCtx.ErrorContext(ctx, "Failed to commit return transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not commit transaction: %v", apperrors.ErrDatabase, err)
	}

	returned := *ln
	returned.ReturnedAt = &now
	returned.ReturnOperator = &operatorID

	monitoring.RecordCirculation("return", "success")
	logCtx.InfoContext(ctx, "Return successful", slog.Int64("loanID", ln.ID), slog.Bool("wasLate", wasLate))

	entry := event.NewAuditEntry(event.ActionReturn, operatorID, "loan", strconv.FormatInt(ln.ID, 10))
	entry.Before = map[string]any{"copyStatus": string(cp.Status), "returnedAt": nil}
	entry.After = map[string]any{
		"copyStatus": string(CopyStatusAvailable),
		"returnedAt": now,
		"wasLate":    wasLate,
	}
	if pubErr := s.pub.PublishAuditEntry(ctx, entry); pubErr != nil {
		logCtx.ErrorContext(ctx, "Return committed, but FAILED to publish audit entry", slog.Any("error", pubErr))
	}

	return &ReturnResult{Loan: &returned, WasLate: wasLate}, nil
}

func (s *circulationService) Renew(ctx context.Context, loanID int64, operatorID string) (result *RenewResult, err error) {
	logCtx := s.logger.With(slog.Int64("loanID", loanID), slog.String("operator", operatorID))
	logCtx.InfoContext(ctx, "Processing renewal")

	pol, err := s.policies.Current(ctx)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to read loan policy", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not read loan policy: %v", apperrors.ErrInternalServer, err)
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not begin transaction: %v", apperrors.ErrInternalServer, err)
	}

	defer func() {
		if p := recover(); p != nil {
			logCtx.ErrorContext(ctx, "Panic occurred during renewal", slog.Any("error", p))
			_ = s.repo.RollbackTx(ctx, tx)
			panic(p)
		} else if err != nil {
			monitoring.RecordCirculation("renew", "failure")
			_ = s.repo.RollbackTx(ctx, tx)
		}
	}()

	ln, err := s.repo.GetLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: loan with ID %d not found", apperrors.ErrNotFound, loanID)
		}
		return nil, fmt.Errorf("%w: could not lock loan %d: %v", apperrors.ErrInternalServer, loanID, err)
	}
	if !ln.IsOpen() {
		logCtx.WarnContext(ctx, "Loan is already closed")
		return nil, fmt.Errorf("%w: loan %d is closed", apperrors.ErrNoActiveLoan, loanID)
	}
	if ln.RenewalCount >= pol.MaxRenewals {
		logCtx.WarnContext(ctx, "Renewal limit reached", slog.Int("renewals", ln.RenewalCount), slog.Int("limit", pol.MaxRenewals))
		return nil, fmt.Errorf("%w: loan %d used %d of %d renewals", apperrors.ErrRenewalLimitReached, loanID, ln.RenewalCount, pol.MaxRenewals)
	}

	now := s.now()
	if now.After(ln.DueDate) {
		logCtx.WarnContext(ctx, "Loan is overdue, renewal refused", slog.Time("dueDate", ln.DueDate))
		return nil, fmt.Errorf("%w: loan %d was due %s", apperrors.ErrLoanOverdue, loanID, ln.DueDate.Format(time.RFC3339))
	}

	mem, err := s.repo.GetMemberForUpdate(ctx, tx, ln.MemberID)
	if err != nil {
		return nil, fmt.Errorf("%w: could not lock member %d: %v", apperrors.ErrInternalServer, ln.MemberID, err)
	}
	if mem.Banned {
		logCtx.WarnContext(ctx, "Member is banned, renewal refused", slog.String("cause", mem.BanCauseText()))
		return nil, apperrors.NewBanError(mem.BanCauseText())
	}

	// Due date advances from the current due date, not from now.
	newDue := ln.DueDate.AddDate(0, 0, pol.LoanPeriodDays)

	if err = s.repo.RenewLoanInTx(ctx, tx, ln.ID, newDue, ln.Version); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			logCtx.WarnContext(ctx, "Loan was modified concurrently during renewal")
			return nil, fmt.Errorf("%w: loan %d changed concurrently, retry", apperrors.ErrConflict, loanID)
		}
		return nil, fmt.Errorf("%w: could not renew loan %d: %v", apperrors.ErrInternalServer, loanID, err)
	}

	if err = s.repo.CommitTx(ctx, tx); err != nil {
		logCtx.ErrorContext(ctx, "Failed to commit renewal transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not commit transaction: %v", apperrors.ErrDatabase, err)
	}

	renewed := *ln
	renewed.DueDate = newDue
	renewed.RenewalCount = ln.RenewalCount + 1

	monitoring.RecordCirculation("renew", "success")
	logCtx.InfoContext(ctx, "Renewal successful",
		slog.Time("newDueDate", newDue), slog.Int("renewalCount", renewed.RenewalCount))

	entry := event.NewAuditEntry(event.ActionRenew, operatorID, "loan", strconv.FormatInt(loanID, 10))
	entry.Before = map[string]any{"dueDate": ln.DueDate, "renewalCount": ln.RenewalCount}
	entry.After = map[string]any{"dueDate": newDue, "renewalCount": renewed.RenewalCount}
	if pubErr := s.pub.PublishAuditEntry(ctx, entry); pubErr != nil {
		logCtx.ErrorContext(ctx, "Renewal committed, but FAILED to publish audit entry", slog.Any("error", pubErr))
	}

	return &RenewResult{
		Loan:              &renewed,
		NewDueDate:        newDue,
		RenewalsRemaining: renewed.RenewalsRemaining(pol),
	}, nil
}

func (s *circulationService) GetLoan(ctx context.Context, loanID int64) (*AnnotatedLoan, error) {
	s.logger.InfoContext(ctx, "Getting loan", slog.Int64("loanID", loanID))

	ln, err := s.repo.GetLoanByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: loan with ID %d not found", apperrors.ErrNotFound, loanID)
		}
		return nil, fmt.Errorf("%w: failed to get loan %d: %v", apperrors.ErrInternalServer, loanID, err)
	}
	return &AnnotatedLoan{Loan: ln, Overdue: ln.IsOverdue(s.now())}, nil
}

func (s *circulationService) GetMemberLoans(ctx context.Context, memberID int64) ([]AnnotatedLoan, error) {
	s.logger.InfoContext(ctx, "Getting loans for member", slog.Int64("memberID", memberID))

	loans, err := s.repo.GetLoansByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get loans for member %d: %v", apperrors.ErrInternalServer, memberID, err)
	}
	return Annotate(loans, s.now()), nil
}

func (s *circulationService) GetCopyStatus(ctx context.Context, copyID int64) (*CopyStatusView, error) {
	s.logger.InfoContext(ctx, "Getting copy status", slog.Int64("copyID", copyID))

	cp, err := s.repo.GetCopyByID(ctx, copyID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: copy with ID %d not found", apperrors.ErrNotFound, copyID)
		}
		return nil, fmt.Errorf("%w: failed to get copy %d: %v", apperrors.ErrInternalServer, copyID, err)
	}

	view := &CopyStatusView{Copy: cp}
	if cp.Status == CopyStatusOnLoan {
		ln, err := s.repo.GetOpenLoanByCopy(ctx, copyID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: failed to get open loan for copy %d: %v", apperrors.ErrInternalServer, copyID, err)
		}
		view.CurrentLoan = ln
	}
	return view, nil
}
