package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Dan9191/credit-network/internal/credit"
	"github.com/Dan9191/credit-network/internal/feed"
	"github.com/Dan9191/credit-network/internal/metrics"
	"github.com/Dan9191/credit-network/internal/models"
	"github.com/Dan9191/credit-network/internal/repository"
)

// Loan request bounds
const (
	MinLoanAmount      int64 = 1 * credit.SubUnits
	MaxLoanAmount      int64 = 10_000 * credit.SubUnits
	MinInterestRate          = 500
	MaxInterestRate          = 2500
	MinDuration              = 7
	MaxDuration              = 180
	MaxActiveLoans           = 3
	maxPurposeLength         = 500
	defaultFeedEntries       = 50
)

// LoanRequest asks for a new loan
type LoanRequest struct {
	Borrower     string
	Amount       int64
	InterestRate int
	Duration     int
	Purpose      string
}

// RequestLoan validates a request against the borrower's standing and records it
func (s *Service) RequestLoan(ctx context.Context, req LoanRequest) (*models.Loan, error) {
	borrower, err := normalizeAddress("borrower_address", req.Borrower)
	if err != nil {
		return nil, err
	}
	if req.Amount < MinLoanAmount || req.Amount > MaxLoanAmount {
		return nil, validation("amount must be between %s and %s units",
			credit.FormatUnits(MinLoanAmount), credit.FormatUnits(MaxLoanAmount)).
			With("field", "amount").
			With("min", MinLoanAmount).
			With("max", MaxLoanAmount)
	}
	if req.InterestRate < MinInterestRate || req.InterestRate > MaxInterestRate {
		return nil, validation("interest_rate must be between %d and %d basis points", MinInterestRate, MaxInterestRate).
			With("field", "interest_rate")
	}
	if req.Duration < MinDuration || req.Duration > MaxDuration {
		return nil, validation("duration must be between %d and %d days", MinDuration, MaxDuration).
			With("field", "duration")
	}
	if utf8.RuneCountInString(req.Purpose) > maxPurposeLength {
		return nil, validation("purpose must be at most %d characters", maxPurposeLength).
			With("field", "purpose")
	}

	agent, err := s.repo.GetAgent(ctx, borrower)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("agent %s is not registered, register first at /agents/register", borrower)
		}
		return nil, s.storageError(err, "agent")
	}
	if s.config.RequireVerification && !agent.Verified {
		return nil, forbidden("agent must be verified before requesting loans")
	}

	loan := &models.Loan{
		BorrowerAddress: borrower,
		Amount:          req.Amount,
		InterestRate:    req.InterestRate,
		Duration:        req.Duration,
		Purpose:         req.Purpose,
	}
	err = s.repo.InTx(ctx, func(tx *repository.Repository) error {
		// The lock serialises concurrent requests of one borrower on Postgres
		cs, err := tx.LockCreditScore(ctx, borrower)
		if err != nil {
			if isNotFound(err) {
				return notFound("credit record of %s not found", borrower)
			}
			return err
		}
		tier := credit.ForScore(cs.Score)
		if req.Amount > tier.MaxLoan {
			return validation("loan amount exceeds tier limit: your tier is %s, max %s",
				tier.Name, credit.FormatUnits(tier.MaxLoan)).
				With("max_allowed", tier.MaxLoan).
				With("your_tier", tier.Name).
				With("your_score", cs.Score)
		}
		active, err := tx.CountActiveLoans(ctx, borrower)
		if err != nil {
			return err
		}
		if active >= MaxActiveLoans {
			return validation("too many active loans, repay or cancel existing loans first").
				With("active_loans", active).
				With("max_allowed", MaxActiveLoans)
		}
		return tx.CreateLoan(ctx, loan)
	})
	if err != nil {
		return nil, s.storageError(err, "loan")
	}

	metrics.RecordLoanTransition(loan.Status.String(), loan.Amount)
	s.log.WithField("loan_id", loan.LoanID).Infof("Loan requested by %s: %d", borrower, loan.Amount)
	s.emit(ctx, models.EventLoanRequested, loan, borrower)
	return loan, nil
}

// FundLoan records lender as the funder of a Requested loan. Of several
// concurrent calls exactly one succeeds.
func (s *Service) FundLoan(ctx context.Context, loanID int64, lenderAddress, txHash string) (*models.Loan, error) {
	lender, err := normalizeAddress("lender_address", lenderAddress)
	if err != nil {
		return nil, err
	}
	hash, err := normalizeTxHash(txHash)
	if err != nil {
		return nil, err
	}
	loan, err := s.loadLoan(ctx, s.repo, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanRequested {
		return nil, statusConflict("funded", loan.Status)
	}
	if loan.BorrowerAddress == lender {
		return nil, forbidden("cannot fund your own loan")
	}

	ok, err := s.repo.FundLoan(ctx, loanID, lender, hash)
	if err != nil {
		return nil, s.storageError(err, "loan")
	}
	if !ok {
		return nil, conflict("loan %d was funded or cancelled concurrently", loanID)
	}
	return s.afterTransition(ctx, loanID, models.EventLoanFunded)
}

// RepayLoan closes a Funded loan and credits the borrower in one transaction.
// payer is optional; when given it must be the borrower.
func (s *Service) RepayLoan(ctx context.Context, loanID int64, payer, txHash string) (*models.Loan, error) {
	hash, err := normalizeTxHash(txHash)
	if err != nil {
		return nil, err
	}
	if payer != "" {
		if payer, err = normalizeAddress("borrower_address", payer); err != nil {
			return nil, err
		}
	}

	err = s.repo.InTx(ctx, func(tx *repository.Repository) error {
		loan, err := s.loadLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanFunded {
			return statusConflict("repaid", loan.Status)
		}
		if payer != "" && payer != loan.BorrowerAddress {
			return forbidden("only the borrower can repay loan %d", loanID)
		}
		ok, err := tx.RepayLoan(ctx, loanID, hash)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("loan %d changed status concurrently", loanID)
		}
		return s.adjustCredit(ctx, tx, loan, credit.ReasonRepaid, credit.ApplyRepayment)
	})
	if err != nil {
		return nil, s.storageError(err, "loan")
	}
	return s.afterTransition(ctx, loanID, models.EventLoanRepaid)
}

// CancelLoan withdraws a Requested loan. Only the borrower may cancel.
func (s *Service) CancelLoan(ctx context.Context, loanID int64, borrowerAddress string) (*models.Loan, error) {
	borrower, err := normalizeAddress("borrower_address", borrowerAddress)
	if err != nil {
		return nil, err
	}
	loan, err := s.loadLoan(ctx, s.repo, loanID)
	if err != nil {
		return nil, err
	}
	if loan.BorrowerAddress != borrower {
		return nil, forbidden("only the borrower can cancel loan %d", loanID)
	}
	if loan.Status != models.LoanRequested {
		return nil, statusConflict("cancelled", loan.Status)
	}

	ok, err := s.repo.CancelLoan(ctx, loanID)
	if err != nil {
		return nil, s.storageError(err, "loan")
	}
	if !ok {
		return nil, conflict("loan %d was funded or cancelled concurrently", loanID)
	}
	return s.afterTransition(ctx, loanID, models.EventLoanCancelled)
}

// DefaultLoan marks a Funded loan as Defaulted and penalises the borrower
func (s *Service) DefaultLoan(ctx context.Context, loanID int64) (*models.Loan, error) {
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		loan, err := s.loadLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanFunded {
			return statusConflict("defaulted", loan.Status)
		}
		ok, err := tx.DefaultLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("loan %d changed status concurrently", loanID)
		}
		return s.adjustCredit(ctx, tx, loan, credit.ReasonDefaulted, credit.ApplyDefault)
	})
	if err != nil {
		return nil, s.storageError(err, "loan")
	}
	return s.afterTransition(ctx, loanID, models.EventLoanDefaulted)
}

// SweepDefaults defaults every Funded loan whose term plus graceDays has passed
func (s *Service) SweepDefaults(ctx context.Context, graceDays int) (int, error) {
	now := s.repo.Now()
	grace := time.Duration(graceDays) * 24 * time.Hour
	// MinDuration is the shortest term, so nothing funded later can be overdue
	candidates, err := s.repo.FundedBefore(ctx, now.Add(-grace-MinDuration*24*time.Hour))
	if err != nil {
		return 0, s.storageError(err, "loans")
	}

	defaulted := 0
	var failed []int64
	var errs []error
	for _, loan := range candidates {
		if loan.FundedAt == nil {
			continue
		}
		due := loan.FundedAt.Add(time.Duration(loan.Duration)*24*time.Hour + grace)
		if now.Before(due) {
			continue
		}
		if _, err := s.DefaultLoan(ctx, loan.LoanID); err != nil {
			if IsKind(err, KindConflict) {
				continue
			}
			if ctx.Err() != nil {
				return defaulted, ctx.Err()
			}
			// Keep sweeping past loans that cannot be defaulted
			s.log.WithError(err).WithField("loan_id", loan.LoanID).Error("Failed to default overdue loan")
			failed = append(failed, loan.LoanID)
			errs = append(errs, fmt.Errorf("loan %d: %w", loan.LoanID, err))
			continue
		}
		defaulted++
	}
	if defaulted > 0 {
		s.log.Infof("Default sweep marked %d loans as defaulted", defaulted)
	}
	if len(failed) > 0 {
		return defaulted, &SweepError{LoanIDs: failed, Err: errors.Join(errs...)}
	}
	return defaulted, nil
}

// SweepError lists the overdue loans a sweep could not default
type SweepError struct {
	LoanIDs []int64
	Err     error
}

func (e *SweepError) Error() string {
	return fmt.Sprintf("failed to default %d overdue loans: %v", len(e.LoanIDs), e.Err)
}

func (e *SweepError) Unwrap() error { return e.Err }

// GetLoan returns a loan by id
func (s *Service) GetLoan(ctx context.Context, loanID int64) (*models.Loan, error) {
	return s.loadLoan(ctx, s.repo, loanID)
}

// ListLoans lists loans newest first
func (s *Service) ListLoans(ctx context.Context, f models.LoanFilter) ([]models.Loan, error) {
	var err error
	if f.Borrower != "" {
		if f.Borrower, err = normalizeAddress("borrower", f.Borrower); err != nil {
			return nil, err
		}
	}
	if f.Lender != "" {
		if f.Lender, err = normalizeAddress("lender", f.Lender); err != nil {
			return nil, err
		}
	}
	loans, err := s.repo.ListLoans(ctx, f)
	if err != nil {
		return nil, s.storageError(err, "loans")
	}
	return loans, nil
}

// LoanFeed renders open loan requests as Atom
func (s *Service) LoanFeed(ctx context.Context) ([]byte, error) {
	requested := models.LoanRequested
	loans, err := s.repo.ListLoans(ctx, models.LoanFilter{Status: &requested, Limit: defaultFeedEntries})
	if err != nil {
		return nil, s.storageError(err, "loans")
	}
	out, err := feed.BuildLoanFeed(s.config.PublicURL, loans, s.repo.Now())
	if err != nil {
		return nil, internal(err)
	}
	return out, nil
}

func (s *Service) loadLoan(ctx context.Context, repo *repository.Repository, loanID int64) (*models.Loan, error) {
	loan, err := repo.GetLoan(ctx, loanID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("loan %d not found", loanID)
		}
		return nil, s.storageError(err, "loan")
	}
	return loan, nil
}

// adjustCredit applies a credit rule to the borrower and records the change. Must run inside InTx.
func (s *Service) adjustCredit(ctx context.Context, tx *repository.Repository, loan *models.Loan, reason string, apply func(*models.CreditScore) int) error {
	cs, err := tx.LockCreditScore(ctx, loan.BorrowerAddress)
	if err != nil {
		if isNotFound(err) {
			return notFound("credit record of %s not found", loan.BorrowerAddress)
		}
		return err
	}
	old := apply(cs)
	if err := tx.SaveCreditScore(ctx, cs); err != nil {
		return err
	}
	return tx.AddCreditEvent(ctx, &models.CreditEvent{
		AgentAddress: loan.BorrowerAddress,
		LoanID:       &loan.LoanID,
		OldScore:     old,
		NewScore:     cs.Score,
		Reason:       reason,
	})
}

// afterTransition reloads a loan after a committed transition and announces it
func (s *Service) afterTransition(ctx context.Context, loanID int64, event string) (*models.Loan, error) {
	loan, err := s.loadLoan(ctx, s.repo, loanID)
	if err != nil {
		return nil, err
	}
	metrics.RecordLoanTransition(loan.Status.String(), loan.Amount)
	s.log.WithField("loan_id", loanID).Infof("Loan %s", loan.Status)

	recipients := []string{loan.BorrowerAddress}
	if loan.LenderAddress != nil {
		recipients = append(recipients, *loan.LenderAddress)
	}
	s.emit(ctx, event, loan, recipients...)
	return loan, nil
}

func statusConflict(action string, status models.LoanStatus) *Error {
	return conflict("loan cannot be %s (status: %s)", action, status).With("status", status.String())
}
