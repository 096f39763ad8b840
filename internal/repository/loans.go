package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/credit-network/internal/models"
)

const loanColumns = `loan_id, borrower_address, lender_address, amount, interest_rate, duration,
	purpose, status, created_at, funded_at, repaid_at, tx_hash`

// CreateLoan inserts a Requested loan and fills in its id
func (r *Repository) CreateLoan(ctx context.Context, loan *models.Loan) error {
	loan.CreatedAt = r.now()
	loan.Status = models.LoanRequested
	err := r.q.QueryOne(ctx, &loan.LoanID, `
		INSERT INTO loans (borrower_address, amount, interest_rate, duration, purpose, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING loan_id`,
		loan.BorrowerAddress, loan.Amount, loan.InterestRate, loan.Duration,
		loan.Purpose, loan.Status, loan.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by id
func (r *Repository) GetLoan(ctx context.Context, loanID int64) (*models.Loan, error) {
	loan := &models.Loan{}
	if err := r.q.QueryOne(ctx, loan, `SELECT `+loanColumns+` FROM loans WHERE loan_id = ?`, loanID); err != nil {
		return nil, fmt.Errorf("failed to find loan: %w", err)
	}
	return loan, nil
}

// ListLoans lists loans newest first
func (r *Repository) ListLoans(ctx context.Context, f models.LoanFilter) ([]models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE 1=1`
	args := []any{}
	if f.Status != nil {
		query += ` AND status = ?`
		args = append(args, *f.Status)
	}
	if f.Borrower != "" {
		query += ` AND borrower_address = ?`
		args = append(args, f.Borrower)
	}
	if f.Lender != "" {
		query += ` AND lender_address = ?`
		args = append(args, f.Lender)
	}
	query += ` ORDER BY created_at DESC, loan_id DESC LIMIT ? OFFSET ?`
	args = append(args, clampLimit(f.Limit, 50, 200), max(f.Offset, 0))

	loans := []models.Loan{}
	if err := r.q.QueryMany(ctx, &loans, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	return loans, nil
}

// CountActiveLoans counts a borrower's Requested and Funded loans
func (r *Repository) CountActiveLoans(ctx context.Context, borrower string) (int, error) {
	var count int
	err := r.q.QueryOne(ctx, &count, `
		SELECT COUNT(*) FROM loans
		WHERE borrower_address = ? AND status IN (?, ?)`,
		borrower, models.LoanRequested, models.LoanFunded)
	if err != nil {
		return 0, fmt.Errorf("failed to count active loans: %w", err)
	}
	return count, nil
}

// FundLoan moves a Requested loan to Funded. It reports false when the loan
// was no longer Requested, so exactly one of several racing lenders wins.
func (r *Repository) FundLoan(ctx context.Context, loanID int64, lender string, txHash *string) (bool, error) {
	res, err := r.q.Execute(ctx, `
		UPDATE loans
		SET lender_address = ?, status = ?, funded_at = ?, tx_hash = COALESCE(?, tx_hash)
		WHERE loan_id = ? AND status = ?`,
		lender, models.LoanFunded, r.now(), txHash, loanID, models.LoanRequested)
	if err != nil {
		return false, fmt.Errorf("failed to fund loan: %w", err)
	}
	return res.RowsAffected == 1, nil
}

// RepayLoan moves a Funded loan to Repaid
func (r *Repository) RepayLoan(ctx context.Context, loanID int64, txHash *string) (bool, error) {
	res, err := r.q.Execute(ctx, `
		UPDATE loans
		SET status = ?, repaid_at = ?, tx_hash = COALESCE(?, tx_hash)
		WHERE loan_id = ? AND status = ?`,
		models.LoanRepaid, r.now(), txHash, loanID, models.LoanFunded)
	if err != nil {
		return false, fmt.Errorf("failed to repay loan: %w", err)
	}
	return res.RowsAffected == 1, nil
}

// CancelLoan moves a Requested loan to Cancelled
func (r *Repository) CancelLoan(ctx context.Context, loanID int64) (bool, error) {
	res, err := r.q.Execute(ctx, `
		UPDATE loans SET status = ?
		WHERE loan_id = ? AND status = ?`,
		models.LoanCancelled, loanID, models.LoanRequested)
	if err != nil {
		return false, fmt.Errorf("failed to cancel loan: %w", err)
	}
	return res.RowsAffected == 1, nil
}

// DefaultLoan moves a Funded loan to Defaulted
func (r *Repository) DefaultLoan(ctx context.Context, loanID int64) (bool, error) {
	res, err := r.q.Execute(ctx, `
		UPDATE loans SET status = ?
		WHERE loan_id = ? AND status = ?`,
		models.LoanDefaulted, loanID, models.LoanFunded)
	if err != nil {
		return false, fmt.Errorf("failed to default loan: %w", err)
	}
	return res.RowsAffected == 1, nil
}

// FundedBefore lists Funded loans whose funding happened before cutoff
func (r *Repository) FundedBefore(ctx context.Context, cutoff time.Time) ([]models.Loan, error) {
	loans := []models.Loan{}
	err := r.q.QueryMany(ctx, &loans, `
		SELECT `+loanColumns+` FROM loans
		WHERE status = ? AND funded_at < ?
		ORDER BY funded_at`, models.LoanFunded, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list funded loans: %w", err)
	}
	return loans, nil
}

// LoansCreatedSince lists loans created after since, oldest first
func (r *Repository) LoansCreatedSince(ctx context.Context, since time.Time) ([]models.Loan, error) {
	loans := []models.Loan{}
	err := r.q.QueryMany(ctx, &loans, `
		SELECT `+loanColumns+` FROM loans
		WHERE created_at > ?
		ORDER BY created_at`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent loans: %w", err)
	}
	return loans, nil
}
