package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LoanStatus is the persisted lifecycle state of a loan
type LoanStatus int

const (
	LoanRequested LoanStatus = iota
	LoanFunded
	LoanRepaid
	LoanDefaulted
	LoanCancelled
)

var loanStatusNames = [...]string{"Requested", "Funded", "Repaid", "Defaulted", "Cancelled"}

func (s LoanStatus) String() string {
	if s < 0 || int(s) >= len(loanStatusNames) {
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
	return loanStatusNames[s]
}

// Active reports whether the loan still counts against the borrower's open loans.
func (s LoanStatus) Active() bool {
	return s == LoanRequested || s == LoanFunded
}

// ParseLoanStatus accepts either the numeric code or the status name.
func ParseLoanStatus(raw string) (LoanStatus, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 || n >= len(loanStatusNames) {
			return 0, fmt.Errorf("unknown loan status %d", n)
		}
		return LoanStatus(n), nil
	}
	for i, name := range loanStatusNames {
		if strings.EqualFold(name, raw) {
			return LoanStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown loan status %q", raw)
}

// Loan represents a peer-to-peer loan between agents
type Loan struct {
	LoanID          int64      `db:"loan_id" json:"loan_id"`
	BorrowerAddress string     `db:"borrower_address" json:"borrower_address"`
	LenderAddress   *string    `db:"lender_address" json:"lender_address"`
	Amount          int64      `db:"amount" json:"amount"`
	InterestRate    int        `db:"interest_rate" json:"interest_rate"`
	Duration        int        `db:"duration" json:"duration"`
	Purpose         string     `db:"purpose" json:"purpose"`
	Status          LoanStatus `db:"status" json:"status"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	FundedAt        *time.Time `db:"funded_at" json:"funded_at"`
	RepaidAt        *time.Time `db:"repaid_at" json:"repaid_at"`
	TxHash          *string    `db:"tx_hash" json:"tx_hash"`
}

// MarshalJSON adds the human readable status name.
func (l Loan) MarshalJSON() ([]byte, error) {
	type plain Loan
	return json.Marshal(struct {
		plain
		StatusName string `json:"status_name"`
	}{plain(l), l.Status.String()})
}

// IsParticipant reports whether address is the borrower or the lender.
func (l *Loan) IsParticipant(address string) bool {
	if l.BorrowerAddress == address {
		return true
	}
	return l.LenderAddress != nil && *l.LenderAddress == address
}

// LoanFilter narrows loan listings
type LoanFilter struct {
	Status   *LoanStatus
	Borrower string
	Lender   string
	Limit    int
	Offset   int
}
