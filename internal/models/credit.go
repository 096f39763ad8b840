package models

import "time"

// CreditScore is the one-to-one credit record of an agent
type CreditScore struct {
	AgentAddress   string    `db:"agent_address" json:"agent_address"`
	Score          int       `db:"score" json:"score"`
	Tier           string    `db:"tier" json:"tier"`
	TotalLoans     int       `db:"total_loans" json:"total_loans"`
	RepaidLoans    int       `db:"repaid_loans" json:"repaid_loans"`
	DefaultedLoans int       `db:"defaulted_loans" json:"defaulted_loans"`
	MaxLoanAmount  int64     `db:"max_loan_amount" json:"max_loan_amount"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// CreditEvent records a single score change
type CreditEvent struct {
	ID           int64     `db:"id" json:"id"`
	AgentAddress string    `db:"agent_address" json:"agent_address"`
	LoanID       *int64    `db:"loan_id" json:"loan_id"`
	OldScore     int       `db:"old_score" json:"old_score"`
	NewScore     int       `db:"new_score" json:"new_score"`
	Reason       string    `db:"reason" json:"reason"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
