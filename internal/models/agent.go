package models

import "time"

// Agent represents a wallet-identified participant
type Agent struct {
	Address     string    `db:"address" json:"address"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Verified    bool      `db:"verified" json:"verified"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// AgentProfile is an agent joined with its credit record. Credit columns are
// nullable because agents created before credit tracking may lack a row.
type AgentProfile struct {
	Agent
	Score          *int    `db:"score" json:"score"`
	Tier           *string `db:"tier" json:"tier"`
	TotalLoans     *int    `db:"total_loans" json:"total_loans"`
	RepaidLoans    *int    `db:"repaid_loans" json:"repaid_loans"`
	DefaultedLoans *int    `db:"defaulted_loans" json:"defaulted_loans"`
	MaxLoanAmount  *int64  `db:"max_loan_amount" json:"max_loan_amount"`
}
