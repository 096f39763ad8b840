package models

// Overview holds platform-wide lending statistics
type Overview struct {
	TotalLoans        int64            `json:"total_loans"`
	PendingLoans      int64            `json:"pending_loans"`
	ActiveLoans       int64            `json:"active_loans"`
	RepaidLoans       int64            `json:"repaid_loans"`
	TotalActiveVolume int64            `json:"total_active_volume"`
	TotalRepaidVolume int64            `json:"total_repaid_volume"`
	TotalVolume       int64            `json:"total_volume"`
	TotalAgents       int64            `json:"total_agents"`
	VerifiedAgents    int64            `json:"verified_agents"`
	Loans24h          int64            `json:"loans_24h"`
	Volume24h         int64            `json:"volume_24h"`
	AvgInterestRate   int64            `json:"avg_interest_rate"`
	AvgLoanAmount     float64          `json:"avg_loan_amount"`
	LoansByStatus     map[string]int64 `json:"loans_by_status"`
}

// VolumePoint aggregates loans created on one day (UTC)
type VolumePoint struct {
	Date      string  `json:"date"` // Format: YYYY-MM-DD
	LoanCount int64   `json:"loan_count"`
	Volume    int64   `json:"volume"`
	AvgRate   float64 `json:"avg_rate"`
}

// TierBucket counts agents per credit tier
type TierBucket struct {
	Tier     string  `db:"tier" json:"tier"`
	Count    int64   `db:"count" json:"count"`
	AvgScore float64 `db:"avg_score" json:"avg_score"`
}

// LenderRank is a row of the lenders leaderboard
type LenderRank struct {
	AgentAddress string `db:"agent_address" json:"agent_address"`
	Name         string `db:"name" json:"name"`
	TotalLent    int64  `db:"total_lent" json:"total_lent"`
	LoansFunded  int64  `db:"loans_funded" json:"loans_funded"`
}

// BorrowerRank is a row of the borrowers leaderboard
type BorrowerRank struct {
	AgentAddress string `db:"agent_address" json:"agent_address"`
	Name         string `db:"name" json:"name"`
	Score        int    `db:"score" json:"score"`
	Tier         string `db:"tier" json:"tier"`
	TotalLoans   int    `db:"total_loans" json:"total_loans"`
	RepaidLoans  int    `db:"repaid_loans" json:"repaid_loans"`
}

// VolumeRank is a row of the borrowing volume leaderboard
type VolumeRank struct {
	AgentAddress string `db:"agent_address" json:"agent_address"`
	Name         string `db:"name" json:"name"`
	TotalVolume  int64  `db:"total_volume" json:"total_volume"`
	TotalLoans   int64  `db:"total_loans" json:"total_loans"`
}

// AdminStats is the operator dashboard summary
type AdminStats struct {
	TotalAgents          int64 `json:"total_agents"`
	VerifiedAgents       int64 `json:"verified_agents"`
	TotalLoans           int64 `json:"total_loans"`
	PendingVerifications int64 `json:"pending_verifications"`
}
