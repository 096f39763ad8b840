package models

import "time"

// AutoRepayConfig asks an off-chain agent runtime to repay once funds allow
type AutoRepayConfig struct {
	ID           int64      `db:"id" json:"id"`
	AgentAddress string     `db:"agent_address" json:"agent_address"`
	LoanID       int64      `db:"loan_id" json:"loan_id"`
	Threshold    int64      `db:"threshold" json:"threshold"`
	MinBalance   int64      `db:"min_balance" json:"min_balance"`
	Enabled      bool       `db:"enabled" json:"enabled"`
	ExecutedAt   *time.Time `db:"executed_at" json:"executed_at"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	LoanAmount   *int64     `db:"amount" json:"amount,omitempty"`
	LoanStatus   *int       `db:"status" json:"loan_status,omitempty"`
}

// InsurancePolicy covers a lender against borrower default
type InsurancePolicy struct {
	ID             int64      `db:"id" json:"id"`
	LoanID         int64      `db:"loan_id" json:"loan_id"`
	LenderAddress  string     `db:"lender_address" json:"lender_address"`
	CoverageAmount int64      `db:"coverage_amount" json:"coverage_amount"`
	PremiumPaid    int64      `db:"premium_paid" json:"premium_paid"`
	TxHash         *string    `db:"tx_hash" json:"tx_hash"`
	Claimed        bool       `db:"claimed" json:"claimed"`
	ClaimTxHash    *string    `db:"claim_tx_hash" json:"claim_tx_hash"`
	ClaimedAt      *time.Time `db:"claimed_at" json:"claimed_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	LoanAmount     *int64     `db:"loan_amount" json:"loan_amount,omitempty"`
	LoanStatus     *int       `db:"loan_status" json:"loan_status,omitempty"`
}

// InsuranceStats summarises the insurance pool
type InsuranceStats struct {
	TotalPolicies int64 `db:"total_policies" json:"total_policies"`
	ClaimsFiled   int64 `db:"claims_filed" json:"claims_filed"`
	TotalPremiums int64 `db:"total_premiums" json:"total_premiums"`
	TotalPayouts  int64 `db:"total_payouts" json:"total_payouts"`
}

const (
	ReferralPending = "pending"
	ReferralPaid    = "paid"
)

// Referral links an agent to the agent that invited it
type Referral struct {
	ID              int64      `db:"id" json:"id"`
	ReferrerAddress string     `db:"referrer_address" json:"referrer_address"`
	ReferredAddress string     `db:"referred_address" json:"referred_address"`
	ReferralCode    string     `db:"referral_code" json:"referral_code"`
	Status          string     `db:"status" json:"status"`
	RewardAmount    int64      `db:"reward_amount" json:"reward_amount"`
	TxHash          *string    `db:"tx_hash" json:"tx_hash"`
	PaidAt          *time.Time `db:"paid_at" json:"paid_at"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	CounterpartName *string    `db:"counterpart_name" json:"counterpart_name,omitempty"`
}

// ReferralStats summarises an agent's referral activity
type ReferralStats struct {
	ReferralsMade int64 `db:"referrals_made" json:"referrals_made"`
	WasReferred   int64 `db:"was_referred" json:"was_referred"`
	TotalEarnings int64 `db:"total_earnings" json:"total_earnings"`
}
