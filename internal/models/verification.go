package models

import "time"

const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
)

// PendingVerification tracks the human-verification handshake of an agent
type PendingVerification struct {
	ID             int64      `db:"id" json:"id"`
	AgentAddress   string     `db:"agent_address" json:"agent_address"`
	Token          string     `db:"token" json:"token"`
	Status         string     `db:"status" json:"status"`
	ExternalHandle *string    `db:"x_username" json:"external_handle"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	VerifiedAt     *time.Time `db:"verified_at" json:"verified_at"`
	VerifiedBy     *string    `db:"verified_by" json:"verified_by"`
}

// VerificationStatus is the public view of a verification token
type VerificationStatus struct {
	Status        string     `db:"status" json:"status"`
	AgentAddress  string     `db:"agent_address" json:"agent_address"`
	AgentName     string     `db:"name" json:"agent_name"`
	AgentVerified bool       `db:"agent_verified" json:"verified"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	VerifiedAt    *time.Time `db:"verified_at" json:"verified_at"`
}
