package models

import "time"

// Message is a chat line between the participants of a loan
type Message struct {
	ID            int64     `db:"id" json:"id"`
	LoanID        int64     `db:"loan_id" json:"loan_id"`
	SenderAddress string    `db:"sender_address" json:"sender_address"`
	SenderName    *string   `db:"sender_name" json:"sender_name,omitempty"`
	Content       string    `db:"content" json:"content"`
	IsRead        bool      `db:"is_read" json:"is_read"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
