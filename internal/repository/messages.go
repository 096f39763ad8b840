package repository

import (
	"context"
	"fmt"

	"github.com/Dan9191/credit-network/internal/models"
)

// CreateMessage appends a message to a loan's conversation
func (r *Repository) CreateMessage(ctx context.Context, msg *models.Message) error {
	msg.CreatedAt = r.now()
	msg.IsRead = false
	err := r.q.QueryOne(ctx, &msg.ID, `
		INSERT INTO messages (loan_id, sender_address, content, is_read, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		msg.LoanID, msg.SenderAddress, msg.Content, msg.IsRead, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListMessages returns a loan's conversation oldest first
func (r *Repository) ListMessages(ctx context.Context, loanID int64, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.q.QueryMany(ctx, &msgs, `
		SELECT m.id, m.loan_id, m.sender_address, a.name AS sender_name,
		       m.content, m.is_read, m.created_at
		FROM messages m
		LEFT JOIN agents a ON m.sender_address = a.address
		WHERE m.loan_id = ?
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT ?`, loanID, clampLimit(limit, 100, 500))
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// MarkMessagesRead marks every unread message not written by reader as read
func (r *Repository) MarkMessagesRead(ctx context.Context, loanID int64, reader string) (int64, error) {
	res, err := r.q.Execute(ctx, `
		UPDATE messages SET is_read = ?
		WHERE loan_id = ? AND sender_address <> ? AND is_read = ?`,
		true, loanID, reader, false)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return res.RowsAffected, nil
}

// UnreadCount counts messages address has not read yet
func (r *Repository) UnreadCount(ctx context.Context, loanID int64, address string) (int64, error) {
	var count int64
	err := r.q.QueryOne(ctx, &count, `
		SELECT COUNT(*) FROM messages
		WHERE loan_id = ? AND sender_address <> ? AND is_read = ?`,
		loanID, address, false)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}
