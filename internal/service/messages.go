package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/Dan9191/credit-network/internal/models"
)

const maxMessageLength = 1000

// SendMessage appends a message to a loan's conversation. Only the borrower
// and the lender may write.
func (s *Service) SendMessage(ctx context.Context, loanID int64, senderAddress, content string) (*models.Message, error) {
	sender, err := normalizeAddress("sender_address", senderAddress)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, validation("content is required").With("field", "content")
	}
	if n := utf8.RuneCountInString(content); n > maxMessageLength {
		return nil, validation("content must be at most %d characters", maxMessageLength).
			With("field", "content").
			With("length", n)
	}

	loan, err := s.loadLoan(ctx, s.repo, loanID)
	if err != nil {
		return nil, err
	}
	if !loan.IsParticipant(sender) {
		return nil, forbidden("only the borrower or lender of loan %d can send messages", loanID)
	}

	msg := &models.Message{LoanID: loanID, SenderAddress: sender, Content: content}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, s.storageError(err, "message")
	}

	recipient := loan.BorrowerAddress
	if recipient == sender && loan.LenderAddress != nil {
		recipient = *loan.LenderAddress
	}
	s.emit(ctx, models.EventMessageSent, msg, recipient)
	return msg, nil
}

// ListMessages returns a loan's conversation oldest first
func (s *Service) ListMessages(ctx context.Context, loanID int64, limit int) ([]models.Message, error) {
	if _, err := s.loadLoan(ctx, s.repo, loanID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, loanID, limit)
	if err != nil {
		return nil, s.storageError(err, "messages")
	}
	return msgs, nil
}

// MarkRead marks the messages addressed to reader as read and returns how many changed
func (s *Service) MarkRead(ctx context.Context, loanID int64, readerAddress string) (int64, error) {
	reader, err := normalizeAddress("reader_address", readerAddress)
	if err != nil {
		return 0, err
	}
	loan, err := s.loadLoan(ctx, s.repo, loanID)
	if err != nil {
		return 0, err
	}
	if !loan.IsParticipant(reader) {
		return 0, forbidden("only the borrower or lender of loan %d can read its messages", loanID)
	}
	n, err := s.repo.MarkMessagesRead(ctx, loanID, reader)
	if err != nil {
		return 0, s.storageError(err, "messages")
	}
	return n, nil
}

// UnreadCount counts the messages of a loan that address has not read
func (s *Service) UnreadCount(ctx context.Context, loanID int64, address string) (int64, error) {
	addr, err := normalizeAddress("address", address)
	if err != nil {
		return 0, err
	}
	if _, err := s.loadLoan(ctx, s.repo, loanID); err != nil {
		return 0, err
	}
	n, err := s.repo.UnreadCount(ctx, loanID, addr)
	if err != nil {
		return 0, s.storageError(err, "messages")
	}
	return n, nil
}
