package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Lifecycle event names delivered to notifiers
const (
	EventLoanRequested = "loan_requested"
	EventLoanFunded    = "loan_funded"
	EventLoanRepaid    = "loan_repaid"
	EventLoanCancelled = "loan_cancelled"
	EventLoanDefaulted = "loan_defaulted"
	EventMessageSent   = "message_sent"
	EventAgentVerified = "agent_verified"
	EventTest          = "test"
)

// KnownEvents lists the events a webhook may subscribe to.
var KnownEvents = []string{
	EventLoanRequested,
	EventLoanFunded,
	EventLoanRepaid,
	EventLoanCancelled,
	EventLoanDefaulted,
	EventMessageSent,
	EventAgentVerified,
}

// EventList is stored as a JSON array so both SQL backends share one column type.
type EventList []string

// Value implements driver.Valuer
func (e EventList) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(e))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (e *EventList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*e = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into EventList", src)
	}
	return json.Unmarshal(raw, (*[]string)(e))
}

// Contains reports whether the list subscribes to event.
func (e EventList) Contains(event string) bool {
	for _, v := range e {
		if v == event {
			return true
		}
	}
	return false
}

// Webhook is an agent-registered HTTP callback
type Webhook struct {
	ID           int64     `db:"id" json:"id"`
	AgentAddress string    `db:"agent_address" json:"agent_address"`
	URL          string    `db:"url" json:"url"`
	Events       EventList `db:"events" json:"events"`
	Secret       string    `db:"secret" json:"-"` // Stored encrypted
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// WebhookLog records one delivery attempt
type WebhookLog struct {
	ID             int64     `db:"id" json:"id"`
	WebhookID      int64     `db:"webhook_id" json:"webhook_id"`
	DeliveryID     string    `db:"delivery_id" json:"delivery_id"`
	Event          string    `db:"event" json:"event"`
	Payload        string    `db:"payload" json:"payload"`
	ResponseStatus int       `db:"response_status" json:"response_status"`
	ResponseBody   *string   `db:"response_body" json:"response_body"`
	Success        bool      `db:"success" json:"success"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
