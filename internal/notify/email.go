package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/Dan9191/credit-network/internal/config"
	"github.com/Dan9191/credit-network/internal/models"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// EmailNotifier alerts the operator mailbox about defaults and verifications
type EmailNotifier struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email) error
}

// NewEmailNotifier creates an SMTP-backed notifier
func NewEmailNotifier(cfg *config.Config, logger *logrus.Logger) *EmailNotifier {
	n := &EmailNotifier{cfg: cfg, logger: logger}
	n.send = func(e *email.Email) error {
		addr := fmt.Sprintf("%s:%s", cfg.SMTPHost, cfg.SMTPPort)
		var auth smtp.Auth
		if cfg.SMTPUsername != "" {
			auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
		}
		return e.Send(addr, auth)
	}
	return n
}

// Notify sends an alert for the events operators care about. Mail goes out
// in the background so request handling is not held up by SMTP.
func (n *EmailNotifier) Notify(_ context.Context, ev Event) {
	if ev.Name != models.EventLoanDefaulted && ev.Name != models.EventAgentVerified {
		return
	}
	e := n.compose(ev)
	go func() {
		if err := n.send(e); err != nil {
			n.logger.Errorf("Failed to send %s alert to %s: %v", ev.Name, n.cfg.AdminEmail, err)
			return
		}
		n.logger.Infof("Email sent to %s: %s", n.cfg.AdminEmail, e.Subject)
	}()
}

func (n *EmailNotifier) compose(ev Event) *email.Email {
	e := email.NewEmail()
	e.From = n.cfg.SenderEmail
	e.To = []string{n.cfg.AdminEmail}

	var body strings.Builder
	switch ev.Name {
	case models.EventLoanDefaulted:
		e.Subject = "Loan Default Notification"
		body.WriteString("A funded loan has been marked as defaulted.\n\n")
	case models.EventAgentVerified:
		e.Subject = "Agent Verification Notification"
		body.WriteString("An agent completed verification.\n\n")
	}
	fmt.Fprintf(&body, "Event: %s\nTime: %s\n", ev.Name, ev.Timestamp.Format("2006-01-02 15:04:05 MST"))
	if len(ev.Recipients) > 0 {
		fmt.Fprintf(&body, "Agents: %s\n", strings.Join(ev.Recipients, ", "))
	}
	switch data := ev.Data.(type) {
	case *models.Loan:
		fmt.Fprintf(&body, "Loan: #%d, amount %d sub-units, borrower %s\n", data.LoanID, data.Amount, data.BorrowerAddress)
	case *models.Agent:
		fmt.Fprintf(&body, "Agent: %s (%s)\n", data.Name, data.Address)
	}
	body.WriteString("\nAgent Credit Network")
	e.Text = []byte(body.String())
	return e
}
