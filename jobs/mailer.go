package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Mailer delivers a message to a list of recipients.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// SMTPMailer sends through a plain SMTP relay.
type SMTPMailer struct {
	addr string
	from string
}

// NewSMTPMailer constructs an SMTPMailer for host:port.
func NewSMTPMailer(host string, port int, from string) *SMTPMailer {
	return &SMTPMailer{addr: fmt.Sprintf("%s:%d", host, port), from: from}
}

// Send delivers one message to all recipients.
func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(m.addr, nil, m.from, to, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LoggingMailer stands in when no SMTP relay is configured. Messages are
// logged, not delivered.
type LoggingMailer struct {
	logger *slog.Logger
}

// NewLoggingMailer constructs a LoggingMailer.
func NewLoggingMailer(logger *slog.Logger) *LoggingMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingMailer{logger: logger}
}

// Send logs the message instead of delivering it.
func (m *LoggingMailer) Send(ctx context.Context, to []string, subject, body string) error {
	m.logger.Info("mail (not delivered)",
		slog.String("to", strings.Join(to, ", ")),
		slog.String("subject", subject),
	)
	return nil
}
