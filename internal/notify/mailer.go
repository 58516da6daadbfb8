package notify

import (
	"fmt"
	"net/smtp"
	"os"
)

type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer sends plain-text mail through the configured SMTP relay.
// When SMTP is not configured it reports an error and the dispatcher
// logs and moves on.
type SMTPMailer struct {
	host     string
	port     string
	username string
	password string
	from     string
}

func NewSMTPMailer() *SMTPMailer {
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = "noreply@kelasin.id"
	}
	return &SMTPMailer{
		host:     os.Getenv("SMTP_HOST"),
		port:     port,
		username: os.Getenv("SMTP_USERNAME"),
		password: os.Getenv("SMTP_PASSWORD"),
		from:     from,
	}
}

func (m *SMTPMailer) IsConfigured() bool {
	return m.host != "" && m.username != "" && m.password != ""
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	if !m.IsConfigured() {
		return fmt.Errorf("smtp not configured, dropping mail to %s", to)
	}

	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", m.from, to, subject, body))
	auth := smtp.PlainAuth("", m.username, m.password, m.host)
	return smtp.SendMail(m.host+":"+m.port, auth, m.from, []string{to}, msg)
}
