package mailer

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Message is a plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sender delivers email messages.
type Sender interface {
	Send(msg Message) error
}

// SMTPSender sends mail through a plain SMTP relay.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPSender constructs an SMTP mail sender.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	if from == "" {
		from = "no-reply@localhost"
	}
	return &SMTPSender{host: host, port: port, username: username, password: password, from: from}
}

// Send delivers the message. The caller decides whether failures matter;
// notification flows log and drop them.
func (s *SMTPSender) Send(msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("mail requires at least one recipient")
	}
	if s.host == "" {
		return fmt.Errorf("smtp host not configured")
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "From: %s\r\n", s.from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(msg.Body)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if err := smtp.SendMail(addr, auth, s.from, msg.To, []byte(buf.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// NopSender drops every message. Used when mail is disabled.
type NopSender struct{}

// Send implements Sender.
func (NopSender) Send(Message) error { return nil }
