package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/calyxsuite/outreach/config"
	"github.com/calyxsuite/outreach/models"
	"github.com/calyxsuite/outreach/utils"
)

// Mailer sends HTML email over a tenant's own SMTP transport
type Mailer interface {
	Send(ctx context.Context, settings models.MailSettings, to, subject, html string) error
}

// MailerImpl implements Mailer using net/smtp
type MailerImpl struct {
	timeout      time.Duration
	heloHostname string
}

// NewMailer creates a new mailer instance
func NewMailer(cfg *config.MailConfig) Mailer {
	return &MailerImpl{
		timeout:      cfg.Timeout,
		heloHostname: cfg.HeloHostname,
	}
}

// Send delivers one HTML message through the SMTP server described by the
// tenant's mail settings. The settings are validated before any connection is
// opened; any transport failure is returned to the caller.
func (m *MailerImpl) Send(ctx context.Context, settings models.MailSettings, to, subject, html string) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("mail transport not configured: %w", err)
	}
	if to == "" {
		return fmt.Errorf("recipient address is required")
	}

	addr := net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port))

	dialer := &net.Dialer{Timeout: m.timeout}
	var conn net.Conn
	var err error

	if strings.EqualFold(settings.Encryption, "tls") {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: settings.Host})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if m.timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(m.timeout))
	}

	client, err := smtp.NewClient(conn, settings.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open SMTP session: %w", err)
	}
	defer client.Close()

	if m.heloHostname != "" {
		if err := client.Hello(m.heloHostname); err != nil {
			return fmt.Errorf("SMTP HELO failed: %w", err)
		}
	}

	if strings.EqualFold(settings.Encryption, "starttls") {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return fmt.Errorf("SMTP server %s does not support STARTTLS", settings.Host)
		}
		if err := client.StartTLS(&tls.Config{ServerName: settings.Host}); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if settings.Username != "" {
		auth := smtp.PlainAuth("", settings.Username, settings.Password, settings.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(settings.FromEmail); err != nil {
		return fmt.Errorf("SMTP MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT TO failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA failed: %w", err)
	}
	if _, err := w.Write(buildMessage(settings, to, subject, html)); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message body: %w", err)
	}

	return client.Quit()
}

// buildMessage assembles the RFC 5322 message bytes for one HTML email
func buildMessage(settings models.MailSettings, to, subject, html string) []byte {
	from := settings.FromEmail
	if settings.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", settings.FromName), settings.FromEmail)
	}

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + utils.UTCNow().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	b.WriteString("\r\n")

	return []byte(b.String())
}

// MockMailer implements Mailer for testing
type MockMailer struct {
	SentMessages []MockMailMessage
	SendErr      error
}

// MockMailMessage represents a mock sent email
type MockMailMessage struct {
	Settings models.MailSettings
	To       string
	Subject  string
	HTML     string
	SentAt   time.Time
}

// NewMockMailer creates a new mock mailer
func NewMockMailer() *MockMailer {
	return &MockMailer{SentMessages: make([]MockMailMessage, 0)}
}

// Send records the message instead of delivering it
func (m *MockMailer) Send(ctx context.Context, settings models.MailSettings, to, subject, html string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.SentMessages = append(m.SentMessages, MockMailMessage{
		Settings: settings,
		To:       to,
		Subject:  subject,
		HTML:     html,
		SentAt:   utils.UTCNow(),
	})
	return nil
}
