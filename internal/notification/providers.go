package notification

import (
	"context"
	"fmt"
	"log"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"sync"

	"github.com/civic-complaints/platform/internal/shared/config"
)

// SMTPProvider sends email through an SMTP relay
type SMTPProvider struct {
	cfg  config.SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPProvider creates an SMTP email provider
func NewSMTPProvider(cfg config.SMTPConfig) *SMTPProvider {
	return &SMTPProvider{cfg: cfg, send: smtp.SendMail}
}

// Send delivers the notification as a plain text email
func (p *SMTPProvider) Send(ctx context.Context, notification *Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if notification.Email == "" {
		return fmt.Errorf("no email address provided")
	}

	to := mail.Address{Name: notification.RecipientName, Address: notification.Email}
	from := mail.Address{Address: p.cfg.Sender}

	msg := []byte(strings.Join([]string{
		"To: " + to.String(),
		"From: " + from.String(),
		"Subject: " + mime.QEncoding.Encode("UTF-8", notification.Subject),
		"MIME-version: 1.0",
		`Content-Type: text/plain; charset="UTF-8"`,
		"",
		strings.ReplaceAll(notification.Body, "\n", "\r\n"),
	}, "\r\n"))

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	if err := p.send(addr, auth, p.cfg.Sender, []string{notification.Email}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// ConsoleProvider logs notifications (for development)
type ConsoleProvider struct {
	prefix string
}

// NewConsoleProvider creates a console logging provider
func NewConsoleProvider(prefix string) *ConsoleProvider {
	return &ConsoleProvider{prefix: prefix}
}

// Send logs the notification
func (p *ConsoleProvider) Send(ctx context.Context, notification *Notification) error {
	log.Printf("[%s EMAIL] To: %s <%s>, Subject: %s\n%s",
		p.prefix, notification.RecipientName, notification.Email, notification.Subject, notification.Body)
	return nil
}

// MockEmailProvider records notifications for tests
type MockEmailProvider struct {
	mu        sync.Mutex
	sent      []*Notification
	failTimes int
	attempts  int
}

// NewMockEmailProvider creates a new mock email provider
func NewMockEmailProvider() *MockEmailProvider {
	return &MockEmailProvider{}
}

// Send records the notification, failing the first FailTimes attempts
func (p *MockEmailProvider) Send(ctx context.Context, notification *Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++
	if p.attempts <= p.failTimes {
		return fmt.Errorf("mock send failure")
	}
	if notification.Email == "" {
		return fmt.Errorf("no email address provided")
	}

	p.sent = append(p.sent, notification)
	return nil
}

// SetFailTimes makes the next n sends fail
func (p *MockEmailProvider) SetFailTimes(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failTimes = p.attempts + n
}

// Attempts returns how many sends were tried
func (p *MockEmailProvider) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// GetSentNotifications returns all sent notifications
func (p *MockEmailProvider) GetSentNotifications() []*Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Notification(nil), p.sent...)
}
