// Package email provides the email client for sending transactional emails.
package email

import (
	"errors"
	"fmt"

	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/email/templates"
	"github.com/AtRiskMedia/tinysteps-go/pkg/config"
	"github.com/resendlabs/resend-go"
)

// Service defines the interface for sending emails, allowing for mock implementations in tests.
type Service interface {
	SendNotification(toEmail, title, body string) error
	SendSubmissionAlert(toEmail, formKind string, fields map[string]string) error
}

// Sender is the part of the Resend SDK the client uses.
type Sender interface {
	Send(params *resend.SendEmailRequest) (resend.SendEmailResponse, error)
}

// ResendClient is the concrete implementation of the email Service using the Resend API.
type ResendClient struct {
	emails    Sender
	fromEmail string
	fromName  string
}

// ErrNotConfigured is returned when no Resend API key is set.
var ErrNotConfigured = errors.New("RESEND_API_KEY is not configured")

// NewService creates a new email service client, returning the Service interface.
func NewService() (Service, error) {
	if config.ResendAPIKey == "" {
		return nil, ErrNotConfigured
	}
	client := resend.NewClient(config.ResendAPIKey)
	return NewResendClient(client.Emails, config.EmailFrom, config.EmailFromName), nil
}

// NewResendClient wires an explicit sender.
func NewResendClient(emails Sender, fromEmail, fromName string) *ResendClient {
	return &ResendClient{emails: emails, fromEmail: fromEmail, fromName: fromName}
}

// SendNotification mails a user-facing confirmation.
func (c *ResendClient) SendNotification(toEmail, title, body string) error {
	htmlContent := templates.GetEmailLayout(templates.EmailLayoutProps{
		Preheader: title,
		Content:   templates.GetParagraph(body),
	})
	return c.send(toEmail, title, htmlContent)
}

// SendSubmissionAlert tells staff a form arrived.
func (c *ResendClient) SendSubmissionAlert(toEmail, formKind string, fields map[string]string) error {
	subject := fmt.Sprintf("New %s submission", formKind)
	htmlContent := templates.GetEmailLayout(templates.EmailLayoutProps{
		Preheader: subject,
		Content:   templates.GetParagraph(subject) + templates.GetFieldTable(fields),
	})
	return c.send(toEmail, subject, htmlContent)
}

func (c *ResendClient) send(toEmail, subject, htmlContent string) error {
	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromEmail),
		To:      []string{toEmail},
		Subject: subject,
		Html:    htmlContent,
	}

	if _, err := c.emails.Send(params); err != nil {
		return fmt.Errorf("failed to send email via Resend: %w", err)
	}
	return nil
}
