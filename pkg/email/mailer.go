package email

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
)

// EmailSender represents an interface for sending emails.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// SendEmailParams represents the parameters for sending an email.
type SendEmailParams struct {
	SendTo   string `json:"send_to"`             // Email address of the recipient
	Subject  string `json:"subject"`             // Subject of the email
	BodyHTML string `json:"body_html"`           // HTML body of the email
	BodyText string `json:"body_text,omitempty"` // Optional plain text part
	Tag      string `json:"tag,omitempty"`       // Optional
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Validate checks the recipient address, subject and body.
func (p SendEmailParams) Validate() error {
	switch {
	case p.SendTo == "":
		return fmt.Errorf("%w: recipient is required", ErrInvalidParams)
	case !emailRegex.MatchString(p.SendTo):
		return fmt.Errorf("%w: recipient must be a valid email address", ErrInvalidParams)
	case strings.TrimSpace(p.Subject) == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidParams)
	case strings.TrimSpace(p.BodyHTML) == "" && strings.TrimSpace(p.BodyText) == "":
		return fmt.Errorf("%w: body is required", ErrInvalidParams)
	}
	return nil
}

// TextMessage builds params for a plain text message, with an escaped HTML
// rendition for clients that prefer it.
func TextMessage(to, subject, text, tag string) SendEmailParams {
	return SendEmailParams{
		SendTo:   to,
		Subject:  subject,
		BodyHTML: "<pre>" + html.EscapeString(text) + "</pre>",
		BodyText: text,
		Tag:      tag,
	}
}
