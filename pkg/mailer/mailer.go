package mailer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Mailer sends a single transactional message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Message is one outbound email. BodyText is the plain-text alternative;
// providers that support multipart delivery send both.
type Message struct {
	To       string
	Subject  string
	BodyHTML string
	BodyText string
	Tag      string // optional, used for provider-side grouping
}

// Validate reports whether the message is deliverable as composed.
func (m Message) Validate() error {
	if m.To == "" || !emailRegex.MatchString(m.To) {
		return fmt.Errorf("%w: recipient %q is not a valid email address", ErrInvalidMessage, m.To)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.BodyHTML) == "" && strings.TrimSpace(m.BodyText) == "" {
		return fmt.Errorf("%w: message has no body", ErrInvalidMessage)
	}
	return nil
}
