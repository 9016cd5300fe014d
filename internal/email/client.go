// Package email defines the interface for report delivery and provides an
// SES raw-message implementation plus a Resend-backed one.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ErrSendFailed matches every *SendError via errors.Is.
var ErrSendFailed = errors.New("email: send failed")

// ErrNoRecipients is wrapped by SendError when a message has no destination.
var ErrNoRecipients = errors.New("email: no recipients")

// ErrInvalidMessage is wrapped by SendError when the envelope or attachment
// fails validation before any provider is contacted.
var ErrInvalidMessage = errors.New("email: invalid message")

// SendError is returned when a provider rejects or cannot accept a message.
type SendError struct {
	Provider string // "ses" | "resend"
	Err      error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("email: %s: %v", e.Provider, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSendFailed) match.
func (e *SendError) Is(target error) bool {
	return target == ErrSendFailed
}

// Attachment is a single file attached to a report email.
type Attachment struct {
	Filename string // e.g. "DLT-DailySalesReport_10-18-2026.pdf"
	Subtype  string // MIME subtype under application/, e.g. "pdf" or "csv"
	Data     []byte
}

// ContentType returns the attachment's full MIME type.
func (a Attachment) ContentType() string {
	return "application/" + a.Subtype
}

// Message is one report email: a plain-text body plus one attachment.
type Message struct {
	From       string
	To         []string
	Subject    string
	Body       string
	Attachment Attachment
}

// Sender is the interface the pipelines use to deliver reports.
// Tests inject a stub that records calls without hitting the network.
type Sender interface {
	// Send delivers m and returns the provider-assigned message id.
	// Implementations never modify m.To.
	Send(ctx context.Context, m Message) (string, error)
}

// validate checks the envelope and returns normalised copies of the
// sender and recipient addresses.
func (m Message) validate() (string, []string, error) {
	if len(m.To) == 0 {
		return "", nil, ErrNoRecipients
	}

	from, err := mail.ParseAddress(m.From)
	if err != nil {
		return "", nil, fmt.Errorf("%w: from address %q: %w", ErrInvalidMessage, m.From, err)
	}

	to := make([]string, 0, len(m.To))
	for _, raw := range m.To {
		addr, err := mail.ParseAddress(strings.TrimSpace(raw))
		if err != nil {
			return "", nil, fmt.Errorf("%w: recipient %q: %w", ErrInvalidMessage, raw, err)
		}
		to = append(to, addr.Address)
	}

	if m.Attachment.Filename == "" || m.Attachment.Subtype == "" {
		return "", nil, fmt.Errorf("%w: attachment needs a filename and subtype", ErrInvalidMessage)
	}
	return from.Address, to, nil
}
