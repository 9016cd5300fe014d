package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// fallbackSender wraps two Senders. It calls the primary first; if that
// returns an error it logs the failure and tries the secondary.
type fallbackSender struct {
	primary   Sender
	secondary Sender
	logger    *slog.Logger
}

// NewFallbackSender returns a Sender that calls primary and, on failure,
// falls back to secondary. If secondary is nil, primary is returned as is.
func NewFallbackSender(primary, secondary Sender, logger *slog.Logger) Sender {
	if secondary == nil {
		return primary
	}
	return &fallbackSender{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

// Send tries the primary Sender, then the secondary. Messages that failed
// validation are not retried since the secondary would reject them too.
// Neither is a send whose context ended: the primary may already have
// accepted the message.
func (f *fallbackSender) Send(ctx context.Context, m Message) (string, error) {
	id, err := f.primary.Send(ctx, m)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, ErrNoRecipients) || errors.Is(err, ErrInvalidMessage) {
		return "", err
	}
	if ctx.Err() != nil {
		return "", err
	}

	f.logger.Warn("email: primary sender failed, trying secondary",
		"error", err,
		"subject", m.Subject,
	)

	id, secErr := f.secondary.Send(ctx, m)
	if secErr != nil {
		return "", fmt.Errorf("email: primary and secondary failed: %w", errors.Join(err, secErr))
	}
	return id, nil
}
