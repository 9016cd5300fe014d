package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"
)

// SESAPI is the subset of the SES client used here. Tests inject a stub.
type SESAPI interface {
	SendRawEmail(ctx context.Context, in *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// SESSender delivers messages through SES SendRawEmail.
type SESSender struct {
	client SESAPI
	now    func() time.Time
}

// NewSESSender returns a Sender backed by SES.
func NewSESSender(client SESAPI) *SESSender {
	return &SESSender{client: client, now: time.Now}
}

// WithClock replaces the clock used for the Date header.
func (s *SESSender) WithClock(now func() time.Time) *SESSender {
	if now != nil {
		s.now = now
	}
	return s
}

// Send builds the raw MIME message and hands it to SES.
func (s *SESSender) Send(ctx context.Context, m Message) (string, error) {
	from, to, err := m.validate()
	if err != nil {
		return "", &SendError{Provider: "ses", Err: err}
	}

	raw, err := BuildRaw(m, s.now())
	if err != nil {
		return "", &SendError{Provider: "ses", Err: err}
	}

	out, err := s.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(from),
		Destinations: to,
		RawMessage:   &types.RawMessage{Data: raw},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", &SendError{Provider: "ses", Err: fmt.Errorf("%s: %s: %w", apiErr.ErrorCode(), apiErr.ErrorMessage(), err)}
		}
		return "", &SendError{Provider: "ses", Err: err}
	}

	return aws.ToString(out.MessageId), nil
}
