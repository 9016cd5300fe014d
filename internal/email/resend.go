package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const resendEndpoint = "https://api.resend.com/emails"

// resendClient is the Sender backed by the Resend API.
type resendClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewResendClient returns a Sender that delivers email via Resend. An empty
// endpoint uses the public API.
func NewResendClient(apiKey, endpoint string) Sender {
	if endpoint == "" {
		endpoint = resendEndpoint
	}
	return &resendClient{
		apiKey:   apiKey,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ─── RESEND API SHAPES ────────────────────────────────────────────────────────

type resendRequest struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Subject     string             `json:"subject"`
	Text        string             `json:"text"`
	Attachments []resendAttachment `json:"attachments"`
}

type resendAttachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"` // base64
	ContentType string `json:"content_type"`
}

type resendResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Name       string `json:"name"`
		Message    string `json:"message"`
		StatusCode int    `json:"statusCode"`
	} `json:"error"`
}

// ─── HTTP SEND ────────────────────────────────────────────────────────────────

// Send posts m to Resend and returns the Resend email id.
func (c *resendClient) Send(ctx context.Context, m Message) (string, error) {
	from, to, err := m.validate()
	if err != nil {
		return "", &SendError{Provider: "resend", Err: err}
	}

	reqBody := resendRequest{
		From:    from,
		To:      to,
		Subject: sanitizeHeaderValue(m.Subject),
		Text:    m.Body,
		Attachments: []resendAttachment{{
			Filename:    m.Attachment.Filename,
			Content:     base64.StdEncoding.EncodeToString(m.Attachment.Data),
			ContentType: m.Attachment.ContentType(),
		}},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("email: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("email: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &SendError{Provider: "resend", Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", &SendError{Provider: "resend", Err: fmt.Errorf("read response: %w", err)}
	}

	var parsed resendResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", &SendError{Provider: "resend", Err: fmt.Errorf("unmarshal response (status %d): %w", resp.StatusCode, err)}
	}

	if parsed.Error != nil {
		return "", &SendError{Provider: "resend", Err: fmt.Errorf("%s: %s", parsed.Error.Name, parsed.Error.Message)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &SendError{Provider: "resend", Err: fmt.Errorf("unexpected status %d: %.200s", resp.StatusCode, string(respBytes))}
	}

	return parsed.ID, nil
}
