// Package render submits report templates to the jsreport render service
// and returns the rendered document.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrRenderFailed matches every *Error via errors.Is.
var ErrRenderFailed = errors.New("render: render failed")

// Error is returned when the render service answers with a non-200 status.
type Error struct {
	Template string
	Status   int
	Body     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("render: template %q: unexpected status %d: %.200s", e.Template, e.Status, e.Body)
}

// Is lets errors.Is(err, ErrRenderFailed) match.
func (e *Error) Is(target error) bool {
	return target == ErrRenderFailed
}

// Renderer is what the pipelines depend on. Tests inject a stub.
type Renderer interface {
	// Render returns the raw document bytes (a PDF for every template in use).
	Render(ctx context.Context, template string, data any) ([]byte, error)
}

// client is the concrete Renderer backed by the jsreport HTTP API.
type client struct {
	url        string
	username   string
	password   string
	httpClient *http.Client
}

// NewClient returns a Renderer posting to url, e.g.
// "https://jsreports.afg.tech/api/report", with basic-auth credentials.
func NewClient(url, username, password string, timeout time.Duration) Renderer {
	return &client{
		url:      url,
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ─── JSREPORT API SHAPES ──────────────────────────────────────────────────────

type renderRequest struct {
	Template templateRef `json:"template"`
	Data     any         `json:"data"`
}

type templateRef struct {
	Name string `json:"name"`
}

// Render posts {template: {name}, data} and returns the response body.
func (c *client) Render(ctx context.Context, template string, data any) ([]byte, error) {
	bodyBytes, err := json.Marshal(renderRequest{
		Template: templateRef{Name: template},
		Data:     data,
	})
	if err != nil {
		return nil, fmt.Errorf("render: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("render: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render: http request: %w", err)
	}
	defer resp.Body.Close()

	doc, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20)) // 64 MB cap
	if err != nil {
		return nil, fmt.Errorf("render: read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Template: template, Status: resp.StatusCode, Body: string(doc)}
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("render: template %q: empty document", template)
	}
	return doc, nil
}
