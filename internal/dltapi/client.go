// Package dltapi is the client for the upstream Dealer Lifetime reporting
// API: token login plus authenticated JSON GET/POST calls.
package dltapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoToken means the client has no bearer token, either because login
// failed or because Authenticate was never called. Callers treat it as fatal
// for the pipeline.
var ErrNoToken = errors.New("dltapi: no api token")

// ErrRemoteRequestFailed matches every *RequestError via errors.Is.
var ErrRemoteRequestFailed = errors.New("dltapi: remote request failed")

// RequestError is returned for any non-200 response. Body holds the
// (truncated) response text.
type RequestError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("dltapi: %s %s: unexpected status %d: %.200s", e.Method, e.Path, e.Status, e.Body)
}

// Is lets errors.Is(err, ErrRemoteRequestFailed) match.
func (e *RequestError) Is(target error) bool {
	return target == ErrRemoteRequestFailed
}

// Credentials are the identity endpoint login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Client talks to one API base URL. It is not safe for concurrent
// Authenticate calls; each pipeline builds its own.
type Client struct {
	baseURL    string
	creds      Credentials
	token      string
	httpClient *http.Client
}

// NewClient returns a Client for baseURL, e.g. "https://api.app.dealerlifetime.com".
// A zero timeout leaves the http.Client without one; the caller's context
// still bounds every request.
func NewClient(baseURL string, creds Credentials, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithHTTPClient replaces the underlying http.Client. Used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Authenticate exchanges the credentials for a bearer token and keeps it on
// the client for subsequent calls.
func (c *Client) Authenticate(ctx context.Context) error {
	c.token = ""

	var parsed tokenResponse
	if err := c.do(ctx, http.MethodPost, "/v3/identity/token", nil, c.creds, false, &parsed); err != nil {
		return fmt.Errorf("%w: %w", ErrNoToken, err)
	}
	if parsed.Token == "" {
		return fmt.Errorf("%w: identity response carried no token", ErrNoToken)
	}

	c.token = parsed.Token
	return nil
}

// Get issues an authenticated GET. body may be nil; when set it is sent as
// a JSON request body, which some report endpoints require even on GET.
func (c *Client) Get(ctx context.Context, path string, query url.Values, body, out any) error {
	return c.do(ctx, http.MethodGet, path, query, body, true, out)
}

// Post issues an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, true, out)
}

// ─── HTTP ─────────────────────────────────────────────────────────────────────

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, authed bool, out any) error {
	if authed && c.token == "" {
		return ErrNoToken
	}

	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("dltapi: marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("dltapi: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dltapi: http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20)) // 32 MB cap
	if err != nil {
		return fmt.Errorf("dltapi: read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &RequestError{Method: method, Path: path, Status: resp.StatusCode, Body: string(respBytes)}
	}

	if out == nil {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(respBytes))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("dltapi: unmarshal %s response: %w", path, err)
	}
	return nil
}
