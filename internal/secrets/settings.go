package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nyashahama/dlt-reports/internal/config"
)

// Kind selects one of the recipient lists.
type Kind string

const (
	KindSales     Kind = "sales"
	KindInvoicing Kind = "invoicing"
	KindAPI       Kind = "api"
)

// APICredentials authenticate against the upstream reporting API.
type APICredentials struct {
	Email    string
	Password string
}

// RendererCredentials are the render service's basic-auth pair.
type RendererCredentials struct {
	Username string
	Password string
}

// APITotals configures the api totals pipeline.
type APITotals struct {
	// SendReport gates the whole pipeline.
	SendReport bool

	// Requests are the per-report query templates. Each is sent to the
	// warranty-create endpoint after the date window is filled in.
	Requests []map[string]any
}

// Settings is the typed configuration for one invocation, built once by Load.
// A bundle that failed to load only disables the pipelines that need it, so
// each accessor returns its own error.
type Settings struct {
	api         APICredentials
	apiErr      error
	renderer    RendererCredentials
	rendererErr error
	totals      APITotals
	totalsErr   error
	recipients  map[Kind][]string
}

// Load fetches every configured bundle exactly once and decodes it.
func Load(ctx context.Context, store Store, names config.SecretNames, production bool, logger *slog.Logger) *Settings {
	cache := map[string]bundleResult{}
	get := func(name string) (Bundle, error) {
		if r, ok := cache[name]; ok {
			return r.b, r.err
		}
		b, err := store.GetSecret(ctx, name)
		cache[name] = bundleResult{b: b, err: err}
		return b, err
	}

	s := &Settings{recipients: make(map[Kind][]string, 3)}

	if b, err := get(names.APITotals); err != nil {
		s.apiErr = err
		s.totalsErr = err
	} else {
		s.api, s.apiErr = parseAPICredentials(b, names.APITotals)
		s.totals, s.totalsErr = parseAPITotals(b, names.APITotals)
	}

	if b, err := get(names.Renderer); err != nil {
		s.rendererErr = err
	} else {
		s.renderer, s.rendererErr = parseRendererCredentials(b, names.Renderer)
	}

	sources := map[Kind]config.RecipientSource{
		KindSales:     names.SalesRecipients,
		KindInvoicing: names.InvoicingRecipients,
		KindAPI:       names.APIRecipients,
	}
	for kind, src := range sources {
		b, err := get(src.Secret)
		if err != nil {
			logger.Error("secrets: could not fetch recipient list", "kind", kind, "secret", src.Secret, "error", err)
			s.recipients[kind] = []string{}
			continue
		}
		s.recipients[kind] = recipientsFromBundle(b, src, production, logger)
	}

	logger.Debug("secrets: settings loaded", "bundles", len(cache))
	return s
}

type bundleResult struct {
	b   Bundle
	err error
}

// APICredentials returns the upstream API login.
func (s *Settings) APICredentials() (APICredentials, error) {
	return s.api, s.apiErr
}

// RendererCredentials returns the render service login.
func (s *Settings) RendererCredentials() (RendererCredentials, error) {
	return s.renderer, s.rendererErr
}

// APITotals returns the api totals pipeline settings.
func (s *Settings) APITotals() (APITotals, error) {
	return s.totals, s.totalsErr
}

// Recipients returns a copy of the resolved list for kind. The result is
// empty, never nil, when the list could not be resolved.
func (s *Settings) Recipients(kind Kind) []string {
	return append([]string{}, s.recipients[kind]...)
}

// ─── DECODERS ────────────────────────────────────────────────────────────────

func parseAPICredentials(b Bundle, name string) (APICredentials, error) {
	c := APICredentials{Email: b["api_email"], Password: b["api_password"]}
	if c.Email == "" || c.Password == "" {
		return APICredentials{}, fmt.Errorf("secrets: %s is missing api_email or api_password", name)
	}
	return c, nil
}

func parseRendererCredentials(b Bundle, name string) (RendererCredentials, error) {
	c := RendererCredentials{Username: b["usn"], Password: b["pwd"]}
	if c.Username == "" || c.Password == "" {
		return RendererCredentials{}, fmt.Errorf("secrets: %s is missing usn or pwd", name)
	}
	return c, nil
}

func parseAPITotals(b Bundle, name string) (APITotals, error) {
	flag, ok := b["send_report"]
	if !ok {
		return APITotals{}, fmt.Errorf("secrets: send_report not found in %s", name)
	}
	t := APITotals{SendReport: strings.EqualFold(strings.TrimSpace(flag), "true")}
	if !t.SendReport {
		return t, nil
	}

	raw, ok := b["requests"]
	if !ok {
		return APITotals{}, fmt.Errorf("secrets: requests not found in %s", name)
	}
	reqs, err := ParseRequests(raw)
	if err != nil {
		return APITotals{}, fmt.Errorf("secrets: %s: %w", name, err)
	}
	t.Requests = reqs
	return t, nil
}

// ParseRequests decodes the api totals request list. Both a bare JSON array
// and an object of the form {"reports": [...]} are accepted.
func ParseRequests(raw string) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("no request data found")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.UseNumber()

	if trimmed[0] == '[' {
		var list []map[string]any
		if err := dec.Decode(&list); err != nil {
			return nil, fmt.Errorf("decode requests: %w", err)
		}
		return list, nil
	}

	var wrapped struct {
		Reports []map[string]any `json:"reports"`
	}
	if err := dec.Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("decode requests: %w", err)
	}
	if wrapped.Reports == nil {
		return nil, errors.New("no request data found")
	}
	return wrapped.Reports, nil
}
