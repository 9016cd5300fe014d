// Package secrets resolves named secret bundles and turns them into the typed
// per-invocation Settings the pipelines consume.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSecretNotFound is returned when the secret store has no secret by the
// requested name.
var ErrSecretNotFound = errors.New("secrets: secret not found")

// Bundle is a decoded secret: a flat mapping of keys to string values.
type Bundle map[string]string

// Store fetches secret bundles by logical name. Every call is a round trip;
// Load is the place that makes sure each bundle is fetched only once.
type Store interface {
	GetSecret(ctx context.Context, name string) (Bundle, error)
}

// ParseBundle decodes a JSON object secret string. String values are kept as
// is; any other JSON value is kept as its raw JSON text so nested documents
// (like the api totals request list) survive intact.
func ParseBundle(secretString string) (Bundle, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(secretString), &raw); err != nil {
		return nil, fmt.Errorf("secrets: secret is not a JSON object: %w", err)
	}

	b := make(Bundle, len(raw))
	for key, val := range raw {
		var s string
		if err := json.Unmarshal(val, &s); err == nil {
			b[key] = s
			continue
		}
		b[key] = string(val)
	}
	return b, nil
}

// MemoryStore is an in-process Store, used for local runs and tests. It also
// counts lookups so callers can check how often the store was hit.
type MemoryStore struct {
	Bundles map[string]Bundle
	Calls   int
}

// GetSecret returns a copy of the named bundle or ErrSecretNotFound.
func (m *MemoryStore) GetSecret(_ context.Context, name string) (Bundle, error) {
	m.Calls++
	b, ok := m.Bundles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	out := make(Bundle, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out, nil
}
