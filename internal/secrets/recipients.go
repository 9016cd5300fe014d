package secrets

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nyashahama/dlt-reports/internal/config"
)

// Recipients resolves the recipient list described by src. It never returns
// an error: any failure is logged and yields an empty list, which the
// pipelines treat as "nothing to send".
func Recipients(ctx context.Context, store Store, src config.RecipientSource, production bool, logger *slog.Logger) []string {
	b, err := store.GetSecret(ctx, src.Secret)
	if err != nil {
		logger.Error("secrets: could not fetch recipient list", "secret", src.Secret, "error", err)
		return []string{}
	}
	return recipientsFromBundle(b, src, production, logger)
}

func recipientsFromBundle(b Bundle, src config.RecipientSource, production bool, logger *slog.Logger) []string {
	key := src.DevKey
	if production {
		key = src.ProdKey
	}

	raw, ok := b[key]
	if !ok {
		logger.Error("secrets: recipient key missing from bundle", "secret", src.Secret, "key", key)
		return []string{}
	}
	return SplitAddresses(raw)
}

// SplitAddresses splits a comma-delimited address list, trimming whitespace
// and dropping empty entries.
func SplitAddresses(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
