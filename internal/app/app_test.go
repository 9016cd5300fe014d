package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nyashahama/dlt-reports/internal/app"
	"github.com/nyashahama/dlt-reports/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewLogger_ProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	app.NewLogger("production", &buf).Debug("hidden")
	app.NewLogger("production", &buf).Info("shown", "k", "v")

	line := strings.TrimSpace(buf.String())
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("want one JSON line at info, got %q (%v)", line, err)
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Errorf("record = %v", rec)
	}
}

func TestNewLogger_DevIsTextAtDebug(t *testing.T) {
	var buf bytes.Buffer
	app.NewLogger("dev", &buf).Debug("visible")
	if !strings.Contains(buf.String(), "level=DEBUG") || !strings.Contains(buf.String(), "msg=visible") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestLoggerFor_UsesEnvFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.yaml")
	if err := os.WriteFile(path, []byte("env: production\n"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("REPORTS_CONFIG", path)
	t.Setenv("ENV_VAR", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var buf bytes.Buffer
	logger := app.LoggerFor(cfg, &buf)
	logger.Debug("hidden")
	logger.Info("shown")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("want one JSON line for env from the config file, got %q (%v)", buf.String(), err)
	}
	if rec["msg"] != "shown" {
		t.Errorf("record = %v", rec)
	}
}

func TestPipelines_FixedOrder(t *testing.T) {
	ps := app.Pipelines(config.Defaults(), nil, discardLogger())

	want := []string{"daily_sales", "api_totals", "invoicing"}
	if len(ps) != len(want) {
		t.Fatalf("pipelines = %d", len(ps))
	}
	for i, p := range ps {
		if p.Name() != want[i] {
			t.Errorf("pipeline %d = %s, want %s", i, p.Name(), want[i])
		}
	}
}

func TestBuild_WithoutOptionalInfrastructure(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")

	cfg := config.Defaults()
	a, err := app.Build(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close()

	if a.Runner == nil {
		t.Fatal("Runner is nil")
	}
	if a.Store != nil {
		t.Error("Store should be nil without DATABASE_URL")
	}
	if _, ok := a.Runner.Last(); ok {
		t.Error("a fresh runner has no last run")
	}
}
