// Package config loads and validates all environment variables at startup.
// Every other package receives typed values; nothing else reads os.Getenv.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully-parsed application configuration.
type Config struct {
	// ── Runtime ───────────────────────────────────────────────────────────────
	Env        string // "production" | anything else is treated as dev
	ConfigFile string // optional YAML file, default "configs/reports.yaml"
	Location   *time.Location

	// ── Upstream services ─────────────────────────────────────────────────────
	APIBaseURL  string // e.g. "https://api.app.dealerlifetime.com"
	RenderURL   string // e.g. "https://jsreports.afg.tech/api/report"
	HTTPTimeout time.Duration

	// ── AWS ───────────────────────────────────────────────────────────────────
	AWSRegion string

	// ── Email ─────────────────────────────────────────────────────────────────
	EmailFrom     string
	EmailProvider string // "ses" | "resend"
	ResendAPIKey  string // primary when EmailProvider == "resend", fallback otherwise

	// ── Secrets ───────────────────────────────────────────────────────────────
	Secrets SecretNames

	// ── Pipelines ─────────────────────────────────────────────────────────────
	Templates       Templates
	Invoicing       Invoicing
	PipelineTimeout time.Duration
	ArtifactDir     string

	// ── Optional infrastructure ───────────────────────────────────────────────
	// Both are optional. Without DATABASE_URL runs are not recorded; without
	// REDIS_URL overlapping invocations are not prevented across processes.
	DatabaseURL string
	RedisURL    string
	RunLockTTL  time.Duration

	// ── Trigger server (cmd/api) ──────────────────────────────────────────────
	Port         string
	TriggerToken string
	TriggerRate  time.Duration
}

// SecretNames identifies every secret bundle the job reads. The defaults are
// the names the bundles have always had in Secrets Manager.
type SecretNames struct {
	APITotals string // api credentials, send_report flag and request list
	Renderer  string // render service basic-auth credentials

	SalesRecipients     RecipientSource
	InvoicingRecipients RecipientSource
	APIRecipients       RecipientSource
}

// RecipientSource names a secret bundle plus the keys holding the
// comma-delimited production and dev recipient lists.
type RecipientSource struct {
	Secret  string
	ProdKey string
	DevKey  string
}

// Templates holds the render-service template names.
type Templates struct {
	DailySales string
	APIReport  string
}

// Invoicing holds the invoicing pipeline's filters and schedule.
type Invoicing struct {
	Enabled        bool
	RunDay         int // day of month the pipeline runs on; 0 runs every invocation
	DistributorID  string
	MarkAsInvoiced bool
	InvoicedDay    int // day of the current month reported as InvoicedDate
}

// Defaults returns the configuration used before any file or environment
// overrides are applied.
func Defaults() *Config {
	return &Config{
		Env:         "dev",
		ConfigFile:  "configs/reports.yaml",
		Location:    time.UTC,
		APIBaseURL:  "https://api.app.dealerlifetime.com",
		RenderURL:   "https://jsreports.afg.tech/api/report",
		HTTPTimeout: 60 * time.Second,
		AWSRegion:   "us-east-1",

		EmailFrom:     "Dealer-Lifetime-Support@dealerlifetime.com",
		EmailProvider: "ses",

		Secrets: SecretNames{
			APITotals: "api_request_totals",
			Renderer:  "JSREPORTS_ABEL",
			SalesRecipients: RecipientSource{
				Secret:  "DLT_reporting_recipients_list",
				ProdKey: "DLT_reporting_recipients",
				DevKey:  "DLT_reporting_recipients_dev",
			},
			InvoicingRecipients: RecipientSource{
				Secret:  "DLT_invoicing_recipients_list",
				ProdKey: "DLT_invoicing_recipients",
				DevKey:  "DLT_invoicing_recipients_dev",
			},
			APIRecipients: RecipientSource{
				Secret:  "DLT_API_Counts_Recipients",
				ProdKey: "recipients",
				DevKey:  "recipients_dev",
			},
		},

		Templates: Templates{
			DailySales: "dlt_daily_sales",
			APIReport:  "dlt_api_report",
		},
		Invoicing: Invoicing{
			Enabled:       false,
			RunDay:        1,
			DistributorID: "7229956a-5b35-4a1d-9925-1e5fc29e9e03",
			InvoicedDay:   5,
		},
		PipelineTimeout: 5 * time.Minute,
		ArtifactDir:     os.TempDir(),

		RunLockTTL:  30 * time.Minute,
		Port:        "8080",
		TriggerRate: time.Minute,
	}
}

// Load reads all environment variables and returns a validated Config.
// It loads a .env file from the working directory when present, so plain
// `go run ./cmd/reports` works in development. Real environment variables
// always take precedence over .env values, and both take precedence over the
// YAML file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	c := Defaults()
	c.ConfigFile = getEnv("REPORTS_CONFIG", c.ConfigFile)

	if err := applyFile(c, c.ConfigFile); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var errs []error

	c.Env = getEnv("ENV_VAR", c.Env)
	c.APIBaseURL = strings.TrimRight(getEnv("API_BASE_URL", c.APIBaseURL), "/")
	c.RenderURL = getEnv("RENDER_URL", c.RenderURL)
	c.HTTPTimeout = getEnvAsDuration("HTTP_TIMEOUT", c.HTTPTimeout)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.EmailFrom = getEnv("EMAIL_FROM", c.EmailFrom)
	c.EmailProvider = strings.ToLower(getEnv("EMAIL_PROVIDER", c.EmailProvider))
	c.ResendAPIKey = getEnv("RESEND_API_KEY", c.ResendAPIKey)
	c.PipelineTimeout = getEnvAsDuration("PIPELINE_TIMEOUT", c.PipelineTimeout)
	c.ArtifactDir = getEnv("ARTIFACT_DIR", c.ArtifactDir)

	c.Invoicing.Enabled = getEnvAsBool("INVOICING_ENABLED", c.Invoicing.Enabled)
	c.Invoicing.RunDay = getEnvAsInt("INVOICING_RUN_DAY", c.Invoicing.RunDay)
	c.Invoicing.DistributorID = getEnv("INVOICING_DISTRIBUTOR_ID", c.Invoicing.DistributorID)
	c.Invoicing.MarkAsInvoiced = getEnvAsBool("INVOICING_MARK_AS_INVOICED", c.Invoicing.MarkAsInvoiced)

	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.RunLockTTL = getEnvAsDuration("RUN_LOCK_TTL", c.RunLockTTL)

	c.Port = getEnv("PORT", c.Port)
	c.TriggerToken = getEnv("TRIGGER_TOKEN", c.TriggerToken)
	c.TriggerRate = getEnvAsDuration("TRIGGER_RATE", c.TriggerRate)

	if tz := os.Getenv("REPORT_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", tz, err))
		} else {
			c.Location = loc
		}
	}

	errs = append(errs, c.validate())
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// IsProduction reports whether production recipients and subjects are used.
// Every value other than "production" is treated as a dev environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) validate() error {
	var errs []error

	required := map[string]string{
		"API_BASE_URL": c.APIBaseURL,
		"RENDER_URL":   c.RenderURL,
		"EMAIL_FROM":   c.EmailFrom,
		"AWS_REGION":   c.AWSRegion,
	}
	for name, val := range required {
		if val == "" {
			errs = append(errs, fmt.Errorf("missing required setting: %s", name))
		}
	}

	switch c.EmailProvider {
	case "ses":
	case "resend":
		if c.ResendAPIKey == "" {
			errs = append(errs, errors.New("RESEND_API_KEY is required when EMAIL_PROVIDER=resend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_PROVIDER %q (want ses or resend)", c.EmailProvider))
	}

	if c.Invoicing.RunDay < 0 || c.Invoicing.RunDay > 28 {
		errs = append(errs, fmt.Errorf("INVOICING_RUN_DAY must be between 0 and 28, got %d", c.Invoicing.RunDay))
	}
	if c.Invoicing.InvoicedDay < 1 || c.Invoicing.InvoicedDay > 28 {
		errs = append(errs, fmt.Errorf("invoiced day must be between 1 and 28, got %d", c.Invoicing.InvoicedDay))
	}
	if c.PipelineTimeout <= 0 {
		errs = append(errs, errors.New("PIPELINE_TIMEOUT must be positive"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	// A plain integer is read as seconds.
	if value, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(value) * time.Second
	}
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
