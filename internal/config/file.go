package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// configFile mirrors the YAML schema of configs/reports.yaml. Zero values
// leave the corresponding default untouched.
type configFile struct {
	Env string `yaml:"env"`

	Upstream struct {
		APIBaseURL  string `yaml:"api_base_url"`
		RenderURL   string `yaml:"render_url"`
		HTTPTimeout string `yaml:"http_timeout"`
	} `yaml:"upstream"`

	AWS struct {
		Region string `yaml:"region"`
	} `yaml:"aws"`

	Email struct {
		From     string `yaml:"from"`
		Provider string `yaml:"provider"`
	} `yaml:"email"`

	Secrets struct {
		APITotals           string         `yaml:"api_totals"`
		Renderer            string         `yaml:"renderer"`
		SalesRecipients     recipientsFile `yaml:"sales_recipients"`
		InvoicingRecipients recipientsFile `yaml:"invoicing_recipients"`
		APIRecipients       recipientsFile `yaml:"api_recipients"`
	} `yaml:"secrets"`

	Reports struct {
		Timeout     string `yaml:"timeout"`
		ArtifactDir string `yaml:"artifact_dir"`
		DailySales  struct {
			Template string `yaml:"template"`
		} `yaml:"daily_sales"`
		APITotals struct {
			Template string `yaml:"template"`
		} `yaml:"api_totals"`
		Invoicing struct {
			Enabled        *bool  `yaml:"enabled"`
			RunDay         *int   `yaml:"run_day"`
			DistributorID  string `yaml:"distributor_id"`
			MarkAsInvoiced *bool  `yaml:"mark_as_invoiced"`
			InvoicedDay    int    `yaml:"invoiced_day"`
		} `yaml:"invoicing"`
	} `yaml:"reports"`

	RunLock struct {
		TTL string `yaml:"ttl"`
	} `yaml:"run_lock"`
}

type recipientsFile struct {
	Secret  string `yaml:"secret"`
	ProdKey string `yaml:"prod_key"`
	DevKey  string `yaml:"dev_key"`
}

// applyFile overlays the YAML file at path onto c. A missing file is not an
// error: the defaults and environment are enough to run.
func applyFile(c *Config, path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	setString(&c.Env, f.Env)
	setString(&c.APIBaseURL, strings.TrimRight(f.Upstream.APIBaseURL, "/"))
	setString(&c.RenderURL, f.Upstream.RenderURL)
	if err := setDuration(&c.HTTPTimeout, f.Upstream.HTTPTimeout); err != nil {
		return fmt.Errorf("upstream.http_timeout: %w", err)
	}
	setString(&c.AWSRegion, f.AWS.Region)
	setString(&c.EmailFrom, f.Email.From)
	setString(&c.EmailProvider, strings.ToLower(f.Email.Provider))

	setString(&c.Secrets.APITotals, f.Secrets.APITotals)
	setString(&c.Secrets.Renderer, f.Secrets.Renderer)
	f.Secrets.SalesRecipients.apply(&c.Secrets.SalesRecipients)
	f.Secrets.InvoicingRecipients.apply(&c.Secrets.InvoicingRecipients)
	f.Secrets.APIRecipients.apply(&c.Secrets.APIRecipients)

	if err := setDuration(&c.PipelineTimeout, f.Reports.Timeout); err != nil {
		return fmt.Errorf("reports.timeout: %w", err)
	}
	setString(&c.ArtifactDir, f.Reports.ArtifactDir)
	setString(&c.Templates.DailySales, f.Reports.DailySales.Template)
	setString(&c.Templates.APIReport, f.Reports.APITotals.Template)

	inv := f.Reports.Invoicing
	if inv.Enabled != nil {
		c.Invoicing.Enabled = *inv.Enabled
	}
	if inv.RunDay != nil {
		c.Invoicing.RunDay = *inv.RunDay
	}
	if inv.MarkAsInvoiced != nil {
		c.Invoicing.MarkAsInvoiced = *inv.MarkAsInvoiced
	}
	setString(&c.Invoicing.DistributorID, inv.DistributorID)
	if inv.InvoicedDay != 0 {
		c.Invoicing.InvoicedDay = inv.InvoicedDay
	}

	if err := setDuration(&c.RunLockTTL, f.RunLock.TTL); err != nil {
		return fmt.Errorf("run_lock.ttl: %w", err)
	}
	return nil
}

func (r recipientsFile) apply(dst *RecipientSource) {
	setString(&dst.Secret, r.Secret)
	setString(&dst.ProdKey, r.ProdKey)
	setString(&dst.DevKey, r.DevKey)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
