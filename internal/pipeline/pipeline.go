// Package pipeline holds the three report pipelines: daily sales, daily API
// totals and monthly invoicing. Each one fetches data from the reporting
// API, builds a single attachment and emails it. Pipelines know nothing
// about each other; the worker package runs them and isolates failures.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nyashahama/dlt-reports/internal/config"
	"github.com/nyashahama/dlt-reports/internal/dltapi"
	"github.com/nyashahama/dlt-reports/internal/email"
	"github.com/nyashahama/dlt-reports/internal/render"
	"github.com/nyashahama/dlt-reports/internal/secrets"
)

// ReasonNoRecipients is the skip reason when a recipient list resolved empty.
const ReasonNoRecipients = "no recipients"

// Pipeline is one independently failing report job.
type Pipeline interface {
	Name() string
	Run(ctx context.Context, s *secrets.Settings) (Result, error)
}

// Result summarises one pipeline execution. On error it still carries the
// message ids of emails already sent.
type Result struct {
	Sent       int
	MessageIDs []string
	Skipped    bool
	Reason     string
}

func skipped(reason string) Result {
	return Result{Skipped: true, Reason: reason}
}

// APIClient is the slice of the reporting API the pipelines use.
// *dltapi.Client satisfies it.
type APIClient interface {
	Authenticate(ctx context.Context) error
	DailySales(ctx context.Context, w dltapi.Window) (any, error)
	WarrantyTotals(ctx context.Context, request map[string]any) (map[string]any, error)
	Invoicing(ctx context.Context, r dltapi.InvoicingRequest) ([]map[string]any, error)
}

// Deps are the collaborators shared by every pipeline.
type Deps struct {
	NewAPI      func(secrets.APICredentials) APIClient
	NewRenderer func(secrets.RendererCredentials) render.Renderer
	Sender      email.Sender

	From        string
	Production  bool
	Templates   config.Templates
	ArtifactDir string
	Location    *time.Location
	Now         func() time.Time
	Logger      *slog.Logger
}

// DepsFromConfig fills the plain settings of Deps from cfg. Clients and the
// sender are left to the caller.
func DepsFromConfig(cfg *config.Config) Deps {
	return Deps{
		From:        cfg.EmailFrom,
		Production:  cfg.IsProduction(),
		Templates:   cfg.Templates,
		ArtifactDir: cfg.ArtifactDir,
		Location:    cfg.Location,
		Now:         time.Now,
	}
}

// now returns the current time in the report location.
func (d Deps) now() time.Time {
	clock := d.Now
	if clock == nil {
		clock = time.Now
	}
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	return clock().In(loc)
}

func (d Deps) subject(base string) string {
	if d.Production {
		return base
	}
	return "DEV - " + base
}

func (d Deps) filename(base string) string {
	if d.Production {
		return base
	}
	return "DEV_" + base
}

// authenticate builds an API client from the bundle credentials and obtains
// a token before any report request is made.
func (d Deps) authenticate(ctx context.Context, s *secrets.Settings) (APIClient, error) {
	creds, err := s.APICredentials()
	if err != nil {
		return nil, fmt.Errorf("api credentials: %w", err)
	}
	api := d.NewAPI(creds)
	if err := api.Authenticate(ctx); err != nil {
		return nil, err
	}
	return api, nil
}

func (d Deps) renderer(s *secrets.Settings) (render.Renderer, error) {
	creds, err := s.RendererCredentials()
	if err != nil {
		return nil, fmt.Errorf("renderer credentials: %w", err)
	}
	return d.NewRenderer(creds), nil
}

// deliver stages data as a transient file, reads it back as the attachment
// and sends it. The file is gone by the time deliver returns.
func (d Deps) deliver(ctx context.Context, to []string, subject, body string, att email.Attachment, pattern string, write func(path string) error) (string, error) {
	var id string
	err := withArtifact(d.ArtifactDir, pattern, func(path string) error {
		if err := write(path); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read artifact: %w", err)
		}
		att.Data = data

		id, err = d.Sender.Send(ctx, email.Message{
			From:       d.From,
			To:         to,
			Subject:    subject,
			Body:       body,
			Attachment: att,
		})
		return err
	})
	return id, err
}

// writeBytes returns a deliver writer that stores b at the artifact path.
func writeBytes(b []byte) func(path string) error {
	return func(path string) error {
		if err := os.WriteFile(path, b, 0o600); err != nil {
			return fmt.Errorf("write artifact: %w", err)
		}
		return nil
	}
}
