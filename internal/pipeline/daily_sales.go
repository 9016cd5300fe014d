package pipeline

import (
	"context"
	"fmt"

	"github.com/nyashahama/dlt-reports/internal/dltapi"
	"github.com/nyashahama/dlt-reports/internal/email"
	"github.com/nyashahama/dlt-reports/internal/secrets"
)

// DailySales emails yesterday's warranty sales as a rendered PDF.
type DailySales struct {
	deps Deps
}

func NewDailySales(d Deps) *DailySales {
	return &DailySales{deps: d}
}

func (p *DailySales) Name() string { return "daily_sales" }

// salesPayload is the render template input.
type salesPayload struct {
	Data      any    `json:"dlt_data"`
	Yesterday string `json:"yesterday"`
	Header    string `json:"header"`
}

func (p *DailySales) Run(ctx context.Context, s *secrets.Settings) (Result, error) {
	d := p.deps
	now := d.now()
	window := DailyWindow(now)
	log := d.Logger.With("pipeline", p.Name(), "window_start", window.Start.Format(layoutDate))

	to := s.Recipients(secrets.KindSales)
	if len(to) == 0 {
		log.Warn("daily sales: no recipients, skipping")
		return skipped(ReasonNoRecipients), nil
	}

	api, err := d.authenticate(ctx, s)
	if err != nil {
		return Result{}, fmt.Errorf("daily sales: %w", err)
	}
	renderer, err := d.renderer(s)
	if err != nil {
		return Result{}, fmt.Errorf("daily sales: %w", err)
	}

	rows, err := api.DailySales(ctx, dltapi.Window{
		Start: window.Start.Format(layoutISO),
		End:   window.End.Format(layoutISO),
	})
	if err != nil {
		return Result{}, fmt.Errorf("daily sales: %w", err)
	}

	doc, err := renderer.Render(ctx, d.Templates.DailySales, salesPayload{
		Data:      rows,
		Yesterday: window.Start.Format(layoutDate),
		Header:    "Warranties created for " + now.Format(layoutHeaderMY) + ".",
	})
	if err != nil {
		return Result{}, fmt.Errorf("daily sales: %w", err)
	}

	stamp := now.Format(layoutSubject)
	id, err := d.deliver(ctx, to,
		d.subject("Dealer Lifetime Sales - "+stamp),
		"Please find the attached daily DLT sales report.",
		email.Attachment{Filename: d.filename("DLT-DailySalesReport_" + stamp + ".pdf"), Subtype: "pdf"},
		"dlt-daily-sales-*.pdf",
		writeBytes(doc),
	)
	if err != nil {
		return Result{}, fmt.Errorf("daily sales: %w", err)
	}

	log.Info("daily sales: report sent", "recipients", len(to), "message_id", id)
	return Result{Sent: 1, MessageIDs: []string{id}}, nil
}
