package pipeline

import (
	"context"
	"fmt"

	"github.com/nyashahama/dlt-reports/internal/config"
	"github.com/nyashahama/dlt-reports/internal/csvreport"
	"github.com/nyashahama/dlt-reports/internal/dltapi"
	"github.com/nyashahama/dlt-reports/internal/email"
	"github.com/nyashahama/dlt-reports/internal/secrets"
)

// Invoicing emails last month's invoice records as a CSV. It only runs
// when enabled and on the configured day of the month.
type Invoicing struct {
	deps Deps
	cfg  config.Invoicing
}

func NewInvoicing(d Deps, cfg config.Invoicing) *Invoicing {
	return &Invoicing{deps: d, cfg: cfg}
}

func (p *Invoicing) Name() string { return "invoicing" }

func (p *Invoicing) Run(ctx context.Context, s *secrets.Settings) (Result, error) {
	d := p.deps
	now := d.now()
	log := d.Logger.With("pipeline", p.Name())

	if !p.cfg.Enabled {
		return skipped("disabled"), nil
	}
	if p.cfg.RunDay > 0 && now.Day() != p.cfg.RunDay {
		log.Debug("invoicing: not the run day, skipping", "run_day", p.cfg.RunDay)
		return skipped(fmt.Sprintf("runs on day %d", p.cfg.RunDay)), nil
	}

	to := s.Recipients(secrets.KindInvoicing)
	if len(to) == 0 {
		log.Warn("invoicing: no recipients, skipping")
		return skipped(ReasonNoRecipients), nil
	}

	api, err := d.authenticate(ctx, s)
	if err != nil {
		return Result{}, fmt.Errorf("invoicing: %w", err)
	}

	window := PreviousMonth(now)
	records, err := api.Invoicing(ctx, dltapi.InvoicingRequest{
		StartDate:      window.Start.Format(layoutDate),
		EndDate:        window.End.Format(layoutDate),
		DistributorID:  p.cfg.DistributorID,
		MarkAsInvoiced: p.cfg.MarkAsInvoiced,
		InvoicedDate:   InvoicedDate(now, p.cfg.InvoicedDay).Format(layoutDate),
	})
	if err != nil {
		return Result{}, fmt.Errorf("invoicing: %w", err)
	}
	log.Debug("invoicing: fetched records", "count", len(records))

	month := window.Start.Format(layoutMonthYr)
	id, err := d.deliver(ctx, to,
		d.subject("Dealer Lifetime Invoicing - "+month),
		"Please find the attached monthly invoice report for - "+month,
		email.Attachment{Filename: d.filename("DLT-InvoiceReport_" + month + ".csv"), Subtype: "csv"},
		"dlt-invoice-*.csv",
		func(path string) error {
			return csvreport.WriteFile(path, records, csvreport.InvoiceColumns)
		},
	)
	if err != nil {
		return Result{}, fmt.Errorf("invoicing: %w", err)
	}

	log.Info("invoicing: report sent", "records", len(records), "message_id", id)
	return Result{Sent: 1, MessageIDs: []string{id}}, nil
}
