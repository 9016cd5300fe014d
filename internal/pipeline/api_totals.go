package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/nyashahama/dlt-reports/internal/dltapi"
	"github.com/nyashahama/dlt-reports/internal/email"
	"github.com/nyashahama/dlt-reports/internal/secrets"
)

// APITotals emails one rendered PDF per configured warranty-create request,
// each covering yesterday.
type APITotals struct {
	deps Deps
}

func NewAPITotals(d Deps) *APITotals {
	return &APITotals{deps: d}
}

func (p *APITotals) Name() string { return "api_totals" }

// Run processes requests in configured order. A request whose totals come
// back empty is logged and skipped. Any other failing item aborts the rest;
// emails already sent are reported in the Result.
func (p *APITotals) Run(ctx context.Context, s *secrets.Settings) (Result, error) {
	d := p.deps
	log := d.Logger.With("pipeline", p.Name())

	totalsCfg, err := s.APITotals()
	if err != nil {
		return Result{}, fmt.Errorf("api totals: %w", err)
	}
	if !totalsCfg.SendReport {
		log.Info("api totals: send_report disabled, skipping")
		return skipped("send_report disabled"), nil
	}
	if len(totalsCfg.Requests) == 0 {
		log.Info("api totals: no requests configured, skipping")
		return skipped("no requests"), nil
	}

	to := s.Recipients(secrets.KindAPI)
	if len(to) == 0 {
		log.Warn("api totals: no recipients, skipping")
		return skipped(ReasonNoRecipients), nil
	}

	api, err := d.authenticate(ctx, s)
	if err != nil {
		return Result{}, fmt.Errorf("api totals: %w", err)
	}
	renderer, err := d.renderer(s)
	if err != nil {
		return Result{}, fmt.Errorf("api totals: %w", err)
	}

	now := d.now()
	window := DailyWindow(now)
	stamp := now.Format(layoutSubject)

	var res Result
	for i, tmpl := range totalsCfg.Requests {
		request := maps.Clone(tmpl)
		request["StartDate"] = window.Start.Format(layoutISO)
		request["EndDate"] = window.End.Format(layoutISO)

		totals, err := api.WarrantyTotals(ctx, request)
		if errors.Is(err, dltapi.ErrEmptyTotals) {
			log.Error("api totals: empty totals, skipping request", "request", i, "error", err)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("api totals: request %d: %w", i, err)
		}
		totals["date"] = window.Start.Format(layoutSlashed)

		doc, err := renderer.Render(ctx, d.Templates.APIReport, totals)
		if err != nil {
			return res, fmt.Errorf("api totals: request %d: %w", i, err)
		}

		id, err := d.deliver(ctx, to,
			d.subject("Dealer Lifetime API Report - "+stamp),
			"Please find the attached daily DLT API report.",
			email.Attachment{Filename: d.filename("DLT-DailyAPIReport_" + stamp + ".pdf"), Subtype: "pdf"},
			"dlt-api-report-*.pdf",
			writeBytes(doc),
		)
		if err != nil {
			return res, fmt.Errorf("api totals: request %d: %w", i, err)
		}

		res.Sent++
		res.MessageIDs = append(res.MessageIDs, id)
		log.Info("api totals: report sent", "request", i, "message_id", id)
	}
	return res, nil
}
