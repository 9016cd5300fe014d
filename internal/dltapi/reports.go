package dltapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

const (
	pathDailySales     = "/v3/reports/daily-sales"
	pathWarrantyCreate = "/v3/reports/warranty-create"
	pathInvoicing      = "/v3/reports/invoicing"
)

// Window bounds a report query. The upstream expects pre-formatted strings.
type Window struct {
	Start string
	End   string
}

// DailySales fetches the daily sales rows. The response shape is passed
// through to the render template untouched.
func (c *Client) DailySales(ctx context.Context, w Window) (any, error) {
	q := url.Values{}
	q.Set("startDate", w.Start)
	q.Set("endDate", w.End)

	var rows any
	if err := c.Get(ctx, pathDailySales, q, nil, &rows); err != nil {
		return nil, fmt.Errorf("daily sales: %w", err)
	}
	return rows, nil
}

// ErrEmptyTotals is returned when the warranty-create endpoint answers with
// a null body. Callers treat it as a per-request miss, not a failed call.
var ErrEmptyTotals = errors.New("dltapi: empty totals response")

// WarrantyTotals fetches totals for one api report request. The request is
// sent as a JSON body on a GET, which is what the endpoint expects.
func (c *Client) WarrantyTotals(ctx context.Context, request map[string]any) (map[string]any, error) {
	var totals map[string]any
	if err := c.Get(ctx, pathWarrantyCreate, nil, request, &totals); err != nil {
		return nil, fmt.Errorf("warranty totals: %w", err)
	}
	if totals == nil {
		return nil, fmt.Errorf("warranty totals: %w", ErrEmptyTotals)
	}
	return totals, nil
}

// InvoicingRequest is the invoicing endpoint body. MarkAsInvoiced travels as
// the string "true"/"false".
type InvoicingRequest struct {
	StartDate      string
	EndDate        string
	DistributorID  string
	MarkAsInvoiced bool
	InvoicedDate   string
}

// MarshalJSON keeps the upstream's mixed-case field names.
func (r InvoicingRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		StartDate      string `json:"startDate"`
		EndDate        string `json:"endDate"`
		DistributorID  string `json:"DistributorId"`
		MarkAsInvoiced string `json:"MarkAsInvoiced"`
		InvoicedDate   string `json:"InvoicedDate"`
	}{
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		DistributorID:  r.DistributorID,
		MarkAsInvoiced: strconv.FormatBool(r.MarkAsInvoiced),
		InvoicedDate:   r.InvoicedDate,
	})
}

// Invoicing fetches invoice records. The endpoint answers either with a bare
// array of records or with {"invoiceRecords": [...]}.
func (c *Client) Invoicing(ctx context.Context, r InvoicingRequest) ([]map[string]any, error) {
	var raw json.RawMessage
	if err := c.Post(ctx, pathInvoicing, r, &raw); err != nil {
		return nil, fmt.Errorf("invoicing: %w", err)
	}
	records, err := decodeInvoiceRecords(raw)
	if err != nil {
		return nil, fmt.Errorf("invoicing: %w", err)
	}
	return records, nil
}

func decodeInvoiceRecords(raw json.RawMessage) ([]map[string]any, error) {
	var records []map[string]any
	if err := unmarshalNumbers(raw, &records); err == nil {
		return records, nil
	}

	var wrapped struct {
		InvoiceRecords []map[string]any `json:"invoiceRecords"`
	}
	if err := unmarshalNumbers(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("unexpected response shape: %w", err)
	}
	return wrapped.InvoiceRecords, nil
}

func unmarshalNumbers(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}
