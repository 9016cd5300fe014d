// Package csvreport projects flat records onto a fixed, ordered column set
// and writes them as CSV.
package csvreport

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Column maps a source record key to its human-readable header.
type Column struct {
	Key    string
	Header string
}

// InvoiceColumns is the invoicing report layout. Order is significant: it is
// the column order of every invoicing CSV.
var InvoiceColumns = []Column{
	{Key: "dealerName", Header: "Dealer Name"},
	{Key: "dealerCode", Header: "Dealer Code"},
	{Key: "programName", Header: "Program Name"},
	{Key: "roNumber", Header: "RO Number"},
	{Key: "contractNumber", Header: "Contract Number"},
	{Key: "productSKU", Header: "Product SKU"},
	{Key: "manufacturerSKU", Header: "Manufacturer SKU"},
	{Key: "productQTY", Header: "Product QTY"},
	{Key: "status", Header: "Status"},
	{Key: "dateWarrantySold", Header: "Date Warranty Sold"},
	{Key: "createdDate", Header: "Created Date"},
	{Key: "internal", Header: "Internal"},
	{Key: "customerName", Header: "Customer Name"},
	{Key: "vin", Header: "VIN"},
	{Key: "invoiceAmountDue", Header: "Invoice Amount Due"},
}

// WriteError reports that the CSV destination could not be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("csvreport: write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Write emits a header row followed by one row per record. Keys not listed in
// columns are dropped; listed keys missing from a record leave an empty cell.
func Write(w io.Writer, records []map[string]any, columns []Column) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.Header
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("csvreport: write header: %w", err)
	}

	row := make([]string, len(columns))
	for n, rec := range records {
		for i, col := range columns {
			row[i] = cell(rec[col.Key])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("csvreport: write row %d: %w", n, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csvreport: flush: %w", err)
	}
	return nil
}

// WriteFile creates (or truncates) path and writes the CSV into it.
func WriteFile(path string, records []map[string]any, columns []Column) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &WriteError{Path: path, Err: cerr}
		}
	}()

	if err := Write(f, records, columns); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprint(val)
	}
}
