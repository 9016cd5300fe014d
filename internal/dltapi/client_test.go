package dltapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nyashahama/dlt-reports/internal/dltapi"
)

// fakeAPI is a minimal upstream: it hands out "tok" for the right password
// and lets each test register report handlers.
type fakeAPI struct {
	t        *testing.T
	handlers map[string]http.HandlerFunc
	logins   int
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	f := &fakeAPI{t: t, handlers: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v3/identity/token" {
		f.logins++
		var creds dltapi.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "good" {
			http.Error(w, `{"error":"bad credentials"}`, http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"token":"tok"}`)
		return
	}
	if got := r.Header.Get("Authorization"); got != "Bearer tok" {
		http.Error(w, "missing bearer", http.StatusUnauthorized)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "application/json" {
		f.t.Errorf("Content-Type = %q", ct)
	}
	h, ok := f.handlers[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func newClient(srv *httptest.Server, password string) *dltapi.Client {
	return dltapi.NewClient(srv.URL+"/", dltapi.Credentials{Email: "bot@example.com", Password: password}, 5*time.Second)
}

// ─── Authenticate ────────────────────────────────────────────────────────────

func TestAuthenticate_Success(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.handlers["/v3/reports/daily-sales"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}

	c := newClient(srv, "good")
	if err := c.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := c.DailySales(context.Background(), dltapi.Window{Start: "a", End: "b"}); err != nil {
		t.Fatalf("DailySales after login: %v", err)
	}
	if f.logins != 1 {
		t.Errorf("logins = %d, want 1", f.logins)
	}
}

func TestAuthenticate_FailureIsErrNoToken(t *testing.T) {
	_, srv := newFakeAPI(t)

	c := newClient(srv, "bad")
	err := c.Authenticate(context.Background())
	if !errors.Is(err, dltapi.ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
	if !errors.Is(err, dltapi.ErrRemoteRequestFailed) {
		t.Errorf("login failure should keep the underlying RequestError: %v", err)
	}
}

func TestCallsWithoutTokenFail(t *testing.T) {
	f, srv := newFakeAPI(t)
	called := false
	f.handlers["/v3/reports/daily-sales"] = func(w http.ResponseWriter, r *http.Request) {
		called = true
	}

	_, err := newClient(srv, "good").DailySales(context.Background(), dltapi.Window{})
	if !errors.Is(err, dltapi.ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
	if called {
		t.Error("no request should reach the endpoint without a token")
	}
}

// ─── Non-200 handling ────────────────────────────────────────────────────────

func TestNon200_ReturnsRequestErrorAndNoResult(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.handlers["/v3/reports/warranty-create"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"total": 12, "partial": true}`)
	}

	c := newClient(srv, "good")
	if err := c.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	totals, err := c.WarrantyTotals(context.Background(), map[string]any{"name": "x"})
	if totals != nil {
		t.Errorf("expected nil result on failure, got %v", totals)
	}

	var reqErr *dltapi.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want *RequestError", err)
	}
	if reqErr.Status != http.StatusBadGateway || !strings.Contains(reqErr.Body, "partial") {
		t.Errorf("RequestError = %+v", reqErr)
	}
	if !errors.Is(err, dltapi.ErrRemoteRequestFailed) {
		t.Error("errors.Is(err, ErrRemoteRequestFailed) should hold")
	}
}

// ─── Endpoints ───────────────────────────────────────────────────────────────

func TestDailySales_SendsWindowAsQuery(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.handlers["/v3/reports/daily-sales"] = func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.URL.Query().Get("startDate"); got != "2026-10-17T00:00:00" {
			t.Errorf("startDate = %q", got)
		}
		_, _ = io.WriteString(w, `[{"dealer":"A","count":3}]`)
	}

	c := newClient(srv, "good")
	_ = c.Authenticate(context.Background())
	rows, err := c.DailySales(context.Background(), dltapi.Window{Start: "2026-10-17T00:00:00", End: "2026-10-18T00:00:00"})
	if err != nil {
		t.Fatalf("DailySales: %v", err)
	}
	list, ok := rows.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("rows = %#v", rows)
	}
	if n := list[0].(map[string]any)["count"]; n != json.Number("3") {
		t.Errorf("count = %#v, want json.Number", n)
	}
}

func TestWarrantyTotals_SendsBodyOnGet(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.handlers["/v3/reports/warranty-create"] = func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["StartDate"] != "s" || body["name"] != "x" {
			t.Errorf("body = %v", body)
		}
		_, _ = io.WriteString(w, `{"total": 5}`)
	}

	c := newClient(srv, "good")
	_ = c.Authenticate(context.Background())
	totals, err := c.WarrantyTotals(context.Background(), map[string]any{"name": "x", "StartDate": "s"})
	if err != nil {
		t.Fatalf("WarrantyTotals: %v", err)
	}
	if totals["total"] != json.Number("5") {
		t.Errorf("totals = %v", totals)
	}
}

func TestWarrantyTotals_NullBodyIsErrEmptyTotals(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.handlers["/v3/reports/warranty-create"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "null")
	}

	c := newClient(srv, "good")
	_ = c.Authenticate(context.Background())
	totals, err := c.WarrantyTotals(context.Background(), map[string]any{"name": "x"})
	if !errors.Is(err, dltapi.ErrEmptyTotals) {
		t.Fatalf("err = %v, want ErrEmptyTotals", err)
	}
	if errors.Is(err, dltapi.ErrRemoteRequestFailed) {
		t.Error("a null body is not a failed request")
	}
	if totals != nil {
		t.Errorf("totals = %v", totals)
	}
}

func TestInvoicing_BodyAndResponseShapes(t *testing.T) {
	cases := []struct {
		name string
		resp string
		want int
	}{
		{"bare array", `[{"dealerName":"A"},{"dealerName":"B"}]`, 2},
		{"wrapped", `{"invoiceRecords":[{"dealerName":"A"}]}`, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, srv := newFakeAPI(t)
			f.handlers["/v3/reports/invoicing"] = func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s", r.Method)
				}
				var body map[string]any
				_ = json.NewDecoder(r.Body).Decode(&body)
				want := map[string]any{
					"startDate":      "2026-09-01",
					"endDate":        "2026-09-30",
					"DistributorId":  "dist",
					"MarkAsInvoiced": "false",
					"InvoicedDate":   "2026-10-05",
				}
				for k, v := range want {
					if body[k] != v {
						t.Errorf("body[%s] = %v, want %v", k, body[k], v)
					}
				}
				_, _ = io.WriteString(w, tc.resp)
			}

			c := newClient(srv, "good")
			_ = c.Authenticate(context.Background())
			records, err := c.Invoicing(context.Background(), dltapi.InvoicingRequest{
				StartDate:     "2026-09-01",
				EndDate:       "2026-09-30",
				DistributorID: "dist",
				InvoicedDate:  "2026-10-05",
			})
			if err != nil {
				t.Fatalf("Invoicing: %v", err)
			}
			if len(records) != tc.want {
				t.Errorf("records = %d, want %d", len(records), tc.want)
			}
		})
	}
}
