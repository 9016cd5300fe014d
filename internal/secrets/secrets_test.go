package secrets_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/nyashahama/dlt-reports/internal/config"
	"github.com/nyashahama/dlt-reports/internal/secrets"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fullStore() *secrets.MemoryStore {
	return &secrets.MemoryStore{Bundles: map[string]secrets.Bundle{
		"api_request_totals": {
			"api_email":    "bot@example.com",
			"api_password": "hunter2",
			"send_report":  "True",
			"requests":     `{"reports":[{"name":"x","DealerId":42}]}`,
		},
		"JSREPORTS_ABEL": {"usn": "render", "pwd": "secret"},
		"DLT_reporting_recipients_list": {
			"DLT_reporting_recipients":     "a@example.com, b@example.com",
			"DLT_reporting_recipients_dev": "dev@example.com",
		},
		"DLT_invoicing_recipients_list": {
			"DLT_invoicing_recipients":     "billing@example.com",
			"DLT_invoicing_recipients_dev": "",
		},
	}}
}

// ─── ParseBundle ─────────────────────────────────────────────────────────────

func TestParseBundle_KeepsNonStringsAsRawJSON(t *testing.T) {
	b, err := secrets.ParseBundle(`{"usn":"u","requests":[{"name":"x"}],"n":3}`)
	if err != nil {
		t.Fatalf("ParseBundle: %v", err)
	}
	if b["usn"] != "u" {
		t.Errorf("usn = %q", b["usn"])
	}
	if b["requests"] != `[{"name":"x"}]` {
		t.Errorf("requests = %q", b["requests"])
	}
	if b["n"] != "3" {
		t.Errorf("n = %q", b["n"])
	}
}

func TestParseBundle_RejectsNonObject(t *testing.T) {
	if _, err := secrets.ParseBundle(`"just a string"`); err == nil {
		t.Fatal("expected error for non-object secret")
	}
}

// ─── Recipients ──────────────────────────────────────────────────────────────

func TestRecipients_SelectsKeyByEnvironment(t *testing.T) {
	store := fullStore()
	src := config.Defaults().Secrets.SalesRecipients

	prod := secrets.Recipients(context.Background(), store, src, true, discardLogger())
	if want := []string{"a@example.com", "b@example.com"}; !reflect.DeepEqual(prod, want) {
		t.Errorf("production = %v, want %v", prod, want)
	}

	dev := secrets.Recipients(context.Background(), store, src, false, discardLogger())
	if want := []string{"dev@example.com"}; !reflect.DeepEqual(dev, want) {
		t.Errorf("dev = %v, want %v", dev, want)
	}
}

func TestRecipients_FailuresYieldEmptyList(t *testing.T) {
	store := fullStore()

	cases := []struct {
		name string
		src  config.RecipientSource
	}{
		{"missing secret", config.RecipientSource{Secret: "nope", ProdKey: "a", DevKey: "b"}},
		{"missing key", config.RecipientSource{Secret: "JSREPORTS_ABEL", ProdKey: "a", DevKey: "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := secrets.Recipients(context.Background(), store, tc.src, false, discardLogger())
			if got == nil || len(got) != 0 {
				t.Errorf("got %#v, want empty non-nil list", got)
			}
		})
	}
}

func TestSplitAddresses(t *testing.T) {
	got := secrets.SplitAddresses(" a@x.com,,b@x.com , ")
	if want := []string{"a@x.com", "b@x.com"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// ─── Load ────────────────────────────────────────────────────────────────────

func TestLoad_FetchesEachBundleOnce(t *testing.T) {
	store := fullStore()
	names := config.Defaults().Secrets
	// Point two recipient kinds at the same bundle.
	names.APIRecipients = config.RecipientSource{
		Secret:  "DLT_reporting_recipients_list",
		ProdKey: "DLT_reporting_recipients",
		DevKey:  "DLT_reporting_recipients_dev",
	}

	s := secrets.Load(context.Background(), store, names, false, discardLogger())

	// api_request_totals, JSREPORTS_ABEL, reporting list, invoicing list.
	if store.Calls != 4 {
		t.Errorf("store hit %d times, want 4", store.Calls)
	}

	api, err := s.APICredentials()
	if err != nil || api.Email != "bot@example.com" {
		t.Errorf("APICredentials = %+v, %v", api, err)
	}
	r, err := s.RendererCredentials()
	if err != nil || r.Username != "render" {
		t.Errorf("RendererCredentials = %+v, %v", r, err)
	}
	totals, err := s.APITotals()
	if err != nil {
		t.Fatalf("APITotals: %v", err)
	}
	if !totals.SendReport {
		t.Error("send_report \"True\" should parse as true")
	}
	if len(totals.Requests) != 1 || totals.Requests[0]["name"] != "x" {
		t.Errorf("requests = %v", totals.Requests)
	}
	if got := s.Recipients(secrets.KindInvoicing); len(got) != 0 {
		t.Errorf("empty dev invoicing list should resolve to no recipients, got %v", got)
	}
}

func TestLoad_MissingBundleOnlyAffectsItsAccessors(t *testing.T) {
	store := fullStore()
	delete(store.Bundles, "JSREPORTS_ABEL")

	s := secrets.Load(context.Background(), store, config.Defaults().Secrets, true, discardLogger())

	if _, err := s.RendererCredentials(); !errors.Is(err, secrets.ErrSecretNotFound) {
		t.Errorf("RendererCredentials err = %v, want ErrSecretNotFound", err)
	}
	if _, err := s.APICredentials(); err != nil {
		t.Errorf("APICredentials should still load: %v", err)
	}
	if got := s.Recipients(secrets.KindAPI); len(got) != 0 {
		t.Errorf("missing api recipients bundle should give empty list, got %v", got)
	}
}

func TestAPITotals_DisabledIgnoresRequests(t *testing.T) {
	for _, raw := range []string{"", `{not json`} {
		store := fullStore()
		b := store.Bundles["api_request_totals"]
		b["send_report"] = "false"
		if raw == "" {
			delete(b, "requests")
		} else {
			b["requests"] = raw
		}

		s := secrets.Load(context.Background(), store, config.Defaults().Secrets, false, discardLogger())
		totals, err := s.APITotals()
		if err != nil {
			t.Fatalf("requests %q: APITotals: %v", raw, err)
		}
		if totals.SendReport || totals.Requests != nil {
			t.Errorf("requests %q: totals = %+v", raw, totals)
		}
	}
}

func TestAPITotals_EnabledRequiresRequests(t *testing.T) {
	store := fullStore()
	delete(store.Bundles["api_request_totals"], "requests")

	s := secrets.Load(context.Background(), store, config.Defaults().Secrets, false, discardLogger())
	if _, err := s.APITotals(); err == nil {
		t.Error("expected an error when send_report is true and requests is missing")
	}
}

func TestLoad_RecipientsAreCopies(t *testing.T) {
	s := secrets.Load(context.Background(), fullStore(), config.Defaults().Secrets, true, discardLogger())

	first := s.Recipients(secrets.KindSales)
	first[0] = "mutated@example.com"

	if again := s.Recipients(secrets.KindSales); again[0] != "a@example.com" {
		t.Errorf("settings were mutated through a returned slice: %v", again)
	}
}

func TestParseRequests(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"bare array", `[{"name":"x"}]`, 1, false},
		{"wrapped", `{"reports":[{"name":"x"},{"name":"y"}]}`, 2, false},
		{"wrapped without reports", `{"other":1}`, 0, true},
		{"empty", `  `, 0, true},
		{"garbage", `[{`, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := secrets.ParseRequests(tc.raw)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if len(got) != tc.want {
				t.Errorf("len = %d, want %d", len(got), tc.want)
			}
		})
	}
}

// ─── AWSStore ────────────────────────────────────────────────────────────────

type stubSecretsManager struct {
	out *secretsmanager.GetSecretValueOutput
	err error
	ids []string
}

func (s *stubSecretsManager) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	s.ids = append(s.ids, aws.ToString(in.SecretId))
	return s.out, s.err
}

func TestAWSStore_DecodesSecretString(t *testing.T) {
	stub := &stubSecretsManager{out: &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(`{"usn":"u","pwd":"p"}`),
	}}

	b, err := secrets.NewAWSStore(stub).GetSecret(context.Background(), "JSREPORTS_ABEL")
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	if b["pwd"] != "p" {
		t.Errorf("pwd = %q", b["pwd"])
	}
	if len(stub.ids) != 1 || stub.ids[0] != "JSREPORTS_ABEL" {
		t.Errorf("requested ids = %v", stub.ids)
	}
}

func TestAWSStore_NotFound(t *testing.T) {
	stub := &stubSecretsManager{err: &types.ResourceNotFoundException{Message: aws.String("gone")}}

	_, err := secrets.NewAWSStore(stub).GetSecret(context.Background(), "missing")
	if !errors.Is(err, secrets.ErrSecretNotFound) {
		t.Fatalf("err = %v, want ErrSecretNotFound", err)
	}
}

func TestAWSStore_OtherErrorsAreNotNotFound(t *testing.T) {
	stub := &stubSecretsManager{err: errors.New("throttled")}

	_, err := secrets.NewAWSStore(stub).GetSecret(context.Background(), "x")
	if err == nil || errors.Is(err, secrets.ErrSecretNotFound) {
		t.Fatalf("err = %v, want a non-NotFound error", err)
	}
}
