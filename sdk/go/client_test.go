package caregatesdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReleaseBlockedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/cases/case-1/releases" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "k1" {
			t.Errorf("expected api key header, got %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["report_kind"] != "payer_report" {
			t.Errorf("unexpected body %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"release_blocked","message":"release blocked by OPEN_CRITICAL_FLAGS","details":{"run_id":"run-9"}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/v0")
	c.APIKey = "k1"
	_, err := c.ReleaseReport(context.Background(), "case-1", "payer_report")
	if !ReleaseBlocked(err) {
		t.Fatalf("expected release_blocked error, got %v", err)
	}
	apiErr := err.(*APIError)
	if apiErr.Details["run_id"] != "run-9" {
		t.Fatalf("expected run id in details, got %v", apiErr.Details)
	}
}

func TestEvaluateLockdownAndEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/cases/case-1/lockdown":
			if r.Method == http.MethodGet {
				w.Write([]byte(`{"case_id":"case-1","evaluated_on":"2024-03-15","result":{"can_release":true,"risk_level":"LOW","issues":[]},"risk":{"rag_status":"Green"}}`))
				return
			}
			w.Write([]byte(`{"id":"run-1","case_id":"case-1","evaluated_on":"2024-03-15","result":{"can_release":false,"risk_level":"HIGH","issues":[{"code":"OVERDUE_TASKS","message":"overdue","severity":"BLOCK"}]},"risk":{"rag_status":"Amber"},"actor_id":"n1","created_at":"2024-03-15T09:00:00Z"}`))
		case "/events":
			if r.URL.Query().Get("limit") != "2" || r.URL.Query().Get("cursor") != "10" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			w.Write([]byte(`{"items":[{"id":9,"type":"lockdown.evaluated","entity_kind":"case","entity_id":"case-1","payload":{"can_release":false}}],"next_cursor":"9"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	c.BearerToken = "tok"
	run, err := c.EvaluateLockdown(context.Background(), "case-1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if run.Result.CanRelease || len(run.Result.Issues) != 1 || run.Result.Issues[0].Severity != "BLOCK" {
		t.Fatalf("unexpected run %+v", run)
	}
	preview, err := c.PreviewLockdown(context.Background(), "case-1")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !preview.Result.CanRelease || preview.EvaluatedOn != "2024-03-15" {
		t.Fatalf("unexpected preview %+v", preview)
	}
	page, err := c.EventsPage(context.Background(), 2, "10")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(page.Items) != 1 || page.NextCursor != "9" || page.Items[0].Type != "lockdown.evaluated" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestPlainErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.Retries = 0
	_, err := c.GetCase(context.Background(), "x")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Body != "upstream down" || apiErr.Code != "" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestMissingBaseURL(t *testing.T) {
	c := New("")
	if _, err := c.GetCase(context.Background(), "x"); err == nil {
		t.Fatal("expected error without base URL")
	}
}
