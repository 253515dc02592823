package evidence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPSearcherSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rules/search" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("customer_id"); got != "cust-1" {
			t.Errorf("customer_id = %q, want cust-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rules":[
			{"ruleId":"r1","severity":"critical"},
			{"ruleId":"r2","severity":"high"},
			{"ruleId":"r3","severity":"low"}
		]}`))
	}))
	defer srv.Close()

	s := NewHTTPSearcher(srv.URL, 2*time.Second)
	rules, err := s.Search(context.Background(), testTx(), 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("len(rules) = %d, want 3", len(rules))
	}
	if rules[0].RuleID != "r1" || rules[0].Severity != SeverityCritical {
		t.Errorf("rules[0] = %+v", rules[0])
	}
}

func TestHTTPSearcherTruncatesToLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rules":[{"ruleId":"r1"},{"ruleId":"r2"},{"ruleId":"r3"}]}`))
	}))
	defer srv.Close()

	s := NewHTTPSearcher(srv.URL, 2*time.Second)
	rules, err := s.Search(context.Background(), testTx(), 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(rules) != 2 {
		t.Errorf("len(rules) = %d, want 2", len(rules))
	}
}

func TestHTTPSearcherRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"rules":[{"ruleId":"r1"}]}`))
	}))
	defer srv.Close()

	s := NewHTTPSearcher(srv.URL, 5*time.Second)
	rules, err := s.Search(context.Background(), testTx(), 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(rules) != 1 {
		t.Errorf("len(rules) = %d, want 1", len(rules))
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestHTTPSearcherBadRequestIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewHTTPSearcher(srv.URL, 5*time.Second)
	if _, err := s.Search(context.Background(), testTx(), 10); err == nil {
		t.Fatal("Search() error = nil, want error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (no retries on 400)", got)
	}
}

func TestStaticSearcher(t *testing.T) {
	s := NewStaticSearcher()
	rules, err := s.Search(context.Background(), testTx(), 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(rules) != 3 {
		t.Errorf("len(rules) = %d, want 3", len(rules))
	}

	all, err := s.Search(context.Background(), testTx(), 100)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(all) != len(baselineRules) {
		t.Errorf("len(all) = %d, want full baseline set (%d)", len(all), len(baselineRules))
	}
	// The baseline always includes the sanctions screen.
	if all[0].RuleID != "aml-sanctions-screening" || all[0].Severity != SeverityCritical {
		t.Errorf("all[0] = %+v, want sanctions screening first", all[0])
	}
}
