package feeder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNowPaymentsSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("from"); got != "SOIL" {
			t.Errorf("expected from=SOIL, got %s", got)
		}
		if got := r.URL.Query().Get("to"); got != "H2O" {
			t.Errorf("expected to=H2O, got %s", got)
		}
		if got := r.Header.Get("x-api-key"); got != "secret" {
			t.Errorf("expected api key header, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"rate": "0.42", "timestamp": time.Now().Unix()})
	}))
	defer server.Close()
	src := NewNowPaymentsSource(server.Client(), "", server.URL, "secret")
	quote, err := src.Fetch(context.Background(), "soil", "h2o")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if quote.Rate.StringFixed(2) != "0.42" || quote.Source != "nowpayments" {
		t.Fatalf("unexpected quote: %+v", quote)
	}
}

func TestNowPaymentsSourceRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()
	src := NewNowPaymentsSource(server.Client(), "np", server.URL, "")
	if _, err := src.Fetch(context.Background(), "SOIL", "H2O"); err == nil {
		t.Fatalf("expected error for non-200 status")
	}
}

func TestCoinGeckoSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "soil-token" {
			t.Errorf("expected mapped id, got %s", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]map[string]interface{}{
			"soil-token": {
				"usd":             0.91,
				"last_updated_at": 1_700_000_000,
			},
		})
	}))
	defer server.Close()
	src := NewCoinGeckoSource(server.Client(), "cg", server.URL, map[string]string{"SOIL": "soil-token", "H2O": "usd"})
	quote, err := src.Fetch(context.Background(), "SOIL", "H2O")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if quote.Rate.StringFixed(2) != "0.91" {
		t.Fatalf("unexpected rate: %s", quote.Rate)
	}
	if quote.Timestamp.Unix() != 1_700_000_000 {
		t.Fatalf("unexpected timestamp: %v", quote.Timestamp)
	}
}

func TestRegistryBuild(t *testing.T) {
	reg := NewRegistry()
	src, err := reg.Build(SourceConfig{Type: "manual", Name: "desk", Price: "1.5"})
	if err != nil {
		t.Fatalf("build manual: %v", err)
	}
	quote, err := src.Fetch(context.Background(), "SOIL", "H2O")
	if err != nil {
		t.Fatalf("fetch manual: %v", err)
	}
	if quote.Rate.String() != "1.5" || src.Name() != "desk" {
		t.Fatalf("unexpected manual quote %+v", quote)
	}
	if _, err := reg.Build(SourceConfig{Type: "manual", Price: "-1"}); err == nil {
		t.Fatalf("expected negative price to be rejected")
	}
	if _, err := reg.Build(SourceConfig{Type: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected unknown type to fail")
	}
	empty, err := reg.Build(SourceConfig{Type: "manual"})
	if err != nil {
		t.Fatalf("build empty manual: %v", err)
	}
	if _, err := empty.Fetch(context.Background(), "SOIL", "H2O"); err == nil {
		t.Fatalf("expected unset manual source to fail")
	}
}
