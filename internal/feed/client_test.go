package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClient_GetTrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/BTC-USD/trades" {
			t.Errorf("path = %s, want /products/BTC-USD/trades", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "100" {
			t.Errorf("limit = %s, want 100", got)
		}

		rows := []map[string]any{
			{"trade_id": 2, "price": "30010.00", "size": "0.5", "time": "2024-03-01T12:30:16Z", "side": "sell"},
			{"trade_id": 1, "price": "30000.00", "size": "1", "time": "2024-03-01T12:30:15Z", "side": "buy"},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rows)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithTimeout(5*time.Second))

	trades, dropped, err := client.GetTrades(context.Background(), "BTC-USD", 100)
	if err != nil {
		t.Fatalf("GetTrades() error = %v", err)
	}
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	if len(trades) != 2 {
		t.Fatalf("GetTrades() returned %d trades, want 2", len(trades))
	}
	if trades[0].ID != 2 {
		t.Errorf("first trade ID = %d, want 2 (feed order preserved)", trades[0].ID)
	}
	if trades[1].Price.String() != "30000" {
		t.Errorf("trade 1 price = %s, want 30000", trades[1].Price)
	}
}

func TestClient_GetTrades_MalformedRow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := []map[string]any{
			{"trade_id": 1, "price": "30000.00", "size": "1", "time": "2024-03-01T12:30:15Z"},
			{"trade_id": 2, "price": "oops", "size": "1", "time": "2024-03-01T12:30:16Z"},
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	trades, dropped, err := client.GetTrades(context.Background(), "BTC-USD", 0)
	if err != nil {
		t.Fatalf("GetTrades() error = %v", err)
	}
	if len(trades) != 1 || dropped != 1 {
		t.Errorf("kept %d dropped %d, want 1 and 1", len(trades), dropped)
	}
}

func TestClient_GetCurrentPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/ETH-USD/ticker" {
			t.Errorf("path = %s, want /products/ETH-USD/ticker", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"trade_id": 99,
			"price":    "2501.25",
			"bid":      "2501.00",
			"ask":      "2501.50",
			"time":     "2024-03-01T12:30:15Z",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	price, err := client.GetCurrentPrice(context.Background(), "ETH-USD")
	if err != nil {
		t.Fatalf("GetCurrentPrice() error = %v", err)
	}
	if price.String() != "2501.25" {
		t.Errorf("price = %s, want 2501.25", price)
	}
}

func TestClient_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetries(3, time.Millisecond))

	_, _, err := client.GetTrades(context.Background(), "BTC-USD", 0)
	if err != nil {
		t.Fatalf("GetTrades() error = %v, want success after retries", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetries(3, time.Millisecond))

	_, _, err := client.GetTrades(context.Background(), "NOPE-USD", 0)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("GetTrades() error = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1 (404 is not retryable)", got)
	}
}

func TestAPIError_IsRetryable(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{500, true},
		{503, true},
		{429, true},
		{400, false},
		{404, false},
	}
	for _, tt := range tests {
		e := &APIError{StatusCode: tt.code}
		if got := e.IsRetryable(); got != tt.want {
			t.Errorf("IsRetryable(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
