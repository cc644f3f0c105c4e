package hives

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientListDevices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hives" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Fatalf("expected GET, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":1,"device_id":"hive-01","name":"Orchard","location":"North field"},{"id":2,"device_id":"hive-02"}]`)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	devices, err := client.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	if devices[0].DeviceID != "hive-01" || devices[0].ID != "1" {
		t.Fatalf("unexpected first device: %+v", devices[0])
	}
	if devices[0].Name == nil || *devices[0].Name != "Orchard" {
		t.Fatalf("unexpected name: %v", devices[0].Name)
	}
	if devices[1].Name != nil || devices[1].Location != nil {
		t.Fatalf("expected optional fields to be absent: %+v", devices[1])
	}
}

func TestClientLoadHistoryReversesToOldestFirst(t *testing.T) {
	var gotLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hives/hive-01/telemetry" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"time":"2025-06-01T12:05:00Z","temperature":35.5},
			{"time":"2025-06-01T12:04:00Z","temperature":35.4},
			{"time":"2025-06-01T12:03:00Z","temperature":35.3},
			{"time":"2025-06-01T12:02:00Z","humidity":61.0},
			{"time":"2025-06-01T12:01:00Z","temperature":35.1}
		]`)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	history, err := client.LoadHistory(context.Background(), "hive-01", DefaultHistoryLimit)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if gotLimit != "50" {
		t.Fatalf("expected limit=50, got %q", gotLimit)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 readings, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if !history[i].Time.After(history[i-1].Time) {
			t.Fatalf("history not ascending at %d: %s then %s", i, history[i-1].Time, history[i].Time)
		}
	}
	first := time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC)
	if !history[0].Time.Equal(first) {
		t.Fatalf("expected r1 first, got %s", history[0].Time)
	}
	if history[1].Temperature != nil {
		t.Fatalf("expected missing temperature to stay absent")
	}
}

func TestClientNon2xxIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "database unavailable\n")
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.LoadHistory(context.Background(), "hive-01", 0)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", transportErr.StatusCode)
	}
	if transportErr.Op != "load history" {
		t.Fatalf("unexpected op: %s", transportErr.Op)
	}
}

func TestClientMalformedBodyIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"not":"a list"`)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	devices, err := client.ListDevices(context.Background())
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if devices != nil {
		t.Fatalf("expected no devices on failure, got %v", devices)
	}
}

func TestClientNetworkFailureIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewClient(Config{BaseURL: url, Timeout: time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.ListDevices(context.Background())
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "  "}); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}
