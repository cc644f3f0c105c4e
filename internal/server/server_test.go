package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joshp123/hivewatch/internal/dashboard"
	"github.com/joshp123/hivewatch/internal/livefeed"
	"github.com/joshp123/hivewatch/internal/telemetry"
)

func TestHealthHandlerIncludesFeedStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(func() livefeed.Status { return livefeed.StatusError })(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := rec.Body.String(); body != "ok feed=Error\n" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "hivewatch_test_gauge", Help: "test"})
	gauge.Set(7)
	registry := MetricsRegistry(gauge)

	server := httptest.NewServer(MetricsHandler(registry))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "hivewatch_test_gauge 7") {
		t.Fatalf("metric missing from output")
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("go collector missing from output")
	}
}

type staticSource struct {
	device   *telemetry.Device
	readings []telemetry.Reading
	status   livefeed.Status
}

func (s staticSource) View() dashboard.View {
	return dashboard.View{Device: s.device, Status: s.status, Readings: s.readings}
}

func TestSnapshotHandler(t *testing.T) {
	temp := 34.5
	source := staticSource{
		device:   &telemetry.Device{ID: "1", DeviceID: "hive-01"},
		readings: []telemetry.Reading{{Time: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), Temperature: &temp}},
		status:   livefeed.StatusLive,
	}

	rec := httptest.NewRecorder()
	SnapshotHandler(source).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var view struct {
		Device struct {
			DeviceID string `json:"device_id"`
		} `json:"device"`
		Status   string `json:"status"`
		Readings []struct {
			Time        string   `json:"time"`
			Temperature *float64 `json:"temperature"`
			Humidity    *float64 `json:"humidity"`
		} `json:"readings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Device.DeviceID != "hive-01" || view.Status != "Live" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if len(view.Readings) != 1 || view.Readings[0].Time != "2025-06-01T12:00:00Z" {
		t.Fatalf("unexpected readings: %+v", view.Readings)
	}
	if view.Readings[0].Humidity != nil {
		t.Fatalf("absent humidity should be omitted")
	}

	rec = httptest.NewRecorder()
	SnapshotHandler(source).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/snapshot", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestGRPCHealthFollowsFeedStatus(t *testing.T) {
	srv, err := NewGRPCServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("new grpc server: %v", err)
	}
	go func() { _ = srv.Serve() }()
	defer srv.Stop()

	conn, err := grpc.NewClient(srv.Listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: FeedHealthService})
		if err != nil {
			t.Fatalf("health check: %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before the feed is live, got %s", got)
	}
	srv.SetFeedStatus(livefeed.StatusLive)
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING while live, got %s", got)
	}
	srv.SetFeedStatus(livefeed.StatusError)
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after error, got %s", got)
	}
}
