package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/joshp123/hivewatch/internal/config"
	"github.com/joshp123/hivewatch/internal/dashboard"
	"github.com/joshp123/hivewatch/internal/hives"
	"github.com/joshp123/hivewatch/internal/livefeed"
	"github.com/joshp123/hivewatch/internal/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	flags := pflag.NewFlagSet("hivewatch", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "path to a YAML config file")
	grpcAddr := flags.String("grpc-addr", "", "gRPC listen address")
	httpAddr := flags.String("http-addr", "", "HTTP listen address")
	feed := flags.String("feed", "", "live feed transport (websocket or mqtt)")
	logLevel := flags.String("log-level", "", "log level (debug, info, warn, error)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config", err)
	}
	if flags.Changed("grpc-addr") {
		cfg.GRPCAddr = *grpcAddr
	}
	if flags.Changed("http-addr") {
		cfg.HTTPAddr = *httpAddr
	}
	if flags.Changed("feed") {
		cfg.Feed = *feed
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if err := config.Validate(cfg); err != nil {
		fatal("config", err)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("hivewatch stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	client, err := hives.NewClient(hives.Config{BaseURL: cfg.APIURL, Timeout: cfg.RequestTimeout})
	if err != nil {
		return fmt.Errorf("hives client: %w", err)
	}
	transport, err := newTransport(cfg)
	if err != nil {
		return fmt.Errorf("live feed: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	coord := dashboard.New(client, client, transport, dashboard.Options{
		Logger:         logger.With("component", "dashboard"),
		OnStatus:       grpcServer.SetFeedStatus,
		HistoryTimeout: cfg.RequestTimeout,
	})
	defer coord.Close()
	dashboard.RegisterDashboardService(grpcServer.Server, coord)

	metricsRegistry := server.MetricsRegistry(
		dashboard.NewMetricsCollector(coord),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "hivewatch_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"feed": cfg.Feed},
		}, func() float64 { return 1 }),
	)

	httpMux := http.NewServeMux()
	httpMux.Handle("/health", server.HealthHandler(coord.Status))
	httpMux.Handle("/metrics", server.MetricsHandler(metricsRegistry))
	httpMux.Handle("/snapshot", server.SnapshotHandler(coord))
	httpServer := server.NewHTTPServer(cfg.HTTPAddr, httpMux)

	errs := make(chan error, 2)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http serve: %w", err)
		}
	}()
	go func() {
		if err := grpcServer.Serve(); err != nil {
			errs <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	logger.Info("hivewatch serving", "grpc_addr", cfg.GRPCAddr, "http_addr", cfg.HTTPAddr, "feed", cfg.Feed)

	refreshCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	if _, err := coord.RefreshDevices(refreshCtx); err != nil {
		logger.Warn("initial device refresh failed, call RefreshDevices to retry", "error", err)
	}
	cancel()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errs:
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	grpcServer.Stop()
	return runErr
}

func newTransport(cfg *config.Config) (livefeed.Transport, error) {
	switch cfg.Feed {
	case config.FeedMQTT:
		return livefeed.NewMQTTTransport(livefeed.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
		})
	default:
		return livefeed.NewWebSocketTransport(cfg.FeedURL)
	}
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
