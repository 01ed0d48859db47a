// cmd/ingestd — Equity ingest service.
// Runs a venue adapter (synthetic random walk or external WebSocket feed),
// validates each print/quote, writes it through to ClickHouse, and publishes
// it onto the JetStream bus for downstream consumers.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"equity-pipeline/config"
	"equity-pipeline/internal/bus"
	"equity-pipeline/internal/ingest"
	"equity-pipeline/internal/logger"
	"equity-pipeline/internal/metrics"
	chstore "equity-pipeline/internal/store/clickhouse"
)

func main() {
	logger.Init("ingestd", slog.LevelInfo)
	slog.Info("ingestd starting")

	cfg := config.Load()

	prom := metrics.New()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Columnar store (required: the store is the durable record) ----
	store, err := chstore.New(ctx, chstore.WriterConfig{
		URL:      cfg.ClickHouseURL,
		Database: cfg.ClickHouseDB,
	})
	if err != nil {
		slog.Error("clickhouse init failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.EnsureTables(ctx); err != nil {
		slog.Error("clickhouse ensure tables failed", "err", err)
		os.Exit(1)
	}
	health.SetStoreConnected(true)

	// ---- Bus ----
	busClient, err := bus.Connect(cfg.NATSURL, "ingestd", 5, 2*time.Second)
	if err != nil {
		slog.Error("bus connect failed", "err", err)
		os.Exit(1)
	}
	for _, s := range []struct{ stream, subject string }{
		{bus.StreamPrints, bus.SubjectPrints},
		{bus.StreamQuotes, bus.SubjectQuotes},
	} {
		if err := busClient.EnsureStream(s.stream, s.subject); err != nil {
			slog.Error("ensure stream failed", "stream", s.stream, "err", err)
			os.Exit(1)
		}
	}
	health.SetBusConnected(true)

	health.StartLivenessChecker(ctx, store, nil, 10*time.Second)

	// ---- Publisher pipeline ----
	pub := ingest.NewPublisher(store, busClient, ingest.PublisherConfig{
		ThrottleEnabled: cfg.TestingMode,
		ThrottleGap:     time.Duration(cfg.TestingThrottleMS) * time.Millisecond,
	})
	pub.OnTradePublished = func() {
		prom.TradesPublished.Inc()
		health.SetLastEventTime(time.Now())
	}
	pub.OnQuotePublished = func() {
		prom.QuotesPublished.Inc()
		health.SetLastEventTime(time.Now())
	}
	pub.OnValidationFailure = func(kind string) { prom.ValidationFailures.WithLabelValues(kind).Inc() }
	pub.OnPersistFailure = func(kind string) { prom.IngestPersistFails.WithLabelValues(kind).Inc() }
	pub.OnPublishFailure = func(kind string) { prom.IngestPublishFails.WithLabelValues(kind).Inc() }

	// ---- Venue adapter ----
	adapter, err := ingest.NewAdapter(cfg)
	if err != nil {
		slog.Error("adapter init failed", "err", err)
		os.Exit(1)
	}

	stop, err := adapter.Start(pub.Handlers())
	if err != nil {
		slog.Error("adapter start failed", "adapter", adapter.Name(), "err", err)
		os.Exit(1)
	}
	slog.Info("ingest pipeline ready",
		"adapter", adapter.Name(),
		"throttle", cfg.TestingMode,
		"throttle_gap_ms", cfg.TestingThrottleMS)

	// ---- Wait for shutdown signal ----
	<-sigCh
	slog.Info("shutdown signal received")
	cancel()

	// Gate new events first, then stop the adapter, then flush the bus. The
	// stop function returns only after the adapter ceases handler invocations.
	pub.Shutdown()
	stop()

	if err := busClient.Drain(); err != nil {
		slog.Warn("bus drain failed", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	slog.Info("ingestd shutdown complete")
}
