// cmd/candled — Candle aggregation service.
// Consumes prints from the durable print stream, folds them into fixed-interval
// OHLCV candles with a watermark for out-of-order tolerance, and fans completed
// candles out to ClickHouse, the candle stream, and the Redis hot cache.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"equity-pipeline/config"
	"equity-pipeline/internal/bus"
	"equity-pipeline/internal/candle"
	"equity-pipeline/internal/logger"
	"equity-pipeline/internal/metrics"
	"equity-pipeline/internal/model"
	chstore "equity-pipeline/internal/store/clickhouse"
	redisstore "equity-pipeline/internal/store/redis"
)

const (
	durableName  = "candled"
	fetchBatch   = 256
	fetchTimeout = 2 * time.Second
)

func main() {
	logger.Init("candled", slog.LevelInfo)
	slog.Info("candled starting")

	cfg := config.Load()
	intervals := cfg.ParseIntervals()
	if len(intervals) == 0 {
		slog.Error("no valid candle intervals configured", "raw", cfg.CandleIntervalsMS)
		os.Exit(1)
	}

	prom := metrics.New()
	health := metrics.NewHealthStatus()
	health.SetIntervals(intervals)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Columnar store (required) ----
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

	// ---- Hot cache (optional: candles survive in the store without it) ----
	var cache *redisstore.Writer
	cache, err = redisstore.New(redisstore.WriterConfig{URL: cfg.RedisURL})
	if err != nil {
		slog.Warn("redis init failed, continuing without hot cache", "err", err)
		cache = nil
	} else {
		health.SetCacheConnected(true)
	}

	var cachePinger metrics.Pinger
	if cache != nil {
		cachePinger = cache
	}
	health.StartLivenessChecker(ctx, store, cachePinger, 10*time.Second)

	// ---- Bus + durable consumer bootstrap ----
	busClient, err := bus.Connect(cfg.NATSURL, "candled", 5, 2*time.Second)
	if err != nil {
		slog.Error("bus connect failed", "err", err)
		os.Exit(1)
	}
	for _, s := range []struct{ stream, subject string }{
		{bus.StreamPrints, bus.SubjectPrints},
		{bus.StreamCandles, bus.SubjectCandles},
	} {
		if err := busClient.EnsureStream(s.stream, s.subject); err != nil {
			slog.Error("ensure stream failed", "stream", s.stream, "err", err)
			os.Exit(1)
		}
	}
	health.SetBusConnected(true)

	policy := bus.ParseDeliverPolicy(cfg.CandleDeliverPolicy)
	if err := busClient.EnsureDurableConsumer(bus.StreamPrints, durableName, policy, cfg.CandleConsumerReset); err != nil {
		slog.Error("consumer bootstrap failed", "err", err)
		os.Exit(1)
	}
	sub, err := busClient.SubscribeDurable(bus.StreamPrints, bus.SubjectPrints, durableName, policy)
	if err != nil {
		slog.Error("subscribe failed", "err", err)
		os.Exit(1)
	}

	// ---- Aggregator + emitter ----
	agg := candle.New(intervals, cfg.CandleMaxLateMS)
	emitter := candle.NewEmitter(store, busClient, cacheOrNil(cache), cfg.CandleCacheLimit)
	emitter.OnEmitted = func(c model.Candle) {
		prom.CandlesEmitted.WithLabelValues(strconv.FormatInt(c.IntervalMS, 10)).Inc()
	}
	emitter.OnPersistFailed = prom.PersistFailed.Inc
	emitter.OnPublishFailed = prom.PublishFailed.Inc
	emitter.OnCacheFailed = prom.CacheFailed.Inc

	slog.Info("candle pipeline ready",
		"intervals_ms", intervals,
		"max_late_ms", cfg.CandleMaxLateMS,
		"deliver_policy", string(policy),
		"cache_limit", cfg.CandleCacheLimit)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		consume(ctx, sub, agg, emitter, prom, health)
	}()

	// ---- Wait for shutdown signal ----
	<-sigCh
	slog.Info("shutdown signal received")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Detach from the durable (its cursor survives server-side), flush every
	// still-open window, then release connections.
	if err := sub.Unsubscribe(); err != nil {
		slog.Warn("unsubscribe failed", "err", err)
	}
	if final := agg.Drain(); len(final) > 0 {
		slog.Info("flushing open windows on shutdown", "count", len(final))
		emitter.Emit(shutdownCtx, final)
	}
	if cache != nil {
		cache.Close()
	}
	if err := busClient.Drain(); err != nil {
		slog.Warn("bus drain failed", "err", err)
	}
	metricsSrv.Stop(shutdownCtx)

	slog.Info("candled shutdown complete")
}

// consume pulls print batches until the context is cancelled. Undecodable
// payloads are terminated as poison pills; everything else is ack'd only
// after the aggregator has folded it and any closed candles reached the
// emitter, so a crash replays unprocessed prints.
func consume(ctx context.Context, sub *bus.Subscription, agg *candle.Aggregator, emitter *candle.Emitter, prom *metrics.Metrics, health *metrics.HealthStatus) {
	var lateDrops int
	lastLateReport := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fetchCtx, fetchCancel := context.WithTimeout(ctx, fetchTimeout)
		msgs, err := sub.Fetch(fetchCtx, fetchBatch)
		fetchCancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("fetch failed, retrying", "err", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			p, err := model.DecodePrint(msg.Data())
			if err != nil {
				prom.ValidationFailures.WithLabelValues("print").Inc()
				slog.Warn("terminating undecodable print", "err", err)
				msg.Term()
				continue
			}

			start := time.Now()
			res := agg.Ingest(p)
			prom.IngestDur.Observe(time.Since(start).Seconds())
			prom.PrintsConsumed.Inc()

			if res.DroppedLate > 0 {
				prom.LatePrints.Add(float64(res.DroppedLate))
				lateDrops += res.DroppedLate
			}
			if len(res.Emitted) > 0 {
				emitter.Emit(ctx, res.Emitted)
			}

			if err := msg.Ack(); err != nil {
				slog.Warn("ack failed", "trace_id", p.TraceID, "err", err)
			}
			health.SetLastEventTime(time.Now())
		}

		if lateDrops > 0 && time.Since(lastLateReport) >= 5*time.Second {
			slog.Info("late prints dropped", "count", lateDrops, "window", "5s")
			lateDrops = 0
			lastLateReport = time.Now()
		}
	}
}

// cacheOrNil converts the concrete cache pointer to the port interface,
// keeping a nil pointer as a nil interface so the emitter's nil check works.
func cacheOrNil(w *redisstore.Writer) model.CandleCache {
	if w == nil {
		return nil
	}
	return w
}
