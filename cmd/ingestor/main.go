// cmd/ingestor runs the intake adapter and the two per-stream batch
// writers as one process: subscribe to the broker, enqueue validated
// samples, drain the queues into Postgres under the size/time batch
// trigger. No operator-facing flags, so it keeps the teacher's plain
// env-var config.Load() style rather than layering cobra/viper on top.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rahullalw/smart-ev-analytics/internal/broker"
	"github.com/rahullalw/smart-ev-analytics/internal/config"
	"github.com/rahullalw/smart-ev-analytics/internal/domain"
	"github.com/rahullalw/smart-ev-analytics/internal/intake"
	"github.com/rahullalw/smart-ev-analytics/internal/logging"
	"github.com/rahullalw/smart-ev-analytics/internal/metrics"
	"github.com/rahullalw/smart-ev-analytics/internal/pipeline"
	"github.com/rahullalw/smart-ev-analytics/internal/queue/redisqueue"
	"github.com/rahullalw/smart-ev-analytics/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.NewDefault()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	redisClient, err := store.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	db, err := store.NewDB(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	b, err := newBroker(cfg, log)
	if err != nil {
		log.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	meterQueue, err := redisqueue.New(ctx, redisClient, string(domain.StreamMeter), "writer", "ingestor-1", log)
	if err != nil {
		log.Error("failed to open meter queue", "error", err)
		os.Exit(1)
	}
	vehicleQueue, err := redisqueue.New(ctx, redisClient, string(domain.StreamVehicle), "writer", "ingestor-1", log)
	if err != nil {
		log.Error("failed to open vehicle queue", "error", err)
		os.Exit(1)
	}

	ingestionMetrics := metrics.NewIngestionMetrics("ev_analytics")

	adapter := intake.New(b, meterQueue, vehicleQueue, log, ingestionMetrics)

	txTimeout := time.Duration(cfg.TxTimeoutSeconds) * time.Second
	meterWriter := store.NewMeterWriter(db, txTimeout)
	vehicleWriter := store.NewVehicleWriter(db, txTimeout)

	batchCfg := func(stream string) pipeline.Config {
		return pipeline.Config{
			Stream:     stream,
			BatchSize:  int64(cfg.BatchSize),
			FlushEvery: time.Duration(cfg.FlushIntervalMS) * time.Millisecond,
		}
	}

	meterWorker := pipeline.NewBatchWorker(batchCfg(string(domain.StreamMeter)), meterQueue, meterWriter, log, ingestionMetrics)
	vehicleWorker := pipeline.NewBatchWorker(batchCfg(string(domain.StreamVehicle)), vehicleQueue, vehicleWriter, log, ingestionMetrics)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		log.Info("metrics server listening", "addr", ":9100")
		if err := http.ListenAndServe(":9100", mux); err != nil {
			log.Warn("metrics server stopped", "error", err)
		}
	}()

	go meterWorker.Run(ctx)
	go vehicleWorker.Run(ctx)

	log.Info("ingestor started",
		"broker_kind", cfg.BrokerKind,
		"batch_size", cfg.BatchSize,
		"flush_interval_ms", cfg.FlushIntervalMS,
	)

	if err := adapter.Run(ctx, "telemetry.meter.*", "telemetry.vehicle.*"); err != nil {
		log.Error("intake adapter stopped with error", "error", err)
	}

	<-ctx.Done()
	log.Info("shutdown signal received, waiting for batch workers to drain")
	// Give the batch workers' own ctx.Done() drain paths a window to
	// flush whatever is still queued before the process exits.
	time.Sleep(2 * time.Second)
	log.Info("ingestor stopped")
}

func newBroker(cfg *config.Config, log *slog.Logger) (broker.Broker, error) {
	switch cfg.BrokerKind {
	case "rabbitmq":
		return broker.NewRabbitMQBroker(cfg.BrokerURL, log)
	default:
		return broker.NewNATSBroker(cfg.BrokerURL, log)
	}
}
