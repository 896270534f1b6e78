// Command transform executes one hazard-to-loss batch run: it resolves a raw
// forecast run (latest, or an explicit -run), computes tract and county loss
// aggregates, and publishes the versioned result set. A failed run publishes
// nothing and exits non-zero.
//
// Usage:
//
//	BUCKET=catloss-results go run ./cmd/transform [-run 20250904T231843Z]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	kafkaadapter "github.com/couchcryptid/cat-loss-etl/internal/adapter/kafka"
	"github.com/couchcryptid/cat-loss-etl/internal/adapter/s3store"
	"github.com/couchcryptid/cat-loss-etl/internal/config"
	"github.com/couchcryptid/cat-loss-etl/internal/observability"
	"github.com/couchcryptid/cat-loss-etl/internal/pipeline"
)

func main() {
	run := flag.String("run", "", "raw run id to process (default: latest)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := s3store.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build object store", "error", err)
		os.Exit(1)
	}

	var notifier pipeline.Notifier
	if cfg.KafkaNotifyEnabled {
		n := kafkaadapter.NewNotifier(cfg, logger)
		defer n.Close() //nolint:errcheck // best-effort close on exit
		notifier = n
		logger.Info("run notification enabled", "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("run notification disabled")
	}

	p := pipeline.New(store, store, notifier, cfg, clockwork.NewRealClock(), logger, metrics)

	if _, err := p.Run(ctx, *run); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}
