// Command makebook generates the synthetic home-line exposure book and
// publishes it as ref/book/book_exposure.parquet. The target aggregate TIV
// comes from TARGET_HOME_TIV; allocation follows each tract's EAL weight.
//
// Usage:
//
//	BUCKET=catloss-results TARGET_HOME_TIV=9e11 go run ./cmd/makebook [-seed 42]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/cat-loss-etl/internal/adapter/s3store"
	"github.com/couchcryptid/cat-loss-etl/internal/book"
	"github.com/couchcryptid/cat-loss-etl/internal/config"
	"github.com/couchcryptid/cat-loss-etl/internal/observability"
)

func main() {
	seed := flag.Int64("seed", 42, "noise seed for reproducible books")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := s3store.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build object store", "error", err)
		os.Exit(1)
	}

	units, err := store.ReadTracts(ctx)
	if err != nil {
		logger.Error("failed to read tract table", "error", err)
		os.Exit(1)
	}
	if len(units) == 0 {
		logger.Error("tract table is empty")
		os.Exit(1)
	}

	entries := book.Generate(units, cfg.TargetHomeTIV, *seed)

	var total float64
	for _, e := range entries {
		total += e.TIVHome
	}
	logger.Info("book generated", "tracts", len(entries), "total_tiv", total, "target_tiv", cfg.TargetHomeTIV)

	if err := store.WriteBook(ctx, entries); err != nil {
		logger.Error("failed to write book", "error", err)
		os.Exit(1)
	}
	logger.Info("book published")
}
