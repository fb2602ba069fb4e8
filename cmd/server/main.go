package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gridlabs/gridquery/internal/config"
	"github.com/gridlabs/gridquery/internal/detect"
	"github.com/gridlabs/gridquery/internal/engine"
	"github.com/gridlabs/gridquery/internal/logging"
	"github.com/gridlabs/gridquery/internal/plan"
	"github.com/gridlabs/gridquery/internal/registry"
	"github.com/gridlabs/gridquery/internal/schema"
	"github.com/gridlabs/gridquery/internal/sheet"
	"github.com/gridlabs/gridquery/internal/store"
	"github.com/gridlabs/gridquery/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"workbook", cfg.Source.WorkbookPath,
		"store", cfg.Store.Path,
		"registry", cfg.Registry.Path,
	)

	eng, st, err := buildEngine(cfg)
	if err != nil {
		slog.Error("failed to assemble engine", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	if stats, err := eng.Refresh(ctx); err != nil {
		slog.Error("initial refresh failed", "error", err)
		os.Exit(1)
	} else {
		slog.Info("initial refresh done", "tables", stats.Tables, "rebuilt", stats.RebuiltSheets)
	}

	server := web.NewServer(eng, cfg)

	// Background refresh picks up source edits without a request trigger.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	if cfg.Source.RefreshInterval > 0 {
		go refreshLoop(jobCtx, eng, cfg.Source.RefreshInterval)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

// buildEngine wires the pipeline from configuration.
func buildEngine(cfg *config.Config) (*engine.Engine, *store.Store, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}

	pairs, err := cfg.Fuzzy.Pairs()
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	subs := make([]plan.Substitution, len(pairs))
	for i, p := range pairs {
		subs[i] = plan.Substitution{A: p[0], B: p[1]}
	}

	eng := engine.New(
		sheet.NewWorkbookConnector(cfg.Source.WorkbookPath),
		registry.Open(cfg.Registry.Path),
		schema.NewStore(),
		st,
		nil,
		engine.Config{
			Detect: detect.Config{
				MinRegionRows:  cfg.Detect.MinRegionRows,
				MinRegionCols:  cfg.Detect.MinRegionCols,
				HeaderScanRows: cfg.Detect.HeaderScanRows,
				TypeSampleSize: cfg.Detect.TypeSampleSize,
			},
			MaxLimit:              cfg.Query.MaxLimit,
			QueryTimeout:          cfg.Query.Timeout,
			TopK:                  cfg.Query.TopK,
			Fuzzy:                 plan.NewFuzzyExpander(subs, cfg.Fuzzy.MaxVariants),
			MaxConcurrentRebuilds: cfg.Query.MaxConcurrentRebuilds,
		},
	)
	return eng, st, nil
}

func refreshLoop(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := eng.Refresh(ctx); err != nil {
				slog.Error("background refresh failed", "error", err)
			}
		}
	}
}
