package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	httpadapter "github.com/seojinpark/campus-knowledge/internal/adapters/http"
	"github.com/seojinpark/campus-knowledge/internal/bootstrap"
	"github.com/seojinpark/campus-knowledge/internal/config"
	"github.com/seojinpark/campus-knowledge/internal/observability/logging"
	"github.com/seojinpark/campus-knowledge/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup("campus-knowledge-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// The lexical index lives in-process, so the api warms its own copy from
	// the store and refreshes it on the repair cadence to pick up records
	// the worker processed since the last refresh.
	if err := app.MaintainUC.WarmLexicalIndex(ctx); err != nil {
		logger.Error("lexical_warmup_failed", "error", err)
		os.Exit(1)
	}
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.RepairCronSpec, func() {
		refreshCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		if err := app.MaintainUC.WarmLexicalIndex(refreshCtx); err != nil {
			logger.Warn("lexical_refresh_failed", "error", err)
		}
	}); err != nil {
		logger.Error("lexical_refresh_schedule_invalid", "spec", cfg.RepairCronSpec, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	httpMetrics := metrics.NewHTTPServerMetrics("campus-knowledge-api")
	router := httpadapter.NewRouter(app.IngestUC, app.RetrieveUC, app.Store, httpMetrics, cfg).Handler()

	mux := http.NewServeMux()
	mux.Handle("/metrics", httpMetrics.Handler())
	mux.Handle("/", router)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
