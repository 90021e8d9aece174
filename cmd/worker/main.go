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

	"github.com/seojinpark/campus-knowledge/internal/bootstrap"
	"github.com/seojinpark/campus-knowledge/internal/config"
	"github.com/seojinpark/campus-knowledge/internal/core/domain"
	"github.com/seojinpark/campus-knowledge/internal/core/ports"
	"github.com/seojinpark/campus-knowledge/internal/observability/logging"
	"github.com/seojinpark/campus-knowledge/internal/observability/metrics"
)

const serviceName = "campus-knowledge-worker"

func main() {
	cfg := config.Load()
	logger := logging.Setup(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	pipelineMetrics := metrics.NewPipelineMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: pipelineMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	// The lexical index is derived state; rebuild it from the store before
	// accepting work so re-indexed records land in a warm index.
	if err := app.MaintainUC.WarmLexicalIndex(ctx); err != nil {
		logger.Error("lexical_warmup_failed", "error", err)
		os.Exit(1)
	}

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.RepairCronSpec, func() {
		repairCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()

		report, err := app.MaintainUC.RepairPass(repairCtx)
		pipelineMetrics.RecordRepairOutcomes(serviceName, report)
		if err != nil {
			logger.Warn("repair_pass_failed", "error", err, "reprocessed", report.Reprocessed, "errors", report.Errors)
			return
		}
		logger.Info("repair_pass_done",
			"reprocessed", report.Reprocessed,
			"reindexed", report.Reindexed,
			"errors", report.Errors,
		)
	})
	if err != nil {
		logger.Error("repair_schedule_invalid", "spec", cfg.RepairCronSpec, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	extractTimeout := time.Duration(cfg.ExtractTimeoutSeconds) * time.Second
	handler := newIngestedHandler(app.ProcessUC, app.Store, pipelineMetrics, logger, cfg.WorkerConcurrency, extractTimeout)

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "concurrency", cfg.WorkerConcurrency)
	if err := app.Queue.SubscribeRecordIngested(ctx, handler); err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

// newIngestedHandler builds the queue callback. The subscription delivers
// messages one at a time from a single dispatch goroutine, so the callback
// only blocks while every slot is busy and hands the record to its own
// goroutine; one slow extraction never stalls the records behind it.
func newIngestedHandler(
	processor ports.RecordProcessor,
	store ports.KnowledgeStore,
	pipelineMetrics *metrics.PipelineMetrics,
	logger *slog.Logger,
	concurrency int,
	extractTimeout time.Duration,
) func(context.Context, string) error {
	if concurrency < 1 {
		concurrency = 1
	}
	slots := make(chan struct{}, concurrency)

	return func(ctx context.Context, recordID string) error {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		go func() {
			defer func() { <-slots }()

			if raw, err := store.GetRaw(ctx, recordID); err == nil {
				pipelineMetrics.ObserveQueueLag(time.Since(raw.FetchedAt))
			}

			processCtx, cancel := context.WithTimeout(ctx, extractTimeout)
			defer cancel()

			pipelineMetrics.StartRecord()
			start := time.Now()
			err := processor.ProcessByID(processCtx, recordID)
			pipelineMetrics.FinishRecord(serviceName, terminalStatus(err), time.Since(start))
			if err != nil {
				logger.Warn("record_process_failed", "record_id", recordID, "error", err)
			}
		}()
		return nil
	}
}

// terminalStatus mirrors the status the pipeline persisted for the record,
// derived from the error kind so the worker does not re-read the store.
func terminalStatus(err error) domain.RecordStatus {
	switch {
	case err == nil:
		return domain.StatusStored
	case domain.IsKind(err, domain.ErrSchemaViolation):
		return domain.StatusPending
	case domain.IsKind(err, domain.ErrInconsistentIndex):
		return domain.StatusInconsistent
	default:
		return domain.StatusFailed
	}
}
