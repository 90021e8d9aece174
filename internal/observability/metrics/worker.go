package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seojinpark/campus-knowledge/internal/core/domain"
)

// PipelineMetrics tracks the extraction worker: records driven through the
// pipeline by terminal status, processing latency, queue lag, and how many
// records are in flight.
type PipelineMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        prometheus.Histogram
	repairTotal     *prometheus.CounterVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ck",
			Subsystem: "pipeline",
			Name:      "record_process_total",
			Help:      "Records driven through the pipeline by terminal status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ck",
			Subsystem: "pipeline",
			Name:      "record_process_duration_seconds",
			Help:      "Record processing duration in seconds by terminal status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ck",
			Subsystem: "pipeline",
			Name:      "record_process_in_flight",
			Help:      "Records currently being extracted.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ck",
			Subsystem: "pipeline",
			Name:      "queue_lag_seconds",
			Help:      "Delay between record ingestion and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	repairTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ck",
			Subsystem: "pipeline",
			Name:      "repair_total",
			Help:      "Repair-pass outcomes: reprocessed, reindexed, and errored records.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, repairTotal)

	return &PipelineMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		repairTotal:     repairTotal,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartRecord() {
	m.processInFlight.Inc()
}

// FinishRecord labels by the pipeline's terminal status so stuck states
// (pending, failed, inconsistent) are visible per cause, not as one bulk
// error counter.
func (m *PipelineMetrics) FinishRecord(service string, status domain.RecordStatus, duration time.Duration) {
	m.processInFlight.Dec()
	m.processTotal.WithLabelValues(service, string(status)).Inc()
	m.processDuration.WithLabelValues(service, string(status)).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}

func (m *PipelineMetrics) RecordRepairOutcomes(service string, report domain.RepairReport) {
	m.repairTotal.WithLabelValues(service, "reprocessed").Add(float64(report.Reprocessed))
	m.repairTotal.WithLabelValues(service, "reindexed").Add(float64(report.Reindexed))
	m.repairTotal.WithLabelValues(service, "error").Add(float64(report.Errors))
}
