package service

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"election-ledger/models"
)

// MetricsCollector tracks transaction throughput for the Prometheus endpoint
// and keeps a per-phase summary for the JSON metrics endpoint.
type MetricsCollector struct {
	registry     *prometheus.Registry
	transactions *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	height       prometheus.Gauge

	// Sources for the gauges evaluated at scrape time; nil reads as 0.
	phase      atomic.Pointer[func() models.Phase]
	queueDepth atomic.Pointer[func() int]

	mu           sync.RWMutex
	registration operationStats
	voting       operationStats
}

type operationStats struct {
	startTime time.Time
	endTime   time.Time
	count     int
	rejected  int
	totalTime time.Duration
}

// OperationMetrics contains timing information for a group of operations
type OperationMetrics struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Count          int       `json:"count"`
	Rejected       int       `json:"rejected"`
	ProcessingTime int64     `json:"processing_time_ms"`
}

// MetricsResponse provides the metrics for all operation groups
type MetricsResponse struct {
	Registration OperationMetrics `json:"registration"`
	Voting       OperationMetrics `json:"voting"`
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "election_transactions_total",
			Help: "Transactions processed, by method and outcome.",
		}, []string{"method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "election_transaction_duration_seconds",
			Help:    "Time to validate, execute and persist a transaction.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "election_ledger_height",
			Help: "Number of blocks in the ledger, genesis included.",
		}),
	}
	phaseGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "election_phase",
		Help: "Current phase: 0 registration, 1 voting, 2 finished.",
	}, func() float64 {
		if f := mc.phase.Load(); f != nil {
			return float64((*f)())
		}
		return 0
	})
	depthGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "election_queue_depth",
		Help: "Transactions waiting in the submission queue.",
	}, func() float64 {
		if f := mc.queueDepth.Load(); f != nil {
			return float64((*f)())
		}
		return 0
	})
	mc.registry.MustRegister(mc.transactions, mc.duration, mc.height, phaseGauge, depthGauge)
	return mc
}

// ObservePhase sets the source of the election phase gauge. A later call
// replaces the earlier source.
func (mc *MetricsCollector) ObservePhase(phase func() models.Phase) {
	mc.phase.Store(&phase)
}

// ObserveQueueDepth sets the source of the queue depth gauge.
func (mc *MetricsCollector) ObserveQueueDepth(depth func() int) {
	mc.queueDepth.Store(&depth)
}

func (mc *MetricsCollector) SetHeight(height uint64) {
	mc.height.Set(float64(height))
}

var knownMethods = map[string]struct{}{
	models.MethodAddProposal:       {},
	models.MethodAddCandidate:      {},
	models.MethodEditProposal:      {},
	models.MethodEditCandidate:     {},
	models.MethodDeleteProposal:    {},
	models.MethodDeleteCandidate:   {},
	models.MethodAddShareholder:    {},
	models.MethodEditShareholder:   {},
	models.MethodDeleteShareholder: {},
	models.MethodVote:              {},
	models.MethodDelegate:          {},
}

// RecordTransaction records one processed transaction. Unrecognised methods
// share the "unknown" label.
func (mc *MetricsCollector) RecordTransaction(method string, duration time.Duration, err error) {
	status := "committed"
	if err != nil {
		status = "rejected"
	}
	label := method
	if _, ok := knownMethods[method]; !ok {
		label = "unknown"
	}
	mc.transactions.WithLabelValues(label, status).Inc()
	mc.duration.WithLabelValues(label).Observe(duration.Seconds())

	mc.mu.Lock()
	defer mc.mu.Unlock()

	stats := &mc.registration
	if method == models.MethodVote || method == models.MethodDelegate {
		stats = &mc.voting
	}
	now := time.Now()
	if stats.count == 0 && stats.rejected == 0 {
		stats.startTime = now
	}
	stats.endTime = now
	stats.totalTime += duration
	if err != nil {
		stats.rejected++
	} else {
		stats.count++
	}
}

// GetMetrics returns current metrics for all operation groups
func (mc *MetricsCollector) GetMetrics() MetricsResponse {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return MetricsResponse{
		Registration: mc.registration.metrics(),
		Voting:       mc.voting.metrics(),
	}
}

func (s operationStats) metrics() OperationMetrics {
	return OperationMetrics{
		StartTime:      s.startTime,
		EndTime:        s.endTime,
		Count:          s.count,
		Rejected:       s.rejected,
		ProcessingTime: s.totalTime.Milliseconds(),
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
