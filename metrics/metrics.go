// Package metrics exposes the validator core's prometheus series: one
// counter/histogram pair per round phase, mirroring the promauto-based
// package-level pattern the teacher uses for its own service metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsBucketsMillis covers the sub-second to multi-second RPC latencies
// a Store/Challenge/Retrieve wave is expected to see.
var MetricsBucketsMillis = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

var (
	PhaseWaveTotal      *prometheus.CounterVec
	PhaseWaveSuccess    *prometheus.CounterVec
	PhaseWaveFailure    *prometheus.CounterVec
	PhaseWaveNoData     *prometheus.CounterVec
	PhaseWaveDuration   *prometheus.HistogramVec
	ResponseLatency     *prometheus.HistogramVec
	RewardDistribution  *prometheus.HistogramVec
	TierRecomputeTotal  prometheus.Counter
	WeightsSubmitted    prometheus.Counter
	WeightsSubmitFailed prometheus.Counter
	RebalanceMigrations *prometheus.CounterVec
)

var once sync.Once

// Init registers every series with the default prometheus registry. Safe to
// call more than once; only the first call has effect, matching the
// teacher's initPrometheusMetrics guard.
func Init() {
	once.Do(func() {
		PhaseWaveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "validator",
			Name:      "phase_wave_total",
			Help:      "Number of peer calls dispatched, by phase",
		}, []string{"phase"})

		PhaseWaveSuccess = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "validator",
			Name:      "phase_wave_success_total",
			Help:      "Number of peer calls that verified successfully, by phase",
		}, []string{"phase"})

		PhaseWaveFailure = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "validator",
			Name:      "phase_wave_failure_total",
			Help:      "Number of peer calls that failed verification or timed out, by phase",
		}, []string{"phase"})

		PhaseWaveNoData = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "validator",
			Name:      "phase_wave_no_data_total",
			Help:      "Number of peer calls skipped because the miner had nothing to offer, by phase",
		}, []string{"phase"})

		PhaseWaveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "validator",
			Name:      "phase_wave_duration_millis",
			Help:      "Wall-clock duration of one phase's wave, by phase",
			Buckets:   MetricsBucketsMillis,
		}, []string{"phase"})

		ResponseLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "validator",
			Name:      "response_latency_millis",
			Help:      "Per-response latency observed within a wave, by phase",
			Buckets:   MetricsBucketsMillis,
		}, []string{"phase"})

		RewardDistribution = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "validator",
			Name:      "reward_distribution",
			Help:      "Per-UID reward value folded into the score vector, by phase",
			Buckets:   []float64{-2, -1, -0.5, -0.1, 0, 0.25, 0.5, 1, 1.5, 2},
		}, []string{"phase"})

		TierRecomputeTotal = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "validator",
			Name:      "tier_recompute_total",
			Help:      "Number of times the reputation engine's tiers were recomputed and committed",
		})

		WeightsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "validator",
			Name:      "weights_submitted_total",
			Help:      "Number of successful on-chain weight submissions",
		})

		WeightsSubmitFailed = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "validator",
			Name:      "weights_submit_failed_total",
			Help:      "Number of failed on-chain weight submission attempts",
		})

		RebalanceMigrations = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "validator",
			Name:      "rebalance_migrations_total",
			Help:      "Number of blob migrations attempted, by outcome",
		}, []string{"outcome"})
	})
}
