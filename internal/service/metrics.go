package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/probelab/capscan/internal/model"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capscan_runs_total",
			Help: "Total number of scan runs by terminal status.",
		},
		[]string{"status"},
	)

	runOverallScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "capscan_run_overall_score",
			Help: "Overall score of the most recently finished run.",
		},
	)

	probeResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capscan_probe_results_total",
			Help: "Total number of probe results by probe and status.",
		},
		[]string{"probe", "status"},
	)

	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "capscan_probe_duration_seconds",
			Help:    "Probe duration from admission to terminal state in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"probe"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(runOverallScore)
	prometheus.MustRegister(probeResultsTotal)
	prometheus.MustRegister(probeDuration)
}

// observeRun records the terminal state of a run.
func observeRun(status string, score int) {
	runsTotal.WithLabelValues(status).Inc()
	runOverallScore.Set(float64(score))
}

// observeProbeEvents is a bus handler recording per-probe metrics.
func observeProbeEvents(e model.Event) {
	switch e.Type {
	case model.EventProbeSuccess, model.EventProbeError, model.EventProbeSkipped:
		if e.Result == nil {
			return
		}
		probeResultsTotal.WithLabelValues(e.Result.ProbeID, e.Result.Status).Inc()
		probeDuration.WithLabelValues(e.Result.ProbeID).Observe(float64(e.Result.DurationMS) / 1000)
	}
}
