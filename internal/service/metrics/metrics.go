package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder exposes dispatch and session counters. A nil *Recorder is valid
// and records nothing, so services can run without metrics wired in.
type Recorder struct {
	results      *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	acquisitions *prometheus.CounterVec
	dispatches   prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aggregator",
			Name:      "target_results_total",
			Help:      "Per-target dispatch outcomes.",
		}, []string{"target", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aggregator",
			Name:      "target_duration_seconds",
			Help:      "Time from dispatch start to a final per-target result.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
		}, []string{"target"}),
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aggregator",
			Name:      "session_acquisitions_total",
			Help:      "Session acquisitions by outcome.",
		}, []string{"target", "outcome"}),
		dispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aggregator",
			Name:      "dispatches_total",
			Help:      "Prompt dispatches accepted.",
		}),
	}
	reg.MustRegister(r.results, r.latency, r.acquisitions, r.dispatches)
	return r
}

func (r *Recorder) ObserveDispatch() {
	if r == nil {
		return
	}
	r.dispatches.Inc()
}

func (r *Recorder) ObserveResult(target, status string, took time.Duration) {
	if r == nil {
		return
	}
	r.results.WithLabelValues(target, status).Inc()
	r.latency.WithLabelValues(target).Observe(took.Seconds())
}

func (r *Recorder) ObserveAcquisition(target string, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.acquisitions.WithLabelValues(target, outcome).Inc()
}
