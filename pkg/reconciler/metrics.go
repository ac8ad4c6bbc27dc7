package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	documents  *prometheus.CounterVec
	skipped    *prometheus.CounterVec
	exportJobs prometheus.Counter
	runs       *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		documents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sopsync",
			Name:      "reconciled_documents_total",
			Help:      "Documents reconciled, by action.",
		}, []string{"action"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sopsync",
			Name:      "skipped_documents_total",
			Help:      "Candidate documents left out of a run, by reason.",
		}, []string{"reason"}),
		exportJobs: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sopsync",
			Name:      "export_jobs_submitted_total",
			Help:      "Export jobs submitted.",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sopsync",
			Name:      "reconcile_runs_total",
			Help:      "Reconcile runs, by outcome.",
		}, []string{"outcome"}),
	}
}
