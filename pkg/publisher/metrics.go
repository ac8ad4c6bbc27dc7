package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	documents *prometheus.CounterVec
	bytes     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		documents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sopsync",
			Name:      "published_documents_total",
			Help:      "Exported documents handled by the download phase, by outcome.",
		}, []string{"outcome"}),
		bytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sopsync",
			Name:      "published_bytes_total",
			Help:      "Bytes of binaries uploaded to object storage.",
		}),
	}
}
