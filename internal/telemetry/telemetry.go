package telemetry

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry holds the process-wide metrics for summarization, knowledge
// storage and search.
type Telemetry struct {
	registry *prometheus.Registry
	logger   *log.Logger

	summaries        *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
	embeddingsSkips  prometheus.Counter
	searches         *prometheus.CounterVec
}

// New creates a telemetry instance with its own registry.
func New() *Telemetry {
	t := &Telemetry{
		registry: prometheus.NewRegistry(),
		logger:   log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meetscribe_summaries_total",
			Help: "Summaries produced, labelled by the provider that served them.",
		}, []string{"provider"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meetscribe_provider_failures_total",
			Help: "Provider call failures, labelled by provider and failure kind.",
		}, []string{"provider", "kind"}),
		embeddingsSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meetscribe_embeddings_skipped_total",
			Help: "Knowledge artifacts stored without an embedding.",
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meetscribe_searches_total",
			Help: "Knowledge searches, labelled by query mode.",
		}, []string{"mode"}),
	}
	t.registry.MustRegister(t.summaries, t.providerFailures, t.embeddingsSkips, t.searches)
	return t
}

// Handler exposes the registry for a /metrics route.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func (t *Telemetry) RecordSummary(provider string) {
	t.summaries.WithLabelValues(provider).Inc()
}

func (t *Telemetry) RecordProviderFailure(provider, kind string) {
	t.providerFailures.WithLabelValues(provider, kind).Inc()
	t.logger.Printf("provider %s failed (%s)", provider, kind)
}

func (t *Telemetry) RecordEmbeddingSkipped() {
	t.embeddingsSkips.Inc()
}

func (t *Telemetry) RecordSearch(mode string) {
	t.searches.WithLabelValues(mode).Inc()
}
