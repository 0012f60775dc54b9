// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autopdf"

// Outcome label values shared by the counters below.
const (
	OutcomeOK         = "ok"
	OutcomeRejected   = "rejected"
	OutcomeError      = "error"
	OutcomeUpstream   = "upstream_error"
	OutcomeSuperseded = "superseded"
)

var (
	// DocumentsLoaded counts PDF uploads by outcome.
	DocumentsLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_loaded_total",
		Help:      "PDF uploads by outcome.",
	}, []string{"outcome"})

	// DocumentPages observes the page count of loaded documents.
	DocumentPages = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "document_pages",
		Help:      "Page count of loaded documents.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	// DocumentsEvicted counts documents dropped after sitting idle.
	DocumentsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_evicted_total",
		Help:      "Idle documents dropped by the reaper.",
	})

	// NarrationRequests counts narration requests by outcome.
	NarrationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "narration_requests_total",
		Help:      "Narration requests by outcome.",
	}, []string{"outcome"})

	// NarrationDuration observes time spent streaming narration audio.
	NarrationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "narration_duration_seconds",
		Help:      "Time from narration request to end of audio stream.",
		Buckets:   prometheus.DefBuckets,
	})

	// AgentFrames counts agent socket frames by direction and type.
	AgentFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_frames_total",
		Help:      "Agent socket frames by direction and type.",
	}, []string{"direction", "type"})

	// AgentSessions is the number of open upstream agent sockets.
	AgentSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "agent_sessions_active",
		Help:      "Open upstream agent sockets.",
	})

	// AgentsCreated counts create-agent calls by outcome.
	AgentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agents_created_total",
		Help:      "Agent creations by outcome.",
	}, []string{"outcome"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
