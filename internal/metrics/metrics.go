// Package metrics provides Prometheus metrics for hashdrive.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus metrics for the sync layer.
type Metrics struct {
	// Retrieval
	FetchAttempts  *prometheus.CounterVec // hashdrive_fetch_attempts_total{gateway,status}
	FetchFailovers prometheus.Counter     // hashdrive_fetch_failovers_total
	FetchBytes     prometheus.Counter     // hashdrive_fetch_bytes_total

	// Gateway health
	ProbeResults *prometheus.CounterVec // hashdrive_gateway_probes_total{status}

	// Registry
	Commits      prometheus.Counter // hashdrive_registry_commits_total
	CommitErrors prometheus.Counter // hashdrive_registry_commit_errors_total

	// Cache
	CacheHits      prometheus.Counter // hashdrive_cache_hits_total
	CacheMisses    prometheus.Counter // hashdrive_cache_misses_total
	CacheEvictions prometheus.Counter // hashdrive_cache_evictions_total

	// Pinning
	PinOps *prometheus.CounterVec // hashdrive_pin_operations_total{operation,status}
}

// Init initializes the metrics set. Metrics are registered once; subsequent
// calls return the same instance.
func Init(registry prometheus.Registerer) *Metrics {
	once.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		instance = &Metrics{
			FetchAttempts: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "hashdrive_fetch_attempts_total",
				Help: "Gateway fetch attempts by gateway and status",
			}, []string{"gateway", "status"}),
			FetchFailovers: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "hashdrive_fetch_failovers_total",
				Help: "Times retrieval advanced past an exhausted gateway",
			}),
			FetchBytes: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "hashdrive_fetch_bytes_total",
				Help: "Total bytes fetched from the storage network",
			}),
			ProbeResults: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "hashdrive_gateway_probes_total",
				Help: "Gateway health probe outcomes",
			}, []string{"status"}),
			Commits: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "hashdrive_registry_commits_total",
				Help: "Registry snapshot commits",
			}),
			CommitErrors: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "hashdrive_registry_commit_errors_total",
				Help: "Registry snapshot commits that failed",
			}),
			CacheHits: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "hashdrive_cache_hits_total",
				Help: "Local cache hits",
			}),
			CacheMisses: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "hashdrive_cache_misses_total",
				Help: "Local cache misses",
			}),
			CacheEvictions: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "hashdrive_cache_evictions_total",
				Help: "Local cache evictions",
			}),
			PinOps: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "hashdrive_pin_operations_total",
				Help: "Pin provider operations by operation and status",
			}, []string{"operation", "status"}),
		}
	})
	return instance
}
