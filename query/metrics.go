package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "emprius_social"

var (
	cacheHitCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "query_cache_hit_count",
		Help:      "The total number of reads served from the query cache.",
	}, []string{"op"})

	cacheMissCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "query_cache_miss_count",
		Help:      "The total number of reads that went to the backend.",
	}, []string{"op"})

	deduplicatedFetchCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "query_deduplicated_fetch_count",
		Help:      "The total number of reads that shared an in-flight backend request.",
	})

	invalidatedEntryCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "query_invalidated_entry_count",
		Help:      "The total number of cache entries marked stale, by mutation.",
	}, []string{"mutation"})
)
