package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SearchSourceOutcomes counts per-source search task results.
// The "outcome" label is one of ok, timeout, unreachable, status, malformed, panic.
var SearchSourceOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamhub_search_source_outcomes_total",
	Help: "Per-source search task outcomes",
}, []string{"source", "outcome"})

// SearchDuration observes the wall time of a whole aggregated search, by mode (batch or stream).
var SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "streamhub_search_duration_seconds",
	Help:    "Aggregated search duration",
	Buckets: prometheus.DefBuckets,
}, []string{"mode"})

// SearchCacheHits counts search responses served from the response cache.
var SearchCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "streamhub_search_cache_hits_total",
	Help: "Search responses served from cache",
})

// ProxyRequests counts proxy requests by kind (manifest, segment, key) and final state.
var ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamhub_proxy_requests_total",
	Help: "Proxy requests by kind and final state",
}, []string{"kind", "state"})

// BytesTransferred tracks bytes relayed to clients per proxy kind.
var BytesTransferred = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamhub_proxy_bytes_transferred",
	Help: "Total bytes relayed to clients",
}, []string{"kind"})

// ActiveStreams is the number of proxy responses currently being relayed.
var ActiveStreams = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "streamhub_proxy_active_streams",
	Help: "Number of proxy responses in flight",
}, []string{"kind"})

// ChannelRefreshes counts live-source refresh attempts by result (ok or error).
var ChannelRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamhub_channel_refreshes_total",
	Help: "Live source channel list refreshes",
}, []string{"source", "result"})
