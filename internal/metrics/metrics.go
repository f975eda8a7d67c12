package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registry metrics
	RegisteredDexes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aggregator_registered_dexes",
		Help: "Number of DEX adapters in the registry",
	})

	// Quote metrics
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_quote_requests_total",
			Help: "Total number of per-dex quote attempts",
		},
		[]string{"dex", "status"},
	)

	QuoteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_quote_duration_seconds",
			Help:    "Per-dex quote duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"dex"},
	)

	QuotesReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aggregator_quotes_returned",
		Help:    "Number of ranked quotes returned per request",
		Buckets: []float64{0, 1, 2, 3, 5, 10},
	})

	// Split metrics
	SplitSearchIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aggregator_split_search_iterations",
		Help:    "Number of ternary search iterations per split search",
		Buckets: []float64{1, 2, 3, 5, 7, 10},
	})

	SplitSearchProbes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aggregator_split_search_probes",
		Help:    "Number of distributions quoted per split search",
		Buckets: []float64{2, 4, 8, 12, 16, 24},
	})

	SplitSearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aggregator_split_search_duration_seconds",
		Help:    "Split search duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	SplitQuotes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_split_quotes_total",
			Help: "Split quote outcomes",
		},
		[]string{"outcome"},
	)

	PriceImpact = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_price_impact_bps",
			Help:    "Price impact in basis points",
			Buckets: []float64{0, 10, 50, 100, 300, 500, 1000, 5000, 10000},
		},
		[]string{"severity"},
	)

	// Swap metrics
	SwapRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_swap_requests_total",
			Help: "Total number of swap executions",
		},
		[]string{"dex", "standard", "status"},
	)

	SwapDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_swap_duration_seconds",
			Help:    "Swap execution duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"dex"},
	)

	// Recovery metrics
	PendingTransfers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aggregator_pending_transfers",
		Help: "Transfers whose dependent swap call is not yet acknowledged",
	})

	ResumeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_resume_attempts_total",
			Help: "Pending transfer resume attempts",
		},
		[]string{"dex", "status"},
	)

	OutstandingClaims = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aggregator_outstanding_claims",
			Help: "Swap proceeds waiting for a successful claim",
		},
		[]string{"dex"},
	)

	// Cache metrics
	TokenCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aggregator_token_cache_size",
		Help: "Current number of entries in the token metadata cache",
	})

	PoolCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_pool_cache_hits_total",
			Help: "Pool id cache hits",
		},
		[]string{"dex"},
	)

	PoolCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_pool_cache_misses_total",
			Help: "Pool id cache misses",
		},
		[]string{"dex"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aggregator_http_in_flight",
		Help: "HTTP requests being served, including open swap streams",
	})

	HTTPRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aggregator_http_rate_limited_total",
		Help: "Requests rejected by the per-IP rate limiter",
	})
)
