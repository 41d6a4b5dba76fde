package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	WorkflowsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parchment_chat_workflows_started_total",
			Help: "Total number of chat workflows started",
		},
	)

	WorkflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parchment_chat_workflows_completed_total",
			Help: "Total number of chat workflows completed",
		},
		[]string{"status"},
	)

	WorkflowDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parchment_chat_workflow_duration_seconds",
			Help:    "Chat workflow execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RewriteCycles = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parchment_chat_rewrite_cycles",
			Help:    "Rewrite cycles per chat workflow run",
			Buckets: []float64{0, 1, 2},
		},
	)

	DirectAnswers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parchment_chat_direct_answers_total",
			Help: "Pre-write reviews that answered directly without drafting",
		},
	)

	// Agent step metrics
	AgentSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parchment_agent_steps_total",
			Help: "Total agent step executions",
		},
		[]string{"step", "status"},
	)

	AgentStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parchment_agent_step_duration_seconds",
			Help:    "Agent step execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"step"},
	)

	// Retrieval metrics
	RetrievalQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parchment_retrieval_queries_total",
			Help: "Vector retrieval queries by outcome",
		},
		[]string{"outcome"},
	)

	WebSearchFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parchment_web_search_fallbacks_total",
			Help: "Times retrieval fell back to web search",
		},
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parchment_llm_requests_total",
			Help: "LLM API requests by outcome",
		},
		[]string{"status"},
	)

	LLMRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "parchment_llm_request_duration_seconds",
			Help:    "LLM API request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Content cache metrics
	CacheRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parchment_content_cache_refreshes_total",
			Help: "Content cache refreshes by trigger",
		},
		[]string{"cache", "trigger"},
	)

	CacheStaleReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parchment_content_cache_stale_reads_total",
			Help: "Reads served from an expired cache while a refresh was pending",
		},
		[]string{"cache"},
	)

	CachedIndexes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parchment_content_cached_indexes",
			Help: "Number of content indexes in the local cache",
		},
	)

	// Ingestion metrics
	DocumentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parchment_documents_ingested_total",
			Help: "Documents ingested by content type and status",
		},
		[]string{"type", "status"},
	)

	ChunksEmbedded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parchment_chunks_embedded_total",
			Help: "Total text chunks embedded and upserted",
		},
	)

	EmbeddingCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parchment_embedding_cache_hits_total",
			Help: "Embedding cache hits by layer",
		},
		[]string{"layer"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parchment_sessions_created_total",
			Help: "Total chat sessions created",
		},
	)

	SessionCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parchment_session_cache_hits_total",
			Help: "Session lookups by source",
		},
		[]string{"source"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "parchment_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parchment_circuit_breaker_trips_total",
			Help: "Circuit breaker open transitions",
		},
		[]string{"name"},
	)
)
