// Package metrics 定义服务的 Prometheus 指标，全部注册在默认 registry 上
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rpg_narrative"

var (
	latencyFast = []float64{.001, .005, .01, .05, .1, .25, .5, 1}
	latencySlow = []float64{.5, 1, 2.5, 5, 10, 30, 60}
)

func counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func histogram(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

// HTTP，path 为路由模板而不是原始 URL
var (
	HTTPRequestsTotal   = counter("http", "requests_total", "HTTP requests by route and status", "method", "path", "status")
	HTTPRequestDuration = histogram("http", "request_duration_seconds", "HTTP request latency",
		[]float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}, "method", "path")
	HTTPResponseSize = histogram("http", "response_size_bytes", "HTTP response body size",
		prometheus.ExponentialBuckets(100, 10, 6), "method", "path")
)

// 回合流水线
var (
	TurnTotal         = counter("turn", "total", "Processed turns by outcome", "status", "failed_stage")
	TurnStageDuration = histogram("turn", "stage_duration_seconds", "Time spent in each turn stage",
		[]float64{.001, .01, .05, .1, .5, 1, 5, 10, 30, 60}, "stage")
	TurnLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "turn", Name: "lock_wait_seconds",
		Help:    "Wait for the per-campaign turn lock",
		Buckets: []float64{.001, .01, .1, .5, 1, 5, 30},
	})
	ActiveCampaignTurns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "turn", Name: "in_flight",
		Help: "Turns currently holding a campaign lock",
	})
)

// 战斗
var (
	CombatActionsTotal = counter("combat", "actions_total", "Resolved combat actions", "kind", "result")
	CombatEndedTotal   = counter("combat", "ended_total", "Finished combats by reason", "reason")
)

// 回合记忆
var (
	MemoryQueryDuration = histogram("memory", "query_duration_seconds", "Vector namespace query latency", latencyFast, "backend")
	MemoryInsertTotal   = counter("memory", "insert_total", "Vector entry inserts", "backend", "status")
	MemoryInsertRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "memory", Name: "insert_retries_total",
		Help: "Vector entry insert retries",
	})
	RerankCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "memory", Name: "rerank_candidates",
		Help:    "Candidates fed into the reranker per turn",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})
	EmbeddingCacheTotal = counter("embedding", "cache_total", "Embedding cache lookups", "result")
)

// 旁白模型，type 为 prompt 或 completion
var (
	LLMTokensUsed   = counter("llm", "tokens_used_total", "Tokens consumed by model calls", "workflow", "provider", "model", "type")
	LLMCallDuration = histogram("llm", "call_duration_seconds", "Model call latency", latencySlow, "workflow", "provider", "model")
	LLMCallTotal    = counter("llm", "call_total", "Model calls by status", "workflow", "provider", "model", "status")
)

// 存储与队列
var (
	MilvusSearchDuration = histogram("milvus", "search_duration_seconds", "Milvus search latency",
		[]float64{.01, .05, .1, .25, .5, 1}, "collection")
	MilvusSearchTotal    = counter("milvus", "search_total", "Milvus searches by status", "collection", "status")
	RedisStreamProcessed = counter("redis", "stream_processed_total", "Redis stream messages handled", "stream", "status")
)
