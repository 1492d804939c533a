// Package config 读取 configs/ 下的 YAML 并叠加环境变量。
// 键名与 YAML 一致，环境变量以下划线代替点，例如 TURN_LOCK_BACKEND。
package config

import (
	"fmt"
	"time"

	"rpg-narrative-api/pkg/tracer"
)

type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Vector        VectorConfig        `mapstructure:"vector"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Messaging     MessagingConfig     `mapstructure:"messaging"`
	Combat        CombatConfig        `mapstructure:"combat"`
	Rerank        RerankConfig        `mapstructure:"rerank"`
	Turn          TurnConfig          `mapstructure:"turn"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Security      SecurityConfig      `mapstructure:"security"`
	Features      FeaturesConfig      `mapstructure:"features"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Env     string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTP HTTPServerConfig `mapstructure:"http"`
}

// HTTPServerConfig WriteTimeout 需覆盖一次完整的回合生成
type HTTPServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// ---- 存储 ----

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig LogLevel 取 silent、error、warn 或 info
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"`
}

// CacheConfig Redis 同时承担缓存、分布式锁、限流、事件归档与消息流
type CacheConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// VectorConfig Backend 取 milvus、sqlite 或 memory
type VectorConfig struct {
	Backend string       `mapstructure:"backend"`
	Milvus  MilvusConfig `mapstructure:"milvus"`
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
}

type MilvusConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	CollectionPrefix   string `mapstructure:"collection_prefix"`
	IndexType          string `mapstructure:"index_type"`
	MetricType         string `mapstructure:"metric_type"`
	HNSWM              int    `mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `mapstructure:"hnsw_ef_construction"`
	SearchEf           int    `mapstructure:"search_ef"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ---- 模型 ----

type LLMConfig struct {
	DefaultProvider string                    `mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig Type 取 openai（含所有 OpenAI 兼容端点）或 gemini
type ProviderConfig struct {
	Type        string        `mapstructure:"type"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig Provider 取 openai、gemini 或 hash（离线测试用）
type EmbeddingConfig struct {
	Provider  string        `mapstructure:"provider"`
	Model     string        `mapstructure:"model"`
	Dimension int           `mapstructure:"dimension"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// ---- 消息 ----

type MessagingConfig struct {
	RedisStream RedisStreamConfig `mapstructure:"redis_stream"`
}

type RedisStreamConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxLen        int           `mapstructure:"max_len"`
	BlockTimeout  time.Duration `mapstructure:"block_timeout"`
	ClaimInterval time.Duration `mapstructure:"claim_interval"`
	RetryLimit    int           `mapstructure:"retry_limit"`
	RetryBackoff  BackoffConfig `mapstructure:"retry_backoff"`
}

type BackoffConfig struct {
	Initial    time.Duration `mapstructure:"initial"`
	Max        time.Duration `mapstructure:"max"`
	Multiplier float64       `mapstructure:"multiplier"`
}

// ---- 规则与编排 ----

// CombatConfig 骰子表达式形如 1d6、2d6+1
type CombatConfig struct {
	AttackDie         int     `mapstructure:"attack_die"`
	FleeThreshold     int     `mapstructure:"flee_threshold"`
	EnemyVariance     float64 `mapstructure:"enemy_variance"`
	DefaultDamageDice string  `mapstructure:"default_damage_dice"`
	SpellDamageDice   string  `mapstructure:"spell_damage_dice"`
}

// RerankConfig RecencyHalfLife 以回合数计
type RerankConfig struct {
	SimilarityWeight float64 `mapstructure:"similarity_weight"`
	RecencyWeight    float64 `mapstructure:"recency_weight"`
	CombatWeight     float64 `mapstructure:"combat_weight"`
	RecencyHalfLife  float64 `mapstructure:"recency_half_life"`
}

// TurnConfig LockBackend 取 local 或 redis；DailyTokenQuota 为 0 时不限
type TurnConfig struct {
	ContextWindow     int           `mapstructure:"context_window"`
	CandidatePool     int           `mapstructure:"candidate_pool"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
	EmbeddingTimeout  time.Duration `mapstructure:"embedding_timeout"`
	OracleMaxRetries  int           `mapstructure:"oracle_max_retries"`
	InsertMaxRetries  int           `mapstructure:"insert_max_retries"`
	RetryBackoff      BackoffConfig `mapstructure:"retry_backoff"`
	LockBackend       string        `mapstructure:"lock_backend"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	LockWait          time.Duration `mapstructure:"lock_wait"`
	RecentTurns       int           `mapstructure:"recent_turns"`
	DailyTokenQuota   int64         `mapstructure:"daily_token_quota"`
}

// ---- 运维 ----

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Exporter   string  `mapstructure:"exporter"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

// RateLimitConfig 按战役限制提交行动的频率
type RateLimitConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	ActionsPerMinute int  `mapstructure:"actions_per_minute"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type FeaturesConfig struct {
	Cheats     FeatureToggle `mapstructure:"cheats"`
	TurnEvents FeatureToggle `mapstructure:"turn_events"`
	EmbedCache FeatureToggle `mapstructure:"embed_cache"`
}

type FeatureToggle struct {
	Enabled bool `mapstructure:"enabled"`
}

// Tracing 为指定进程生成追踪配置
func (c *Config) Tracing(service string) tracer.Config {
	t := c.Observability.Tracing
	return tracer.Config{
		Enabled:     t.Enabled,
		ServiceName: service,
		Version:     c.App.Version,
		Environment: c.App.Env,
		Exporter:    t.Exporter,
		Endpoint:    t.Endpoint,
		SampleRate:  t.SampleRate,
	}
}

const minLockTTL = 3 * time.Second

// Validate 只拦截会让回合流水线行为出错的组合
func (c *Config) Validate() error {
	switch c.Vector.Backend {
	case "milvus", "sqlite", "memory":
	default:
		return fmt.Errorf("invalid vector.backend %q: want milvus, sqlite or memory", c.Vector.Backend)
	}
	switch c.Turn.LockBackend {
	case "local", "redis":
	default:
		return fmt.Errorf("invalid turn.lock_backend %q: want local or redis", c.Turn.LockBackend)
	}
	// 分布式锁每 ttl/3 续期，间隔过短会让续期与 Redis 往返时间相当
	if c.Turn.LockBackend == "redis" && c.Turn.LockTTL < minLockTTL {
		return fmt.Errorf("turn.lock_ttl (%s) must be at least %s with the redis lock", c.Turn.LockTTL, minLockTTL)
	}
	r := c.Rerank
	if r.SimilarityWeight < 0 || r.RecencyWeight < 0 || r.CombatWeight < 0 {
		return fmt.Errorf("rerank weights must be non-negative")
	}
	if c.Turn.ContextWindow <= 0 {
		return fmt.Errorf("turn.context_window must be positive")
	}
	if c.Turn.CandidatePool < c.Turn.ContextWindow {
		return fmt.Errorf("turn.candidate_pool (%d) must be >= turn.context_window (%d)",
			c.Turn.CandidatePool, c.Turn.ContextWindow)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive")
	}
	return nil
}
