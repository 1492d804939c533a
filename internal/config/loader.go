package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// placeholder 匹配 ${VAR} 与 ${VAR:default}
var placeholder = regexp.MustCompile(`\$\{(\w+)(:([^}]*))?\}`)

// Load 读取 ./configs
func Load() (*Config, error) {
	return LoadFromDir("configs")
}

// LoadFromDir 优先级从低到高：内置默认值、config.yaml、config.<APP_ENV>.yaml、环境变量。
// YAML 中的 ${VAR:default} 在解析前展开。
func LoadFromDir(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	layers := []struct {
		path     string
		optional bool
	}{
		{filepath.Join(dir, "config.yaml"), false},
		{filepath.Join(dir, "config."+env+".yaml"), true},
	}
	for _, l := range layers {
		if err := mergeFile(v, l.path, l.optional); err != nil {
			return nil, err
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mergeFile(v *viper.Viper, path string, optional bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := v.MergeConfig(strings.NewReader(expandEnv(string(raw)))); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// expandEnv 未设置且无默认值的变量保持原样，便于在配置中发现遗漏
func expandEnv(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		g := placeholder.FindStringSubmatch(m)
		if val, ok := os.LookupEnv(g[1]); ok {
			return val
		}
		if g[2] != "" {
			return g[3]
		}
		return m
	})
}

// defaults 覆盖每个可调参数，配置文件只需写与默认不同的项
var defaults = map[string]any{
	"app.name":    "rpg-narrative-api",
	"app.version": "v0.0.0",
	"app.env":     "development",

	"server.http.host":          "0.0.0.0",
	"server.http.port":          8080,
	"server.http.read_timeout":  "30s",
	"server.http.write_timeout": "90s",
	"server.http.idle_timeout":  "120s",

	"database.postgres.host":               "localhost",
	"database.postgres.port":               5432,
	"database.postgres.user":               "postgres",
	"database.postgres.database":           "rpg_narrative",
	"database.postgres.ssl_mode":           "disable",
	"database.postgres.max_open_conns":     50,
	"database.postgres.max_idle_conns":     10,
	"database.postgres.conn_max_lifetime":  "30m",
	"database.postgres.conn_max_idle_time": "5m",
	"database.postgres.log_level":          "warn",

	"cache.redis.host":           "localhost",
	"cache.redis.port":           6379,
	"cache.redis.db":             0,
	"cache.redis.pool_size":      100,
	"cache.redis.min_idle_conns": 10,
	"cache.redis.dial_timeout":   "5s",
	"cache.redis.read_timeout":   "3s",
	"cache.redis.write_timeout":  "3s",

	"vector.backend":                     "milvus",
	"vector.milvus.host":                 "localhost",
	"vector.milvus.port":                 19530,
	"vector.milvus.collection_prefix":    "rpg",
	"vector.milvus.index_type":           "HNSW",
	"vector.milvus.metric_type":          "COSINE",
	"vector.milvus.hnsw_m":               16,
	"vector.milvus.hnsw_ef_construction": 200,
	"vector.milvus.search_ef":            128,
	"vector.sqlite.path":                 "data/turn_memory.db",

	"llm.default_provider": "openai",
	"embedding.provider":   "openai",
	"embedding.model":      "text-embedding-3-small",
	"embedding.dimension":  1536,
	"embedding.cache_ttl":  "24h",

	"messaging.redis_stream.enabled":                  true,
	"messaging.redis_stream.max_len":                  100000,
	"messaging.redis_stream.block_timeout":            "5s",
	"messaging.redis_stream.claim_interval":           "30s",
	"messaging.redis_stream.retry_limit":              3,
	"messaging.redis_stream.retry_backoff.initial":    "1s",
	"messaging.redis_stream.retry_backoff.max":        "1m",
	"messaging.redis_stream.retry_backoff.multiplier": 2.0,

	"combat.attack_die":          20,
	"combat.flee_threshold":      10,
	"combat.enemy_variance":      0.30,
	"combat.default_damage_dice": "1d6",
	"combat.spell_damage_dice":   "2d6",

	"rerank.similarity_weight": 1.0,
	"rerank.recency_weight":    0.3,
	"rerank.combat_weight":     0.2,
	"rerank.recency_half_life": 5.0,

	"turn.context_window":           3,
	"turn.candidate_pool":           10,
	"turn.generation_timeout":       "30s",
	"turn.embedding_timeout":        "10s",
	"turn.oracle_max_retries":       2,
	"turn.insert_max_retries":       3,
	"turn.retry_backoff.initial":    "200ms",
	"turn.retry_backoff.max":        "2s",
	"turn.retry_backoff.multiplier": 2.0,
	"turn.lock_backend":             "local",
	"turn.lock_ttl":                 "2m",
	"turn.lock_wait":                "30s",
	"turn.recent_turns":             5,
	"turn.daily_token_quota":        0,

	"observability.logging.level":       "info",
	"observability.logging.format":      "json",
	"observability.tracing.enabled":     false,
	"observability.tracing.exporter":    "otlp",
	"observability.tracing.endpoint":    "localhost:4317",
	"observability.tracing.sample_rate": 1.0,
	"observability.metrics.enabled":     true,
	"observability.metrics.path":        "/metrics",

	"security.rate_limit.enabled":            true,
	"security.rate_limit.actions_per_minute": 30,

	"features.cheats.enabled":      false,
	"features.turn_events.enabled": true,
	"features.embed_cache.enabled": true,
}
