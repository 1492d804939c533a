package wire

import (
	"context"
	"fmt"

	"rpg-narrative-api/internal/application/campaign"
	"rpg-narrative-api/internal/application/memory"
	"rpg-narrative-api/internal/application/quota"
	"rpg-narrative-api/internal/application/rerank"
	"rpg-narrative-api/internal/application/turn"
	"rpg-narrative-api/internal/config"
	"rpg-narrative-api/internal/domain/combat"
	"rpg-narrative-api/internal/domain/dice"
	"rpg-narrative-api/internal/domain/repository"
	"rpg-narrative-api/internal/infrastructure/embedding"
	"rpg-narrative-api/internal/infrastructure/messaging"
	"rpg-narrative-api/internal/infrastructure/persistence/milvus"
	"rpg-narrative-api/internal/infrastructure/persistence/postgres"
	"rpg-narrative-api/internal/infrastructure/persistence/redis"
	"rpg-narrative-api/internal/infrastructure/persistence/sqlite"
	"rpg-narrative-api/internal/interfaces/http/handler"
	"rpg-narrative-api/internal/interfaces/http/router"
	"rpg-narrative-api/pkg/logger"
)

// App API 网关依赖
type App struct {
	Router        *router.Router
	Orchestrator  *turn.Orchestrator
	Campaigns     *campaign.Service
	UsageRecorder *quota.LLMUsageRecorder
}

// Worker 记忆 worker 依赖
type Worker struct {
	Redis     *redis.Client
	Reindexer *campaign.Reindexer
	EventLog  *redis.EventLog
	Cache     *redis.Cache
}

// Bootstrap 建表与向量集合初始化依赖
type Bootstrap struct {
	Postgres *postgres.Client
	Vector   *VectorBackend
}

// VectorBackend 选定的向量存储实现
type VectorBackend struct {
	Name      string
	Namespace memory.VectorNamespace
	Checker   handler.HealthChecker
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideTurnPublisher 回合事件开关关闭或未启用 Stream 时不发布
func ProvideTurnPublisher(cfg *config.Config, producer *messaging.Producer) turn.EventPublisher {
	if !cfg.Messaging.RedisStream.Enabled || !cfg.Features.TurnEvents.Enabled {
		return nil
	}
	return producer
}

// ProvideReindexPublisher 未启用 Stream 时重建请求返回 503
func ProvideReindexPublisher(cfg *config.Config, producer *messaging.Producer) campaign.ReindexPublisher {
	if !cfg.Messaging.RedisStream.Enabled {
		return nil
	}
	return producer
}

// ProvideEventLog 提供回合事件归档
func ProvideEventLog(client *redis.Client) *redis.EventLog {
	return redis.NewEventLog(client, 0)
}

// ProvideVectorBackend 按 vector.backend 选择 milvus / sqlite / memory
func ProvideVectorBackend(ctx context.Context, cfg *config.Config) (*VectorBackend, func(), error) {
	switch cfg.Vector.Backend {
	case "milvus":
		client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			return nil, nil, err
		}
		repo := milvus.NewRepository(client, cfg.Embedding.Dimension)
		if err := repo.EnsureCollection(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return &VectorBackend{Name: "milvus", Namespace: repo, Checker: client},
			func() { _ = client.Close() }, nil

	case "sqlite":
		store, err := sqlite.Open(cfg.Vector.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return &VectorBackend{Name: "sqlite", Namespace: store, Checker: handler.CheckFunc(store.Ping)},
			func() { _ = store.Close() }, nil

	case "", "memory":
		logger.Warn(ctx, "using in-memory vector store, turn memories are lost on restart")
		return &VectorBackend{Name: "memory", Namespace: memory.NewInMemoryNamespace()}, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported vector backend %q", cfg.Vector.Backend)
	}
}

// ProvideMemoryStore 提供回合记忆存储
func ProvideMemoryStore(vb *VectorBackend) *memory.Store {
	return memory.NewStore(vb.Namespace, vb.Name)
}

// ProvideEmbedder 提供文本向量化，按开关启用 Redis 向量缓存
func ProvideEmbedder(ctx context.Context, cfg *config.Config, cache *redis.Cache) (*embedding.TextEmbedder, error) {
	inner, err := embedding.New(ctx, &cfg.Embedding)
	if err != nil {
		return nil, err
	}
	e := embedding.NewTextEmbedder(inner, cfg.Embedding.Model)
	if cfg.Features.EmbedCache.Enabled {
		e = e.WithCache(cache, redis.EmbeddingKey, cfg.Embedding.CacheTTL)
	}
	return e, nil
}

// ProvideLocker 按 turn.lock_backend 选择回合锁
func ProvideLocker(cfg *config.Config, client *redis.Client) turn.Locker {
	if cfg.Turn.LockBackend == "redis" {
		return redis.NewCampaignLock(client, cfg.Turn.LockTTL, cfg.Turn.LockWait)
	}
	return turn.NewLocalLocker(cfg.Turn.LockWait)
}

// ProvideResolver 从配置构造战斗规则
func ProvideResolver(cfg *config.Config) (*combat.Resolver, error) {
	rules := combat.Rules{
		AttackDie:     cfg.Combat.AttackDie,
		FleeThreshold: cfg.Combat.FleeThreshold,
		EnemyVariance: cfg.Combat.EnemyVariance,
	}
	if s := cfg.Combat.DefaultDamageDice; s != "" {
		spec, err := dice.ParseSpec(s)
		if err != nil {
			return nil, fmt.Errorf("combat.default_damage_dice: %w", err)
		}
		rules.DefaultDamage = spec
	}
	if s := cfg.Combat.SpellDamageDice; s != "" {
		spec, err := dice.ParseSpec(s)
		if err != nil {
			return nil, fmt.Errorf("combat.spell_damage_dice: %w", err)
		}
		rules.SpellDamage = spec
	}
	return combat.NewResolver(rules), nil
}

// ProvideReranker 从配置构造重排权重
func ProvideReranker(cfg *config.Config) *rerank.Reranker {
	return rerank.New(rerank.Weights{
		Similarity:      cfg.Rerank.SimilarityWeight,
		Recency:         cfg.Rerank.RecencyWeight,
		Combat:          cfg.Rerank.CombatWeight,
		RecencyHalfLife: cfg.Rerank.RecencyHalfLife,
	})
}

// ProvideQuotaChecker 未配置每日配额时不检查
func ProvideQuotaChecker(cfg *config.Config, repo repository.LLMUsageEventRepository) turn.QuotaChecker {
	if cfg.Turn.DailyTokenQuota <= 0 {
		return nil
	}
	return quota.NewTokenQuotaChecker(repo, cfg.Turn.DailyTokenQuota)
}

// ProvideOrchestratorConfig 提取编排参数
func ProvideOrchestratorConfig(cfg *config.Config) turn.Config {
	return turn.ConfigFrom(cfg)
}

// ProvideCampaignOptions 提取战役服务参数
func ProvideCampaignOptions(cfg *config.Config) campaign.Options {
	return campaign.Options{
		Cheats:  cfg.Features.Cheats.Enabled,
		ViewKey: redis.CampaignViewKey,
	}
}

// ProvideReindexer 提供记忆重建
func ProvideReindexer(turns repository.TurnRepository, store *memory.Store, embedder *embedding.TextEmbedder) *campaign.Reindexer {
	return campaign.NewReindexer(turns, store, embedder, 0)
}

// ProvideHealthHandler 必需依赖为 PostgreSQL，Redis 与向量库失败时降级
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, rc *redis.Client, vb *VectorBackend) *handler.HealthHandler {
	deps := []handler.Dependency{
		{Name: "postgres", Checker: pg, Required: true},
		{Name: "redis", Checker: rc},
	}
	if vb.Checker != nil {
		deps = append(deps, handler.Dependency{Name: vb.Name, Checker: vb.Checker})
	}
	return handler.NewHealthHandler(cfg.App.Version, deps...)
}
