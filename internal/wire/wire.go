//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"rpg-narrative-api/internal/application/campaign"
	"rpg-narrative-api/internal/application/quota"
	"rpg-narrative-api/internal/application/turn"
	"rpg-narrative-api/internal/config"
	"rpg-narrative-api/internal/domain/repository"
	"rpg-narrative-api/internal/infrastructure/embedding"
	"rpg-narrative-api/internal/infrastructure/llm"
	"rpg-narrative-api/internal/infrastructure/persistence/postgres"
	"rpg-narrative-api/internal/infrastructure/persistence/redis"
	"rpg-narrative-api/internal/interfaces/http/handler"
	"rpg-narrative-api/internal/interfaces/http/middleware"
	"rpg-narrative-api/internal/interfaces/http/router"
	"rpg-narrative-api/internal/workflow/chain"
	workflowport "rpg-narrative-api/internal/workflow/port"
)

// InitializeApp 初始化 API 网关（路由、回合编排与战役服务）
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		MemorySet,
		EngineSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化记忆 worker
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MemorySet,
		ProvideReindexer,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializeBootstrap 仅初始化 PostgreSQL 与向量存储（用于 bootstrap）
func InitializeBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, func(), error) {
	wire.Build(
		ProvidePostgresClient,
		ProvideVectorBackend,
		wire.Struct(new(Bootstrap), "*"),
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewCampaignRepository,
	postgres.NewCharacterRepository,
	postgres.NewTurnRepository,
	postgres.NewCombatStateRepository,
	postgres.NewLLMUsageEventRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	// 接口绑定
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.CampaignRepository), new(*postgres.CampaignRepository)),
	wire.Bind(new(repository.CharacterRepository), new(*postgres.CharacterRepository)),
	wire.Bind(new(repository.TurnRepository), new(*postgres.TurnRepository)),
	wire.Bind(new(repository.CombatStateRepository), new(*postgres.CombatStateRepository)),
	wire.Bind(new(repository.LLMUsageEventRepository), new(*postgres.LLMUsageEventRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	ProvideEventLog,
	wire.Bind(new(turn.CacheInvalidator), new(*redis.Cache)),
	wire.Bind(new(campaign.ViewCache), new(*redis.Cache)),
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
	wire.Bind(new(handler.EventReader), new(*redis.EventLog)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	ProvideTurnPublisher,
	ProvideReindexPublisher,
)

// MemorySet 向量存储与向量化
var MemorySet = wire.NewSet(
	ProvideVectorBackend,
	ProvideMemoryStore,
	ProvideEmbedder,
	wire.Bind(new(turn.Embedder), new(*embedding.TextEmbedder)),
)

// EngineSet 回合编排与战役服务
var EngineSet = wire.NewSet(
	llm.NewEinoFactory,
	wire.Bind(new(workflowport.ChatModelFactory), new(*llm.EinoFactory)),
	chain.NewNarratorChain,
	wire.Bind(new(turn.Narrator), new(*chain.NarratorChain)),
	quota.NewLLMUsageRecorder,
	ProvideQuotaChecker,
	ProvideResolver,
	ProvideReranker,
	ProvideLocker,
	ProvideOrchestratorConfig,
	wire.Struct(new(turn.Dependencies), "*"),
	turn.NewOrchestrator,
	ProvideCampaignOptions,
	campaign.NewService,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewCampaignHandler,
	handler.NewTurnHandler,
	wire.Bind(new(handler.CampaignService), new(*campaign.Service)),
	wire.Bind(new(handler.TurnProcessor), new(*turn.Orchestrator)),
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
