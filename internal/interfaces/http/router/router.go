// Package router 组装 gin 引擎：中间件链与 /v1 战役路由
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rpg-narrative-api/internal/config"
	"rpg-narrative-api/internal/infrastructure/persistence/redis"
	"rpg-narrative-api/internal/interfaces/http/dto"
	"rpg-narrative-api/internal/interfaces/http/handler"
	"rpg-narrative-api/internal/interfaces/http/middleware"
)

// Handlers 由 wire 整体注入
type Handlers struct {
	Health   *handler.HealthHandler
	Campaign *handler.CampaignHandler
	Turn     *handler.TurnHandler
}

// Router 持有配置好的 gin 引擎
type Router struct {
	engine *gin.Engine
}

// New 构建引擎；limiter 为空时行动接口不限流
func New(cfg *config.Config, h Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	e := gin.New()
	e.Use(middleware.Recovery(), middleware.RequestID())
	e.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: cfg.Security.CORS.AllowedHeaders,
	}))

	obs := cfg.Observability
	if obs.Tracing.Enabled {
		e.Use(middleware.Trace(cfg.App.Name)...)
	}
	if obs.Metrics.Enabled {
		e.Use(middleware.Metrics())
		e.GET(obs.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	if h.Health != nil {
		e.GET("/health", h.Health.Health)
		e.GET("/ready", h.Health.Ready)
		e.GET("/live", h.Health.Live)
	}

	actionLimit := middleware.RateLimit(middleware.RateLimitConfig{
		Enabled: cfg.Security.RateLimit.Enabled,
		Limit:   cfg.Security.RateLimit.ActionsPerMinute,
		Window:  time.Minute,
		Key: func(c *gin.Context) string {
			return redis.BuildCampaignRateLimitKey(dto.BindCampaignID(c), "actions")
		},
	}, limiter)

	RegisterV1Routes(e.Group("/v1"), h, actionLimit)
	return &Router{engine: e}
}

// Engine 作为 http.Server 的 Handler
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// RegisterV1Routes 战役、回合、战斗与记忆接口。actionLimit 只挂在提交行动上。
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers, actionLimit gin.HandlerFunc) {
	v1.GET("/campaigns", h.Campaign.ListCampaigns)
	v1.POST("/campaigns", h.Campaign.CreateCampaign)

	c := v1.Group("/campaigns/:cid", middleware.CampaignID())
	c.GET("", h.Campaign.GetCampaign)
	c.POST("/end", h.Campaign.EndCampaign)

	c.POST("/actions", actionLimit, h.Turn.SubmitAction)
	c.GET("/turns", h.Campaign.ListTurns)
	c.DELETE("/turns", h.Campaign.ClearTurns)
	c.GET("/events", h.Campaign.ListEvents)

	c.GET("/combat", h.Campaign.GetCombat)
	c.POST("/cheats/health", h.Campaign.SetHealth)

	c.POST("/memory/reindex", h.Campaign.Reindex)
}
