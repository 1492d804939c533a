// Package handler HTTP 处理器：战役、回合与探针
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const readyTimeout = 2 * time.Second

// HealthChecker 可探测的外部依赖
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc 把函数适配为 HealthChecker
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Dependency Required 为 false 的依赖失败时只标记 degraded，不影响就绪
type Dependency struct {
	Name     string
	Checker  HealthChecker
	Required bool
}

// HealthHandler /health、/live 只表示进程存活；/ready 并发探测全部依赖
type HealthHandler struct {
	deps    []Dependency
	version string
}

func NewHealthHandler(version string, deps ...Dependency) *HealthHandler {
	return &HealthHandler{deps: deps, version: version}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type checkResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type readinessResponse struct {
	Status string                  `json:"status"`
	Checks map[string]*checkResult `json:"checks,omitempty"`
}

// Health 存活
// @Tags System
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

// Live 与 Health 相同，供编排系统的 liveness 探针使用
// @Tags System
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	h.Health(c)
}

// Ready 任一必需依赖失败或缺失时返回 503
// @Tags System
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	results := make([]*checkResult, len(h.deps))
	var g errgroup.Group
	for i, dep := range h.deps {
		g.Go(func() error {
			results[i] = check(ctx, dep)
			return nil
		})
	}
	_ = g.Wait()

	resp := readinessResponse{Status: "ok", Checks: make(map[string]*checkResult, len(h.deps))}
	for i, dep := range h.deps {
		r := results[i]
		resp.Checks[dep.Name] = r
		if dep.Required && r.Status != "ok" {
			resp.Status = "not_ready"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func check(ctx context.Context, dep Dependency) *checkResult {
	if dep.Checker == nil {
		if dep.Required {
			return &checkResult{Status: "missing"}
		}
		return &checkResult{Status: "disabled"}
	}

	start := time.Now()
	err := dep.Checker.HealthCheck(ctx)
	r := &checkResult{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		r.Error = err.Error()
		r.Status = "degraded"
		if dep.Required {
			r.Status = "error"
		}
	}
	return r
}
