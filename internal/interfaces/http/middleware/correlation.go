// Package middleware gin 中间件：关联 ID、追踪、指标、限流与 panic 恢复
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"rpg-narrative-api/pkg/logger"
)

const (
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"
)

// RequestID 沿用客户端传入的 X-Request-ID，缺省时生成 UUID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		withLogField(c, logger.RequestIDKey, id)
		c.Next()
	}
}

// Trace otelgin 建 span 后把 trace_id 与 span_id 写入日志上下文和响应头
func Trace(serviceName string) []gin.HandlerFunc {
	return []gin.HandlerFunc{otelgin.Middleware(serviceName), traceFields}
}

func traceFields(c *gin.Context) {
	sc := trace.SpanFromContext(c.Request.Context()).SpanContext()
	if sc.IsValid() {
		traceID := sc.TraceID().String()
		c.Set("trace_id", traceID)
		c.Header(TraceIDHeader, traceID)
		withLogField(c, logger.TraceIDKey, traceID)
		withLogField(c, logger.SpanIDKey, sc.SpanID().String())
	}
	c.Next()
}

// CampaignID 路由带 :cid 时把战役 ID 放进日志上下文，下游所有日志都带 campaign_id
func CampaignID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if cid := c.Param("cid"); cid != "" {
			withLogField(c, logger.CampaignIDKey, cid)
		}
		c.Next()
	}
}

func withLogField(c *gin.Context, key logger.ContextKey, value string) {
	c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), key, value))
}
