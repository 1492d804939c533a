package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rpg-narrative-api/pkg/metrics"
)

// unmatchedRoute 未命中路由的请求归到同一标签，避免任意 URL 撑大基数
const unmatchedRoute = "unmatched"

// Metrics 按路由模板记录请求数、耗时与响应大小
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method

		metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size > 0 {
			metrics.HTTPResponseSize.WithLabelValues(method, route).Observe(float64(size))
		}
	}
}
