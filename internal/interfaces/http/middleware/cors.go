package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig 为空的字段取默认值
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// CORS 未配置来源或配置为 "*" 时放开所有来源，此时不允许携带凭据
func CORS(cfg CORSConfig) gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:  orDefault(cfg.AllowedMethods, "GET", "POST", "DELETE", "OPTIONS"),
		AllowHeaders:  orDefault(cfg.AllowedHeaders, "Origin", "Content-Type", RequestIDHeader),
		ExposeHeaders: []string{RequestIDHeader, TraceIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if allowAll(cfg.AllowedOrigins) {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = cfg.AllowedOrigins
		conf.AllowCredentials = true
	}
	return cors.New(conf)
}

func allowAll(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func orDefault(values []string, defaults ...string) []string {
	if len(values) > 0 {
		return values
	}
	return defaults
}
