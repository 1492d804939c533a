package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"rpg-narrative-api/internal/interfaces/http/dto"
	apperrors "rpg-narrative-api/pkg/errors"
	"rpg-narrative-api/pkg/logger"
)

// Recovery 记录 panic 与堆栈，返回与其他 500 相同的错误体
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered", fmt.Errorf("%v", r),
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)
			dto.FromError(c, apperrors.ErrInternalError)
		}()
		c.Next()
	}
}
