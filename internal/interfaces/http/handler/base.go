package handler

import (
	"github.com/gin-gonic/gin"

	"rpg-narrative-api/internal/interfaces/http/dto"
	apperrors "rpg-narrative-api/pkg/errors"
	"rpg-narrative-api/pkg/logger"
)

// respondError 领域错误按错误码映射状态码，未知错误记录日志后返回 500
func respondError(c *gin.Context, msg string, err error) {
	if !apperrors.IsAppError(err) {
		logger.Error(c.Request.Context(), msg, err)
	}
	dto.FromError(c, err)
}
