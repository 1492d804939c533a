// Package dto HTTP 请求与响应体
package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rpg-narrative-api/internal/domain/repository"
	apperrors "rpg-narrative-api/pkg/errors"
)

// Response 成功响应的信封
type Response[T any] struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    T         `json:"data,omitempty"`
	Meta    *PageMeta `json:"meta,omitempty"`
	TraceID string    `json:"trace_id,omitempty"`
}

// PageMeta 列表接口的分页信息
type PageMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// ErrorDetail error_code 为 pkg/errors 中的错误码
type ErrorDetail struct {
	ErrorCode string `json:"error_code,omitempty"`
	Details   string `json:"details,omitempty"`
}

// ErrorResponse 失败响应的信封
type ErrorResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

func traceID(c *gin.Context) string {
	return c.GetString("trace_id")
}

func ok[T any](c *gin.Context, status int, message string, data T, meta *PageMeta) {
	c.JSON(status, Response[T]{
		Code:    status,
		Message: message,
		Data:    data,
		Meta:    meta,
		TraceID: traceID(c),
	})
}

// Success 200
func Success[T any](c *gin.Context, data T) {
	ok(c, http.StatusOK, "success", data, nil)
}

// Page 200，分页信息取自 result
func Page[T any](c *gin.Context, result *repository.PagedResult[T]) {
	ok(c, http.StatusOK, "success", result.Items, &PageMeta{
		Page:       result.Page,
		PageSize:   result.PageSize,
		Total:      result.Total,
		TotalPages: result.TotalPages,
	})
}

// Created 201
func Created[T any](c *gin.Context, data T) {
	ok(c, http.StatusCreated, "created", data, nil)
}

// Accepted 202，用于投递到后台的任务
func Accepted[T any](c *gin.Context, data T) {
	ok(c, http.StatusAccepted, "accepted", data, nil)
}

func fail(c *gin.Context, status int, message string, detail *ErrorDetail) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    status,
		Message: message,
		Error:   detail,
		TraceID: traceID(c),
	})
}

// BadRequest 请求体或参数无法解析
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, message, &ErrorDetail{ErrorCode: string(apperrors.CodeInvalidParam)})
}

// NotFound 路由存在但功能关闭时也返回 404
func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, message, &ErrorDetail{ErrorCode: string(apperrors.CodeNotFound)})
}

// FromError AppError 按其状态码输出；其他错误一律 500，不暴露内部信息
func FromError(c *gin.Context, err error) {
	if !apperrors.IsAppError(err) {
		fail(c, http.StatusInternalServerError, "internal server error",
			&ErrorDetail{ErrorCode: string(apperrors.CodeInternalError)})
		return
	}
	appErr := apperrors.AsAppError(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	fail(c, status, appErr.Message, &ErrorDetail{
		ErrorCode: string(appErr.Code),
		Details:   appErr.Detail,
	})
}
