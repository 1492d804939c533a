// Package errors 领域错误码与 HTTP 状态映射。
// 预定义错误是共享值，附加信息请用 WithDetail 取副本。
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 对外暴露在响应体 error.error_code 中
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeNotFound           ErrorCode = "1004"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	CodeCampaignNotFound ErrorCode = "3001"
	CodeTurnNotFound     ErrorCode = "3003"

	CodeInvalidInput        ErrorCode = "4010"
	CodeInvalidTarget       ErrorCode = "4011"
	CodeCombatInactive      ErrorCode = "4012"
	CodeOracleUnavailable   ErrorCode = "4013"
	CodeInsertInconsistency ErrorCode = "4014"
	CodeCampaignEnded       ErrorCode = "4015"
	CodeTurnInProgress      ErrorCode = "4016"
	CodeStateConflict       ErrorCode = "4017"
)

// 未列出的错误码一律 500
var statusByCode = map[ErrorCode]int{
	CodeInvalidParam:       http.StatusBadRequest,
	CodeInvalidInput:       http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeCampaignNotFound:   http.StatusNotFound,
	CodeTurnNotFound:       http.StatusNotFound,
	CodeCombatInactive:     http.StatusConflict,
	CodeCampaignEnded:      http.StatusConflict,
	CodeStateConflict:      http.StatusConflict,
	CodeInvalidTarget:      http.StatusUnprocessableEntity,
	CodeTooManyRequests:    http.StatusTooManyRequests,
	CodeTurnInProgress:     http.StatusTooManyRequests,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
	CodeOracleUnavailable:  http.StatusServiceUnavailable,
}

func statusOf(code ErrorCode) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// AppError 携带错误码的领域错误。errors.Is 按错误码比较。
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithDetail 返回附带说明的副本
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithError 返回保留底层错误的副本
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// New HTTP 状态由错误码决定
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: statusOf(code)}
}

// Wrap 同 New，并保留底层错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	e := New(code, message)
	e.Err = err
	return e
}

var (
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrCampaignNotFound = New(CodeCampaignNotFound, "campaign not found")
	ErrTurnNotFound     = New(CodeTurnNotFound, "turn not found")

	ErrInvalidInput        = New(CodeInvalidInput, "invalid input")
	ErrInvalidTarget       = New(CodeInvalidTarget, "invalid target")
	ErrCombatInactive      = New(CodeCombatInactive, "combat is not active")
	ErrOracleUnavailable   = New(CodeOracleUnavailable, "oracle unavailable")
	ErrInsertInconsistency = New(CodeInsertInconsistency, "vector entry insert failed after turn write")
	ErrCampaignEnded       = New(CodeCampaignEnded, "campaign has ended")
	ErrTurnInProgress      = New(CodeTurnInProgress, "another turn is in progress for this campaign")
	ErrStateConflict       = New(CodeStateConflict, "combat state was changed by another writer")
)

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError 非 AppError 包装为 CodeUnknown
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
