// Package logger 基于 slog 的结构化日志；关联字段随 context 传递，
// 在写出时由 contextHandler 统一附加。
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// ContextKey 日志关联字段在 context 中的键
type ContextKey string

const (
	TraceIDKey    ContextKey = "trace_id"
	SpanIDKey     ContextKey = "span_id"
	RequestIDKey  ContextKey = "request_id"
	CampaignIDKey ContextKey = "campaign_id"
	TurnIDKey     ContextKey = "turn_id"
	StageKey      ContextKey = "turn_stage"
)

// correlationKeys 决定字段输出顺序
var correlationKeys = [...]ContextKey{
	TraceIDKey,
	SpanIDKey,
	RequestIDKey,
	CampaignIDKey,
	TurnIDKey,
	StageKey,
}

var current atomic.Pointer[slog.Logger]

// Init 日志写到 stdout
func Init(level, format string) {
	InitWithWriter(os.Stdout, level, format)
}

// InitWithWriter 指定输出目标。MCP stdio 模式下 stdout 被协议占用，需传 stderr。
func InitWithWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level), AddSource: true}

	var base slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		base = slog.NewJSONHandler(w, opts)
	}

	l := slog.New(contextHandler{Handler: base})
	current.Store(l)
	slog.SetDefault(l)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Default 未初始化时按 info/json 懒加载
func Default() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	Init("info", "json")
	return current.Load()
}

// FromContext 返回已绑定 context 关联字段的 Logger，适合需要多次 With 的调用方
func FromContext(ctx context.Context) *slog.Logger {
	l := Default()
	if ctx == nil {
		return l
	}
	if attrs := correlation(ctx); len(attrs) > 0 {
		return slog.New(l.Handler().(contextHandler).Handler.WithAttrs(attrs))
	}
	return l
}

// WithContext 向 context 写入一个关联字段
func WithContext(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

func Debug(ctx context.Context, msg string, args ...any) {
	Default().DebugContext(orBackground(ctx), msg, args...)
}

func Info(ctx context.Context, msg string, args ...any) {
	Default().InfoContext(orBackground(ctx), msg, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	Default().WarnContext(orBackground(ctx), msg, args...)
}

// Error err 非空时以 error 字段附加
func Error(ctx context.Context, msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	Default().ErrorContext(orBackground(ctx), msg, args...)
}

// Fatal 记录后以状态码 1 退出
func Fatal(ctx context.Context, msg string, err error, args ...any) {
	Error(ctx, msg, err, args...)
	os.Exit(1)
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func correlation(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, key := range correlationKeys {
		if v := ctx.Value(key); v != nil {
			attrs = append(attrs, slog.Any(string(key), v))
		}
	}
	return attrs
}

// contextHandler 在每条记录上附加 context 中的关联字段
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		r.AddAttrs(correlation(ctx)...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}
