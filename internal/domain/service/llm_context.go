package service

import (
	"context"
	"strings"
)

const unknownTag = "unknown"

// LLMCall 标注一次模型调用的归属。回调从 context 读取它来打指标标签并写用量流水。
type LLMCall struct {
	Workflow   string
	Provider   string
	CampaignID string
}

type llmCallKey struct{}

// WithLLMCall 字段去除首尾空白；空的 Workflow 与 Provider 读取时记为 unknown
func WithLLMCall(ctx context.Context, call LLMCall) context.Context {
	call.Workflow = strings.TrimSpace(call.Workflow)
	call.Provider = strings.TrimSpace(call.Provider)
	call.CampaignID = strings.TrimSpace(call.CampaignID)
	return context.WithValue(ctx, llmCallKey{}, call)
}

// LLMCallFrom 未标注的调用返回 Workflow 与 Provider 均为 unknown 的值
func LLMCallFrom(ctx context.Context) LLMCall {
	call, _ := ctx.Value(llmCallKey{}).(LLMCall)
	if call.Workflow == "" {
		call.Workflow = unknownTag
	}
	if call.Provider == "" {
		call.Provider = unknownTag
	}
	return call
}
