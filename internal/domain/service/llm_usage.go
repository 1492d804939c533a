// Package service 模型调用的标注与用量记录契约，供工作流层与可观测性层共用
package service

import "context"

// LLMUsageInput 一次模型调用的用量，由 eino 回调填写
type LLMUsageInput struct {
	CampaignID string

	Workflow string
	Provider string
	Model    string

	PromptTokens     int
	CompletionTokens int
	DurationMs       int
}

// LLMUsageRecorder 写入用量流水。调用方只记录失败，不中断回合。
type LLMUsageRecorder interface {
	Record(ctx context.Context, in LLMUsageInput) error
}
