// Package chain 组装提示词与模型调用
package chain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	llmctx "rpg-narrative-api/internal/domain/service"
	wfmodel "rpg-narrative-api/internal/workflow/model"
	"rpg-narrative-api/internal/workflow/node"
	workflowport "rpg-narrative-api/internal/workflow/port"
	workflowprompt "rpg-narrative-api/internal/workflow/prompt"
)

const workflowNarrate = "narrate"

type NarratorChain struct {
	factory  workflowport.ChatModelFactory
	registry *workflowprompt.Registry
}

func NewNarratorChain(factory workflowport.ChatModelFactory) *NarratorChain {
	return &NarratorChain{
		factory:  factory,
		registry: workflowprompt.NewRegistry(),
	}
}

// Invoke 生成一回合叙事。模型调用失败返回 error；输出无法解析时退化为原文。
func (c *NarratorChain) Invoke(ctx context.Context, in *wfmodel.NarrateInput) (*wfmodel.NarrateOutput, error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	if strings.TrimSpace(in.Action) == "" {
		return nil, fmt.Errorf("action is required")
	}

	provider := strings.TrimSpace(in.Provider)
	ctx = llmctx.WithLLMCall(ctx, llmctx.LLMCall{
		Workflow:   workflowNarrate,
		Provider:   provider,
		CampaignID: in.CampaignID,
	})

	chatModel, err := c.factory.Get(ctx, provider)
	if err != nil {
		return nil, err
	}

	msgs, err := c.formatMessages(ctx, in)
	if err != nil {
		return nil, err
	}

	outMsg, err := chatModel.Generate(ctx, msgs, buildNarratorModelOptions(in)...)
	if err != nil {
		return nil, err
	}
	if outMsg == nil || strings.TrimSpace(outMsg.Content) == "" {
		return nil, fmt.Errorf("empty llm response")
	}

	narrative, directives, structured := node.ParseNarration(outMsg.Content)
	out := &wfmodel.NarrateOutput{
		Narrative:  narrative,
		Directives: directives,
		Structured: structured,
	}
	if outMsg.ResponseMeta != nil && outMsg.ResponseMeta.Usage != nil {
		out.Usage = &wfmodel.LLMUsageMeta{
			Provider:         provider,
			PromptTokens:     outMsg.ResponseMeta.Usage.PromptTokens,
			CompletionTokens: outMsg.ResponseMeta.Usage.CompletionTokens,
			GeneratedAt:      time.Now(),
		}
	}
	return out, nil
}

func (c *NarratorChain) formatMessages(ctx context.Context, in *wfmodel.NarrateInput) ([]*schema.Message, error) {
	tpl, err := c.registry.ChatTemplate(workflowprompt.PromptNarratorV1)
	if err != nil {
		return nil, err
	}
	vars := map[string]any{
		"setting":        orNone(in.Setting),
		"character":      orNone(in.CharacterSheet),
		"combat":         orNone(in.CombatSummary),
		"previous_turns": node.BuildPreviousTurnsBlock(in.PreviousTurns),
		"recent_turns":   node.BuildRecentTurnsBlock(in.RecentTurns),
		"action":         strings.TrimSpace(in.Action),
	}
	return tpl.Format(ctx, vars)
}

func orNone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(none)"
	}
	return s
}

func buildNarratorModelOptions(in *wfmodel.NarrateInput) []model.Option {
	opts := make([]model.Option, 0, 2)
	if in.Temperature != nil {
		opts = append(opts, model.WithTemperature(*in.Temperature))
	}
	if in.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*in.MaxTokens))
	}
	return opts
}
