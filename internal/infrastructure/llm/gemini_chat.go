package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"rpg-narrative-api/internal/config"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiChatModel 把 Gemini 适配为 Eino BaseChatModel，复用同一套回调与指标
type GeminiChatModel struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float32
}

var _ model.BaseChatModel = (*GeminiChatModel)(nil)

// NewGeminiChatModel 创建 Gemini 对话模型
func NewGeminiChatModel(ctx context.Context, cfg *config.ProviderConfig) (*GeminiChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api_key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	name := cfg.Model
	if name == "" {
		name = defaultGeminiModel
	}
	return &GeminiChatModel{
		client:      client,
		model:       name,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
	}, nil
}

// GetType 组件类型
func (g *GeminiChatModel) GetType() string {
	return "Gemini"
}

// IsCallbacksEnabled 由组件自行触发回调
func (g *GeminiChatModel) IsCallbacksEnabled() bool {
	return true
}

// Generate 实现 model.BaseChatModel
func (g *GeminiChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (out *schema.Message, err error) {
	ctx = callbacks.EnsureRunInfo(ctx, g.GetType(), components.ComponentOfChatModel)

	options := model.GetCommonOptions(&model.Options{
		Model:       &g.model,
		MaxTokens:   &g.maxTokens,
		Temperature: &g.temperature,
	}, opts...)
	cfg := &model.Config{
		Model:       derefString(options.Model),
		MaxTokens:   derefInt(options.MaxTokens),
		Temperature: derefFloat32(options.Temperature),
	}

	ctx = callbacks.OnStart(ctx, &model.CallbackInput{Messages: input, Config: cfg})
	defer func() {
		if err != nil {
			callbacks.OnError(ctx, err)
		}
	}()

	system, history, last, err := toGeminiContents(input)
	if err != nil {
		return nil, err
	}

	gm := g.client.GenerativeModel(cfg.Model)
	gm.SetTemperature(cfg.Temperature)
	if cfg.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(cfg.MaxTokens))
	}
	gm.SystemInstruction = system

	cs := gm.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("gemini returned empty content")
	}

	out = &schema.Message{Role: schema.Assistant, Content: text}
	var usage *model.TokenUsage
	if resp.UsageMetadata != nil {
		usage = &model.TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
		out.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
		}}
	}

	callbacks.OnEnd(ctx, &model.CallbackOutput{Message: out, Config: cfg, TokenUsage: usage})
	return out, nil
}

// Stream 非流式生成后包装为单元素流
func (g *GeminiChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := g.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Close 释放底层连接
func (g *GeminiChatModel) Close() error {
	return g.client.Close()
}

// toGeminiContents 拆出 system 指令、历史消息与最后一条用户消息
func toGeminiContents(input []*schema.Message) (*genai.Content, []*genai.Content, *genai.Content, error) {
	var (
		systemParts []genai.Part
		contents    []*genai.Content
	)
	for _, m := range input {
		if m == nil {
			continue
		}
		switch m.Role {
		case schema.System:
			systemParts = append(systemParts, genai.Text(m.Content))
		case schema.Assistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(contents) == 0 {
		return nil, nil, nil, fmt.Errorf("no user message to send")
	}

	var system *genai.Content
	if len(systemParts) > 0 {
		system = &genai.Content{Parts: systemParts}
	}
	last := contents[len(contents)-1]
	return system, contents[:len(contents)-1], last, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				sb.WriteString(string(txt))
			}
		}
		// 只取第一个候选
		break
	}
	return strings.TrimSpace(sb.String())
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefFloat32(p *float32) float32 {
	if p == nil {
		return 0
	}
	return *p
}
