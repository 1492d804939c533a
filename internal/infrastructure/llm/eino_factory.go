// Package llm 旁白使用的对话模型：OpenAI 兼容协议走 eino-ext，Gemini 走 generative-ai-go
package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"rpg-narrative-api/internal/config"
)

// EinoFactory 按提供方名缓存 ChatModel。创建失败不缓存，下次调用重试。
type EinoFactory struct {
	fallback  string
	providers map[string]config.ProviderConfig

	mu     sync.Mutex
	models map[string]model.BaseChatModel
}

func NewEinoFactory(cfg *config.Config) *EinoFactory {
	return &EinoFactory{
		fallback:  cfg.LLM.DefaultProvider,
		providers: cfg.LLM.Providers,
		models:    map[string]model.BaseChatModel{},
	}
}

// Get provider 为空时取 llm.default_provider
func (f *EinoFactory) Get(ctx context.Context, provider string) (model.BaseChatModel, error) {
	if provider == "" {
		provider = f.fallback
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.models[provider]; ok {
		return m, nil
	}

	pc, ok := f.providers[provider]
	if !ok {
		return nil, fmt.Errorf("llm provider %q is not configured", provider)
	}
	m, err := newChatModel(ctx, &pc)
	if err != nil {
		return nil, fmt.Errorf("llm provider %q: %w", provider, err)
	}
	f.models[provider] = m
	return m, nil
}

func newChatModel(ctx context.Context, pc *config.ProviderConfig) (model.BaseChatModel, error) {
	switch pc.Type {
	case "", "openai":
		temp := float32(pc.Temperature)
		cfg := &openai.ChatModelConfig{
			APIKey:      pc.APIKey,
			BaseURL:     pc.BaseURL,
			Model:       pc.Model,
			Temperature: &temp,
			Timeout:     pc.Timeout,
		}
		if pc.MaxTokens > 0 {
			maxTokens := pc.MaxTokens
			cfg.MaxTokens = &maxTokens
		}
		return openai.NewChatModel(ctx, cfg)
	case "gemini":
		return NewGeminiChatModel(ctx, pc)
	default:
		return nil, fmt.Errorf("unsupported provider type %q", pc.Type)
	}
}
