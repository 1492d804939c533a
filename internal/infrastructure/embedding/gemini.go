package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"rpg-narrative-api/internal/config"
)

const defaultGeminiEmbeddingModel = "text-embedding-004"

// GeminiEmbedder 将 Gemini Embedding API 适配为 Eino Embedder
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

var _ embedding.Embedder = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder 创建 Gemini Embedder
func NewGeminiEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedding api_key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiEmbeddingModel
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

// EmbedStrings 逐条调用 EmbedContent
func (g *GeminiEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	em := g.client.EmbeddingModel(g.model)

	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		res, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, fmt.Errorf("failed to embed content: %w", err)
		}
		if res == nil || res.Embedding == nil {
			return nil, fmt.Errorf("gemini returned empty embedding")
		}
		vec := make([]float64, len(res.Embedding.Values))
		for i, v := range res.Embedding.Values {
			vec[i] = float64(v)
		}
		out = append(out, vec)
	}
	return out, nil
}

// Close 释放底层连接
func (g *GeminiEmbedder) Close() error {
	return g.client.Close()
}
