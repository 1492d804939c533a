package turn

import (
	"context"

	"rpg-narrative-api/internal/infrastructure/messaging"
	wfmodel "rpg-narrative-api/internal/workflow/model"
)

// Embedder 向量化外部服务，同一文本应得到同一向量
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Narrator 叙事生成外部服务
type Narrator interface {
	Invoke(ctx context.Context, in *wfmodel.NarrateInput) (*wfmodel.NarrateOutput, error)
}

// EventPublisher 回合完成事件的发布方，可为空
type EventPublisher interface {
	PublishTurnCompleted(ctx context.Context, evt *messaging.TurnCompletedMessage) (string, error)
}

// CacheInvalidator 战役读缓存失效，可为空
type CacheInvalidator interface {
	InvalidateCampaign(ctx context.Context, campaignID string) error
}

// QuotaChecker 战役 Token 配额检查，可为空
type QuotaChecker interface {
	CheckDailyTokens(ctx context.Context, campaignID string) (used int64, max int64, err error)
}
