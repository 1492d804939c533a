// Package quota 提供模型用量流水与战役级 Token 配额
package quota

import (
	"context"
	"fmt"
	"time"

	"rpg-narrative-api/internal/domain/repository"
	apperrors "rpg-narrative-api/pkg/errors"
)

// TokenQuotaExceededError 表示战役 Token 日配额已耗尽
type TokenQuotaExceededError struct {
	CampaignID string
	Max        int64
	Used       int64
}

func (e TokenQuotaExceededError) Error() string {
	return fmt.Sprintf("token quota exceeded: campaign=%s used=%d max=%d", e.CampaignID, e.Used, e.Max)
}

// Unwrap 让调用方可以按 ErrTooManyRequests 统一处理
func (e TokenQuotaExceededError) Unwrap() error {
	return apperrors.ErrTooManyRequests
}

// TokenQuotaChecker 检查战役当日 Token 用量
type TokenQuotaChecker struct {
	llmRepo  repository.LLMUsageEventRepository
	maxDaily int64
	now      func() time.Time
}

// NewTokenQuotaChecker maxDaily <= 0 表示不限
func NewTokenQuotaChecker(llmRepo repository.LLMUsageEventRepository, maxDaily int64) *TokenQuotaChecker {
	return &TokenQuotaChecker{
		llmRepo:  llmRepo,
		maxDaily: maxDaily,
		now:      time.Now,
	}
}

// CheckDailyTokens 检查战役是否还有当日 Token 配额。
// 返回：used/max（便于客户端展示），以及是否超过配额的 error。
func (c *TokenQuotaChecker) CheckDailyTokens(ctx context.Context, campaignID string) (used int64, max int64, err error) {
	if c == nil || c.llmRepo == nil || c.maxDaily <= 0 {
		return 0, 0, nil
	}

	now := c.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	used, err = c.llmRepo.GetTokenUsage(ctx, campaignID, start, end)
	if err != nil {
		return 0, c.maxDaily, err
	}
	if used >= c.maxDaily {
		return used, c.maxDaily, TokenQuotaExceededError{
			CampaignID: campaignID,
			Max:        c.maxDaily,
			Used:       used,
		}
	}
	return used, c.maxDaily, nil
}
