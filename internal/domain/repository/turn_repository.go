package repository

import (
	"context"

	"rpg-narrative-api/internal/domain/entity"
)

// TurnRepository 回合仓储接口，只追加
type TurnRepository interface {
	// Create 写入回合
	Create(ctx context.Context, turn *entity.Turn) error

	// GetByID 根据 ID 获取回合
	GetByID(ctx context.Context, id string) (*entity.Turn, error)

	// GetByIDs 批量获取回合，返回顺序不保证
	GetByIDs(ctx context.Context, ids []string) ([]*entity.Turn, error)

	// ListByCampaign 按 sequence_index 升序分页
	ListByCampaign(ctx context.Context, campaignID string, pagination Pagination) (*PagedResult[*entity.Turn], error)

	// ListAll 按 sequence_index 升序返回战役全部回合
	ListAll(ctx context.Context, campaignID string) ([]*entity.Turn, error)

	// GetRecent 最近 limit 个回合，按 sequence_index 升序
	GetRecent(ctx context.Context, campaignID string, limit int) ([]*entity.Turn, error)

	// DeleteByCampaign 删除战役全部回合，返回删除数量
	DeleteByCampaign(ctx context.Context, campaignID string) (int64, error)
}
