package repository

import (
	"context"

	"rpg-narrative-api/internal/domain/entity"
)

// CampaignRepository 战役仓储接口
type CampaignRepository interface {
	// Create 创建战役
	Create(ctx context.Context, campaign *entity.Campaign) error

	// GetByID 根据 ID 获取战役，不存在时返回 CampaignNotFound
	GetByID(ctx context.Context, id string) (*entity.Campaign, error)

	// GetForUpdate 在事务内加行锁读取战役
	GetForUpdate(ctx context.Context, id string) (*entity.Campaign, error)

	// Update 更新战役
	Update(ctx context.Context, campaign *entity.Campaign) error

	// List 分页列出战役
	List(ctx context.Context, pagination Pagination) (*PagedResult[*entity.Campaign], error)
}

// CharacterRepository 角色仓储接口
type CharacterRepository interface {
	// Create 创建角色
	Create(ctx context.Context, character *entity.Character) error

	// ListByCampaign 按创建顺序列出战役角色
	ListByCampaign(ctx context.Context, campaignID string) ([]*entity.Character, error)
}

// CombatStateRepository 战斗状态仓储接口
type CombatStateRepository interface {
	// Get 获取战役当前战斗状态，不存在时返回零值记录
	Get(ctx context.Context, campaignID string) (*entity.CombatStateRecord, error)

	// Save 按 record.Version 做乐观并发写入（0 为首次写入），成功后版本加一；
	// 版本不符返回 ErrStateConflict
	Save(ctx context.Context, record *entity.CombatStateRecord) error
}
