package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rpg-narrative-api/internal/domain/entity"
	"rpg-narrative-api/internal/domain/repository"
	apperrors "rpg-narrative-api/pkg/errors"
)

// CampaignRepository 战役仓储实现
type CampaignRepository struct {
	client *Client
}

// NewCampaignRepository 创建战役仓储
func NewCampaignRepository(client *Client) *CampaignRepository {
	return &CampaignRepository{client: client}
}

// Create 创建战役
func (r *CampaignRepository) Create(ctx context.Context, campaign *entity.Campaign) error {
	ctx, span := tracer.Start(ctx, "postgres.CampaignRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(campaign).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取战役
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*entity.Campaign, error) {
	ctx, span := tracer.Start(ctx, "postgres.CampaignRepository.GetByID")
	defer span.End()

	return r.get(ctx, getDB(ctx, r.client.db), id)
}

// GetForUpdate 在事务内加行锁读取战役
func (r *CampaignRepository) GetForUpdate(ctx context.Context, id string) (*entity.Campaign, error) {
	ctx, span := tracer.Start(ctx, "postgres.CampaignRepository.GetForUpdate")
	defer span.End()

	db := getDB(ctx, r.client.db).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.get(ctx, db, id)
}

func (r *CampaignRepository) get(_ context.Context, db *gorm.DB, id string) (*entity.Campaign, error) {
	var campaign entity.Campaign
	if err := db.First(&campaign, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCampaignNotFound.WithDetail(id)
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &campaign, nil
}

// Update 更新战役
func (r *CampaignRepository) Update(ctx context.Context, campaign *entity.Campaign) error {
	ctx, span := tracer.Start(ctx, "postgres.CampaignRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(campaign).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return nil
}

// List 分页列出战役
func (r *CampaignRepository) List(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.Campaign], error) {
	ctx, span := tracer.Start(ctx, "postgres.CampaignRepository.List")
	defer span.End()

	db := getDB(ctx, r.client.db).Model(&entity.Campaign{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count campaigns: %w", err)
	}

	var campaigns []*entity.Campaign
	if err := db.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&campaigns).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return repository.NewPagedResult(campaigns, total, pagination), nil
}

// CharacterRepository 角色仓储实现
type CharacterRepository struct {
	client *Client
}

// NewCharacterRepository 创建角色仓储
func NewCharacterRepository(client *Client) *CharacterRepository {
	return &CharacterRepository{client: client}
}

// Create 创建角色
func (r *CharacterRepository) Create(ctx context.Context, character *entity.Character) error {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(character).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create character: %w", err)
	}
	return nil
}

// ListByCampaign 按创建顺序列出战役角色
func (r *CharacterRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*entity.Character, error) {
	ctx, span := tracer.Start(ctx, "postgres.CharacterRepository.ListByCampaign")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var characters []*entity.Character
	if err := db.Where("campaign_id = ?", campaignID).Order("created_at ASC").Find(&characters).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	return characters, nil
}
