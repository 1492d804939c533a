package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"rpg-narrative-api/internal/domain/entity"
	"rpg-narrative-api/internal/domain/repository"
	apperrors "rpg-narrative-api/pkg/errors"
)

// TurnRepository 回合仓储实现
type TurnRepository struct {
	client *Client
}

// NewTurnRepository 创建回合仓储
func NewTurnRepository(client *Client) *TurnRepository {
	return &TurnRepository{client: client}
}

// Create 写入回合；(campaign_id, sequence_index) 唯一索引兜底防止序号重复
func (r *TurnRepository) Create(ctx context.Context, turn *entity.Turn) error {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(turn).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create turn: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取回合
func (r *TurnRepository) GetByID(ctx context.Context, id string) (*entity.Turn, error) {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var turn entity.Turn
	if err := db.First(&turn, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTurnNotFound.WithDetail(id)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get turn: %w", err)
	}
	return &turn, nil
}

// GetByIDs 批量获取回合
func (r *TurnRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.Turn, error) {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}
	db := getDB(ctx, r.client.db)
	var turns []*entity.Turn
	if err := db.Where("id IN ?", ids).Find(&turns).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get turns: %w", err)
	}
	return turns, nil
}

// ListByCampaign 按 sequence_index 升序分页
func (r *TurnRepository) ListByCampaign(ctx context.Context, campaignID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Turn], error) {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.ListByCampaign")
	defer span.End()

	db := getDB(ctx, r.client.db).Model(&entity.Turn{}).Where("campaign_id = ?", campaignID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count turns: %w", err)
	}

	var turns []*entity.Turn
	if err := db.Order("sequence_index ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&turns).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	return repository.NewPagedResult(turns, total, pagination), nil
}

// ListAll 按 sequence_index 升序返回战役全部回合
func (r *TurnRepository) ListAll(ctx context.Context, campaignID string) ([]*entity.Turn, error) {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.ListAll")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var turns []*entity.Turn
	if err := db.Where("campaign_id = ?", campaignID).Order("sequence_index ASC").Find(&turns).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	return turns, nil
}

// GetRecent 最近 limit 个回合，按 sequence_index 升序
func (r *TurnRepository) GetRecent(ctx context.Context, campaignID string, limit int) ([]*entity.Turn, error) {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.GetRecent")
	defer span.End()

	if limit <= 0 {
		return nil, nil
	}
	db := getDB(ctx, r.client.db)
	var turns []*entity.Turn
	if err := db.Where("campaign_id = ?", campaignID).
		Order("sequence_index DESC").
		Limit(limit).
		Find(&turns).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get recent turns: %w", err)
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// DeleteByCampaign 删除战役全部回合
func (r *TurnRepository) DeleteByCampaign(ctx context.Context, campaignID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.TurnRepository.DeleteByCampaign")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Where("campaign_id = ?", campaignID).Delete(&entity.Turn{})
	if res.Error != nil {
		span.RecordError(res.Error)
		return 0, fmt.Errorf("failed to delete turns: %w", res.Error)
	}
	return res.RowsAffected, nil
}
