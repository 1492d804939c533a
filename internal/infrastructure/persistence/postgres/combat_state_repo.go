package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rpg-narrative-api/internal/domain/entity"
	apperrors "rpg-narrative-api/pkg/errors"
)

// CombatStateRepository 战斗状态仓储实现
type CombatStateRepository struct {
	client *Client
}

// NewCombatStateRepository 创建战斗状态仓储
func NewCombatStateRepository(client *Client) *CombatStateRepository {
	return &CombatStateRepository{client: client}
}

// Get 获取战役当前战斗状态，不存在时返回零值记录
func (r *CombatStateRepository) Get(ctx context.Context, campaignID string) (*entity.CombatStateRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.CombatStateRepository.Get")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var record entity.CombatStateRecord
	if err := db.First(&record, "campaign_id = ?", campaignID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &entity.CombatStateRecord{CampaignID: campaignID}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get combat state: %w", err)
	}
	return &record, nil
}

// Save 以 record.Version 为期望版本写入，成功后 record.Version 加一。
// 版本 0 表示首次写入；行已被他人写过或版本不符时返回 ErrStateConflict。
func (r *CombatStateRepository) Save(ctx context.Context, record *entity.CombatStateRecord) error {
	ctx, span := tracer.Start(ctx, "postgres.CombatStateRepository.Save",
		trace.WithAttributes(
			attribute.String("campaign_id", record.CampaignID),
			attribute.Int("expected_version", record.Version),
		))
	defer span.End()

	db := getDB(ctx, r.client.db)
	expected := record.Version

	var res *gorm.DB
	if expected == 0 {
		row := *record
		row.Version = 1
		res = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	} else {
		res = db.Model(&entity.CombatStateRecord{}).
			Where("campaign_id = ? AND version = ?", record.CampaignID, expected).
			Select("state", "version", "updated_at").
			Updates(&entity.CombatStateRecord{
				State:     record.State,
				Version:   expected + 1,
				UpdatedAt: time.Now(),
			})
	}
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to save combat state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrStateConflict.WithDetail(fmt.Sprintf("campaign %s expected version %d", record.CampaignID, expected))
	}
	record.Version = expected + 1
	return nil
}
