package entity

import (
	"time"

	"rpg-narrative-api/internal/domain/combat"
)

// CombatStateRecord 战役当前战斗状态的权威副本，每个战役一行
type CombatStateRecord struct {
	CampaignID string       `json:"campaign_id" gorm:"type:uuid;primaryKey"`
	State      combat.State `json:"state" gorm:"type:jsonb;serializer:json"`
	Version    int          `json:"version" gorm:"not null;default:1"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (CombatStateRecord) TableName() string {
	return "combat_states"
}
