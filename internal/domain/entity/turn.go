package entity

import (
	"fmt"
	"time"

	"github.com/lib/pq"

	"rpg-narrative-api/internal/domain/combat"
)

// Turn 一次玩家行动与叙事回应，持久化后不可变
type Turn struct {
	ID                   string          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CampaignID           string          `json:"campaign_id" gorm:"type:uuid;not null;uniqueIndex:idx_turn_campaign_seq"`
	SequenceIndex        int             `json:"sequence_index" gorm:"not null;uniqueIndex:idx_turn_campaign_seq"`
	PlayerAction         string          `json:"player_action" gorm:"type:text;not null"`
	NarrativeResponse    string          `json:"narrative_response" gorm:"type:text;not null"`
	ActionKind           string          `json:"action_kind" gorm:"type:varchar(32)"`
	IsCombatTurn         bool            `json:"is_combat_turn" gorm:"not null;default:false"`
	Outcome              *combat.Outcome `json:"outcome,omitempty" gorm:"type:jsonb;serializer:json"`
	CombatState          combat.State    `json:"combat_state" gorm:"type:jsonb;serializer:json"`
	ParticipantsAffected pq.StringArray  `json:"participants_affected,omitempty" gorm:"type:text[]"`
	Seed                 int64           `json:"seed"`
	Timestamp            time.Time       `json:"timestamp" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (Turn) TableName() string {
	return "turns"
}

// MemoryText 写入向量记忆的文本
func (t *Turn) MemoryText() string {
	return fmt.Sprintf("Player action: %s\nNarrator response: %s", t.PlayerAction, t.NarrativeResponse)
}
