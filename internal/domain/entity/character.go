package entity

import (
	"time"

	"rpg-narrative-api/internal/domain/combat"
)

// Character 玩家角色
type Character struct {
	ID          string            `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CampaignID  string            `json:"campaign_id" gorm:"type:uuid;index;not null"`
	Name        string            `json:"name" gorm:"type:varchar(128);not null"`
	Class       string            `json:"class,omitempty" gorm:"type:varchar(64)"`
	MaxHP       int               `json:"max_hp" gorm:"not null"`
	Defense     int               `json:"defense" gorm:"not null;default:10"`
	AttackBonus int               `json:"attack_bonus" gorm:"not null;default:0"`
	Attributes  combat.Attributes `json:"attributes" gorm:"type:jsonb;serializer:json"`
	Backstory   string            `json:"backstory,omitempty" gorm:"type:text"`
	CreatedAt   time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Character) TableName() string {
	return "characters"
}

// Participant 转换为满血的战斗参与者
func (c *Character) Participant() combat.Participant {
	defense := c.Defense
	if defense <= 0 {
		defense = 10
	}
	return combat.Participant{
		Name:        c.Name,
		Side:        combat.SidePlayer,
		CurrentHP:   c.MaxHP,
		MaxHP:       c.MaxHP,
		Defense:     defense,
		AttackBonus: c.AttackBonus,
		Attributes:  c.Attributes,
	}
}
