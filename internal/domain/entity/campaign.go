// Package entity 定义领域实体
package entity

import (
	"time"
)

// CampaignStatus 战役状态
type CampaignStatus string

const (
	CampaignStatusActive CampaignStatus = "active"
	CampaignStatusEnded  CampaignStatus = "ended"
)

// Campaign 战役实体
//
// TurnCount 同时是下一个回合的 sequence_index，只在持有战役锁的事务内递增。
type Campaign struct {
	ID        string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string         `json:"name" gorm:"type:varchar(255);not null"`
	Setting   string         `json:"setting,omitempty" gorm:"type:text"`
	Status    CampaignStatus `json:"status" gorm:"type:varchar(32);default:'active';index"`
	TurnCount int            `json:"turn_count" gorm:"not null;default:0"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Campaign) TableName() string {
	return "campaigns"
}

// NewCampaign 创建新战役
func NewCampaign(name, setting string) *Campaign {
	now := time.Now()
	return &Campaign{
		Name:      name,
		Setting:   setting,
		Status:    CampaignStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsEnded 战役是否已结束
func (c *Campaign) IsEnded() bool {
	return c.Status == CampaignStatusEnded
}

// NextSequence 返回下一个回合序号并推进计数
func (c *Campaign) NextSequence() int {
	seq := c.TurnCount
	c.TurnCount++
	c.UpdatedAt = time.Now()
	return seq
}

// End 结束战役
func (c *Campaign) End() {
	c.Status = CampaignStatusEnded
	c.UpdatedAt = time.Now()
}
