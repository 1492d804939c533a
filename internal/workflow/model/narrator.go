// Package model 叙事链的输入输出
package model

import (
	"time"

	"rpg-narrative-api/internal/domain/combat"
)

// LLMUsageMeta 一次叙事调用的 token 计量，供用量记录与配额使用
type LLMUsageMeta struct {
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	GeneratedAt      time.Time
}

// PastTurn 上下文中的一条历史回合
type PastTurn struct {
	SequenceIndex int
	PlayerAction  string
	Narrative     string
	IsCombatTurn  bool
}

// NarrateInput 叙事生成输入
type NarrateInput struct {
	Provider   string
	CampaignID string

	Setting        string
	CharacterSheet string
	CombatSummary  string
	Action         string

	// PreviousTurns 按相关度从高到低排列
	PreviousTurns []PastTurn

	// RecentTurns 最近几个回合，按 sequence_index 升序
	RecentTurns []PastTurn

	Temperature *float32
	MaxTokens   *int
}

// NarrateOutput 叙事生成结果
type NarrateOutput struct {
	Narrative  string
	Directives combat.Directives

	// Structured 为 false 表示模型输出无法解析，Narrative 为原文
	Structured bool
	Usage      *LLMUsageMeta
}
