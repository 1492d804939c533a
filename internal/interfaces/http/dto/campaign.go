package dto

import (
	"encoding/json"

	"rpg-narrative-api/internal/application/campaign"
	"rpg-narrative-api/internal/application/turn"
	"rpg-narrative-api/internal/domain/combat"
	"rpg-narrative-api/internal/domain/entity"
)

// CreateCampaignRequest 创建战役请求
type CreateCampaignRequest struct {
	Name      string           `json:"name" binding:"required,max=255"`
	Setting   string           `json:"setting" binding:"max=4000"`
	Character CharacterRequest `json:"character" binding:"required"`
}

// CharacterRequest 玩家角色
type CharacterRequest struct {
	Name        string            `json:"name" binding:"required,max=128"`
	Class       string            `json:"class" binding:"max=64"`
	MaxHP       int               `json:"max_hp" binding:"required,min=1"`
	Defense     int               `json:"defense" binding:"min=0"`
	AttackBonus int               `json:"attack_bonus"`
	Attributes  combat.Attributes `json:"attributes"`
	Backstory   string            `json:"backstory" binding:"max=4000"`
}

// ToInput 转换为应用层参数
func (r *CreateCampaignRequest) ToInput() campaign.CreateInput {
	return campaign.CreateInput{
		Name:    r.Name,
		Setting: r.Setting,
		Character: campaign.CharacterInput{
			Name:        r.Character.Name,
			Class:       r.Character.Class,
			MaxHP:       r.Character.MaxHP,
			Defense:     r.Character.Defense,
			AttackBonus: r.Character.AttackBonus,
			Attributes:  r.Character.Attributes,
			Backstory:   r.Character.Backstory,
		},
	}
}

// ActionRequest 提交玩家行动
//
// Action 可选；缺省时服务端从 Text 解析行动意图。
type ActionRequest struct {
	Text   string         `json:"text" binding:"max=2000"`
	Action *combat.Action `json:"action,omitempty"`
	Seed   *int64         `json:"seed,omitempty"`
}

// ToRequest 转换为回合请求
func (r *ActionRequest) ToRequest(campaignID string) turn.Request {
	return turn.Request{CampaignID: campaignID, Text: r.Text, Action: r.Action, Seed: r.Seed}
}

// TurnResponse 回合处理结果
type TurnResponse struct {
	Turn        *entity.Turn       `json:"turn"`
	Outcome     combat.Outcome     `json:"outcome"`
	CombatState combat.State       `json:"combat_state"`
	Context     []turn.ContextTurn `json:"context"`
	Structured  bool               `json:"structured_narration"`
}

// ToTurnResponse 从回合结果构建响应
func ToTurnResponse(r *turn.Result) *TurnResponse {
	return &TurnResponse{
		Turn:        r.Turn,
		Outcome:     r.Outcome,
		CombatState: r.CombatState,
		Context:     r.Context,
		Structured:  r.Structured,
	}
}

// SetHealthRequest 调试指令：设置一方生命值
type SetHealthRequest struct {
	Side string `json:"side" binding:"required,oneof=player enemy"`
	HP   int    `json:"hp" binding:"min=0"`
}

// CombatStateResponse 战斗状态
type CombatStateResponse struct {
	State   combat.State    `json:"state"`
	Version int             `json:"version"`
	Outcome *combat.Outcome `json:"outcome,omitempty"`
}

// ToCombatStateResponse 从持久化记录构建响应
func ToCombatStateResponse(rec *entity.CombatStateRecord, out *combat.Outcome) *CombatStateResponse {
	return &CombatStateResponse{State: rec.State, Version: rec.Version, Outcome: out}
}

// ReindexRequest 重建向量记忆请求
type ReindexRequest struct {
	Reason string `json:"reason" binding:"max=256"`
}

// ReindexResponse 重建任务已入队
type ReindexResponse struct {
	MessageID string `json:"message_id"`
}

// ClearHistoryResponse 清空历史结果
type ClearHistoryResponse struct {
	TurnsDeleted int64 `json:"turns_deleted"`
}

// EventListResponse 最近的回合事件，新事件在前
type EventListResponse struct {
	Events []json.RawMessage `json:"events"`
}
