package turn

import (
	"fmt"
	"strings"

	"rpg-narrative-api/internal/domain/combat"
	"rpg-narrative-api/internal/domain/entity"
	wfmodel "rpg-narrative-api/internal/workflow/model"
)

// ContextTurn 被选入上下文的历史回合
type ContextTurn struct {
	TurnID          string  `json:"turn_id"`
	SequenceIndex   int     `json:"sequence_index"`
	PlayerAction    string  `json:"player_action"`
	Narrative       string  `json:"narrative_response"`
	IsCombatTurn    bool    `json:"is_combat_turn"`
	SimilarityScore float64 `json:"similarity_score"`
	RerankScore     float64 `json:"rerank_score"`
}

// Render 以 "Player: ... | Narrator: ..." 形式展示
func (c ContextTurn) Render() string {
	return fmt.Sprintf("Player: %s | Narrator: %s", c.PlayerAction, c.Narrative)
}

// ContextPackage 交给叙事生成的完整上下文
type ContextPackage struct {
	CampaignID    string            `json:"campaign_id"`
	SequenceIndex int               `json:"sequence_index"`
	Setting       string            `json:"setting,omitempty"`
	Character     *entity.Character `json:"character,omitempty"`
	Action        combat.Action     `json:"action"`
	Outcome       combat.Outcome    `json:"outcome"`
	CombatState   combat.State      `json:"combat_state"`

	// Turns 按重排得分从高到低
	Turns []ContextTurn `json:"turns"`

	// Recent 最近回合，不含已在 Turns 中的
	Recent []ContextTurn `json:"recent,omitempty"`
}

// NarrateInput 转换为叙事工作流输入
func (p *ContextPackage) NarrateInput(provider string) *wfmodel.NarrateInput {
	return &wfmodel.NarrateInput{
		Provider:       provider,
		CampaignID:     p.CampaignID,
		Setting:        p.Setting,
		CharacterSheet: characterSheet(p.Character),
		CombatSummary:  combatSummary(p.Outcome, p.CombatState),
		Action:         p.Action.Text,
		PreviousTurns:  pastTurns(p.Turns),
		RecentTurns:    pastTurns(p.Recent),
	}
}

func pastTurns(turns []ContextTurn) []wfmodel.PastTurn {
	out := make([]wfmodel.PastTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, wfmodel.PastTurn{
			SequenceIndex: t.SequenceIndex,
			PlayerAction:  t.PlayerAction,
			Narrative:     t.Narrative,
			IsCombatTurn:  t.IsCombatTurn,
		})
	}
	return out
}

func characterSheet(c *entity.Character) string {
	if c == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s", c.Name)
	if c.Class != "" {
		fmt.Fprintf(&sb, ", %s", c.Class)
	}
	a := c.Attributes
	fmt.Fprintf(&sb, " (max hp %d, defense %d, STR %d DEX %d INT %d CHA %d)",
		c.MaxHP, c.Defense, a.Strength, a.Dexterity, a.Intelligence, a.Charisma)
	if c.Backstory != "" {
		fmt.Fprintf(&sb, "\nBackstory: %s", c.Backstory)
	}
	return sb.String()
}

func combatSummary(out combat.Outcome, state combat.State) string {
	if !out.Mechanical && !state.Active {
		return "No combat this turn."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Engine outcome (round %d): %s", out.RoundIndex, strings.TrimSpace(out.NarrativeHint))
	if out.IsCombatEnding {
		fmt.Fprintf(&sb, "\nCombat is over (%s).", out.EndReason)
	}
	for _, p := range state.Participants {
		fmt.Fprintf(&sb, "\n- %s [%s] hp %d/%d", p.Name, p.Side, p.CurrentHP, p.MaxHP)
		if len(p.StatusEffects) > 0 {
			tags := make([]string, 0, len(p.StatusEffects))
			for _, e := range p.StatusEffects {
				tags = append(tags, fmt.Sprintf("%s(%d)", e.Tag, e.Remaining))
			}
			fmt.Fprintf(&sb, " effects: %s", strings.Join(tags, ", "))
		}
	}
	return sb.String()
}
