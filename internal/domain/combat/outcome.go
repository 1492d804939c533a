package combat

import "slices"

// EndReason 战斗结束原因
type EndReason string

const (
	EndVictory EndReason = "victory"
	EndDefeat  EndReason = "defeat"
	EndFled    EndReason = "fled"
)

// Outcome 一次结算的结构化结果，作为叙事生成的上下文
type Outcome struct {
	Kind                 ActionKind `json:"kind"`
	NarrativeHint        string     `json:"narrative_hint"`
	ParticipantsAffected []string   `json:"participants_affected,omitempty"`
	IsCombatEnding       bool       `json:"is_combat_ending"`
	EndReason            EndReason  `json:"end_reason,omitempty"`
	Mechanical           bool       `json:"mechanical"`
	RoundIndex           int        `json:"round_index"`

	Hit           bool   `json:"hit,omitempty"`
	Critical      bool   `json:"critical,omitempty"`
	AttackRoll    int    `json:"attack_roll,omitempty"`
	AttackTotal   int    `json:"attack_total,omitempty"`
	DefenseTarget int    `json:"defense_target,omitempty"`
	DamageRolls   []int  `json:"damage_rolls,omitempty"`
	DamageDealt   int    `json:"damage_dealt,omitempty"`
	EffectApplied string `json:"effect_applied,omitempty"`
}

func (o *Outcome) affect(name string) {
	for _, n := range o.ParticipantsAffected {
		if n == name {
			return
		}
	}
	o.ParticipantsAffected = append(o.ParticipantsAffected, name)
}

func (o *Outcome) end(reason EndReason) {
	o.IsCombatEnding = true
	o.EndReason = reason
}

// Merge 合并叙事指令带来的附加结果，不修改 o 的切片
func (o Outcome) Merge(extra Outcome) Outcome {
	out := o
	out.ParticipantsAffected = slices.Clone(o.ParticipantsAffected)
	out.DamageRolls = slices.Clone(o.DamageRolls)
	for _, n := range extra.ParticipantsAffected {
		out.affect(n)
	}
	if extra.IsCombatEnding && !out.IsCombatEnding {
		out.end(extra.EndReason)
	}
	if extra.NarrativeHint != "" {
		if out.NarrativeHint == "" {
			out.NarrativeHint = extra.NarrativeHint
		} else {
			out.NarrativeHint += " " + extra.NarrativeHint
		}
	}
	if extra.Mechanical {
		out.Mechanical = true
	}
	return out
}
