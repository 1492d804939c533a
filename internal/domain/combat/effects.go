package combat

import (
	"strings"
)

// StatusEffect 带剩余回合数的状态标签
type StatusEffect struct {
	Tag       string `json:"tag"`
	Remaining int    `json:"remaining"`
}

// EffectProfile 状态标签对应的数值修正
type EffectProfile struct {
	// DamagePerRound 每回合开始时的伤害，负数为治疗
	DamagePerRound  int
	AttackModifier  int
	DefenseModifier int
}

// effectCatalog 已知状态；未知标签数值中性，只用于叙事
var effectCatalog = map[string]EffectProfile{
	"poisoned":     {DamagePerRound: 2},
	"burning":      {DamagePerRound: 3},
	"bleeding":     {DamagePerRound: 1},
	"regenerating": {DamagePerRound: -2},
	"stunned":      {AttackModifier: -5, DefenseModifier: -2},
	"weakened":     {AttackModifier: -2},
	"blessed":      {AttackModifier: 2},
	"shielded":     {DefenseModifier: 2},
	"slowed":       {DefenseModifier: -1},
}

// ProfileOf 查询状态的数值修正
func ProfileOf(tag string) EffectProfile {
	return effectCatalog[strings.ToLower(strings.TrimSpace(tag))]
}

// ApplyDamage 扣减生命值并钳制到 [0, maxHP]；amount 为负时视为治疗
func ApplyDamage(hp, amount, maxHP int) int {
	if maxHP < 0 {
		maxHP = 0
	}
	next := hp - amount
	if next < 0 {
		return 0
	}
	if next > maxHP {
		return maxHP
	}
	return next
}

// ApplyEffect 为参与者添加状态；已存在同标签时取较长的剩余回合
func ApplyEffect(p Participant, tag string, duration int) (Participant, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return p, errInvalidInput("effect tag is required")
	}
	if duration <= 0 {
		return p, errInvalidInput("effect duration must be positive")
	}

	out := p.clone()
	for i, e := range out.StatusEffects {
		if e.Tag == tag {
			if duration > e.Remaining {
				out.StatusEffects[i].Remaining = duration
			}
			return out, nil
		}
	}
	out.StatusEffects = append(out.StatusEffects, StatusEffect{Tag: tag, Remaining: duration})
	return out, nil
}

// TickEffects 推进一回合：结算持续伤害，剩余回合减一，到 0 即移除
// 已倒下的参与者不再结算持续伤害，但状态照常衰减。
func TickEffects(p Participant) Participant {
	out := p.clone()
	kept := out.StatusEffects[:0]
	for _, e := range out.StatusEffects {
		if out.Alive() {
			if dpr := ProfileOf(e.Tag).DamagePerRound; dpr != 0 {
				out.CurrentHP = ApplyDamage(out.CurrentHP, dpr, out.MaxHP)
			}
		}
		e.Remaining--
		if e.Remaining > 0 {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		out.StatusEffects = nil
	} else {
		out.StatusEffects = kept
	}
	return out
}

func attackModifier(p Participant) int {
	total := 0
	for _, e := range p.StatusEffects {
		total += ProfileOf(e.Tag).AttackModifier
	}
	return total
}

func defenseModifier(p Participant) int {
	total := 0
	for _, e := range p.StatusEffects {
		total += ProfileOf(e.Tag).DefenseModifier
	}
	return total
}
