package combat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EffectDirective 叙事模型要求施加的状态
type EffectDirective struct {
	Target   string `json:"target"`
	Effect   string `json:"effect"`
	Duration int    `json:"duration,omitempty"`
}

// UnmarshalJSON 兼容纯字符串写法，"poisoned" 等价于 {"effect":"poisoned"}
func (e *EffectDirective) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		*e = EffectDirective{Effect: tag}
		return nil
	}
	type plain EffectDirective
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = EffectDirective(p)
	return nil
}

// Directives 叙事模型在生成结果中附带的数值调整
//
// 正数为治疗，负数为伤害；只在战斗进行中生效。
type Directives struct {
	EnemyHPDelta  int               `json:"enemy_health_change"`
	PlayerHPDelta int               `json:"character_health_change"`
	StatusEffects []EffectDirective `json:"status_effects,omitempty"`
}

// IsZero 没有任何调整
func (d Directives) IsZero() bool {
	return d.EnemyHPDelta == 0 && d.PlayerHPDelta == 0 && len(d.StatusEffects) == 0
}

// ApplyDirectives 把叙事指令折算进战斗状态，经过与结算相同的钳制与终局判定
func (r *Resolver) ApplyDirectives(state State, d Directives) (State, Outcome) {
	next := state.Clone()
	out := Outcome{}
	if !next.Active || d.IsZero() {
		return next, out
	}
	out.Mechanical = true

	shift := func(side Side, delta int) {
		if delta == 0 {
			return
		}
		idx, ok := next.FirstOf(side)
		if !ok {
			return
		}
		p := next.Participants[idx]
		p.CurrentHP = ApplyDamage(p.CurrentHP, -delta, p.MaxHP)
		next.Participants[idx] = p
		out.affect(p.Name)
	}
	shift(SideEnemy, d.EnemyHPDelta)
	shift(SidePlayer, d.PlayerHPDelta)

	for _, ed := range d.StatusEffects {
		idx, ok := r.directiveTarget(next, ed.Target)
		if !ok || !next.Participants[idx].Alive() {
			continue
		}
		duration := ed.Duration
		if duration <= 0 {
			duration = 1
		}
		updated, err := ApplyEffect(next.Participants[idx], ed.Effect, duration)
		if err != nil {
			continue
		}
		next.Participants[idx] = updated
		out.affect(updated.Name)
	}

	if r.checkEnd(&next, &out) {
		next.Active = false
		out.NarrativeHint = fmt.Sprintf("Combat ends in %s.", out.EndReason)
	}
	out.RoundIndex = next.RoundIndex
	return next, out
}

func (r *Resolver) directiveTarget(s State, target string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(target)) {
	case "player", "character", "":
		return s.FirstOf(SidePlayer)
	case "enemy":
		return s.FirstOf(SideEnemy)
	}
	return s.Find(target)
}

// SetHealth 把指定阵营所有参与者的生命值设为 hp，钳制到 [0, max]
//
// 用于调试指令；结果同样经过终局判定。
func (r *Resolver) SetHealth(state State, side Side, hp int) (State, Outcome) {
	next := state.Clone()
	out := Outcome{Mechanical: true}

	for i, p := range next.Participants {
		if p.Side != side {
			continue
		}
		p.CurrentHP = ApplyDamage(hp, 0, p.MaxHP)
		next.Participants[i] = p
		out.affect(p.Name)
	}
	if len(out.ParticipantsAffected) == 0 {
		return next, Outcome{}
	}

	if next.Active && r.checkEnd(&next, &out) {
		next.Active = false
	}
	out.RoundIndex = next.RoundIndex
	return next, out
}
