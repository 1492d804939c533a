package combat

import (
	"fmt"
	"strings"

	"rpg-narrative-api/internal/domain/dice"
)

// Rules 结算参数
type Rules struct {
	AttackDie     int
	FleeThreshold int
	EnemyVariance float64
	DefaultDamage dice.Spec
	SpellDamage   dice.Spec
}

// DefaultRules d20 命中，1d6 默认伤害
func DefaultRules() Rules {
	return Rules{
		AttackDie:     20,
		FleeThreshold: 10,
		EnemyVariance: 0.30,
		DefaultDamage: dice.MustParseSpec("1d6"),
		SpellDamage:   dice.MustParseSpec("2d6"),
	}
}

// Resolver 战斗结算器，本身无状态，可并发使用
type Resolver struct {
	rules Rules
}

// NewResolver 创建结算器，未设置的规则项取默认值
func NewResolver(rules Rules) *Resolver {
	def := DefaultRules()
	if rules.AttackDie <= 0 {
		rules.AttackDie = def.AttackDie
	}
	if rules.FleeThreshold <= 0 {
		rules.FleeThreshold = def.FleeThreshold
	}
	if rules.EnemyVariance <= 0 {
		rules.EnemyVariance = def.EnemyVariance
	}
	if rules.DefaultDamage.Validate() != nil {
		rules.DefaultDamage = def.DefaultDamage
	}
	if rules.SpellDamage.Validate() != nil {
		rules.SpellDamage = def.SpellDamage
	}
	return &Resolver{rules: rules}
}

// Rules 返回生效的规则
func (r *Resolver) Rules() Rules {
	return r.rules
}

// Resolve 结算一次行动
//
// 入参 state 不会被修改；任何错误都在修改发生之前返回。
func (r *Resolver) Resolve(state State, action Action, src dice.Source) (State, Outcome, error) {
	actor, target, err := r.validate(state, action)
	if err != nil {
		return state, Outcome{}, err
	}
	if src == nil && action.Kind != ActionNonCombat {
		return state, Outcome{}, fmt.Errorf("dice source is required")
	}
	if len(action.Rolls) > 0 {
		src = dice.NewScripted(src, action.Rolls...)
	}

	next := state.Clone()
	switch action.Kind {
	case ActionNonCombat:
		return next, Outcome{
			Kind:          ActionNonCombat,
			NarrativeHint: "no combat mechanics apply",
			RoundIndex:    next.RoundIndex,
		}, nil
	case ActionEngage:
		out, err := r.engage(&next, action, src)
		if err != nil {
			return state, Outcome{}, err
		}
		return next, out, nil
	}

	out := Outcome{Kind: action.Kind, Mechanical: true}

	// 回合开始先结算持续状态，本回合新施加的状态从下一回合开始生效
	if r.tickRound(&next, &out) {
		return next, out, nil
	}
	if !next.Participants[actor].Alive() {
		out.NarrativeHint = strings.TrimSpace(out.NarrativeHint + " " + next.Participants[actor].Name + " cannot act.")
		r.finishRound(&next, &out)
		return next, out, nil
	}

	switch action.Kind {
	case ActionAttack:
		err = r.attack(&next, actor, target, action, src, &out)
	case ActionSpell:
		err = r.castSpell(&next, actor, target, action, src, &out)
	case ActionFlee:
		err = r.flee(&next, actor, src, &out)
	}
	if err != nil {
		return state, Outcome{}, err
	}

	r.finishRound(&next, &out)
	return next, out, nil
}

// validate 在任何修改之前完成全部语义校验，返回行动者与目标下标
func (r *Resolver) validate(state State, action Action) (int, int, error) {
	if !action.Kind.Valid() {
		return -1, -1, errInvalidInput(fmt.Sprintf("unknown action kind %q", action.Kind))
	}

	switch action.Kind {
	case ActionNonCombat:
		return -1, -1, nil
	case ActionEngage:
		return -1, -1, r.validateEngage(state, action)
	}

	if !state.Active {
		return -1, -1, errCombatInactive(fmt.Sprintf("%s requires an active combat", action.Kind))
	}

	actor := -1
	if action.Actor != "" {
		idx, ok := state.Find(action.Actor)
		if !ok {
			return -1, -1, errInvalidTarget(fmt.Sprintf("actor %q is not in combat", action.Actor))
		}
		actor = idx
	} else {
		idx, ok := state.FirstOf(SidePlayer)
		if !ok {
			return -1, -1, errInvalidInput("no living player participant can act")
		}
		actor = idx
	}

	if !action.Damage.IsZero() {
		if err := action.Damage.Validate(); err != nil {
			return -1, -1, err
		}
	}

	switch action.Kind {
	case ActionFlee:
		return actor, -1, nil
	case ActionSpell:
		if action.Spell == nil {
			return -1, -1, errInvalidInput("spell action requires a spell")
		}
		if !action.Spell.Damage.IsZero() {
			if err := action.Spell.Damage.Validate(); err != nil {
				return -1, -1, err
			}
		}
		if action.Spell.Effect != "" && action.Spell.Duration <= 0 {
			return -1, -1, errInvalidInput("spell effect requires a positive duration")
		}
	}

	opponent := SideEnemy
	if state.Participants[actor].Side == SideEnemy {
		opponent = SidePlayer
	}

	if action.Target == "" {
		idx, ok := state.FirstOf(opponent)
		if !ok {
			return -1, -1, errInvalidTarget("no living target available")
		}
		return actor, idx, nil
	}

	target, ok := state.Find(action.Target)
	if !ok {
		return -1, -1, errInvalidTarget(fmt.Sprintf("target %q is not in combat", action.Target))
	}
	if !state.Participants[target].Alive() {
		return -1, -1, errInvalidTarget(fmt.Sprintf("target %q is already defeated", state.Participants[target].Name))
	}
	return actor, target, nil
}

func (r *Resolver) validateEngage(state State, action Action) error {
	if state.Active {
		return errInvalidInput("combat is already active")
	}
	if _, ok := state.FirstOf(SidePlayer); !ok {
		return errInvalidInput("no living player participant can engage")
	}
	seen := make(map[string]bool)
	for _, p := range state.Participants {
		if p.Side == SidePlayer {
			seen[strings.ToLower(p.Name)] = true
		}
	}
	for _, e := range action.Enemies {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return errInvalidInput("enemy name is required")
		}
		if e.MaxHP <= 0 {
			return errInvalidInput(fmt.Sprintf("enemy %q requires a positive max_hp", name))
		}
		if e.CurrentHP < 0 || e.CurrentHP > e.MaxHP {
			return errInvalidInput(fmt.Sprintf("enemy %q current_hp out of range", name))
		}
		key := strings.ToLower(name)
		if seen[key] {
			return errInvalidInput(fmt.Sprintf("duplicate participant name %q", name))
		}
		seen[key] = true
	}
	return nil
}

func (r *Resolver) engage(next *State, action Action, src dice.Source) (Outcome, error) {
	enemies := action.Enemies
	if len(enemies) == 0 {
		playerIdx, _ := next.FirstOf(SidePlayer)
		name := action.Target
		if name == "" {
			name = "Enemy"
		}
		if _, taken := next.Find(name); taken {
			name += " (foe)"
		}
		enemies = []Participant{EstimateEnemy(next.Participants[playerIdx], name, r.rules.EnemyVariance, src)}
	}

	var participants []Participant
	for _, p := range next.Participants {
		if p.Side == SidePlayer {
			participants = append(participants, p)
		}
	}

	out := Outcome{Kind: ActionEngage, Mechanical: true}
	var names []string
	for _, e := range enemies {
		e = e.clone()
		e.Name = strings.TrimSpace(e.Name)
		e.Side = SideEnemy
		if e.CurrentHP == 0 {
			e.CurrentHP = e.MaxHP
		}
		participants = append(participants, e)
		names = append(names, e.Name)
		out.affect(e.Name)
	}

	next.Participants = participants
	next.Active = true
	next.RoundIndex = 0
	out.RoundIndex = 0
	out.NarrativeHint = fmt.Sprintf("Combat begins against %s.", strings.Join(names, ", "))
	return out, nil
}

func (r *Resolver) attack(next *State, actorIdx, targetIdx int, action Action, src dice.Source, out *Outcome) error {
	actor := next.Participants[actorIdx]
	target := next.Participants[targetIdx]

	hit, critical, err := r.rollToHit(actor, target, actor.AttackBonus, src, out)
	if err != nil {
		return err
	}
	if !hit {
		out.NarrativeHint = fmt.Sprintf("%s attacks %s and misses (roll %d vs defense %d).",
			actor.Name, target.Name, out.AttackTotal, out.DefenseTarget)
		return nil
	}

	spec := r.damageFor(action)
	if critical {
		spec.Count *= 2
	}
	dealt, err := r.dealDamage(next, targetIdx, spec, src, out)
	if err != nil {
		return err
	}

	target = next.Participants[targetIdx]
	verb := "hits"
	if critical {
		verb = "critically hits"
	}
	out.NarrativeHint = fmt.Sprintf("%s %s %s for %d damage (roll %d vs defense %d); %s is at %d/%d hp.",
		actor.Name, verb, target.Name, dealt, out.AttackTotal, out.DefenseTarget, target.Name, target.CurrentHP, target.MaxHP)
	return nil
}

func (r *Resolver) castSpell(next *State, actorIdx, targetIdx int, action Action, src dice.Source, out *Outcome) error {
	actor := next.Participants[actorIdx]
	target := next.Participants[targetIdx]
	spell := *action.Spell
	if spell.Damage.IsZero() && spell.Effect == "" {
		spell.Damage = r.rules.SpellDamage
	}

	// 命中 -> 伤害 -> 状态
	hit := spell.AutoHit
	if !hit {
		var err error
		bonus := Modifier(actor.Attributes.Intelligence)
		hit, _, err = r.rollToHit(actor, target, bonus, src, out)
		if err != nil {
			return err
		}
	} else {
		out.Hit = true
	}
	if !hit {
		out.NarrativeHint = fmt.Sprintf("%s casts %s at %s but it fails to land (roll %d vs defense %d).",
			actor.Name, spell.Name, target.Name, out.AttackTotal, out.DefenseTarget)
		return nil
	}

	parts := []string{fmt.Sprintf("%s casts %s at %s", actor.Name, spell.Name, target.Name)}
	if !spell.Damage.IsZero() {
		dealt, err := r.dealDamage(next, targetIdx, spell.Damage, src, out)
		if err != nil {
			return err
		}
		parts = append(parts, fmt.Sprintf("dealing %d damage", dealt))
	}
	if spell.Effect != "" && next.Participants[targetIdx].Alive() {
		updated, err := ApplyEffect(next.Participants[targetIdx], spell.Effect, spell.Duration)
		if err != nil {
			return err
		}
		next.Participants[targetIdx] = updated
		out.EffectApplied = strings.ToLower(spell.Effect)
		out.affect(updated.Name)
		parts = append(parts, fmt.Sprintf("leaving it %s for %d rounds", out.EffectApplied, spell.Duration))
	}

	target = next.Participants[targetIdx]
	out.NarrativeHint = fmt.Sprintf("%s; %s is at %d/%d hp.", strings.Join(parts, ", "), target.Name, target.CurrentHP, target.MaxHP)
	return nil
}

func (r *Resolver) flee(next *State, actorIdx int, src dice.Source, out *Outcome) error {
	actor := next.Participants[actorIdx]
	rolls, err := dice.Roll(src, r.rules.AttackDie, 1)
	if err != nil {
		return err
	}
	natural := rolls[0]
	total := natural + Modifier(actor.Attributes.Dexterity)
	out.AttackRoll = natural
	out.AttackTotal = total
	out.DefenseTarget = r.rules.FleeThreshold
	out.affect(actor.Name)

	if total >= r.rules.FleeThreshold {
		out.end(EndFled)
		out.NarrativeHint = fmt.Sprintf("%s escapes the fight (roll %d vs %d).", actor.Name, total, r.rules.FleeThreshold)
		return nil
	}
	out.NarrativeHint = fmt.Sprintf("%s tries to flee but is cut off (roll %d vs %d).", actor.Name, total, r.rules.FleeThreshold)
	return nil
}

// rollToHit 掷命中骰：自然 1 必失手，自然最大值必命中且为暴击
func (r *Resolver) rollToHit(actor, target Participant, bonus int, src dice.Source, out *Outcome) (bool, bool, error) {
	rolls, err := dice.Roll(src, r.rules.AttackDie, 1)
	if err != nil {
		return false, false, err
	}
	natural := rolls[0]
	total := natural + bonus + attackModifier(actor)
	defense := target.Defense + defenseModifier(target)

	out.AttackRoll = natural
	out.AttackTotal = total
	out.DefenseTarget = defense

	critical := natural == r.rules.AttackDie
	hit := natural != 1 && (critical || total >= defense)
	out.Hit = hit
	out.Critical = hit && critical
	return hit, hit && critical, nil
}

func (r *Resolver) dealDamage(next *State, targetIdx int, spec dice.Spec, src dice.Source, out *Outcome) (int, error) {
	res, err := spec.Roll(src)
	if err != nil {
		return 0, err
	}
	amount := res.Total
	if amount < 0 {
		amount = 0
	}
	target := next.Participants[targetIdx]
	before := target.CurrentHP
	target.CurrentHP = ApplyDamage(target.CurrentHP, amount, target.MaxHP)
	next.Participants[targetIdx] = target

	out.DamageRolls = append(out.DamageRolls, res.Rolls...)
	dealt := before - target.CurrentHP
	out.DamageDealt += dealt
	out.affect(target.Name)
	return dealt, nil
}

func (r *Resolver) damageFor(action Action) dice.Spec {
	if !action.Damage.IsZero() {
		return action.Damage
	}
	if spec, ok := WeaponDice(action.Weapon); ok {
		return spec
	}
	return r.rules.DefaultDamage
}

// tickRound 结算回合开始时的持续状态，若因此分出胜负返回 true
func (r *Resolver) tickRound(next *State, out *Outcome) bool {
	var hints []string
	for i, p := range next.Participants {
		if len(p.StatusEffects) == 0 {
			continue
		}
		ticked := TickEffects(p)
		if ticked.CurrentHP != p.CurrentHP {
			out.affect(p.Name)
			if ticked.CurrentHP < p.CurrentHP {
				hints = append(hints, fmt.Sprintf("%s suffers %d from lingering effects.", p.Name, p.CurrentHP-ticked.CurrentHP))
			} else {
				hints = append(hints, fmt.Sprintf("%s recovers %d.", p.Name, ticked.CurrentHP-p.CurrentHP))
			}
		}
		next.Participants[i] = ticked
	}
	out.NarrativeHint = strings.Join(hints, " ")

	if r.checkEnd(next, out) {
		next.Active = false
		next.RoundIndex++
		out.RoundIndex = next.RoundIndex
		return true
	}
	return false
}

func (r *Resolver) finishRound(next *State, out *Outcome) {
	if !out.IsCombatEnding {
		r.checkEnd(next, out)
	}
	if out.IsCombatEnding {
		next.Active = false
	}
	next.RoundIndex++
	out.RoundIndex = next.RoundIndex
}

// checkEnd 任一阵营全部倒下即结束
func (r *Resolver) checkEnd(s *State, out *Outcome) bool {
	switch {
	case s.SideDefeated(SideEnemy):
		out.end(EndVictory)
		return true
	case s.SideDefeated(SidePlayer):
		out.end(EndDefeat)
		return true
	default:
		return false
	}
}
