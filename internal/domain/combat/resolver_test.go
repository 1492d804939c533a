package combat

import (
	"errors"
	"testing"

	"rpg-narrative-api/internal/domain/dice"
	apperrors "rpg-narrative-api/pkg/errors"
)

func newEncounter(goblinHP int) State {
	s := NewState(Participant{Name: "Aria", MaxHP: 20, Defense: 12})
	s.Participants = append(s.Participants, Participant{
		Name: "Goblin", Side: SideEnemy, CurrentHP: goblinHP, MaxHP: 10, Defense: 12,
	})
	s.Active = true
	return s
}

func TestResolveAttackWithDeclaredRolls(t *testing.T) {
	r := NewResolver(DefaultRules())
	state := newEncounter(10)
	action := ParseAction("attack Goblin with dagger, roll=15 vs defense=12, damage roll=4")

	next, out, err := r.Resolve(state, action, dice.NewSource(1))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	idx, _ := next.Find("Goblin")
	if got := next.Participants[idx].CurrentHP; got != 6 {
		t.Fatalf("goblin hp = %d, want 6", got)
	}
	if out.IsCombatEnding {
		t.Fatalf("IsCombatEnding = true, want false")
	}
	if !out.Hit || out.DamageDealt != 4 {
		t.Fatalf("outcome = %+v, want hit for 4", out)
	}
	if next.RoundIndex != 1 || !next.Active {
		t.Fatalf("round=%d active=%v, want 1/true", next.RoundIndex, next.Active)
	}
	if state.Participants[1].CurrentHP != 10 {
		t.Fatalf("input state mutated")
	}
}

func TestResolveKillingBlowEndsCombat(t *testing.T) {
	r := NewResolver(DefaultRules())
	state := newEncounter(3)
	action := ParseAction("attack Goblin, roll=15, damage roll=5")

	next, out, err := r.Resolve(state, action, dice.NewSource(1))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := next.Participants[1].CurrentHP; got != 0 {
		t.Fatalf("goblin hp = %d, want 0", got)
	}
	if !out.IsCombatEnding || out.EndReason != EndVictory {
		t.Fatalf("outcome = %+v, want victory", out)
	}
	if next.Active {
		t.Fatalf("combat still active after victory")
	}
}

func TestResolveHealthStaysInBounds(t *testing.T) {
	r := NewResolver(DefaultRules())
	kinds := []string{"attack Goblin with axe", "cast fireball at Goblin", "cast poison", "flee"}

	for seed := int64(0); seed < 200; seed++ {
		src := dice.NewSource(seed)
		state := newEncounter(10)
		for i := 0; i < 20 && state.Active; i++ {
			next, _, err := r.Resolve(state, ParseAction(kinds[(int(seed)+i)%len(kinds)]), src)
			if err != nil {
				t.Fatalf("seed %d: Resolve() error = %v", seed, err)
			}
			for _, p := range next.Participants {
				if p.CurrentHP < 0 || p.CurrentHP > p.MaxHP {
					t.Fatalf("seed %d: %s hp %d outside [0,%d]", seed, p.Name, p.CurrentHP, p.MaxHP)
				}
			}
			state = next
		}
	}
}

func TestResolveSameSeedSameResult(t *testing.T) {
	r := NewResolver(DefaultRules())
	action := ParseAction("cast fireball at Goblin")

	a, outA, errA := r.Resolve(newEncounter(10), action, dice.NewSource(42))
	b, outB, errB := r.Resolve(newEncounter(10), action, dice.NewSource(42))
	if errA != nil || errB != nil {
		t.Fatalf("errors: %v %v", errA, errB)
	}
	if a.Participants[1].CurrentHP != b.Participants[1].CurrentHP || outA.NarrativeHint != outB.NarrativeHint {
		t.Fatalf("same seed produced different results")
	}
}

func TestResolveErrors(t *testing.T) {
	r := NewResolver(DefaultRules())
	inactive := NewState(Participant{Name: "Aria", MaxHP: 20})
	defeated := newEncounter(0)
	defeated.Participants = append(defeated.Participants, Participant{Name: "Orc", Side: SideEnemy, CurrentHP: 5, MaxHP: 5})

	tests := []struct {
		name   string
		state  State
		action Action
		want   *apperrors.AppError
	}{
		{"unknown kind", newEncounter(10), Action{Kind: "dance"}, apperrors.ErrInvalidInput},
		{"attack while inactive", inactive, ParseAction("attack Goblin"), apperrors.ErrCombatInactive},
		{"flee while inactive", inactive, ParseAction("flee"), apperrors.ErrCombatInactive},
		{"unknown target", newEncounter(10), ParseAction("attack Dragon"), apperrors.ErrInvalidTarget},
		{"defeated target", defeated, ParseAction("attack Goblin"), apperrors.ErrInvalidTarget},
		{"unknown actor", newEncounter(10), Action{Kind: ActionAttack, Actor: "Bob"}, apperrors.ErrInvalidTarget},
		{"bad damage spec", newEncounter(10), Action{Kind: ActionAttack, Damage: dice.Spec{Count: 1}}, apperrors.ErrInvalidInput},
		{"engage while active", newEncounter(10), ParseAction("engage wolf"), apperrors.ErrInvalidInput},
		{"spell without spell", newEncounter(10), Action{Kind: ActionSpell}, apperrors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.state.Clone()
			next, _, err := r.Resolve(tt.state, tt.action, dice.NewSource(1))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Resolve() error = %v, want %v", err, tt.want)
			}
			if len(next.Participants) != len(before.Participants) || next.RoundIndex != before.RoundIndex {
				t.Fatalf("state changed on error")
			}
		})
	}
}

func TestResolveSpellAppliesDamageThenEffect(t *testing.T) {
	r := NewResolver(DefaultRules())
	// 命中 15，2d6 = 3+3
	next, out, err := r.Resolve(newEncounter(10), ParseAction("cast fireball at Goblin, roll=15, roll=3, roll=3"), dice.NewSource(1))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	goblin := next.Participants[1]
	if goblin.CurrentHP != 4 {
		t.Fatalf("goblin hp = %d, want 4", goblin.CurrentHP)
	}
	if !goblin.HasEffect("burning") || out.EffectApplied != "burning" {
		t.Fatalf("burning not applied: %+v", goblin.StatusEffects)
	}

	// 下一回合开始时 burning 结算 3 点
	next, _, err = r.Resolve(next, ParseAction("attack Goblin, roll=1"), dice.NewSource(1))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := next.Participants[1].CurrentHP; got != 1 {
		t.Fatalf("goblin hp after tick = %d, want 1", got)
	}
}

func TestResolveEffectTickCanEndCombat(t *testing.T) {
	r := NewResolver(DefaultRules())
	state := newEncounter(2)
	state.Participants[1].StatusEffects = []StatusEffect{{Tag: "poisoned", Remaining: 2}}

	next, out, err := r.Resolve(state, ParseAction("attack Goblin, roll=20"), dice.NewSource(1))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !out.IsCombatEnding || out.EndReason != EndVictory || next.Active {
		t.Fatalf("outcome = %+v, want victory from poison", out)
	}
	if out.Hit {
		t.Fatalf("attack resolved after combat already ended")
	}
}

func TestResolveFlee(t *testing.T) {
	r := NewResolver(DefaultRules())

	next, out, err := r.Resolve(newEncounter(10), ParseAction("flee, roll=12"), dice.NewSource(1))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !out.IsCombatEnding || out.EndReason != EndFled || next.Active {
		t.Fatalf("outcome = %+v, want fled", out)
	}

	next, out, err = r.Resolve(newEncounter(10), ParseAction("flee, roll=3"), dice.NewSource(1))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.IsCombatEnding || !next.Active {
		t.Fatalf("failed flee ended combat: %+v", out)
	}
}

func TestResolveCriticalAndFumble(t *testing.T) {
	r := NewResolver(DefaultRules())
	state := newEncounter(10)
	state.Participants[1].Defense = 30

	_, out, _ := r.Resolve(state, ParseAction("attack Goblin with dagger, roll=20, roll=2, roll=3"), dice.NewSource(1))
	if !out.Critical || out.DamageDealt != 5 {
		t.Fatalf("critical outcome = %+v, want crit for 5", out)
	}

	state.Participants[1].Defense = 1
	_, out, _ = r.Resolve(state, ParseAction("attack Goblin, roll=1"), dice.NewSource(1))
	if out.Hit {
		t.Fatalf("natural 1 should miss")
	}
}

func TestResolveEngage(t *testing.T) {
	r := NewResolver(DefaultRules())
	state := NewState(Participant{Name: "Aria", MaxHP: 20, Defense: 12})

	next, out, err := r.Resolve(state, ParseAction("engage wolf"), dice.NewSource(7))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !next.Active || next.RoundIndex != 0 {
		t.Fatalf("engage did not activate combat: %+v", next)
	}
	idx, ok := next.Find("wolf")
	if !ok {
		t.Fatalf("enemy not added: %v", next.Names(SideEnemy))
	}
	wolf := next.Participants[idx]
	if wolf.MaxHP < 14 || wolf.MaxHP > 26 || wolf.CurrentHP != wolf.MaxHP {
		t.Fatalf("wolf hp %d/%d outside ±30%% of 20", wolf.CurrentHP, wolf.MaxHP)
	}
	if len(out.ParticipantsAffected) != 1 {
		t.Fatalf("affected = %v", out.ParticipantsAffected)
	}
}

func TestResolveNonCombatPassesThrough(t *testing.T) {
	r := NewResolver(DefaultRules())
	state := newEncounter(10)

	next, out, err := r.Resolve(state, ParseAction("look around the tavern"), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if out.Mechanical || next.RoundIndex != state.RoundIndex || next.Participants[1].CurrentHP != 10 {
		t.Fatalf("non-combat action changed state: %+v", out)
	}
}

func TestApplyDirectives(t *testing.T) {
	r := NewResolver(DefaultRules())
	state := newEncounter(10)

	next, out := r.ApplyDirectives(state, Directives{
		EnemyHPDelta:  -4,
		PlayerHPDelta: 50,
		StatusEffects: []EffectDirective{{Target: "Goblin", Effect: "stunned"}, {Target: "Nobody", Effect: "blessed"}},
	})
	if next.Participants[1].CurrentHP != 6 {
		t.Fatalf("goblin hp = %d, want 6", next.Participants[1].CurrentHP)
	}
	if next.Participants[0].CurrentHP != 20 {
		t.Fatalf("player hp = %d, want clamped to 20", next.Participants[0].CurrentHP)
	}
	if !next.Participants[1].HasEffect("stunned") || out.IsCombatEnding {
		t.Fatalf("unexpected outcome %+v", out)
	}

	next, out = r.ApplyDirectives(next, Directives{EnemyHPDelta: -100})
	if !out.IsCombatEnding || next.Active {
		t.Fatalf("lethal directive did not end combat: %+v", out)
	}

	inactive := NewState(Participant{Name: "Aria", MaxHP: 20, CurrentHP: 5})
	next, _ = r.ApplyDirectives(inactive, Directives{PlayerHPDelta: 10})
	if next.Participants[0].CurrentHP != 5 {
		t.Fatalf("directives applied outside combat")
	}
}

func TestSetHealth(t *testing.T) {
	r := NewResolver(DefaultRules())
	next, out := r.SetHealth(newEncounter(10), SideEnemy, -5)
	if next.Participants[1].CurrentHP != 0 || !out.IsCombatEnding {
		t.Fatalf("SetHealth(-5) = %d, ending=%v", next.Participants[1].CurrentHP, out.IsCombatEnding)
	}
	next, _ = r.SetHealth(newEncounter(10), SidePlayer, 99)
	if next.Participants[0].CurrentHP != 20 {
		t.Fatalf("SetHealth(99) = %d, want 20", next.Participants[0].CurrentHP)
	}
}
