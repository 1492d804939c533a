package combat

import (
	"reflect"
	"testing"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		text   string
		kind   ActionKind
		target string
		weapon string
		spell  string
		rolls  []int
	}{
		{"attack Goblin with dagger, roll=15 vs defense=12, damage roll=4", ActionAttack, "Goblin", "dagger", "", []int{15, 4}},
		{"Strike the orc with my axe!", ActionAttack, "orc", "axe", "", nil},
		{"cast fireball at the bandits", ActionSpell, "bandits", "", "fireball", nil},
		{"cast magic missile", ActionSpell, "", "", "magicmissile", nil},
		{"flee, roll=12", ActionFlee, "", "", "", []int{12}},
		{"run away from here", ActionFlee, "", "", "", nil},
		{"engage the wolf pack", ActionEngage, "wolf pack", "", "", nil},
		{"I open the door and look inside", ActionNonCombat, "", "", "", nil},
		{"flee from the goblin", ActionFlee, "", "", "", nil},
		{"retreat", ActionFlee, "", "", "", nil},
		{"run to the tavern", ActionNonCombat, "", "", "", nil},
		{"escape the dungeon", ActionNonCombat, "", "", "", nil},
		{"fight the urge to sleep", ActionNonCombat, "", "", "", nil},
		{"fight", ActionEngage, "", "", "", nil},
		{"hit on the barkeep", ActionNonCombat, "", "", "", nil},
		{"cast a line into the river", ActionNonCombat, "", "", "", nil},
		{"hit the road", ActionAttack, "road", "", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			a := ParseAction(tt.text)
			if a.Kind != tt.kind || a.Target != tt.target || a.Weapon != tt.weapon {
				t.Fatalf("ParseAction() = kind %q target %q weapon %q, want %q %q %q",
					a.Kind, a.Target, a.Weapon, tt.kind, tt.target, tt.weapon)
			}
			if tt.spell != "" && (a.Spell == nil || a.Spell.Name != tt.spell) {
				t.Fatalf("spell = %+v, want %s", a.Spell, tt.spell)
			}
			if !reflect.DeepEqual(a.Rolls, tt.rolls) {
				t.Fatalf("rolls = %v, want %v", a.Rolls, tt.rolls)
			}
		})
	}
}

func TestInContext(t *testing.T) {
	idle := NewState(Participant{Name: "Aria", MaxHP: 20})
	encounter := idle.Clone()
	encounter.Participants = append(encounter.Participants, Participant{Name: "Goblin", Side: SideEnemy, CurrentHP: 5, MaxHP: 5})
	encounter.Active = true

	tests := []struct {
		name   string
		text   string
		state  State
		kind   ActionKind
		target string
	}{
		{"travel phrase without combat", "hit the road", idle, ActionNonCombat, ""},
		{"running errands without combat", "run", idle, ActionNonCombat, ""},
		{"spell flavour without combat", "cast fireball at the sky", idle, ActionNonCombat, ""},
		{"engage starts combat", "engage the wolf", idle, ActionEngage, "wolf"},
		{"attack in combat", "attack Goblin", encounter, ActionAttack, "Goblin"},
		{"unknown target in combat stays an attack", "attack Dragon", encounter, ActionAttack, "Dragon"},
		{"fight a present enemy", "fight the goblin", encounter, ActionAttack, "goblin"},
		{"flee in combat", "flee", encounter, ActionFlee, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAction(tt.text).InContext(tt.state)
			if got.Kind != tt.kind || got.Target != tt.target {
				t.Fatalf("InContext() = %q %q, want %q %q", got.Kind, got.Target, tt.kind, tt.target)
			}
			if got.Text != tt.text {
				t.Fatalf("text = %q, want %q", got.Text, tt.text)
			}
		})
	}
}

func TestModifier(t *testing.T) {
	tests := map[int]int{0: 0, 1: -5, 8: -1, 9: -1, 10: 0, 11: 0, 12: 1, 18: 4}
	for score, want := range tests {
		if got := Modifier(score); got != want {
			t.Errorf("Modifier(%d) = %d, want %d", score, got, want)
		}
	}
}
