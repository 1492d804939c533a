package combat

import (
	"reflect"
	"testing"
)

func TestMergeDoesNotShareAffectedSlice(t *testing.T) {
	affected := make([]string, 1, 4)
	affected[0] = "Goblin"
	base := Outcome{Kind: ActionAttack, ParticipantsAffected: affected}

	a := base.Merge(Outcome{ParticipantsAffected: []string{"Aria"}})
	b := base.Merge(Outcome{ParticipantsAffected: []string{"Orc"}})

	if want := []string{"Goblin", "Aria"}; !reflect.DeepEqual(a.ParticipantsAffected, want) {
		t.Fatalf("first merge = %v, want %v", a.ParticipantsAffected, want)
	}
	if want := []string{"Goblin", "Orc"}; !reflect.DeepEqual(b.ParticipantsAffected, want) {
		t.Fatalf("second merge = %v, want %v", b.ParticipantsAffected, want)
	}
	if !reflect.DeepEqual(base.ParticipantsAffected, []string{"Goblin"}) {
		t.Fatalf("base mutated: %v", base.ParticipantsAffected)
	}
}

func TestMergeCarriesEnding(t *testing.T) {
	base := Outcome{Kind: ActionAttack, NarrativeHint: "hit", Mechanical: true}
	got := base.Merge(Outcome{IsCombatEnding: true, EndReason: EndVictory, NarrativeHint: "goblin falls"})

	if !got.IsCombatEnding || got.EndReason != EndVictory {
		t.Fatalf("ending = %v %q, want victory", got.IsCombatEnding, got.EndReason)
	}
	if got.NarrativeHint != "hit goblin falls" {
		t.Fatalf("hint = %q", got.NarrativeHint)
	}
	if base.IsCombatEnding {
		t.Fatal("base outcome was modified")
	}
}
