package combat

import (
	"encoding/json"
	"testing"
)

func TestDirectives_UnmarshalMixedEffects(t *testing.T) {
	raw := `{"enemy_health_change":-3,"character_health_change":2,"status_effects":["poisoned",{"target":"enemy","effect":"stunned","duration":2}]}`

	var d Directives
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if d.EnemyHPDelta != -3 || d.PlayerHPDelta != 2 {
		t.Fatalf("unexpected deltas %+v", d)
	}
	if len(d.StatusEffects) != 2 {
		t.Fatalf("status_effects = %d, want 2", len(d.StatusEffects))
	}
	if got := d.StatusEffects[0]; got.Effect != "poisoned" || got.Target != "" {
		t.Fatalf("string form decoded as %+v", got)
	}
	if got := d.StatusEffects[1]; got.Target != "enemy" || got.Effect != "stunned" || got.Duration != 2 {
		t.Fatalf("object form decoded as %+v", got)
	}
}

func TestDirectives_UnmarshalRejectsNumbers(t *testing.T) {
	var e EffectDirective
	if err := json.Unmarshal([]byte(`42`), &e); err == nil {
		t.Fatal("expected error for numeric effect")
	}
}
