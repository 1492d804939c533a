package node

import (
	"strings"
	"testing"

	wfmodel "rpg-narrative-api/internal/workflow/model"
)

func TestParseNarration(t *testing.T) {
	tests := []struct {
		name           string
		raw            string
		wantNarrative  string
		wantStructured bool
		wantEnemyDelta int
		wantEffects    int
	}{
		{
			name:           "plain json",
			raw:            `{"narrative":"The goblin reels.","enemy_health_change":-2,"character_health_change":0,"status_effects":[]}`,
			wantNarrative:  "The goblin reels.",
			wantStructured: true,
			wantEnemyDelta: -2,
		},
		{
			name:           "fenced json with chatter",
			raw:            "Sure!\n```json\n{\"narrative\":\"You slip away.\",\"status_effects\":[\"winded\"]}\n```",
			wantNarrative:  "You slip away.",
			wantStructured: true,
			wantEffects:    1,
		},
		{
			name:          "raw text fallback",
			raw:           "  The wind howls through the pass.  ",
			wantNarrative: "The wind howls through the pass.",
		},
		{
			name:          "json without narrative",
			raw:           `{"enemy_health_change":-50}`,
			wantNarrative: `{"enemy_health_change":-50}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, d, ok := ParseNarration(tt.raw)
			if n != tt.wantNarrative {
				t.Fatalf("narrative = %q, want %q", n, tt.wantNarrative)
			}
			if ok != tt.wantStructured {
				t.Fatalf("structured = %v, want %v", ok, tt.wantStructured)
			}
			if d.EnemyHPDelta != tt.wantEnemyDelta {
				t.Fatalf("enemy delta = %d, want %d", d.EnemyHPDelta, tt.wantEnemyDelta)
			}
			if len(d.StatusEffects) != tt.wantEffects {
				t.Fatalf("effects = %d, want %d", len(d.StatusEffects), tt.wantEffects)
			}
			if !ok && !d.IsZero() {
				t.Fatal("fallback must not carry directives")
			}
		})
	}
}

func TestBuildPreviousTurnsBlock(t *testing.T) {
	if got := BuildPreviousTurnsBlock(nil); got != "- (no prior turns)" {
		t.Fatalf("empty block = %q", got)
	}
	got := BuildPreviousTurnsBlock([]wfmodel.PastTurn{
		{SequenceIndex: 2, PlayerAction: "attack", Narrative: "hit"},
		{SequenceIndex: 0, PlayerAction: "enter", Narrative: "dark"},
	})
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d", len(lines))
	}
	if lines[0] != "- [turn 2] Player: attack | Narrator: hit" {
		t.Fatalf("first line = %q", lines[0])
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"héllo", 3, "hé…"},
		{"héllo", 5, "héllo"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.in, tt.limit); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{`noise {"a":{"b":1}} trailing }`, `{"a":{"b":1}}`, true},
		{`{"narrative":"a } inside \" quote"}`, `{"narrative":"a } inside \" quote"}`, true},
		{`{"unterminated":`, "", false},
		{"no braces", "", false},
	}
	for _, tt := range tests {
		got, ok := firstJSONObject(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("firstJSONObject(%q) = %q, %v", tt.in, got, ok)
		}
	}
}
