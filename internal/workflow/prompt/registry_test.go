package prompt

import (
	"context"
	"strings"
	"testing"
)

func TestRegistry_NarratorTemplate(t *testing.T) {
	r := NewRegistry()
	tpl, err := r.ChatTemplate(PromptNarratorV1)
	if err != nil {
		t.Fatalf("ChatTemplate: %v", err)
	}
	again, _ := r.ChatTemplate(PromptNarratorV1)
	if tpl != again {
		t.Fatal("template should be cached")
	}

	msgs, err := tpl.Format(context.Background(), map[string]any{
		"setting":        "a ruined keep",
		"character":      "Aria, ranger",
		"combat":         "no combat",
		"recent_turns":   "- (none)",
		"previous_turns": "- (no prior turns)",
		"action":         "look around",
	})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, `{"narrative": "..."`) {
		t.Fatalf("escaped braces not rendered: %q", msgs[0].Content)
	}
	if !strings.Contains(msgs[1].Content, `Player action: "look around"`) {
		t.Fatalf("user message missing action: %q", msgs[1].Content)
	}
}

func TestRegistry_UnknownPrompt(t *testing.T) {
	if _, err := NewRegistry().ChatTemplate("nope"); err == nil {
		t.Fatal("expected error for unknown prompt")
	}
}
