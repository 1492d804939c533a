package service

import (
	"context"
	"testing"
)

func TestLLMCallRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   *LLMCall
		want LLMCall
	}{
		{"untagged", nil, LLMCall{Workflow: "unknown", Provider: "unknown"}},
		{"trimmed", &LLMCall{Workflow: " narrate ", Provider: "openai", CampaignID: " c-1 "},
			LLMCall{Workflow: "narrate", Provider: "openai", CampaignID: "c-1"}},
		{"blank provider", &LLMCall{Workflow: "narrate", Provider: "  "},
			LLMCall{Workflow: "narrate", Provider: "unknown"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.in != nil {
				ctx = WithLLMCall(ctx, *tt.in)
			}
			if got := LLMCallFrom(ctx); got != tt.want {
				t.Fatalf("LLMCallFrom() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
