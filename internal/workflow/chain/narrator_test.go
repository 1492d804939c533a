package chain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	wfmodel "rpg-narrative-api/internal/workflow/model"
)

type stubChatModel struct {
	reply string
	err   error
	seen  []*schema.Message
}

func (m *stubChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.seen = input
	if m.err != nil {
		return nil, m.err
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: m.reply,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 40, CompletionTokens: 12},
		},
	}, nil
}

func (m *stubChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

type stubFactory struct {
	model *stubChatModel
	asked string
}

func (f *stubFactory) Get(_ context.Context, name string) (model.BaseChatModel, error) {
	f.asked = name
	return f.model, nil
}

func TestNarratorChain_Invoke(t *testing.T) {
	cm := &stubChatModel{reply: `{"narrative":"Steel rings.","enemy_health_change":-1}`}
	f := &stubFactory{model: cm}
	c := NewNarratorChain(f)

	out, err := c.Invoke(context.Background(), &wfmodel.NarrateInput{
		Provider:      "gemini",
		CampaignID:    "c1",
		Action:        "attack goblin",
		PreviousTurns: []wfmodel.PastTurn{{SequenceIndex: 1, PlayerAction: "enter", Narrative: "A goblin waits."}},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if f.asked != "gemini" {
		t.Fatalf("provider = %q", f.asked)
	}
	if out.Narrative != "Steel rings." || !out.Structured || out.Directives.EnemyHPDelta != -1 {
		t.Fatalf("unexpected output %+v", out)
	}
	if out.Usage == nil || out.Usage.PromptTokens != 40 {
		t.Fatalf("usage not propagated: %+v", out.Usage)
	}
	if len(cm.seen) != 2 || !strings.Contains(cm.seen[1].Content, "[turn 1] Player: enter") {
		t.Fatalf("prompt missing previous turns: %+v", cm.seen)
	}
}

func TestNarratorChain_Errors(t *testing.T) {
	boom := errors.New("boom")
	c := NewNarratorChain(&stubFactory{model: &stubChatModel{err: boom}})
	if _, err := c.Invoke(context.Background(), &wfmodel.NarrateInput{Action: "x"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := c.Invoke(context.Background(), &wfmodel.NarrateInput{}); err == nil {
		t.Fatal("empty action should fail")
	}
	empty := NewNarratorChain(&stubFactory{model: &stubChatModel{reply: "  "}})
	if _, err := empty.Invoke(context.Background(), &wfmodel.NarrateInput{Action: "x"}); err == nil {
		t.Fatal("empty reply should fail")
	}
}
