package worker

import (
	"context"
	"errors"
	"testing"

	"rpg-narrative-api/internal/infrastructure/messaging"
)

type fakeReindexer struct {
	campaigns []string
	err       error
}

func (f *fakeReindexer) Reindex(_ context.Context, id string) (int, error) {
	f.campaigns = append(f.campaigns, id)
	return 3, f.err
}

type fakeArchive struct {
	events map[string][]any
}

func (f *fakeArchive) Append(_ context.Context, id string, evt any) error {
	f.events[id] = append(f.events[id], evt)
	return nil
}

type fakeCache struct{ invalidated []string }

func (f *fakeCache) InvalidateCampaign(_ context.Context, id string) error {
	f.invalidated = append(f.invalidated, id)
	return nil
}

func mustMessage(t *testing.T, typ, campaignID string, payload any) *messaging.Message {
	t.Helper()
	msg, err := messaging.NewMessage("m1", typ, campaignID, payload)
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	return msg
}

func TestHandleTurnCompleted(t *testing.T) {
	archive := &fakeArchive{events: map[string][]any{}}
	cache := &fakeCache{}
	h := NewHandlers(&fakeReindexer{}, archive, cache)

	msg := mustMessage(t, messaging.TypeTurnCompleted, "c1", &messaging.TurnCompletedMessage{
		TurnID: "t1", SequenceIndex: 4, IsCombatEnding: true, EndReason: "victory",
	})
	if err := h.HandleTurnCompleted(context.Background(), msg); err != nil {
		t.Fatalf("HandleTurnCompleted() error = %v", err)
	}
	if len(archive.events["c1"]) != 1 {
		t.Fatalf("archived = %v, want one event under message campaign", archive.events)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "c1" {
		t.Fatalf("invalidated = %v", cache.invalidated)
	}
}

func TestHandleMemoryReindex(t *testing.T) {
	tests := []struct {
		name       string
		campaignID string
		payload    *messaging.MemoryReindexMessage
		reindexErr error
		wantErr    bool
		wantCalls  int
	}{
		{name: "payload campaign", payload: &messaging.MemoryReindexMessage{CampaignID: "c1"}, wantCalls: 1},
		{name: "envelope campaign", campaignID: "c2", payload: &messaging.MemoryReindexMessage{}, wantCalls: 1},
		{name: "missing campaign", payload: &messaging.MemoryReindexMessage{}, wantErr: true},
		{name: "reindex failure", payload: &messaging.MemoryReindexMessage{CampaignID: "c1"}, reindexErr: errors.New("milvus down"), wantErr: true, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeReindexer{err: tt.reindexErr}
			h := NewHandlers(r, &fakeArchive{events: map[string][]any{}}, nil)
			err := h.HandleMemoryReindex(context.Background(), mustMessage(t, messaging.TypeMemoryReindex, tt.campaignID, tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(r.campaigns) != tt.wantCalls {
				t.Fatalf("reindex calls = %d, want %d", len(r.campaigns), tt.wantCalls)
			}
		})
	}
}
