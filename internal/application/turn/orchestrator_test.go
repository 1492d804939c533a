package turn

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"rpg-narrative-api/internal/domain/combat"
	wfmodel "rpg-narrative-api/internal/workflow/model"
	apperrors "rpg-narrative-api/pkg/errors"
)

func TestProcessNonCombatTurn(t *testing.T) {
	h := newHarness(echoNarrator())
	h.seedCampaign("c1")

	res, err := h.orch.Process(context.Background(), Request{CampaignID: "c1", Text: "look around the valley"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Turn.SequenceIndex != 0 {
		t.Fatalf("sequence = %d, want 0", res.Turn.SequenceIndex)
	}
	if res.Turn.IsCombatTurn || res.Outcome.Kind != combat.ActionNonCombat {
		t.Fatalf("outcome = %+v, want non-combat", res.Outcome)
	}
	wantStages := []Stage{
		StageReceivedAction, StageResolvingCombat, StageRetrievingContext,
		StageAwaitingGeneration, StagePersistingTurn, StageComplete,
	}
	if fmt.Sprint(res.Stages) != fmt.Sprint(wantStages) {
		t.Fatalf("stages = %v, want %v", res.Stages, wantStages)
	}
	if len(res.Context) != 0 {
		t.Fatalf("first turn context = %v, want empty", res.Context)
	}

	hits, err := h.store.Query(context.Background(), "c1", []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Entry.TurnID != res.Turn.ID {
		t.Fatalf("vector entries = %+v, want the new turn", hits)
	}
	if len(h.publisher.events) != 1 || h.publisher.events[0].TurnID != res.Turn.ID {
		t.Fatalf("published = %+v", h.publisher.events)
	}
}

func TestProcessNarrativePhrasesOutsideCombat(t *testing.T) {
	phrases := []string{"run to the tavern", "hit the road", "escape the dungeon", "fight the urge to sleep", "flee"}
	for _, text := range phrases {
		t.Run(text, func(t *testing.T) {
			h := newHarness(echoNarrator())
			h.seedCampaign("c1")

			res, err := h.orch.Process(context.Background(), Request{CampaignID: "c1", Text: text})
			if err != nil {
				t.Fatalf("Process(%q) error = %v", text, err)
			}
			if res.Outcome.Kind != combat.ActionNonCombat || res.Turn.IsCombatTurn {
				t.Fatalf("outcome = %+v, want non-combat", res.Outcome)
			}
			if res.Turn.PlayerAction != text {
				t.Fatalf("player action = %q, want %q", res.Turn.PlayerAction, text)
			}
			if h.db.turnCount() != 1 {
				t.Fatalf("turns = %d, want 1", h.db.turnCount())
			}
		})
	}
}

func TestProcessRetrievesPriorTurns(t *testing.T) {
	var last *wfmodel.NarrateInput
	h := newHarness(func(ctx context.Context, in *wfmodel.NarrateInput) (*wfmodel.NarrateOutput, error) {
		last = in
		return echoNarrator()(ctx, in)
	})
	h.seedCampaign("c1")

	actions := []string{"open the old door", "light a torch", "read the inscription", "open the old door again"}
	var res *Result
	for _, a := range actions {
		var err error
		res, err = h.orch.Process(context.Background(), Request{CampaignID: "c1", Text: a})
		if err != nil {
			t.Fatalf("Process(%q) error = %v", a, err)
		}
	}
	if res.Turn.SequenceIndex != 3 {
		t.Fatalf("sequence = %d, want 3", res.Turn.SequenceIndex)
	}
	if len(res.Context) != 3 {
		t.Fatalf("context size = %d, want 3", len(res.Context))
	}
	for _, c := range res.Context {
		if c.SequenceIndex >= 3 {
			t.Fatalf("context includes current or future turn %d", c.SequenceIndex)
		}
	}
	if len(last.PreviousTurns) != 3 {
		t.Fatalf("narrator saw %d previous turns, want 3", len(last.PreviousTurns))
	}
}

func TestProcessIncludesRecentTurns(t *testing.T) {
	var last *wfmodel.NarrateInput
	h := newHarness(func(ctx context.Context, in *wfmodel.NarrateInput) (*wfmodel.NarrateOutput, error) {
		last = in
		return echoNarrator()(ctx, in)
	})
	h.orch.cfg.ContextWindow = 1
	h.orch.cfg.RecentTurns = 2
	h.seedCampaign("c1")

	for _, a := range []string{"climb the ridge", "set up camp", "cook a stew", "climb the ridge at dawn"} {
		if _, err := h.orch.Process(context.Background(), Request{CampaignID: "c1", Text: a}); err != nil {
			t.Fatalf("Process(%q) error = %v", a, err)
		}
	}

	if len(last.PreviousTurns) != 1 {
		t.Fatalf("previous turns = %d, want 1", len(last.PreviousTurns))
	}
	retrieved := last.PreviousTurns[0].SequenceIndex
	if len(last.RecentTurns) == 0 {
		t.Fatal("recent turns empty")
	}
	for i, r := range last.RecentTurns {
		if r.SequenceIndex != 1 && r.SequenceIndex != 2 {
			t.Fatalf("recent turn %d outside the last two", r.SequenceIndex)
		}
		if r.SequenceIndex == retrieved {
			t.Fatalf("recent turn %d duplicates the retrieved one", r.SequenceIndex)
		}
		if i > 0 && r.SequenceIndex <= last.RecentTurns[i-1].SequenceIndex {
			t.Fatalf("recent turns not ascending: %+v", last.RecentTurns)
		}
	}
}

func TestProcessConcurrentTurnsGetDenseSequence(t *testing.T) {
	h := newHarness(echoNarrator())
	h.seedCampaign("c1")

	const n = 8
	var wg sync.WaitGroup
	seqs := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.orch.Process(context.Background(), Request{CampaignID: "c1", Text: fmt.Sprintf("step %d", i)})
			errs[i] = err
			if err == nil {
				seqs[i] = res.Turn.SequenceIndex
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("turn %d error = %v", i, err)
		}
	}
	sort.Ints(seqs)
	for i, s := range seqs {
		if s != i {
			t.Fatalf("sequences = %v, want 0..%d", seqs, n-1)
		}
	}
	if got := h.db.campaigns["c1"].TurnCount; got != n {
		t.Fatalf("turn count = %d, want %d", got, n)
	}
}

func TestProcessGenerationFailurePersistsNothing(t *testing.T) {
	var calls int32
	h := newHarness(func(context.Context, *wfmodel.NarrateInput) (*wfmodel.NarrateOutput, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("model overloaded")
	})
	h.seedCampaign("c1")
	h.seedEncounter("c1", 10)

	_, err := h.orch.Process(context.Background(), Request{
		CampaignID: "c1",
		Text:       "attack Goblin with dagger, roll=15, damage roll=4",
	})
	if !errors.Is(err, apperrors.ErrOracleUnavailable) {
		t.Fatalf("error = %v, want ErrOracleUnavailable", err)
	}
	if stage, _ := FailedStage(err); stage != StageAwaitingGeneration {
		t.Fatalf("failed stage = %q, want %q", stage, StageAwaitingGeneration)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("narrator calls = %d, want 2", got)
	}
	if h.db.turnCount() != 0 || h.db.campaigns["c1"].TurnCount != 0 {
		t.Fatalf("turn persisted after generation failure")
	}
	idx, _ := h.db.states["c1"].State.Find("Goblin")
	if hp := h.db.states["c1"].State.Participants[idx].CurrentHP; hp != 10 {
		t.Fatalf("goblin hp = %d, want untouched 10", hp)
	}
}

func TestProcessCombatTurnAppliesDirectives(t *testing.T) {
	h := newHarness(func(_ context.Context, in *wfmodel.NarrateInput) (*wfmodel.NarrateOutput, error) {
		return &wfmodel.NarrateOutput{
			Narrative:  "Your blade bites deep and the goblin stumbles.",
			Directives: combat.Directives{EnemyHPDelta: -2},
			Structured: true,
		}, nil
	})
	h.seedCampaign("c1")
	h.seedEncounter("c1", 10)

	res, err := h.orch.Process(context.Background(), Request{
		CampaignID: "c1",
		Text:       "attack Goblin with dagger, roll=15, damage roll=4",
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !res.Turn.IsCombatTurn || !res.Outcome.Hit {
		t.Fatalf("outcome = %+v, want a combat hit", res.Outcome)
	}
	stored := h.db.states["c1"].State
	idx, _ := stored.Find("Goblin")
	if hp := stored.Participants[idx].CurrentHP; hp != 4 {
		t.Fatalf("goblin hp = %d, want 4", hp)
	}
	if h.db.states["c1"].Version != 2 {
		t.Fatalf("combat state version = %d, want 2", h.db.states["c1"].Version)
	}
}

func TestProcessStaleCombatStateConflicts(t *testing.T) {
	h := newHarness(echoNarrator())
	h.seedCampaign("c1")
	h.seedEncounter("c1", 10)
	// 另一个写入方在本回合读取之后推进了版本
	h.db.beforeStateSave = func() {
		h.db.mu.Lock()
		rec := h.db.states["c1"]
		rec.Version++
		h.db.states["c1"] = rec
		h.db.mu.Unlock()
	}

	_, err := h.orch.Process(context.Background(), Request{
		CampaignID: "c1",
		Text:       "attack Goblin with dagger, roll=15, damage roll=4",
	})
	if !errors.Is(err, apperrors.ErrStateConflict) {
		t.Fatalf("error = %v, want ErrStateConflict", err)
	}
	if stage, _ := FailedStage(err); stage != StagePersistingTurn {
		t.Fatalf("failed stage = %q, want %q", stage, StagePersistingTurn)
	}
	if h.db.turnCount() != 0 {
		t.Fatal("turn persisted over a newer combat state")
	}
	hits, err := h.store.Query(context.Background(), "c1", []float32{1}, 5)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("vector entries = %d, want 0", len(hits))
	}
}

func TestProcessInvalidTargetFailsEarly(t *testing.T) {
	h := newHarness(echoNarrator())
	h.seedCampaign("c1")
	h.seedEncounter("c1", 10)

	_, err := h.orch.Process(context.Background(), Request{CampaignID: "c1", Text: "attack Dragon"})
	if !errors.Is(err, apperrors.ErrInvalidTarget) {
		t.Fatalf("error = %v, want ErrInvalidTarget", err)
	}
	if stage, _ := FailedStage(err); stage != StageResolvingCombat {
		t.Fatalf("failed stage = %q", stage)
	}
}

func TestProcessInsertRetries(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		wantErr  error
		turns    int
	}{
		{name: "recovers within retries", failures: 2, turns: 1},
		{name: "exhausted rolls back", failures: 10, wantErr: apperrors.ErrInsertInconsistency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(echoNarrator())
			h.seedCampaign("c1")
			h.ns.failures = tt.failures

			_, err := h.orch.Process(context.Background(), Request{CampaignID: "c1", Text: "wait"})
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if stage, _ := FailedStage(err); stage != StagePersistingTurn {
					t.Fatalf("failed stage = %q", stage)
				}
			}
			if got := h.db.turnCount(); got != tt.turns {
				t.Fatalf("turns = %d, want %d", got, tt.turns)
			}
			if got := h.db.campaigns["c1"].TurnCount; got != tt.turns {
				t.Fatalf("turn count = %d, want %d", got, tt.turns)
			}
		})
	}
}

func TestProcessCommitFailureRemovesVector(t *testing.T) {
	h := newHarness(echoNarrator())
	h.seedCampaign("c1")
	h.db.commitErr = errors.New("connection reset")

	if _, err := h.orch.Process(context.Background(), Request{CampaignID: "c1", Text: "wait"}); err == nil {
		t.Fatalf("Process() error = nil, want commit failure")
	}
	hits, err := h.store.Query(context.Background(), "c1", []float32{1}, 5)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("vector entries = %d, want 0 after compensation", len(hits))
	}
	if h.db.turnCount() != 0 {
		t.Fatalf("turn persisted after commit failure")
	}
}

func TestProcessRejects(t *testing.T) {
	h := newHarness(echoNarrator())
	ended := h.seedCampaign("ended")
	ended.End()
	h.db.addCampaign(ended)

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{name: "empty text", req: Request{CampaignID: "ended", Text: "  "}, wantErr: apperrors.ErrInvalidInput},
		{name: "missing campaign", req: Request{CampaignID: "nope", Text: "wait"}, wantErr: apperrors.ErrCampaignNotFound},
		{name: "ended campaign", req: Request{CampaignID: "ended", Text: "wait"}, wantErr: apperrors.ErrCampaignEnded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.orch.Process(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if stage, _ := FailedStage(err); stage != StageReceivedAction {
				t.Fatalf("failed stage = %q, want %q", stage, StageReceivedAction)
			}
		})
	}
}

func TestProcessCancelledBeforeGeneration(t *testing.T) {
	var calls int32
	h := newHarness(func(ctx context.Context, in *wfmodel.NarrateInput) (*wfmodel.NarrateOutput, error) {
		atomic.AddInt32(&calls, 1)
		return echoNarrator()(ctx, in)
	})
	h.seedCampaign("c1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.orch.Process(ctx, Request{CampaignID: "c1", Text: "wait"}); err == nil {
		t.Fatalf("Process() error = nil, want cancellation")
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("narrator called after cancellation")
	}
	if h.db.turnCount() != 0 {
		t.Fatalf("turn persisted after cancellation")
	}
}

func TestProcessSameSeedSameOutcome(t *testing.T) {
	seed := int64(42)
	run := func() combat.Outcome {
		h := newHarness(echoNarrator())
		h.seedCampaign("c1")
		h.seedEncounter("c1", 10)
		res, err := h.orch.Process(context.Background(), Request{CampaignID: "c1", Text: "attack Goblin", Seed: &seed})
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		return res.Outcome
	}
	a, b := run(), run()
	if fmt.Sprintf("%+v", a) != fmt.Sprintf("%+v", b) {
		t.Fatalf("outcomes differ for same seed:\n%+v\n%+v", a, b)
	}
}
