package turn

import (
	"context"
	"errors"
	"testing"
)

func TestMachineAdvancesInOrder(t *testing.T) {
	m := newMachine(context.Background())
	for _, s := range []Stage{StageResolvingCombat, StageRetrievingContext, StageAwaitingGeneration, StagePersistingTurn, StageComplete} {
		m.advance(s)
	}
	if !m.stage.Terminal() {
		t.Fatalf("stage = %q, want terminal", m.stage)
	}

	cause := errors.New("late")
	if err := m.fail(cause); err != cause {
		t.Fatalf("fail() after complete = %v, want cause unchanged", err)
	}
}

func TestMachineRejectsSkippedStage(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("advance() did not panic on skipped stage")
		}
	}()
	m := newMachine(context.Background())
	m.advance(StageAwaitingGeneration)
}

func TestMachineFailRecordsStage(t *testing.T) {
	m := newMachine(context.Background())
	m.advance(StageResolvingCombat)

	cause := errors.New("boom")
	err := m.fail(cause)
	if !errors.Is(err, cause) {
		t.Fatalf("fail() = %v, want wrapping cause", err)
	}
	stage, ok := FailedStage(err)
	if !ok || stage != StageResolvingCombat {
		t.Fatalf("FailedStage() = %q, %v", stage, ok)
	}
	if got := m.history[len(m.history)-1]; got != StageFailed {
		t.Fatalf("last stage = %q, want failed", got)
	}
}
