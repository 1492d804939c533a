package turn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rpg-narrative-api/pkg/logger"
	"rpg-narrative-api/pkg/metrics"
)

// Stage 回合处理阶段
type Stage string

const (
	StageReceivedAction     Stage = "received_action"
	StageResolvingCombat    Stage = "resolving_combat"
	StageRetrievingContext  Stage = "retrieving_context"
	StageAwaitingGeneration Stage = "awaiting_generation"
	StagePersistingTurn     Stage = "persisting_turn"
	StageComplete           Stage = "complete"
	StageFailed             Stage = "failed"
)

// next 正常流程中的后继阶段
var next = map[Stage]Stage{
	StageReceivedAction:     StageResolvingCombat,
	StageResolvingCombat:    StageRetrievingContext,
	StageRetrievingContext:  StageAwaitingGeneration,
	StageAwaitingGeneration: StagePersistingTurn,
	StagePersistingTurn:     StageComplete,
}

// Terminal 是否为终止状态
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// Error 回合失败，Stage 为失败发生时所处的阶段
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("turn failed at %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FailedStage 取出失败阶段
func FailedStage(err error) (Stage, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Stage, true
	}
	return "", false
}

// machine 记录一次回合的状态流转与各阶段耗时
type machine struct {
	ctx     context.Context
	stage   Stage
	entered time.Time
	history []Stage
}

func newMachine(ctx context.Context) *machine {
	m := &machine{stage: StageReceivedAction, entered: time.Now()}
	m.ctx = logger.WithContext(ctx, logger.StageKey, string(m.stage))
	m.history = append(m.history, m.stage)
	return m
}

func (m *machine) observe() {
	metrics.TurnStageDuration.WithLabelValues(string(m.stage)).Observe(time.Since(m.entered).Seconds())
}

// advance 进入下一阶段，只允许按固定顺序前进
func (m *machine) advance(to Stage) {
	if want, ok := next[m.stage]; !ok || want != to {
		panic(fmt.Sprintf("turn: illegal transition %s -> %s", m.stage, to))
	}
	m.observe()
	m.stage = to
	m.entered = time.Now()
	m.history = append(m.history, to)
	m.ctx = logger.WithContext(m.ctx, logger.StageKey, string(to))
	logger.Debug(m.ctx, "turn stage entered")

	if to == StageComplete {
		metrics.TurnTotal.WithLabelValues("success", "").Inc()
	}
}

// fail 从任一非终止阶段转入 Failed
func (m *machine) fail(err error) error {
	if m.stage.Terminal() {
		return err
	}
	failed := m.stage
	m.observe()
	m.stage = StageFailed
	m.history = append(m.history, StageFailed)
	metrics.TurnTotal.WithLabelValues("failed", string(failed)).Inc()
	logger.Warn(m.ctx, "turn failed", "failed_stage", string(failed), "error", err.Error())
	return &Error{Stage: failed, Err: err}
}
