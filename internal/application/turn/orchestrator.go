// Package turn 编排一次回合的完整处理流程
//
// 流程为 ReceivedAction → ResolvingCombat → RetrievingContext → AwaitingGeneration →
// PersistingTurn → Complete，任一非终止阶段出错即转入 Failed。同一战役的回合在战役锁内串行执行，
// 生成失败不会写入任何数据。
package turn

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"rpg-narrative-api/internal/application/memory"
	"rpg-narrative-api/internal/application/rerank"
	"rpg-narrative-api/internal/config"
	"rpg-narrative-api/internal/domain/combat"
	"rpg-narrative-api/internal/domain/dice"
	"rpg-narrative-api/internal/domain/entity"
	"rpg-narrative-api/internal/domain/repository"
	"rpg-narrative-api/internal/infrastructure/messaging"
	wfmodel "rpg-narrative-api/internal/workflow/model"
	apperrors "rpg-narrative-api/pkg/errors"
	"rpg-narrative-api/pkg/logger"
	"rpg-narrative-api/pkg/metrics"
)

var tracer = otel.Tracer("turn")

// Config 编排参数
type Config struct {
	ContextWindow     int
	CandidatePool     int
	GenerationTimeout time.Duration
	EmbeddingTimeout  time.Duration
	OracleMaxRetries  int
	InsertMaxRetries  int
	Backoff           messaging.BackoffConfig

	// RecentTurns 按时间顺序附带的最近回合数，0 表示不附带
	RecentTurns int

	// Provider 叙事模型提供商，空为默认
	Provider string
}

// ConfigFrom 从应用配置提取编排参数
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		ContextWindow:     cfg.Turn.ContextWindow,
		CandidatePool:     cfg.Turn.CandidatePool,
		GenerationTimeout: cfg.Turn.GenerationTimeout,
		EmbeddingTimeout:  cfg.Turn.EmbeddingTimeout,
		OracleMaxRetries:  cfg.Turn.OracleMaxRetries,
		InsertMaxRetries:  cfg.Turn.InsertMaxRetries,
		Backoff: messaging.BackoffConfig{
			Initial:    cfg.Turn.RetryBackoff.Initial,
			Max:        cfg.Turn.RetryBackoff.Max,
			Multiplier: cfg.Turn.RetryBackoff.Multiplier,
		},
		Provider:    cfg.LLM.DefaultProvider,
		RecentTurns: cfg.Turn.RecentTurns,
	}
}

func (c Config) withDefaults() Config {
	if c.ContextWindow <= 0 {
		c.ContextWindow = 3
	}
	if c.CandidatePool < c.ContextWindow {
		c.CandidatePool = c.ContextWindow
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 30 * time.Second
	}
	if c.EmbeddingTimeout <= 0 {
		c.EmbeddingTimeout = 10 * time.Second
	}
	if c.OracleMaxRetries < 0 {
		c.OracleMaxRetries = 0
	}
	if c.InsertMaxRetries < 0 {
		c.InsertMaxRetries = 0
	}
	if c.RecentTurns < 0 {
		c.RecentTurns = 0
	}
	if c.Backoff.Initial <= 0 {
		c.Backoff = messaging.BackoffConfig{Initial: 200 * time.Millisecond, Max: 2 * time.Second, Multiplier: 2}
	}
	return c
}

// Dependencies 编排器依赖；Publisher、Cache、Quota 可为空
type Dependencies struct {
	Transactor   repository.Transactor
	Campaigns    repository.CampaignRepository
	Characters   repository.CharacterRepository
	Turns        repository.TurnRepository
	CombatStates repository.CombatStateRepository

	Memory   *memory.Store
	Reranker *rerank.Reranker
	Resolver *combat.Resolver
	Embedder Embedder
	Narrator Narrator
	Locker   Locker

	Publisher EventPublisher
	Cache     CacheInvalidator
	Quota     QuotaChecker
}

// Orchestrator 回合编排器
type Orchestrator struct {
	cfg Config
	Dependencies

	now   func() time.Time
	newID func() string
	seed  func() (int64, error)
}

// NewOrchestrator 创建回合编排器
func NewOrchestrator(cfg Config, deps Dependencies) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg.withDefaults(),
		Dependencies: deps,
		now:          time.Now,
		newID:        uuid.NewString,
		seed:         dice.NewSeed,
	}
}

// Request 一次玩家行动
type Request struct {
	CampaignID string
	Text       string

	// Action 客户端给出的结构化行动，为空时从 Text 解析
	Action *combat.Action

	// Seed 指定随机种子以复现结算
	Seed *int64
}

// Result 回合处理结果
type Result struct {
	Turn        *entity.Turn   `json:"turn"`
	Outcome     combat.Outcome `json:"outcome"`
	CombatState combat.State   `json:"combat_state"`
	Context     []ContextTurn  `json:"context"`
	Structured  bool           `json:"structured_narration"`
	Stages      []Stage        `json:"stages"`
}

// Process 处理一次玩家行动
func (o *Orchestrator) Process(ctx context.Context, req Request) (*Result, error) {
	req.CampaignID = strings.TrimSpace(req.CampaignID)
	ctx = logger.WithContext(ctx, logger.CampaignIDKey, req.CampaignID)
	ctx, span := tracer.Start(ctx, "turn.Process",
		trace.WithAttributes(attribute.String("campaign_id", req.CampaignID)))
	defer span.End()

	m := newMachine(ctx)
	res, err := o.process(ctx, m, req)
	if err != nil {
		err = m.fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("turn_id", res.Turn.ID),
		attribute.Int("sequence_index", res.Turn.SequenceIndex),
	)
	return res, nil
}

func (o *Orchestrator) process(ctx context.Context, m *machine, req Request) (*Result, error) {
	// ReceivedAction
	if req.CampaignID == "" {
		return nil, apperrors.ErrInvalidInput.WithDetail("campaign_id is required")
	}
	action, parsed, err := buildAction(req)
	if err != nil {
		return nil, err
	}

	lockStart := time.Now()
	release, err := o.Locker.Acquire(ctx, req.CampaignID)
	metrics.TurnLockWait.Observe(time.Since(lockStart).Seconds())
	if err != nil {
		return nil, err
	}
	defer release()

	metrics.ActiveCampaignTurns.Inc()
	defer metrics.ActiveCampaignTurns.Dec()

	campaign, err := o.Campaigns.GetByID(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.IsEnded() {
		return nil, apperrors.ErrCampaignEnded.WithDetail(campaign.ID)
	}
	if o.Quota != nil {
		if _, _, err := o.Quota.CheckDailyTokens(ctx, campaign.ID); err != nil {
			return nil, err
		}
	}

	// ResolvingCombat
	m.advance(StageResolvingCombat)
	record, err := o.CombatStates.Get(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	if parsed {
		action = action.InContext(record.State)
	}
	seed, err := o.pickSeed(req.Seed)
	if err != nil {
		return nil, err
	}
	state, outcome, err := o.resolve(record.State, action, seed)
	if err != nil {
		return nil, err
	}

	// RetrievingContext
	m.advance(StageRetrievingContext)
	pkg, err := o.retrieve(ctx, campaign, action, outcome, state)
	if err != nil {
		return nil, err
	}

	// 外部生成调用开始之后不再响应取消
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// AwaitingGeneration
	m.advance(StageAwaitingGeneration)
	ctx = context.WithoutCancel(ctx)
	gen, err := o.generate(ctx, pkg)
	if err != nil {
		return nil, apperrors.ErrOracleUnavailable.WithError(err)
	}
	final, extra := o.Resolver.ApplyDirectives(state, gen.Directives)
	outcome = outcome.Merge(extra)

	// PersistingTurn
	m.advance(StagePersistingTurn)
	turn := &entity.Turn{
		ID:                   o.newID(),
		CampaignID:           campaign.ID,
		PlayerAction:         action.Text,
		NarrativeResponse:    gen.Narrative,
		ActionKind:           string(outcome.Kind),
		IsCombatTurn:         outcome.Mechanical,
		Outcome:              &outcome,
		CombatState:          final,
		ParticipantsAffected: outcome.ParticipantsAffected,
		Seed:                 seed,
		Timestamp:            o.now(),
	}
	if err := o.persist(ctx, turn, record.Version); err != nil {
		return nil, err
	}

	m.advance(StageComplete)
	o.afterCommit(ctx, turn, outcome)

	return &Result{
		Turn:        turn,
		Outcome:     outcome,
		CombatState: final,
		Context:     pkg.Turns,
		Structured:  gen.Structured,
		Stages:      append([]Stage(nil), m.history...),
	}, nil
}

// buildAction parsed 表示行动由自由文本解析而来
func buildAction(req Request) (action combat.Action, parsed bool, err error) {
	text := strings.TrimSpace(req.Text)
	if req.Action != nil {
		action = *req.Action
		if strings.TrimSpace(action.Text) == "" {
			action.Text = text
		}
		if action.Kind == "" {
			action.Kind = combat.ActionNonCombat
		}
	} else {
		action, parsed = combat.ParseAction(text), true
	}
	if strings.TrimSpace(action.Text) == "" {
		return combat.Action{}, false, apperrors.ErrInvalidInput.WithDetail("action text is required")
	}
	return action, parsed, nil
}

func (o *Orchestrator) pickSeed(seed *int64) (int64, error) {
	if seed != nil {
		return *seed, nil
	}
	return o.seed()
}

// resolve 战斗进行中或行动声明了战斗意图时才调用结算
func (o *Orchestrator) resolve(state combat.State, action combat.Action, seed int64) (combat.State, combat.Outcome, error) {
	if !state.Active && !action.Kind.IsCombat() {
		return state.Clone(), combat.Outcome{
			Kind:          combat.ActionNonCombat,
			NarrativeHint: "no combat mechanics apply",
			RoundIndex:    state.RoundIndex,
		}, nil
	}

	next, outcome, err := o.Resolver.Resolve(state, action, dice.NewSource(seed))
	if err != nil {
		metrics.CombatActionsTotal.WithLabelValues(string(action.Kind), "rejected").Inc()
		return state, combat.Outcome{}, err
	}
	metrics.CombatActionsTotal.WithLabelValues(string(outcome.Kind), combatResult(outcome)).Inc()
	return next, outcome, nil
}

func combatResult(o combat.Outcome) string {
	switch o.Kind {
	case combat.ActionAttack, combat.ActionSpell:
		if o.Hit {
			return "hit"
		}
		if o.Mechanical {
			return "miss"
		}
	case combat.ActionFlee:
		if o.EndReason == combat.EndFled {
			return "fled"
		}
		return "failed"
	case combat.ActionEngage:
		return "started"
	}
	return "none"
}

// retrieve 并行完成行动向量化与角色读取，随后召回并重排历史回合
func (o *Orchestrator) retrieve(ctx context.Context, campaign *entity.Campaign, action combat.Action, outcome combat.Outcome, state combat.State) (*ContextPackage, error) {
	var (
		vec       []float32
		character *entity.Character
		recent    []*entity.Turn
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := o.embed(gctx, action.Text)
		if err != nil {
			return apperrors.ErrOracleUnavailable.WithError(err)
		}
		vec = v
		return nil
	})
	g.Go(func() error {
		chars, err := o.Characters.ListByCampaign(gctx, campaign.ID)
		if err != nil {
			return err
		}
		if len(chars) > 0 {
			character = chars[0]
		}
		return nil
	})
	if o.cfg.RecentTurns > 0 && campaign.TurnCount > 0 {
		g.Go(func() error {
			rows, err := o.Turns.GetRecent(gctx, campaign.ID, o.cfg.RecentTurns)
			recent = rows
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates, err := o.Memory.Query(ctx, campaign.ID, vec, o.cfg.CandidatePool)
	if err != nil {
		return nil, err
	}
	metrics.RerankCandidates.Observe(float64(len(candidates)))

	ranked := o.Reranker.Rerank(candidates, rerank.Query{
		CurrentSequence: campaign.TurnCount,
		CombatAction:    outcome.Mechanical || state.Active,
		Window:          o.cfg.ContextWindow,
	})
	turns, err := o.loadContextTurns(ctx, ranked)
	if err != nil {
		return nil, err
	}

	return &ContextPackage{
		CampaignID:    campaign.ID,
		SequenceIndex: campaign.TurnCount,
		Setting:       campaign.Setting,
		Character:     character,
		Action:        action,
		Outcome:       outcome,
		CombatState:   state,
		Turns:         turns,
		Recent:        recentTurns(recent, turns),
	}, nil
}

// recentTurns 去掉已被召回的回合，保持升序
func recentTurns(rows []*entity.Turn, retrieved []ContextTurn) []ContextTurn {
	if len(rows) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(retrieved))
	for _, t := range retrieved {
		seen[t.TurnID] = true
	}
	out := make([]ContextTurn, 0, len(rows))
	for _, t := range rows {
		if seen[t.ID] {
			continue
		}
		out = append(out, ContextTurn{
			TurnID:        t.ID,
			SequenceIndex: t.SequenceIndex,
			PlayerAction:  t.PlayerAction,
			Narrative:     t.NarrativeResponse,
			IsCombatTurn:  t.IsCombatTurn,
		})
	}
	return out
}

// loadContextTurns 按重排顺序取回回合正文，缺失的回合跳过
func (o *Orchestrator) loadContextTurns(ctx context.Context, ranked []memory.Candidate) ([]ContextTurn, error) {
	if len(ranked) == 0 {
		return []ContextTurn{}, nil
	}
	ids := make([]string, 0, len(ranked))
	for _, c := range ranked {
		ids = append(ids, c.Entry.TurnID)
	}
	rows, err := o.Turns.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*entity.Turn, len(rows))
	for _, t := range rows {
		byID[t.ID] = t
	}

	out := make([]ContextTurn, 0, len(ranked))
	for _, c := range ranked {
		t, ok := byID[c.Entry.TurnID]
		if !ok {
			logger.Warn(ctx, "vector entry without turn row", "turn_id", c.Entry.TurnID)
			continue
		}
		out = append(out, ContextTurn{
			TurnID:          t.ID,
			SequenceIndex:   t.SequenceIndex,
			PlayerAction:    t.PlayerAction,
			Narrative:       t.NarrativeResponse,
			IsCombatTurn:    t.IsCombatTurn,
			SimilarityScore: c.SimilarityScore,
			RerankScore:     c.RerankScore,
		})
	}
	return out, nil
}

// embed 调用向量化服务，超时与重试次数受配置约束
func (o *Orchestrator) embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := o.retry(ctx, o.cfg.OracleMaxRetries, nil, func(ctx context.Context) error {
		actx, cancel := context.WithTimeout(ctx, o.cfg.EmbeddingTimeout)
		defer cancel()
		v, err := o.Embedder.Embed(actx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	return vec, err
}

// generate 调用叙事生成，每次尝试单独计时
func (o *Orchestrator) generate(ctx context.Context, pkg *ContextPackage) (*wfmodel.NarrateOutput, error) {
	in := pkg.NarrateInput(o.cfg.Provider)
	var out *wfmodel.NarrateOutput
	err := o.retry(ctx, o.cfg.OracleMaxRetries, nil, func(ctx context.Context) error {
		gctx, cancel := context.WithTimeout(ctx, o.cfg.GenerationTimeout)
		defer cancel()
		res, err := o.Narrator.Invoke(gctx, in)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// persist 在一个事务内写回合、推进序号、保存战斗状态并写入向量条目
//
// 向量写入失败按上限重试，仍失败则回滚事务；事务体成功但提交失败时删除已写入的向量条目。
func (o *Orchestrator) persist(ctx context.Context, turn *entity.Turn, version int) error {
	memVec, err := o.embed(ctx, turn.MemoryText())
	if err != nil {
		return apperrors.ErrOracleUnavailable.WithError(err)
	}

	bodyDone := false
	err = o.Transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		campaign, err := o.Campaigns.GetForUpdate(txCtx, turn.CampaignID)
		if err != nil {
			return err
		}
		if campaign.IsEnded() {
			return apperrors.ErrCampaignEnded.WithDetail(campaign.ID)
		}
		turn.SequenceIndex = campaign.NextSequence()

		if err := o.Turns.Create(txCtx, turn); err != nil {
			return err
		}
		if err := o.Campaigns.Update(txCtx, campaign); err != nil {
			return err
		}
		if err := o.CombatStates.Save(txCtx, &entity.CombatStateRecord{
			CampaignID: turn.CampaignID,
			State:      turn.CombatState,
			Version:    version,
		}); err != nil {
			return err
		}

		entry := memory.Entry{
			TurnID: turn.ID,
			Vector: memVec,
			Metadata: memory.Metadata{
				SequenceIndex: turn.SequenceIndex,
				Timestamp:     turn.Timestamp,
				IsCombatTurn:  turn.IsCombatTurn,
			},
		}
		onRetry := func() { metrics.MemoryInsertRetries.Inc() }
		if err := o.retry(txCtx, o.cfg.InsertMaxRetries, onRetry, func(ctx context.Context) error {
			return o.Memory.Insert(ctx, turn.CampaignID, entry)
		}); err != nil {
			return apperrors.ErrInsertInconsistency.WithError(err)
		}

		bodyDone = true
		return nil
	})
	if err != nil && bodyDone {
		if derr := o.Memory.Delete(ctx, turn.CampaignID, turn.ID); derr != nil {
			logger.Error(ctx, "failed to remove vector entry after commit failure", derr, "turn_id", turn.ID)
		}
	}
	return err
}

// afterCommit 提交后的附带动作，失败只记日志
func (o *Orchestrator) afterCommit(ctx context.Context, turn *entity.Turn, outcome combat.Outcome) {
	ctx = logger.WithContext(ctx, logger.TurnIDKey, turn.ID)
	logger.Info(ctx, "turn completed",
		"sequence_index", turn.SequenceIndex,
		"action_kind", turn.ActionKind,
		"combat_ending", outcome.IsCombatEnding,
	)

	if outcome.IsCombatEnding {
		metrics.CombatEndedTotal.WithLabelValues(string(outcome.EndReason)).Inc()
	}
	if o.Cache != nil {
		if err := o.Cache.InvalidateCampaign(ctx, turn.CampaignID); err != nil {
			logger.Warn(ctx, "failed to invalidate campaign cache", "error", err.Error())
		}
	}
	if o.Publisher != nil {
		_, err := o.Publisher.PublishTurnCompleted(ctx, &messaging.TurnCompletedMessage{
			CampaignID:     turn.CampaignID,
			TurnID:         turn.ID,
			SequenceIndex:  turn.SequenceIndex,
			ActionKind:     turn.ActionKind,
			IsCombatTurn:   turn.IsCombatTurn,
			IsCombatEnding: outcome.IsCombatEnding,
			EndReason:      string(outcome.EndReason),
			CompletedAt:    o.now(),
		})
		if err != nil {
			logger.Warn(ctx, "failed to publish turn completed event", "error", err.Error())
		}
	}
}

// retry 执行 op，失败后按退避重试至多 retries 次；上下文结束时立即返回
func (o *Orchestrator) retry(ctx context.Context, retries int, onRetry func(), op func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry()
			}
			timer := time.NewTimer(o.cfg.Backoff.Delay(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}
		if err = op(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
