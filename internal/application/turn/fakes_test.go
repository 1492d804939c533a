package turn

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"rpg-narrative-api/internal/application/memory"
	"rpg-narrative-api/internal/application/rerank"
	"rpg-narrative-api/internal/domain/combat"
	"rpg-narrative-api/internal/domain/entity"
	"rpg-narrative-api/internal/domain/repository"
	"rpg-narrative-api/internal/infrastructure/embedding"
	"rpg-narrative-api/internal/infrastructure/messaging"
	wfmodel "rpg-narrative-api/internal/workflow/model"
	apperrors "rpg-narrative-api/pkg/errors"
)

// fakeDB 内存版关系库，事务失败时整体回滚
type fakeDB struct {
	mu         sync.Mutex
	campaigns  map[string]entity.Campaign
	characters map[string][]*entity.Character
	turns      map[string]entity.Turn
	states     map[string]entity.CombatStateRecord

	commitErr error
	// beforeStateSave 在保存战斗状态前调用，用于模拟并发写入
	beforeStateSave func()
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		campaigns:  map[string]entity.Campaign{},
		characters: map[string][]*entity.Character{},
		turns:      map[string]entity.Turn{},
		states:     map[string]entity.CombatStateRecord{},
	}
}

type snapshot struct {
	campaigns map[string]entity.Campaign
	turns     map[string]entity.Turn
	states    map[string]entity.CombatStateRecord
}

func (db *fakeDB) snapshot() snapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	s := snapshot{
		campaigns: make(map[string]entity.Campaign, len(db.campaigns)),
		turns:     make(map[string]entity.Turn, len(db.turns)),
		states:    make(map[string]entity.CombatStateRecord, len(db.states)),
	}
	for k, v := range db.campaigns {
		s.campaigns[k] = v
	}
	for k, v := range db.turns {
		s.turns[k] = v
	}
	for k, v := range db.states {
		s.states[k] = v
	}
	return s
}

func (db *fakeDB) restore(s snapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.campaigns, db.turns, db.states = s.campaigns, s.turns, s.states
}

func (db *fakeDB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	before := db.snapshot()
	if err := fn(context.WithValue(ctx, repository.TxKey{}, true)); err != nil {
		db.restore(before)
		return err
	}
	if db.commitErr != nil {
		db.restore(before)
		return db.commitErr
	}
	return nil
}

func (db *fakeDB) addCampaign(c *entity.Campaign, chars ...*entity.Character) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.campaigns[c.ID] = *c
	db.characters[c.ID] = chars
}

func (db *fakeDB) turnCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.turns)
}

type fakeCampaigns struct {
	repository.CampaignRepository
	db *fakeDB
}

func (f fakeCampaigns) GetByID(_ context.Context, id string) (*entity.Campaign, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.campaigns[id]
	if !ok {
		return nil, apperrors.ErrCampaignNotFound.WithDetail(id)
	}
	return &c, nil
}

func (f fakeCampaigns) GetForUpdate(ctx context.Context, id string) (*entity.Campaign, error) {
	return f.GetByID(ctx, id)
}

func (f fakeCampaigns) Update(_ context.Context, c *entity.Campaign) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.campaigns[c.ID] = *c
	return nil
}

type fakeCharacters struct {
	repository.CharacterRepository
	db *fakeDB
}

func (f fakeCharacters) ListByCampaign(_ context.Context, campaignID string) ([]*entity.Character, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.characters[campaignID], nil
}

type fakeTurns struct {
	repository.TurnRepository
	db *fakeDB
}

func (f fakeTurns) Create(_ context.Context, t *entity.Turn) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, existing := range f.db.turns {
		if existing.CampaignID == t.CampaignID && existing.SequenceIndex == t.SequenceIndex {
			return errors.New("duplicate sequence index")
		}
	}
	f.db.turns[t.ID] = *t
	return nil
}

func (f fakeTurns) GetByIDs(_ context.Context, ids []string) ([]*entity.Turn, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := make([]*entity.Turn, 0, len(ids))
	for _, id := range ids {
		if t, ok := f.db.turns[id]; ok {
			out = append(out, &t)
		}
	}
	return out, nil
}

func (f fakeTurns) GetRecent(_ context.Context, campaignID string, limit int) ([]*entity.Turn, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []*entity.Turn
	for _, t := range f.db.turns {
		if t.CampaignID == campaignID {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceIndex < out[j].SequenceIndex })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakeCombatStates struct {
	repository.CombatStateRepository
	db *fakeDB
}

func (f fakeCombatStates) Get(_ context.Context, campaignID string) (*entity.CombatStateRecord, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	rec, ok := f.db.states[campaignID]
	if !ok {
		return &entity.CombatStateRecord{CampaignID: campaignID}, nil
	}
	rec.State = rec.State.Clone()
	return &rec, nil
}

func (f fakeCombatStates) Save(_ context.Context, rec *entity.CombatStateRecord) error {
	if f.db.beforeStateSave != nil {
		f.db.beforeStateSave()
	}
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.states[rec.CampaignID].Version != rec.Version {
		return apperrors.ErrStateConflict.WithDetail(rec.CampaignID)
	}
	rec.Version++
	cp := *rec
	cp.State = rec.State.Clone()
	f.db.states[rec.CampaignID] = cp
	return nil
}

// flakyNamespace 前 failures 次写入失败
type flakyNamespace struct {
	*memory.InMemoryNamespace
	mu       sync.Mutex
	failures int
	calls    int
}

func (n *flakyNamespace) Upsert(ctx context.Context, ns string, entries []memory.Entry) error {
	n.mu.Lock()
	n.calls++
	fail := n.calls <= n.failures
	n.mu.Unlock()
	if fail {
		return errors.New("vector store unavailable")
	}
	return n.InMemoryNamespace.Upsert(ctx, ns, entries)
}

type narratorFunc func(ctx context.Context, in *wfmodel.NarrateInput) (*wfmodel.NarrateOutput, error)

func (f narratorFunc) Invoke(ctx context.Context, in *wfmodel.NarrateInput) (*wfmodel.NarrateOutput, error) {
	return f(ctx, in)
}

func echoNarrator() narratorFunc {
	return func(_ context.Context, in *wfmodel.NarrateInput) (*wfmodel.NarrateOutput, error) {
		return &wfmodel.NarrateOutput{Narrative: "The world answers: " + in.Action, Structured: true}, nil
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*messaging.TurnCompletedMessage
}

func (p *recordingPublisher) PublishTurnCompleted(_ context.Context, evt *messaging.TurnCompletedMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return "1-0", nil
}

type harness struct {
	db        *fakeDB
	ns        *flakyNamespace
	store     *memory.Store
	publisher *recordingPublisher
	orch      *Orchestrator
}

func newHarness(narrator narratorFunc) *harness {
	db := newFakeDB()
	ns := &flakyNamespace{InMemoryNamespace: memory.NewInMemoryNamespace()}
	store := memory.NewStore(ns, "memory")
	pub := &recordingPublisher{}

	cfg := Config{
		ContextWindow:    3,
		CandidatePool:    10,
		OracleMaxRetries: 1,
		InsertMaxRetries: 2,
		Backoff:          messaging.BackoffConfig{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1},
	}
	orch := NewOrchestrator(cfg, Dependencies{
		Transactor:   db,
		Campaigns:    fakeCampaigns{db: db},
		Characters:   fakeCharacters{db: db},
		Turns:        fakeTurns{db: db},
		CombatStates: fakeCombatStates{db: db},
		Memory:       store,
		Reranker:     rerank.New(rerank.DefaultWeights()),
		Resolver:     combat.NewResolver(combat.DefaultRules()),
		Embedder:     embedding.NewTextEmbedder(embedding.NewHashEmbedder(64), "hash"),
		Narrator:     narrator,
		Locker:       NewLocalLocker(5 * time.Second),
		Publisher:    pub,
	})
	return &harness{db: db, ns: ns, store: store, publisher: pub, orch: orch}
}

func (h *harness) seedCampaign(id string) *entity.Campaign {
	c := entity.NewCampaign("Test", "A misty valley")
	c.ID = id
	h.db.addCampaign(c, &entity.Character{ID: id + "-pc", CampaignID: id, Name: "Aria", MaxHP: 20, Defense: 12})
	return c
}

func (h *harness) seedEncounter(campaignID string, goblinHP int) {
	s := combat.NewState(combat.Participant{Name: "Aria", MaxHP: 20, Defense: 12})
	s.Participants = append(s.Participants, combat.Participant{
		Name: "Goblin", Side: combat.SideEnemy, CurrentHP: goblinHP, MaxHP: 10, Defense: 12,
	})
	s.Active = true
	h.db.mu.Lock()
	h.db.states[campaignID] = entity.CombatStateRecord{CampaignID: campaignID, State: s, Version: 1}
	h.db.mu.Unlock()
}
