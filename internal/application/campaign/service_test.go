package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"rpg-narrative-api/internal/application/memory"
	"rpg-narrative-api/internal/application/turn"
	"rpg-narrative-api/internal/domain/combat"
	"rpg-narrative-api/internal/domain/entity"
	"rpg-narrative-api/internal/domain/repository"
	apperrors "rpg-narrative-api/pkg/errors"
)

type memDB struct {
	mu         sync.Mutex
	seq        int
	campaigns  map[string]*entity.Campaign
	characters map[string][]*entity.Character
	turns      map[string][]*entity.Turn
	states     map[string]*entity.CombatStateRecord
}

func newMemDB() *memDB {
	return &memDB{
		campaigns:  map[string]*entity.Campaign{},
		characters: map[string][]*entity.Character{},
		turns:      map[string][]*entity.Turn{},
		states:     map[string]*entity.CombatStateRecord{},
	}
}

func (db *memDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

func (db *memDB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type campaignRepo struct {
	repository.CampaignRepository
	db *memDB
}

func (r campaignRepo) Create(_ context.Context, c *entity.Campaign) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c.ID = r.db.nextID("camp")
	cp := *c
	r.db.campaigns[c.ID] = &cp
	return nil
}

func (r campaignRepo) GetByID(_ context.Context, id string) (*entity.Campaign, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.campaigns[id]
	if !ok {
		return nil, apperrors.ErrCampaignNotFound.WithDetail(id)
	}
	cp := *c
	return &cp, nil
}

func (r campaignRepo) GetForUpdate(ctx context.Context, id string) (*entity.Campaign, error) {
	return r.GetByID(ctx, id)
}

func (r campaignRepo) Update(_ context.Context, c *entity.Campaign) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *c
	r.db.campaigns[c.ID] = &cp
	return nil
}

type characterRepo struct {
	repository.CharacterRepository
	db *memDB
}

func (r characterRepo) Create(_ context.Context, c *entity.Character) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c.ID = r.db.nextID("char")
	r.db.characters[c.CampaignID] = append(r.db.characters[c.CampaignID], c)
	return nil
}

func (r characterRepo) ListByCampaign(_ context.Context, id string) ([]*entity.Character, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.characters[id], nil
}

type turnRepo struct {
	repository.TurnRepository
	db *memDB
}

func (r turnRepo) ListAll(_ context.Context, id string) ([]*entity.Turn, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := append([]*entity.Turn(nil), r.db.turns[id]...)
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceIndex < out[j].SequenceIndex })
	return out, nil
}

func (r turnRepo) DeleteByCampaign(_ context.Context, id string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := int64(len(r.db.turns[id]))
	delete(r.db.turns, id)
	return n, nil
}

type stateRepo struct {
	repository.CombatStateRepository
	db *memDB
}

func (r stateRepo) Get(_ context.Context, id string) (*entity.CombatStateRecord, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rec, ok := r.db.states[id]
	if !ok {
		return &entity.CombatStateRecord{CampaignID: id}, nil
	}
	cp := *rec
	cp.State = rec.State.Clone()
	return &cp, nil
}

func (r stateRepo) Save(_ context.Context, rec *entity.CombatStateRecord) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var current int
	if prev, ok := r.db.states[rec.CampaignID]; ok {
		current = prev.Version
	}
	if current != rec.Version {
		return apperrors.ErrStateConflict.WithDetail(rec.CampaignID)
	}
	rec.Version++
	cp := *rec
	cp.State = rec.State.Clone()
	r.db.states[rec.CampaignID] = &cp
	return nil
}

// mapCache 进程内缓存，记录加载次数
type mapCache struct {
	mu    sync.Mutex
	data  map[string][]byte
	loads int
}

func (c *mapCache) GetOrLoadSafe(_ context.Context, key string, _ time.Duration, loader func() (interface{}, error)) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	c.loads++
	v, err := loader()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	c.data[key] = b
	return b, nil
}

func (c *mapCache) InvalidateCampaign(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, "campaign:"+id+":view")
	return nil
}

func newTestService(cheats bool) (*Service, *memDB, *memory.Store, *mapCache) {
	db := newMemDB()
	store := memory.NewStore(memory.NewInMemoryNamespace(), "memory")
	cache := &mapCache{data: map[string][]byte{}}
	svc := NewService(db, campaignRepo{db: db}, characterRepo{db: db}, turnRepo{db: db}, stateRepo{db: db},
		store, combat.NewResolver(combat.DefaultRules()), turn.NewLocalLocker(time.Second), cache, nil,
		Options{Cheats: cheats})
	return svc, db, store, cache
}

func validInput() CreateInput {
	return CreateInput{
		Name:      "Shadows of Eldoria",
		Setting:   "A cursed forest",
		Character: CharacterInput{Name: "Aria", Class: "ranger", MaxHP: 20, Defense: 13},
	}
}

func TestCreateValidates(t *testing.T) {
	svc, _, _, _ := newTestService(false)
	tests := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"missing name", func(in *CreateInput) { in.Name = " " }},
		{"missing character", func(in *CreateInput) { in.Character.Name = "" }},
		{"zero hp", func(in *CreateInput) { in.Character.MaxHP = 0 }},
		{"negative defense", func(in *CreateInput) { in.Character.Defense = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			if _, err := svc.Create(context.Background(), in); !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Fatalf("Create() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestCreateInitialisesCombatState(t *testing.T) {
	svc, db, _, _ := newTestService(false)
	v, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	rec := db.states[v.Campaign.ID]
	if rec == nil || rec.State.Active || len(rec.State.Participants) != 1 {
		t.Fatalf("combat state = %+v, want one inactive player", rec)
	}
	p := rec.State.Participants[0]
	if p.Name != "Aria" || p.CurrentHP != 20 || p.Side != combat.SidePlayer {
		t.Fatalf("player = %+v", p)
	}
}

func TestGetUsesCache(t *testing.T) {
	svc, _, _, cache := newTestService(false)
	v, _ := svc.Create(context.Background(), validInput())

	for i := 0; i < 3; i++ {
		got, err := svc.Get(context.Background(), v.Campaign.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Campaign.Name != "Shadows of Eldoria" {
			t.Fatalf("name = %q", got.Campaign.Name)
		}
	}
	if cache.loads != 1 {
		t.Fatalf("loads = %d, want 1", cache.loads)
	}

	if _, err := svc.End(context.Background(), v.Campaign.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	got, _ := svc.Get(context.Background(), v.Campaign.ID)
	if !got.Campaign.IsEnded() || cache.loads != 2 {
		t.Fatalf("status = %q loads = %d, want ended/2", got.Campaign.Status, cache.loads)
	}

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, apperrors.ErrCampaignNotFound) {
		t.Fatalf("Get(missing) error = %v", err)
	}
}

func TestClearHistory(t *testing.T) {
	svc, db, store, _ := newTestService(false)
	v, _ := svc.Create(context.Background(), validInput())
	id := v.Campaign.ID

	for i := 0; i < 3; i++ {
		tid := fmt.Sprintf("t%d", i)
		db.turns[id] = append(db.turns[id], &entity.Turn{ID: tid, CampaignID: id, SequenceIndex: i})
		if err := store.Insert(context.Background(), id, memory.Entry{
			TurnID: tid, Vector: []float32{1, float32(i)}, Metadata: memory.Metadata{SequenceIndex: i},
		}); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
	db.campaigns[id].TurnCount = 3
	db.states[id].State.Participants[0].CurrentHP = 4

	n, err := svc.ClearHistory(context.Background(), id)
	if err != nil {
		t.Fatalf("ClearHistory() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("deleted = %d, want 3", n)
	}
	if db.campaigns[id].TurnCount != 0 || len(db.turns[id]) != 0 {
		t.Fatalf("history not reset")
	}
	if hp := db.states[id].State.Participants[0].CurrentHP; hp != 20 {
		t.Fatalf("player hp = %d, want restored 20", hp)
	}
	hits, _ := store.Query(context.Background(), id, []float32{1, 0}, 10)
	if len(hits) != 0 {
		t.Fatalf("vector entries = %d, want 0", len(hits))
	}
}

func TestSetHealth(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		svc, _, _, _ := newTestService(false)
		v, _ := svc.Create(context.Background(), validInput())
		if _, _, err := svc.SetHealth(context.Background(), v.Campaign.ID, combat.SidePlayer, 5); !errors.Is(err, apperrors.ErrNotFound) {
			t.Fatalf("SetHealth() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ends combat", func(t *testing.T) {
		svc, db, _, _ := newTestService(true)
		v, _ := svc.Create(context.Background(), validInput())
		id := v.Campaign.ID
		st := &db.states[id].State
		st.Participants = append(st.Participants, combat.Participant{
			Name: "Goblin", Side: combat.SideEnemy, CurrentHP: 8, MaxHP: 8, Defense: 10,
		})
		st.Active = true

		rec, out, err := svc.SetHealth(context.Background(), id, combat.SideEnemy, 0)
		if err != nil {
			t.Fatalf("SetHealth() error = %v", err)
		}
		if rec.State.Active || !out.IsCombatEnding || out.EndReason != combat.EndVictory {
			t.Fatalf("state active=%v outcome=%+v, want victory", rec.State.Active, out)
		}
	})

	t.Run("bad side", func(t *testing.T) {
		svc, _, _, _ := newTestService(true)
		if _, _, err := svc.SetHealth(context.Background(), "x", combat.Side("npc"), 1); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Fatalf("SetHealth() error = %v, want ErrInvalidInput", err)
		}
	})
}

type stubBatchEmbedder struct{ calls int }

func (s *stubBatchEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func TestReindexIsIdempotent(t *testing.T) {
	db := newMemDB()
	for i := 0; i < 5; i++ {
		db.turns["c1"] = append(db.turns["c1"], &entity.Turn{
			ID: fmt.Sprintf("t%d", i), CampaignID: "c1", SequenceIndex: i,
			PlayerAction: "act", NarrativeResponse: "resp",
		})
	}
	store := memory.NewStore(memory.NewInMemoryNamespace(), "memory")
	emb := &stubBatchEmbedder{}
	r := NewReindexer(turnRepo{db: db}, store, emb, 2)

	for i := 0; i < 2; i++ {
		n, err := r.Reindex(context.Background(), "c1")
		if err != nil {
			t.Fatalf("Reindex() error = %v", err)
		}
		if n != 5 {
			t.Fatalf("written = %d, want 5", n)
		}
	}
	if emb.calls != 6 {
		t.Fatalf("embed calls = %d, want 6", emb.calls)
	}
	hits, _ := store.Query(context.Background(), "c1", []float32{1, 1}, 10)
	if len(hits) != 5 {
		t.Fatalf("entries = %d, want 5", len(hits))
	}
}
