// Package campaign 管理战役与角色的生命周期
package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"rpg-narrative-api/internal/application/memory"
	"rpg-narrative-api/internal/application/turn"
	"rpg-narrative-api/internal/domain/combat"
	"rpg-narrative-api/internal/domain/entity"
	"rpg-narrative-api/internal/domain/repository"
	"rpg-narrative-api/internal/infrastructure/messaging"
	apperrors "rpg-narrative-api/pkg/errors"
	"rpg-narrative-api/pkg/logger"
)

var tracer = otel.Tracer("campaign")

// ViewCache 战役视图缓存
type ViewCache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error)
	InvalidateCampaign(ctx context.Context, campaignID string) error
}

// ReindexPublisher 重建索引任务的发布方
type ReindexPublisher interface {
	PublishMemoryReindex(ctx context.Context, msg *messaging.MemoryReindexMessage) (string, error)
}

// Options 服务参数
type Options struct {
	Cheats  bool
	ViewTTL time.Duration
	ViewKey func(campaignID string) string
}

// Service 战役服务
type Service struct {
	tx           repository.Transactor
	campaigns    repository.CampaignRepository
	characters   repository.CharacterRepository
	turns        repository.TurnRepository
	combatStates repository.CombatStateRepository
	memory       *memory.Store
	resolver     *combat.Resolver
	locker       turn.Locker

	cache     ViewCache
	publisher ReindexPublisher
	opts      Options
}

// NewService 创建战役服务；cache 与 publisher 可为空
func NewService(
	tx repository.Transactor,
	campaigns repository.CampaignRepository,
	characters repository.CharacterRepository,
	turns repository.TurnRepository,
	combatStates repository.CombatStateRepository,
	store *memory.Store,
	resolver *combat.Resolver,
	locker turn.Locker,
	cache ViewCache,
	publisher ReindexPublisher,
	opts Options,
) *Service {
	if opts.ViewTTL <= 0 {
		opts.ViewTTL = 5 * time.Minute
	}
	if opts.ViewKey == nil {
		opts.ViewKey = func(id string) string { return "campaign:" + id + ":view" }
	}
	return &Service{
		tx:           tx,
		campaigns:    campaigns,
		characters:   characters,
		turns:        turns,
		combatStates: combatStates,
		memory:       store,
		resolver:     resolver,
		locker:       locker,
		cache:        cache,
		publisher:    publisher,
		opts:         opts,
	}
}

// CharacterInput 玩家角色参数
type CharacterInput struct {
	Name        string            `json:"name"`
	Class       string            `json:"class"`
	MaxHP       int               `json:"max_hp"`
	Defense     int               `json:"defense"`
	AttackBonus int               `json:"attack_bonus"`
	Attributes  combat.Attributes `json:"attributes"`
	Backstory   string            `json:"backstory"`
}

// CreateInput 创建战役参数
type CreateInput struct {
	Name      string         `json:"name"`
	Setting   string         `json:"setting"`
	Character CharacterInput `json:"character"`
}

// View 战役概览
type View struct {
	Campaign    *entity.Campaign    `json:"campaign"`
	Characters  []*entity.Character `json:"characters"`
	CombatState combat.State        `json:"combat_state"`
}

func (in *CreateInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Character.Name = strings.TrimSpace(in.Character.Name)
	switch {
	case in.Name == "":
		return apperrors.ErrInvalidInput.WithDetail("name is required")
	case in.Character.Name == "":
		return apperrors.ErrInvalidInput.WithDetail("character.name is required")
	case in.Character.MaxHP <= 0:
		return apperrors.ErrInvalidInput.WithDetail("character.max_hp must be positive")
	case in.Character.Defense < 0:
		return apperrors.ErrInvalidInput.WithDetail("character.defense must not be negative")
	}
	return nil
}

// Create 创建战役、玩家角色与初始（非战斗）状态
func (s *Service) Create(ctx context.Context, in CreateInput) (*View, error) {
	ctx, span := tracer.Start(ctx, "campaign.Create")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}

	c := entity.NewCampaign(in.Name, strings.TrimSpace(in.Setting))
	ch := &entity.Character{
		Name:        in.Character.Name,
		Class:       strings.TrimSpace(in.Character.Class),
		MaxHP:       in.Character.MaxHP,
		Defense:     in.Character.Defense,
		AttackBonus: in.Character.AttackBonus,
		Attributes:  in.Character.Attributes,
		Backstory:   in.Character.Backstory,
	}
	var record *entity.CombatStateRecord

	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.campaigns.Create(txCtx, c); err != nil {
			return err
		}
		ch.CampaignID = c.ID
		if err := s.characters.Create(txCtx, ch); err != nil {
			return err
		}
		record = &entity.CombatStateRecord{CampaignID: c.ID, State: combat.NewState(ch.Participant())}
		return s.combatStates.Save(txCtx, record)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("campaign_id", c.ID))
	logger.Info(logger.WithContext(ctx, logger.CampaignIDKey, c.ID), "campaign created", "character", ch.Name)
	return &View{Campaign: c, Characters: []*entity.Character{ch}, CombatState: record.State}, nil
}

// Get 读取战役概览，有缓存时走缓存
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	ctx, span := tracer.Start(ctx, "campaign.Get")
	defer span.End()

	if s.cache == nil {
		return s.load(ctx, id)
	}

	raw, err := s.cache.GetOrLoadSafe(ctx, s.opts.ViewKey(id), s.opts.ViewTTL, func() (interface{}, error) {
		return s.load(ctx, id)
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		logger.Warn(ctx, "campaign view cache unavailable", "error", err.Error())
		return s.load(ctx, id)
	}

	var v View
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode campaign view: %w", err)
	}
	return &v, nil
}

func (s *Service) load(ctx context.Context, id string) (*View, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	chars, err := s.characters.ListByCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := s.combatStates.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &View{Campaign: c, Characters: chars, CombatState: rec.State}, nil
}

// List 分页列出战役
func (s *Service) List(ctx context.Context, p repository.Pagination) (*repository.PagedResult[*entity.Campaign], error) {
	return s.campaigns.List(ctx, p)
}

// History 按序号升序分页列出回合
func (s *Service) History(ctx context.Context, id string, p repository.Pagination) (*repository.PagedResult[*entity.Turn], error) {
	if _, err := s.campaigns.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.turns.ListByCampaign(ctx, id, p)
}

// CombatState 当前战斗状态
func (s *Service) CombatState(ctx context.Context, id string) (*entity.CombatStateRecord, error) {
	if _, err := s.campaigns.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.combatStates.Get(ctx, id)
}

// ClearHistory 删除所有回合与向量记忆，序号归零，战斗状态恢复为满血非战斗
//
// 持有战役锁执行，有回合在处理中时按锁等待策略失败。
func (s *Service) ClearHistory(ctx context.Context, id string) (int64, error) {
	ctx, span := tracer.Start(ctx, "campaign.ClearHistory")
	defer span.End()
	ctx = logger.WithContext(ctx, logger.CampaignIDKey, id)

	release, err := s.locker.Acquire(ctx, id)
	if err != nil {
		return 0, err
	}
	defer release()

	var deleted int64
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		c, err := s.campaigns.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if deleted, err = s.turns.DeleteByCampaign(txCtx, id); err != nil {
			return err
		}
		c.TurnCount = 0
		c.UpdatedAt = time.Now()
		if err := s.campaigns.Update(txCtx, c); err != nil {
			return err
		}

		chars, err := s.characters.ListByCampaign(txCtx, id)
		if err != nil {
			return err
		}
		players := make([]combat.Participant, 0, len(chars))
		for _, ch := range chars {
			players = append(players, ch.Participant())
		}
		rec, err := s.combatStates.Get(txCtx, id)
		if err != nil {
			return err
		}
		rec.State = combat.NewState(players...)
		return s.combatStates.Save(txCtx, rec)
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	// 向量命名空间不在事务内；删除失败时可通过重建索引修复
	if err := s.memory.Clear(ctx, id); err != nil {
		logger.Error(ctx, "failed to clear vector namespace", err)
		return deleted, err
	}
	s.invalidate(ctx, id)
	logger.Info(ctx, "campaign history cleared", "turns_deleted", deleted)
	return deleted, nil
}

// End 结束战役，之后的行动将被拒绝
func (s *Service) End(ctx context.Context, id string) (*entity.Campaign, error) {
	ctx = logger.WithContext(ctx, logger.CampaignIDKey, id)

	release, err := s.locker.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	var c *entity.Campaign
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		if c, err = s.campaigns.GetForUpdate(txCtx, id); err != nil {
			return err
		}
		if c.IsEnded() {
			return nil
		}
		c.End()
		return s.campaigns.Update(txCtx, c)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	logger.Info(ctx, "campaign ended")
	return c, nil
}

// CheatsEnabled 调试指令是否开放
func (s *Service) CheatsEnabled() bool {
	return s.opts.Cheats
}

// SetHealth 调试指令：把一方所有参与者的生命值设为 hp
func (s *Service) SetHealth(ctx context.Context, id string, side combat.Side, hp int) (*entity.CombatStateRecord, combat.Outcome, error) {
	if !s.opts.Cheats {
		return nil, combat.Outcome{}, apperrors.ErrNotFound.WithDetail("cheats are disabled")
	}
	if side != combat.SidePlayer && side != combat.SideEnemy {
		return nil, combat.Outcome{}, apperrors.ErrInvalidInput.WithDetail("side must be player or enemy")
	}
	ctx = logger.WithContext(ctx, logger.CampaignIDKey, id)

	release, err := s.locker.Acquire(ctx, id)
	if err != nil {
		return nil, combat.Outcome{}, err
	}
	defer release()

	var (
		rec *entity.CombatStateRecord
		out combat.Outcome
	)
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		c, err := s.campaigns.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if c.IsEnded() {
			return apperrors.ErrCampaignEnded.WithDetail(id)
		}
		if rec, err = s.combatStates.Get(txCtx, id); err != nil {
			return err
		}
		rec.State, out = s.resolver.SetHealth(rec.State, side, hp)
		return s.combatStates.Save(txCtx, rec)
	})
	if err != nil {
		return nil, combat.Outcome{}, err
	}
	s.invalidate(ctx, id)
	logger.Warn(ctx, "health set by cheat", "side", string(side), "hp", hp)
	return rec, out, nil
}

// RequestReindex 发布重建向量索引任务
func (s *Service) RequestReindex(ctx context.Context, id, reason string) (string, error) {
	if s.publisher == nil {
		return "", apperrors.ErrServiceUnavailable.WithDetail("messaging is disabled")
	}
	if _, err := s.campaigns.GetByID(ctx, id); err != nil {
		return "", err
	}
	return s.publisher.PublishMemoryReindex(ctx, &messaging.MemoryReindexMessage{
		CampaignID:  id,
		Reason:      reason,
		RequestedAt: time.Now(),
	})
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCampaign(ctx, id); err != nil {
		logger.Warn(ctx, "failed to invalidate campaign cache", "error", err.Error())
	}
}
