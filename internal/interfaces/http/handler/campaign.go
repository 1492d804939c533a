package handler

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"

	"rpg-narrative-api/internal/application/campaign"
	"rpg-narrative-api/internal/domain/combat"
	"rpg-narrative-api/internal/domain/entity"
	"rpg-narrative-api/internal/domain/repository"
	"rpg-narrative-api/internal/interfaces/http/dto"
)

// CampaignService 战役生命周期操作
type CampaignService interface {
	Create(ctx context.Context, in campaign.CreateInput) (*campaign.View, error)
	Get(ctx context.Context, id string) (*campaign.View, error)
	List(ctx context.Context, p repository.Pagination) (*repository.PagedResult[*entity.Campaign], error)
	History(ctx context.Context, id string, p repository.Pagination) (*repository.PagedResult[*entity.Turn], error)
	CombatState(ctx context.Context, id string) (*entity.CombatStateRecord, error)
	ClearHistory(ctx context.Context, id string) (int64, error)
	End(ctx context.Context, id string) (*entity.Campaign, error)
	CheatsEnabled() bool
	SetHealth(ctx context.Context, id string, side combat.Side, hp int) (*entity.CombatStateRecord, combat.Outcome, error)
	RequestReindex(ctx context.Context, id, reason string) (string, error)
}

// EventReader 读取最近的回合事件
type EventReader interface {
	Recent(ctx context.Context, campaignID string, limit int) ([]json.RawMessage, error)
}

// CampaignHandler 战役处理器
type CampaignHandler struct {
	svc    CampaignService
	events EventReader
}

// NewCampaignHandler 创建战役处理器；events 可为空
func NewCampaignHandler(svc CampaignService, events EventReader) *CampaignHandler {
	return &CampaignHandler{svc: svc, events: events}
}

// CreateCampaign 创建战役
// @Summary 创建战役
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param body body dto.CreateCampaignRequest true "战役与玩家角色"
// @Success 201 {object} dto.Response[campaign.View]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req dto.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	view, err := h.svc.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		respondError(c, "failed to create campaign", err)
		return
	}
	dto.Created(c, view)
}

// ListCampaigns 分页列出战役
// @Summary 战役列表
// @Tags Campaigns
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Router /v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	result, err := h.svc.List(c.Request.Context(), dto.BindPage(c))
	if err != nil {
		respondError(c, "failed to list campaigns", err)
		return
	}
	dto.Page(c, result)
}

// GetCampaign 战役概览
// @Summary 获取战役
// @Tags Campaigns
// @Produce json
// @Param cid path string true "战役 ID"
// @Success 200 {object} dto.Response[campaign.View]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/campaigns/{cid} [get]
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	view, err := h.svc.Get(c.Request.Context(), dto.BindCampaignID(c))
	if err != nil {
		respondError(c, "failed to get campaign", err)
		return
	}
	dto.Success(c, view)
}

// EndCampaign 结束战役
// @Summary 结束战役
// @Tags Campaigns
// @Param cid path string true "战役 ID"
// @Router /v1/campaigns/{cid}/end [post]
func (h *CampaignHandler) EndCampaign(c *gin.Context) {
	camp, err := h.svc.End(c.Request.Context(), dto.BindCampaignID(c))
	if err != nil {
		respondError(c, "failed to end campaign", err)
		return
	}
	dto.Success(c, camp)
}

// ListTurns 按序号升序分页列出回合
// @Summary 回合历史
// @Tags Turns
// @Param cid path string true "战役 ID"
// @Router /v1/campaigns/{cid}/turns [get]
func (h *CampaignHandler) ListTurns(c *gin.Context) {
	result, err := h.svc.History(c.Request.Context(), dto.BindCampaignID(c), dto.BindPage(c))
	if err != nil {
		respondError(c, "failed to list turns", err)
		return
	}
	dto.Page(c, result)
}

// ClearTurns 清空回合历史与向量记忆
// @Summary 清空历史
// @Tags Turns
// @Param cid path string true "战役 ID"
// @Router /v1/campaigns/{cid}/turns [delete]
func (h *CampaignHandler) ClearTurns(c *gin.Context) {
	n, err := h.svc.ClearHistory(c.Request.Context(), dto.BindCampaignID(c))
	if err != nil {
		respondError(c, "failed to clear turns", err)
		return
	}
	dto.Success(c, dto.ClearHistoryResponse{TurnsDeleted: n})
}

// GetCombat 当前战斗状态
// @Summary 战斗状态
// @Tags Combat
// @Param cid path string true "战役 ID"
// @Router /v1/campaigns/{cid}/combat [get]
func (h *CampaignHandler) GetCombat(c *gin.Context) {
	rec, err := h.svc.CombatState(c.Request.Context(), dto.BindCampaignID(c))
	if err != nil {
		respondError(c, "failed to get combat state", err)
		return
	}
	dto.Success(c, dto.ToCombatStateResponse(rec, nil))
}

// SetHealth 调试指令：设置一方生命值
// @Summary 设置生命值
// @Tags Cheats
// @Param cid path string true "战役 ID"
// @Param body body dto.SetHealthRequest true "阵营与生命值"
// @Router /v1/campaigns/{cid}/cheats/health [post]
func (h *CampaignHandler) SetHealth(c *gin.Context) {
	if !h.svc.CheatsEnabled() {
		dto.NotFound(c, "not found")
		return
	}
	var req dto.SetHealthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	rec, out, err := h.svc.SetHealth(c.Request.Context(), dto.BindCampaignID(c), combat.Side(req.Side), req.HP)
	if err != nil {
		respondError(c, "failed to set health", err)
		return
	}
	dto.Success(c, dto.ToCombatStateResponse(rec, &out))
}

// Reindex 投递重建向量记忆任务
// @Summary 重建记忆
// @Tags Memory
// @Param cid path string true "战役 ID"
// @Router /v1/campaigns/{cid}/memory/reindex [post]
func (h *CampaignHandler) Reindex(c *gin.Context) {
	var req dto.ReindexRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	id, err := h.svc.RequestReindex(c.Request.Context(), dto.BindCampaignID(c), req.Reason)
	if err != nil {
		respondError(c, "failed to request reindex", err)
		return
	}
	dto.Accepted(c, dto.ReindexResponse{MessageID: id})
}

// ListEvents 最近的回合事件
// @Summary 回合事件
// @Tags Turns
// @Param cid path string true "战役 ID"
// @Param limit query int false "条数" default(20)
// @Router /v1/campaigns/{cid}/events [get]
func (h *CampaignHandler) ListEvents(c *gin.Context) {
	if h.events == nil {
		dto.NotFound(c, "turn events are disabled")
		return
	}
	events, err := h.events.Recent(c.Request.Context(), dto.BindCampaignID(c), dto.BindLimit(c, 20, 200))
	if err != nil {
		respondError(c, "failed to read turn events", err)
		return
	}
	dto.Success(c, dto.EventListResponse{Events: events})
}
