package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"rpg-narrative-api/internal/application/turn"
	"rpg-narrative-api/internal/interfaces/http/dto"
)

// TurnProcessor 回合编排
type TurnProcessor interface {
	Process(ctx context.Context, req turn.Request) (*turn.Result, error)
}

// TurnHandler 回合处理器
type TurnHandler struct {
	turns TurnProcessor
}

// NewTurnHandler 创建回合处理器
func NewTurnHandler(turns TurnProcessor) *TurnHandler {
	return &TurnHandler{turns: turns}
}

// SubmitAction 提交玩家行动并等待叙事结果
// @Summary 提交行动
// @Tags Turns
// @Accept json
// @Produce json
// @Param cid path string true "战役 ID"
// @Param body body dto.ActionRequest true "玩家行动"
// @Success 200 {object} dto.Response[dto.TurnResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/campaigns/{cid}/actions [post]
func (h *TurnHandler) SubmitAction(c *gin.Context) {
	var req dto.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	res, err := h.turns.Process(c.Request.Context(), req.ToRequest(dto.BindCampaignID(c)))
	if err != nil {
		if stage, ok := turn.FailedStage(err); ok {
			c.Header("X-Turn-Failed-Stage", string(stage))
		}
		respondError(c, "failed to process turn", err)
		return
	}
	dto.Success(c, dto.ToTurnResponse(res))
}
