package handler

import (
	"net/http"

	"github.com/blues/rds/internal/logic"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SettlementHandler 结算开关接口
type SettlementHandler struct {
	settlementLogic *logic.SettlementLogic
}

// NewSettlementHandler 创建结算管理处理器
func NewSettlementHandler(db *gorm.DB) *SettlementHandler {
	return &SettlementHandler{
		settlementLogic: logic.NewSettlementLogic(db),
	}
}

// PauseRequest 暂停结算请求
type PauseRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// PauseSettlement 暂停结算：不再广播新批次
func (h *SettlementHandler) PauseSettlement(c *gin.Context) {
	var req PauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.settlementLogic.Pause(req.Reason); err != nil {
		FailWith(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "settlement paused", nil)
}

// ResumeSettlement 恢复结算
func (h *SettlementHandler) ResumeSettlement(c *gin.Context) {
	if err := h.settlementLogic.Resume(); err != nil {
		FailWith(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "settlement resumed", nil)
}

// GetSettlementStatus 结算开关状态
func (h *SettlementHandler) GetSettlementStatus(c *gin.Context) {
	ctl, err := h.settlementLogic.Status()
	if err != nil {
		FailWith(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", ctl)
}
