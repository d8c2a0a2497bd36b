package handler

import (
	"net/http"
	"strconv"

	"github.com/blues/rds/internal/logic"
	"github.com/blues/rds/internal/model"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// PeriodHandler 账期查询与管理员操作接口
type PeriodHandler struct {
	periodLogic *logic.PeriodLogic
}

// NewPeriodHandler 创建账期处理器
func NewPeriodHandler(db *gorm.DB) *PeriodHandler {
	return &PeriodHandler{
		periodLogic: logic.NewPeriodLogic(db),
	}
}

// GetPeriods 分页查询账期
func (h *PeriodHandler) GetPeriods(c *gin.Context) {
	workKey := c.Query("work_key")
	state := c.Query("state")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	periods, total, err := h.periodLogic.List(workKey, state, page, pageSize)
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", gin.H{
		"periods":   periods,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetPeriod 账期完整状态：计划、批次、回执与审计事件
func (h *PeriodHandler) GetPeriod(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid period id")
		return
	}

	detail, err := h.periodLogic.Get(id)
	if err != nil {
		FailWith(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", detail)
}

// CancelPeriodRequest 取消账期请求
type CancelPeriodRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CancelPeriod 管理员取消账期，转入争议态
func (h *PeriodHandler) CancelPeriod(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid period id")
		return
	}

	var req CancelPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.periodLogic.Cancel(id, req.Reason)
	if err != nil {
		FailWith(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "period cancelled", p)
}

// OverrideAmountRequest 争议裁定请求
type OverrideAmountRequest struct {
	Amount model.Amount `json:"amount"`
}

// OverrideAmount 管理员裁定争议账期的权威金额
func (h *PeriodHandler) OverrideAmount(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid period id")
		return
	}

	var req OverrideAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.periodLogic.OverrideAmount(id, req.Amount)
	if err != nil {
		FailWith(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "amount overridden", p)
}

// ReopenPeriod 为争议或失败的账期创建新尝试
func (h *PeriodHandler) ReopenPeriod(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid period id")
		return
	}

	p, err := h.periodLogic.Reopen(id)
	if err != nil {
		FailWith(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "period reopened", p)
}
