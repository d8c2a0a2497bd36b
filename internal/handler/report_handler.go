package handler

import (
	"net/http"
	"time"

	"github.com/blues/rds/internal/logic"
	"github.com/blues/rds/internal/model"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ReportHandler 收入报告接口
type ReportHandler struct {
	reportLogic *logic.ReportLogic
}

// NewReportHandler 创建报告处理器
func NewReportHandler(db *gorm.DB, currencies map[string]int) *ReportHandler {
	return &ReportHandler{
		reportLogic: logic.NewReportLogic(db, currencies),
	}
}

// SubmitReportRequest 报告提交请求
type SubmitReportRequest struct {
	OracleKey   string       `json:"oracle_key" binding:"required"`
	WorkKey     string       `json:"work_key" binding:"required"`
	PeriodStart time.Time    `json:"period_start" binding:"required"`
	PeriodEnd   time.Time    `json:"period_end" binding:"required"`
	Amount      model.Amount `json:"amount"`
	Currency    string       `json:"currency" binding:"required"`
	Source      string       `json:"source"`
	ReportHash  string       `json:"report_hash" binding:"required"`
	Signature   string       `json:"signature" binding:"required"`
}

// SubmitReport 提交收入报告
func (h *ReportHandler) SubmitReport(c *gin.Context) {
	var req SubmitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	report, duplicate, err := h.reportLogic.Submit(logic.SubmitParams{
		OracleKey:   req.OracleKey,
		WorkKey:     req.WorkKey,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Source:      req.Source,
		ReportHash:  req.ReportHash,
		Signature:   req.Signature,
	})
	if err != nil {
		FailWith(c, err)
		return
	}

	if duplicate {
		SuccessResponse(c, http.StatusOK, "report already ingested", gin.H{"duplicate": true})
		return
	}
	SuccessResponse(c, http.StatusAccepted, "report ingested", report)
}
