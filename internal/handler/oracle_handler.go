package handler

import (
	"net/http"

	"github.com/blues/rds/internal/logic"
	"github.com/blues/rds/internal/model"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// OracleHandler 预言机注册与管理接口
type OracleHandler struct {
	oracleLogic *logic.OracleLogic
}

// NewOracleHandler 创建预言机处理器
func NewOracleHandler(db *gorm.DB) *OracleHandler {
	return &OracleHandler{
		oracleLogic: logic.NewOracleLogic(db),
	}
}

// RegisterOracle 注册预言机
func (h *OracleHandler) RegisterOracle(c *gin.Context) {
	var orc model.OracleModel
	if err := c.ShouldBindJSON(&orc); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.oracleLogic.Register(&orc); err != nil {
		FailWith(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "oracle registered", orc)
}

// DeactivateOracle 停用预言机
func (h *OracleHandler) DeactivateOracle(c *gin.Context) {
	if err := h.oracleLogic.Deactivate(c.Param("oracle_key")); err != nil {
		FailWith(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "oracle deactivated", nil)
}

// GetOracles 获取预言机列表
func (h *OracleHandler) GetOracles(c *gin.Context) {
	oracles, err := h.oracleLogic.List()
	if err != nil {
		FailWith(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", oracles)
}
