package handler

import (
	"net/http"
	"strconv"

	"github.com/blues/rds/internal/logic"
	"github.com/blues/rds/internal/model"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// WorkHandler 作品注册与查询接口
type WorkHandler struct {
	workLogic *logic.WorkLogic
}

// NewWorkHandler 创建作品处理器
func NewWorkHandler(db *gorm.DB) *WorkHandler {
	return &WorkHandler{
		workLogic: logic.NewWorkLogic(db),
	}
}

// CreateWork 注册作品
func (h *WorkHandler) CreateWork(c *gin.Context) {
	var work model.WorkModel
	if err := c.ShouldBindJSON(&work); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.workLogic.Create(&work); err != nil {
		FailWith(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "work registered", work)
}

// GetWork 按业务标识获取作品
func (h *WorkHandler) GetWork(c *gin.Context) {
	work, err := h.workLogic.Get(c.Param("work_key"))
	if err != nil {
		FailWith(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", work)
}

// GetWorks 获取作品列表
func (h *WorkHandler) GetWorks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	works, total, err := h.workLogic.List(page, pageSize)
	if err != nil {
		FailWith(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", gin.H{
		"works":     works,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
