package handler

import (
	"errors"
	"net/http"

	"github.com/blues/rds/internal/logic"
	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// FailWith 按业务错误类别映射HTTP状态码
func FailWith(c *gin.Context, err error) {
	ErrorResponse(c, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, logic.ErrWorkUnknown),
		errors.Is(err, logic.ErrOracleUnknown),
		errors.Is(err, logic.ErrPeriodUnknown):
		return http.StatusNotFound
	case errors.Is(err, logic.ErrWorkExists),
		errors.Is(err, logic.ErrOracleExists),
		errors.Is(err, logic.ErrOracleInactive),
		errors.Is(err, logic.ErrPeriodClosed),
		errors.Is(err, logic.ErrPeriodState):
		return http.StatusConflict
	case errors.Is(err, logic.ErrBadSignature),
		errors.Is(err, logic.ErrBadPeriodBounds),
		errors.Is(err, logic.ErrBadAmount),
		errors.Is(err, logic.ErrBadCurrency):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
