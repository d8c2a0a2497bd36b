package model

import (
	"time"
)

// PayoutPlanModel 不可变的分配计划，由计划哈希唯一标识
type PayoutPlanModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	PeriodId          int64  `json:"period_id" gorm:"not null;uniqueIndex"`
	Currency          string `json:"currency" gorm:"not null"`
	PlanHash          string `json:"plan_hash" gorm:"not null;index"`
	ResidualLineIndex int    `json:"residual_line_index" gorm:"not null"`
	LineCount         int    `json:"line_count" gorm:"not null"`
	TotalFees         Amount `json:"total_fees" gorm:"not null"`
	TotalPayout       Amount `json:"total_payout" gorm:"not null"` // 含余数行
	Status            string `json:"status" gorm:"default:'active'"`

	// 关联
	Lines []PayoutLineModel `json:"lines,omitempty" gorm:"foreignKey:PlanId"`
}

// TableName 自定义表名
func (PayoutPlanModel) TableName() string {
	return "payout_plan"
}

// 计划状态
const (
	PlanStatusActive string = "active"
	PlanStatusFailed string = "failed"
)

// PayoutLineModel 计划中的单行：费用、持仓人分配或余数
type PayoutLineModel struct {
	Id int64 `json:"id" gorm:"primaryKey"`

	PlanId    int64  `json:"plan_id" gorm:"not null;uniqueIndex:idx_plan_line"`
	LineIndex int    `json:"line_index" gorm:"not null;uniqueIndex:idx_plan_line"`
	LineType  string `json:"line_type" gorm:"not null"` // fee, payout, residual
	Recipient string `json:"recipient" gorm:"not null"`
	Amount    Amount `json:"amount" gorm:"not null"`
	RateBps   int    `json:"rate_bps" gorm:"default:0"` // 费用行的费率，其余为0
}

// TableName 自定义表名
func (PayoutLineModel) TableName() string {
	return "payout_line"
}

// 行类型
const (
	LineTypeFee      string = "fee"
	LineTypePayout   string = "payout"
	LineTypeResidual string = "residual"
)
