package model

import (
	"time"
)

// PayoutBatchModel 计划切分出的结算批次，对应至多一笔链上交易
type PayoutBatchModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PlanId     int64 `json:"plan_id" gorm:"not null;uniqueIndex:idx_plan_batch"`
	BatchIndex int   `json:"batch_index" gorm:"not null;uniqueIndex:idx_plan_batch"`

	// 本批覆盖的行区间 [FromLine, ToLine)
	FromLine int `json:"from_line" gorm:"not null"`
	ToLine   int `json:"to_line" gorm:"not null"`

	Status BatchStatus `json:"status" gorm:"default:'pending'"`

	// 交易尝试信息：广播前先落库，崩溃后据此恢复
	Nonce        int64      `json:"nonce" gorm:"default:-1"` // -1 表示尚未保留nonce
	TxHash       string     `json:"tx_hash"`
	AttemptCount int        `json:"attempt_count" gorm:"default:0"`
	ConfirmedAt  *time.Time `json:"confirmed_at"`
	FailReason   string     `json:"fail_reason"`
}

// TableName 自定义表名
func (PayoutBatchModel) TableName() string {
	return "payout_batch"
}

// BatchStatus 批次状态
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"   // 待提交
	BatchStatusSubmitted BatchStatus = "submitted" // 已广播，等待确认
	BatchStatusConfirmed BatchStatus = "confirmed" // 已确认
	BatchStatusFailed    BatchStatus = "failed"    // 确定性失败，需管理员介入
)
