package model

import (
	"time"
)

// ReceiptModel 已确认批次的链上回执
type ReceiptModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	BatchId  int64  `json:"batch_id" gorm:"not null;uniqueIndex"`
	TxHash   string `json:"tx_hash" gorm:"not null"`
	BlockNum int64  `json:"block_num" gorm:"not null"`
	GasUsed  uint64 `json:"gas_used"`

	// 每行成功与否的位图（hex，行序与批内行区间一致）
	SuccessBitmap string `json:"success_bitmap" gorm:"not null"`
}

// TableName 自定义表名
func (ReceiptModel) TableName() string {
	return "receipt"
}
