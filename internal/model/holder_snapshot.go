package model

import (
	"time"
)

// HolderSnapshotModel 账期对应的代币持仓快照，创建后不可变
type HolderSnapshotModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	PeriodId    int64  `json:"period_id" gorm:"not null;uniqueIndex"`
	BlockNum    int64  `json:"block_num" gorm:"not null"` // 快照区块高度
	TotalSupply Amount `json:"total_supply" gorm:"not null"`
	HolderCount int    `json:"holder_count" gorm:"not null"`

	// 关联
	Balances []HolderBalanceModel `json:"balances,omitempty" gorm:"foreignKey:SnapshotId"`
}

// TableName 自定义表名
func (HolderSnapshotModel) TableName() string {
	return "holder_snapshot"
}

// HolderBalanceModel 快照中单个持仓人的余额，按地址升序存储
type HolderBalanceModel struct {
	Id int64 `json:"id" gorm:"primaryKey"`

	SnapshotId int64  `json:"snapshot_id" gorm:"not null;uniqueIndex:idx_snapshot_holder"`
	Position   int    `json:"position" gorm:"not null"` // 排序位置，地址升序
	Holder     string `json:"holder" gorm:"not null;uniqueIndex:idx_snapshot_holder"`
	Balance    Amount `json:"balance" gorm:"not null"`
}

// TableName 自定义表名
func (HolderBalanceModel) TableName() string {
	return "holder_balance"
}
