package model

import (
	"time"
)

// HolderIndexModel 链下持仓索引：由 Transfer 事件维护的物化视图
type HolderIndexModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	UpdatedAt time.Time `json:"updated_at"`

	TokenAddress string `json:"token_address" gorm:"not null;uniqueIndex:idx_token_holder"`
	Holder       string `json:"holder" gorm:"not null;uniqueIndex:idx_token_holder"`
	Balance      Amount `json:"balance" gorm:"not null"`
	UpdatedBlock int64  `json:"updated_block" gorm:"not null"` // 余额生效的区块高度
}

// TableName 自定义表名
func (HolderIndexModel) TableName() string {
	return "holder_index"
}

// ChainCursorModel 索引器游标：记录每个代币合约已处理到的区块
type ChainCursorModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	UpdatedAt time.Time `json:"updated_at"`

	TokenAddress string `json:"token_address" gorm:"not null;uniqueIndex"`
	LastBlock    int64  `json:"last_block" gorm:"not null"`
}

// TableName 自定义表名
func (ChainCursorModel) TableName() string {
	return "chain_cursor"
}
