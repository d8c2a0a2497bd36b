package model

import (
	"time"
)

// WorkModel 已代币化的音乐作品
type WorkModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 基本信息
	WorkKey  string `json:"work_key" gorm:"uniqueIndex;not null" binding:"required"` // 稳定业务标识
	Title    string `json:"title"`
	ArtistId string `json:"artist_id" gorm:"not null" binding:"required"`

	// 区块链信息（代币化后不可变）
	TokenAddress string `json:"token_address" gorm:"not null" binding:"required"` // 版税代币合约地址
	ChainId      int64  `json:"chain_id" gorm:"not null"`

	// 账期与聚合配置（按作品覆盖全局默认）
	PeriodGrid        string `json:"period_grid" gorm:"default:'month'"` // 账期粒度，目前支持 month
	AggregationPolicy string `json:"aggregation_policy"`                 // 为空时使用全局配置
	MinOracleCount    int    `json:"min_oracle_count" gorm:"default:0"`  // 0 表示使用全局配置
	MaxDeviationBps   int    `json:"max_deviation_bps" gorm:"default:0"` // 0 表示使用全局配置
	SnapshotSource    string `json:"snapshot_source"`                    // contract 或 index，为空时使用全局配置
}

// TableName 自定义表名
func (WorkModel) TableName() string {
	return "work"
}
