package model

import (
	"time"
)

// SettlementControlModel 结算驱动开关，全局单行。
// 暂停后不再广播新批次，在途批次继续等待确认。
type SettlementControlModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	UpdatedAt time.Time `json:"updated_at"`

	Paused bool   `json:"paused" gorm:"default:false"`
	Reason string `json:"reason"`
}

// TableName 自定义表名
func (SettlementControlModel) TableName() string {
	return "settlement_control"
}
