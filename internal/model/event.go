package model

import (
	"time"
)

// EventModel 审计事件：记录每次实体状态迁移
type EventModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	EntityType string `json:"entity_type" gorm:"not null;index:idx_event_entity"` // period, batch, oracle, ...
	EntityId   int64  `json:"entity_id" gorm:"not null;index:idx_event_entity"`
	FromState  string `json:"from_state"`
	ToState    string `json:"to_state" gorm:"not null"`
	Cause      string `json:"cause" gorm:"not null"`
	Detail     string `json:"detail" gorm:"type:text"` // 管理员审计数据等自由格式JSON
}

// TableName 自定义表名
func (EventModel) TableName() string {
	return "events"
}

// 实体类型
const (
	EntityPeriod string = "period"
	EntityBatch  string = "batch"
	EntityOracle string = "oracle"
	EntityReport string = "report"
)

// 常见迁移原因
const (
	CauseReportIngested   string = "report_ingested"
	CausePeriodAggregated string = "period_aggregated"
	CauseSnapshotTaken    string = "snapshot_taken"
	CausePlanComputed     string = "plan_computed"
	CauseSettlementBegin  string = "settlement_begin"
	CauseSettlementDone   string = "settlement_done"
	CauseAdminOverride    string = "admin_override"
	CauseAdminCancel      string = "admin_cancel"
	CauseDeviation        string = "deviation"
	CauseSnapshotMismatch string = "snapshot_mismatch"
	CauseChainRevert      string = "chain_revert"
	CauseReorg            string = "reorg"
)
