package model

import (
	"time"
)

// PeriodModel 某作品一个账期的一次分配尝试
type PeriodModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	WorkId int64 `json:"work_id" gorm:"not null;uniqueIndex:idx_period_attempt"`

	// 账期（半开区间，UTC）
	PeriodStart time.Time `json:"period_start" gorm:"not null;uniqueIndex:idx_period_attempt"`
	PeriodEnd   time.Time `json:"period_end" gorm:"not null;uniqueIndex:idx_period_attempt"`

	// 尝试编号，争议/失败后重开时递增
	Attempt       int   `json:"attempt" gorm:"default:1;uniqueIndex:idx_period_attempt"`
	PrevAttemptId int64 `json:"prev_attempt_id" gorm:"default:0"` // 引用上一次终止的尝试

	// 状态
	State PeriodState `json:"state" gorm:"default:'open'"`

	// 流水线产出
	AggregatedAmount Amount `json:"aggregated_amount"`
	Currency         string `json:"currency"`
	SnapshotBlock    int64  `json:"snapshot_block" gorm:"default:0"`
	PlanId           int64  `json:"plan_id" gorm:"default:0"`

	// 终止原因
	DisputeReason string `json:"dispute_reason"`
	FailReason    string `json:"fail_reason"`
}

// TableName 自定义表名
func (PeriodModel) TableName() string {
	return "period"
}

// PeriodState 账期状态
type PeriodState string

const (
	PeriodStateOpen        PeriodState = "open"        // 收集报告中
	PeriodStateAggregating PeriodState = "aggregating" // 已聚合，等待快照
	PeriodStateSnapshotted PeriodState = "snapshotted" // 持仓快照完成
	PeriodStatePlanned     PeriodState = "planned"     // 分配计划生成
	PeriodStateSettling    PeriodState = "settling"    // 链上结算中
	PeriodStateSettled     PeriodState = "settled"     // 结算完成
	PeriodStateDisputed    PeriodState = "disputed"    // 争议，等待管理员处理
	PeriodStateFailed      PeriodState = "failed"      // 失败，等待管理员处理
)

// Terminal 是否为终态（本次尝试不再推进）
func (s PeriodState) Terminal() bool {
	return s == PeriodStateSettled || s == PeriodStateDisputed || s == PeriodStateFailed
}

// rank 状态在流水线中的次序，终态不参与比较
func (s PeriodState) rank() int {
	switch s {
	case PeriodStateOpen:
		return 0
	case PeriodStateAggregating:
		return 1
	case PeriodStateSnapshotted:
		return 2
	case PeriodStatePlanned:
		return 3
	case PeriodStateSettling:
		return 4
	case PeriodStateSettled:
		return 5
	default:
		return -1
	}
}

// AtOrAfter 状态是否达到或越过给定阶段
func (s PeriodState) AtOrAfter(other PeriodState) bool {
	return s.rank() >= 0 && other.rank() >= 0 && s.rank() >= other.rank()
}

// CanTransitionTo 校验状态迁移是否合法：只允许前进一步，或从非终态进入 disputed/failed
func (s PeriodState) CanTransitionTo(to PeriodState) bool {
	if s.Terminal() {
		return false
	}
	if to == PeriodStateDisputed || to == PeriodStateFailed {
		return true
	}
	return to.rank() == s.rank()+1
}
