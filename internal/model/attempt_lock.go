package model

import (
	"time"
)

// AttemptLockModel 账期咨询锁：同一账期同一时刻只允许一个持有者推进。
// 通过 UNIQUE(work_id, period_start, period_end) 的单行插入实现。
type AttemptLockModel struct {
	Id int64 `json:"id" gorm:"primaryKey"`

	WorkId      int64     `json:"work_id" gorm:"not null;uniqueIndex:idx_attempt_lock"`
	PeriodStart time.Time `json:"period_start" gorm:"not null;uniqueIndex:idx_attempt_lock"`
	PeriodEnd   time.Time `json:"period_end" gorm:"not null;uniqueIndex:idx_attempt_lock"`
	Attempt     int       `json:"attempt" gorm:"not null"`
	Owner       string    `json:"owner" gorm:"not null"` // 持有者标识（实例id+worker）
	LeasedAt    time.Time `json:"leased_at" gorm:"not null"`
}

// TableName 自定义表名
func (AttemptLockModel) TableName() string {
	return "in_progress_attempt"
}

// SignerLeaseModel 结算签名钥独占租约，全局单行，带心跳
type SignerLeaseModel struct {
	Id          int64     `json:"id" gorm:"primaryKey"`
	Owner       string    `json:"owner" gorm:"not null"`
	SignerAddr  string    `json:"signer_addr" gorm:"not null"`
	HeartbeatAt time.Time `json:"heartbeat_at" gorm:"not null"`
}

// TableName 自定义表名
func (SignerLeaseModel) TableName() string {
	return "settlement_signer_lease"
}
