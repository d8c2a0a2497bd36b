package model

import (
	"time"
)

// RevenueReportModel 预言机提交的收入报告，只追加，永不修改
type RevenueReportModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	OracleId int64 `json:"oracle_id" gorm:"not null;uniqueIndex:idx_report_unique"`
	WorkId   int64 `json:"work_id" gorm:"not null;uniqueIndex:idx_report_unique"`

	// 账期（半开区间，UTC）
	PeriodStart time.Time `json:"period_start" gorm:"not null;uniqueIndex:idx_report_unique"`
	PeriodEnd   time.Time `json:"period_end" gorm:"not null;uniqueIndex:idx_report_unique"`

	// 报告内容
	Amount     Amount    `json:"amount" gorm:"not null"` // 最小单位整数金额
	Currency   string    `json:"currency" gorm:"not null"`
	Source     string    `json:"source"` // 收入来源标签（streaming, sync, ...）
	ReportHash string    `json:"report_hash" gorm:"not null;uniqueIndex:idx_report_unique"`
	Signature  string    `json:"signature" gorm:"not null"` // 对规范化哈希的secp256k1签名（hex）
	ReceivedAt time.Time `json:"received_at" gorm:"not null"`
}

// TableName 自定义表名
func (RevenueReportModel) TableName() string {
	return "revenue_report"
}
