package logic

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blues/rds/internal/logger"
	"github.com/blues/rds/internal/model"
	"github.com/blues/rds/internal/oracle"
	"github.com/blues/rds/internal/period"
	"gorm.io/gorm"
)

// ReportLogic 收入报告摄入
type ReportLogic struct {
	db         *gorm.DB
	currencies map[string]int // 货币允许表
}

// NewReportLogic 创建报告摄入逻辑
func NewReportLogic(db *gorm.DB, currencies map[string]int) *ReportLogic {
	return &ReportLogic{db: db, currencies: currencies}
}

// SubmitParams 提交报告的参数
type SubmitParams struct {
	OracleKey   string
	WorkKey     string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Amount      model.Amount
	Currency    string
	Source      string
	ReportHash  string
	Signature   string
}

// Submit 校验并原子落库一条收入报告。
// 重复提交为幂等空操作，返回 duplicate=true。
func (l *ReportLogic) Submit(p SubmitParams) (*model.RevenueReportModel, bool, error) {
	// 预言机必须已注册且活跃
	var orc model.OracleModel
	if err := l.db.Where("oracle_key = ?", p.OracleKey).First(&orc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrOracleUnknown
		}
		return nil, false, err
	}
	if !orc.Active {
		return nil, false, ErrOracleInactive
	}

	var work model.WorkModel
	if err := l.db.Where("work_key = ?", p.WorkKey).First(&work).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrWorkUnknown
		}
		return nil, false, err
	}

	// 账期必须对齐作品配置的粒度
	if !alignedToGrid(work.PeriodGrid, p.PeriodStart, p.PeriodEnd) {
		return nil, false, ErrBadPeriodBounds
	}

	// 金额与货币
	if !p.Amount.IsValidMinorUnits() {
		return nil, false, ErrBadAmount
	}
	if _, ok := l.currencies[strings.ToUpper(p.Currency)]; !ok {
		return nil, false, ErrBadCurrency
	}

	// 签名校验
	payload := oracle.ReportPayload{
		OracleKey:   p.OracleKey,
		WorkKey:     p.WorkKey,
		PeriodStart: p.PeriodStart,
		PeriodEnd:   p.PeriodEnd,
		Amount:      p.Amount.BigInt(),
		Currency:    p.Currency,
		Source:      p.Source,
		ReportHash:  p.ReportHash,
	}
	if err := oracle.Verify(orc.PublicKey, payload, p.Signature); err != nil {
		logger.Warn("Report signature rejected for oracle %s: %v", p.OracleKey, err)
		return nil, false, ErrBadSignature
	}

	// 账期状态检查：快照之后不再接收报告
	var current model.PeriodModel
	err := l.db.Where("work_id = ? AND period_start = ? AND period_end = ?",
		work.Id, p.PeriodStart.UTC(), p.PeriodEnd.UTC()).
		Order("attempt DESC").First(&current).Error
	periodExists := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	if periodExists && (current.State.AtOrAfter(model.PeriodStateSnapshotted) || current.SnapshotBlock > 0) {
		return nil, false, ErrPeriodClosed
	}

	// 去重：(oracle, work, period, reportHash) 唯一
	var count int64
	if err := l.db.Model(&model.RevenueReportModel{}).
		Where("oracle_id = ? AND work_id = ? AND period_start = ? AND period_end = ? AND report_hash = ?",
			orc.Id, work.Id, p.PeriodStart.UTC(), p.PeriodEnd.UTC(), p.ReportHash).
		Count(&count).Error; err != nil {
		return nil, false, err
	}
	if count > 0 {
		return nil, true, nil
	}

	report := &model.RevenueReportModel{
		OracleId:    orc.Id,
		WorkId:      work.Id,
		PeriodStart: p.PeriodStart.UTC(),
		PeriodEnd:   p.PeriodEnd.UTC(),
		Amount:      p.Amount,
		Currency:    strings.ToUpper(p.Currency),
		Source:      p.Source,
		ReportHash:  p.ReportHash,
		Signature:   p.Signature,
		ReceivedAt:  time.Now().UTC(),
	}

	err = l.db.Transaction(func(tx *gorm.DB) error {
		// 账期不存在时创建Open状态的首次尝试
		if !periodExists {
			current = model.PeriodModel{
				WorkId:      work.Id,
				PeriodStart: p.PeriodStart.UTC(),
				PeriodEnd:   p.PeriodEnd.UTC(),
				Attempt:     1,
				State:       model.PeriodStateOpen,
			}
			if err := tx.Create(&current).Error; err != nil {
				return err
			}
			if err := period.AppendEvent(tx, model.EntityPeriod, current.Id, "", string(model.PeriodStateOpen), model.CauseReportIngested, ""); err != nil {
				return err
			}
		}

		if err := tx.Create(report).Error; err != nil {
			return err
		}
		return period.AppendEvent(tx, model.EntityReport, report.Id, "", "ingested", model.CauseReportIngested,
			fmt.Sprintf(`{"oracle":"%s","work":"%s"}`, p.OracleKey, p.WorkKey))
	})
	if err != nil {
		return nil, false, err
	}

	logger.Info("Ingested report %d from oracle %s for work %s", report.Id, p.OracleKey, p.WorkKey)
	return report, false, nil
}

// alignedToGrid 账期边界是否对齐作品粒度（默认自然月，UTC）
func alignedToGrid(grid string, start, end time.Time) bool {
	if !end.After(start) {
		return false
	}

	switch grid {
	case "", "month":
		s := start.UTC()
		if s.Day() != 1 || s.Hour() != 0 || s.Minute() != 0 || s.Second() != 0 || s.Nanosecond() != 0 {
			return false
		}
		return s.AddDate(0, 1, 0).Equal(end.UTC())
	default:
		return false
	}
}
