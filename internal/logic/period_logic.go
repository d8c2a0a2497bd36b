package logic

import (
	"errors"
	"fmt"

	"github.com/blues/rds/internal/logger"
	"github.com/blues/rds/internal/model"
	"github.com/blues/rds/internal/period"
	"gorm.io/gorm"
)

// PeriodLogic 账期查询与管理员操作
type PeriodLogic struct {
	db *gorm.DB
}

// NewPeriodLogic 创建账期逻辑
func NewPeriodLogic(db *gorm.DB) *PeriodLogic {
	return &PeriodLogic{db: db}
}

// PeriodDetail 账期完整状态
type PeriodDetail struct {
	Period   model.PeriodModel          `json:"period"`
	Snapshot *model.HolderSnapshotModel `json:"snapshot,omitempty"`
	Plan     *model.PayoutPlanModel     `json:"plan,omitempty"`
	Batches  []model.PayoutBatchModel   `json:"batches,omitempty"`
	Receipts []model.ReceiptModel       `json:"receipts,omitempty"`
	Events   []model.EventModel         `json:"events,omitempty"`
}

// Get 获取账期完整状态，含计划、批次与审计事件
func (l *PeriodLogic) Get(id int64) (*PeriodDetail, error) {
	var p model.PeriodModel
	if err := l.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPeriodUnknown
		}
		return nil, err
	}

	detail := &PeriodDetail{Period: p}

	var snapshot model.HolderSnapshotModel
	if err := l.db.Where("period_id = ?", p.Id).First(&snapshot).Error; err == nil {
		detail.Snapshot = &snapshot
	}

	if p.PlanId > 0 {
		var plan model.PayoutPlanModel
		if err := l.db.Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("line_index ASC")
		}).First(&plan, p.PlanId).Error; err == nil {
			detail.Plan = &plan
		}

		if err := l.db.Where("plan_id = ?", p.PlanId).
			Order("batch_index ASC").Find(&detail.Batches).Error; err != nil {
			return nil, err
		}

		batchIds := make([]int64, 0, len(detail.Batches))
		for _, b := range detail.Batches {
			batchIds = append(batchIds, b.Id)
		}
		if len(batchIds) > 0 {
			if err := l.db.Where("batch_id IN ?", batchIds).Find(&detail.Receipts).Error; err != nil {
				return nil, err
			}
		}
	}

	if err := l.db.Where("entity_type = ? AND entity_id = ?", model.EntityPeriod, p.Id).
		Order("id ASC").Find(&detail.Events).Error; err != nil {
		return nil, err
	}

	return detail, nil
}

// List 分页查询账期
func (l *PeriodLogic) List(workKey string, state string, page, pageSize int) ([]model.PeriodModel, int64, error) {
	query := l.db.Model(&model.PeriodModel{})

	if workKey != "" {
		var work model.WorkModel
		if err := l.db.Where("work_key = ?", workKey).First(&work).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, 0, ErrWorkUnknown
			}
			return nil, 0, err
		}
		query = query.Where("work_id = ?", work.Id)
	}
	if state != "" {
		query = query.Where("state = ?", state)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	var periods []model.PeriodModel
	err := query.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&periods).Error
	return periods, total, err
}

// Cancel 取消账期：非终态且未进入结算时转入Disputed。
// Settling 中的账期不可取消，只能暂停结算驱动。
func (l *PeriodLogic) Cancel(id int64, reason string) (*model.PeriodModel, error) {
	var p model.PeriodModel
	if err := l.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPeriodUnknown
		}
		return nil, err
	}

	if p.State.Terminal() {
		return nil, fmt.Errorf("%w: period is %s", ErrPeriodState, p.State)
	}
	if p.State == model.PeriodStateSettling {
		return nil, fmt.Errorf("%w: settling period cannot be cancelled", ErrPeriodState)
	}

	err := l.db.Transaction(func(tx *gorm.DB) error {
		return period.Transition(tx, &p, model.PeriodStateDisputed, model.CauseAdminCancel,
			fmt.Sprintf(`{"reason":%q}`, reason))
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Period %d cancelled: %s", p.Id, reason)
	return &p, nil
}

// OverrideAmount 争议裁定：管理员指定权威金额。
// 已有快照时直接回到Snapshotted，否则回到Aggregating等待快照。
func (l *PeriodLogic) OverrideAmount(id int64, amount model.Amount) (*model.PeriodModel, error) {
	var p model.PeriodModel
	if err := l.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPeriodUnknown
		}
		return nil, err
	}

	if p.State != model.PeriodStateDisputed {
		return nil, fmt.Errorf("%w: override requires disputed, got %s", ErrPeriodState, p.State)
	}
	if !amount.IsValidMinorUnits() {
		return nil, ErrBadAmount
	}

	target := model.PeriodStateAggregating
	if p.SnapshotBlock > 0 {
		target = model.PeriodStateSnapshotted
	}

	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.PeriodModel{}).Where("id = ?", p.Id).
			Update("aggregated_amount", amount).Error; err != nil {
			return err
		}
		p.AggregatedAmount = amount
		return period.ForceFromDisputed(tx, &p, target, model.CauseAdminOverride,
			fmt.Sprintf(`{"amount":%q}`, amount.String()))
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Period %d amount overridden to %s, state -> %s", p.Id, amount.String(), p.State)
	return &p, nil
}

// Reopen 为终态账期创建新尝试，引用失败的上一次
func (l *PeriodLogic) Reopen(id int64) (*model.PeriodModel, error) {
	var prev model.PeriodModel
	if err := l.db.First(&prev, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPeriodUnknown
		}
		return nil, err
	}

	if prev.State != model.PeriodStateDisputed && prev.State != model.PeriodStateFailed {
		return nil, fmt.Errorf("%w: reopen requires disputed or failed, got %s", ErrPeriodState, prev.State)
	}

	next := &model.PeriodModel{
		WorkId:        prev.WorkId,
		PeriodStart:   prev.PeriodStart,
		PeriodEnd:     prev.PeriodEnd,
		Attempt:       prev.Attempt + 1,
		PrevAttemptId: prev.Id,
		State:         model.PeriodStateOpen,
	}

	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(next).Error; err != nil {
			return err
		}
		return period.AppendEvent(tx, model.EntityPeriod, next.Id, "", string(model.PeriodStateOpen),
			"reopened", fmt.Sprintf(`{"prev_attempt_id":%d}`, prev.Id))
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Period %d reopened as attempt %d (period %d)", prev.Id, next.Attempt, next.Id)
	return next, nil
}
