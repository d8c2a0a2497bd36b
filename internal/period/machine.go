package period

import (
	"errors"
	"fmt"

	"github.com/blues/rds/internal/model"
	"gorm.io/gorm"
)

// ErrInvalidTransition 非法状态迁移
var ErrInvalidTransition = errors.New("invalid period state transition")

// InvariantViolationError 运行时不变量被破坏。
// 调用方必须停止写入并以退出码3结束进程。
type InvariantViolationError struct {
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Detail)
}

// Transition 在事务内推进账期状态并追加审计事件。
// 只校验并应用迁移本身，业务前置条件由调用方保证。
func Transition(tx *gorm.DB, p *model.PeriodModel, to model.PeriodState, cause, detail string) error {
	from := p.State
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	updates := map[string]interface{}{"state": to}
	switch to {
	case model.PeriodStateDisputed:
		updates["dispute_reason"] = cause
	case model.PeriodStateFailed:
		updates["fail_reason"] = cause
	}

	// 以旧状态为条件更新，并发推进时丢失竞争的一方不生效
	res := tx.Model(&model.PeriodModel{}).
		Where("id = ? AND state = ?", p.Id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: period %d no longer in state %s", ErrInvalidTransition, p.Id, from)
	}

	p.State = to
	return AppendEvent(tx, model.EntityPeriod, p.Id, string(from), string(to), cause, detail)
}

// ForceFromDisputed 管理员强制迁移：仅允许从 Disputed 回到流水线。
// 覆盖金额裁定走这里，其他场景一律经 Transition。
func ForceFromDisputed(tx *gorm.DB, p *model.PeriodModel, to model.PeriodState, cause, detail string) error {
	if p.State != model.PeriodStateDisputed {
		return fmt.Errorf("%w: period %d is %s, not disputed", ErrInvalidTransition, p.Id, p.State)
	}
	if to != model.PeriodStateAggregating && to != model.PeriodStateSnapshotted {
		return fmt.Errorf("%w: disputed -> %s", ErrInvalidTransition, to)
	}

	res := tx.Model(&model.PeriodModel{}).
		Where("id = ? AND state = ?", p.Id, model.PeriodStateDisputed).
		Updates(map[string]interface{}{"state": to, "dispute_reason": ""})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: period %d no longer disputed", ErrInvalidTransition, p.Id)
	}

	from := p.State
	p.State = to
	p.DisputeReason = ""
	return AppendEvent(tx, model.EntityPeriod, p.Id, string(from), string(to), cause, detail)
}

// AppendEvent 追加审计事件
func AppendEvent(tx *gorm.DB, entityType string, entityId int64, from, to, cause, detail string) error {
	event := &model.EventModel{
		EntityType: entityType,
		EntityId:   entityId,
		FromState:  from,
		ToState:    to,
		Cause:      cause,
		Detail:     detail,
	}
	return tx.Create(event).Error
}

// Key 账期的业务标识，用于计划哈希等规范化场景
func Key(p *model.PeriodModel) string {
	return fmt.Sprintf("%d:%d:%d:%d", p.WorkId, p.PeriodStart.UTC().Unix(), p.PeriodEnd.UTC().Unix(), p.Attempt)
}
