package period

import (
	"errors"
	"strings"
	"time"

	"github.com/blues/rds/internal/model"
	"gorm.io/gorm"
)

// AcquireLock 获取账期咨询锁。通过 UNIQUE(work_id, period_start, period_end)
// 的单行插入实现，插入冲突表示锁已被其他worker持有。
func AcquireLock(db *gorm.DB, p *model.PeriodModel, owner string) (bool, error) {
	lock := &model.AttemptLockModel{
		WorkId:      p.WorkId,
		PeriodStart: p.PeriodStart,
		PeriodEnd:   p.PeriodEnd,
		Attempt:     p.Attempt,
		Owner:       owner,
		LeasedAt:    time.Now().UTC(),
	}

	err := db.Create(lock).Error
	if err != nil {
		if isDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReleaseLock 释放账期咨询锁，只允许持有者释放
func ReleaseLock(db *gorm.DB, p *model.PeriodModel, owner string) error {
	return db.Where("work_id = ? AND period_start = ? AND period_end = ? AND owner = ?",
		p.WorkId, p.PeriodStart, p.PeriodEnd, owner).
		Delete(&model.AttemptLockModel{}).Error
}

// isDuplicateKeyError 唯一约束冲突判定，postgres与sqlite驱动均适用
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
