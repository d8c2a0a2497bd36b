package logic

import (
	"errors"

	"github.com/blues/rds/internal/model"
	"github.com/blues/rds/internal/settlement"
	"gorm.io/gorm"
)

// SettlementLogic 结算开关管理
type SettlementLogic struct {
	db *gorm.DB
}

// NewSettlementLogic 创建结算管理逻辑
func NewSettlementLogic(db *gorm.DB) *SettlementLogic {
	return &SettlementLogic{db: db}
}

// Pause 暂停结算：不再广播新批次，在途批次继续等待确认
func (l *SettlementLogic) Pause(reason string) error {
	return settlement.SetPaused(l.db, true, reason)
}

// Resume 恢复结算
func (l *SettlementLogic) Resume() error {
	return settlement.SetPaused(l.db, false, "")
}

// Status 当前结算开关状态
func (l *SettlementLogic) Status() (*model.SettlementControlModel, error) {
	var ctl model.SettlementControlModel
	if err := l.db.First(&ctl, 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.SettlementControlModel{Id: 1, Paused: false}, nil
		}
		return nil, err
	}
	return &ctl, nil
}
