package logic

import (
	"errors"
	"fmt"

	"github.com/blues/rds/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

// WorkLogic 作品注册与查询
type WorkLogic struct {
	db *gorm.DB
}

// NewWorkLogic 创建作品逻辑
func NewWorkLogic(db *gorm.DB) *WorkLogic {
	return &WorkLogic{db: db}
}

// Create 注册已代币化的作品。代币地址与链ID注册后不可变。
func (l *WorkLogic) Create(work *model.WorkModel) error {
	if work.WorkKey == "" || work.ArtistId == "" {
		return fmt.Errorf("work_key and artist_id are required")
	}
	if !common.IsHexAddress(work.TokenAddress) {
		return fmt.Errorf("invalid token address: %s", work.TokenAddress)
	}
	work.TokenAddress = common.HexToAddress(work.TokenAddress).Hex()

	if work.PeriodGrid == "" {
		work.PeriodGrid = "month"
	}
	if work.PeriodGrid != "month" {
		return fmt.Errorf("unsupported period grid: %s", work.PeriodGrid)
	}

	var count int64
	if err := l.db.Model(&model.WorkModel{}).Where("work_key = ?", work.WorkKey).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrWorkExists
	}

	return l.db.Create(work).Error
}

// Get 按业务标识获取作品
func (l *WorkLogic) Get(workKey string) (*model.WorkModel, error) {
	var work model.WorkModel
	if err := l.db.Where("work_key = ?", workKey).First(&work).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkUnknown
		}
		return nil, err
	}
	return &work, nil
}

// List 获取作品列表
func (l *WorkLogic) List(page, pageSize int) ([]model.WorkModel, int64, error) {
	var total int64
	if err := l.db.Model(&model.WorkModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	var works []model.WorkModel
	err := l.db.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&works).Error
	return works, total, err
}
