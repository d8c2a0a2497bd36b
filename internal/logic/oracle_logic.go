package logic

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/blues/rds/internal/model"
	"github.com/blues/rds/internal/period"
	"gorm.io/gorm"
)

// OracleLogic 预言机注册与管理。注册与停用都留审计轨迹。
type OracleLogic struct {
	db *gorm.DB
}

// NewOracleLogic 创建预言机逻辑
func NewOracleLogic(db *gorm.DB) *OracleLogic {
	return &OracleLogic{db: db}
}

// Register 注册预言机身份
func (l *OracleLogic) Register(orc *model.OracleModel) error {
	if orc.OracleKey == "" {
		return fmt.Errorf("oracle_key is required")
	}
	if orc.TrustWeight <= 0 || orc.TrustWeight > 1 {
		return fmt.Errorf("trust_weight must be in (0, 1]")
	}

	// 压缩secp256k1公钥为33字节
	key, err := hex.DecodeString(strings.TrimPrefix(orc.PublicKey, "0x"))
	if err != nil || len(key) != 33 {
		return fmt.Errorf("public_key must be a 33-byte compressed secp256k1 key in hex")
	}
	orc.PublicKey = hex.EncodeToString(key)

	var count int64
	if err := l.db.Model(&model.OracleModel{}).Where("oracle_key = ?", orc.OracleKey).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrOracleExists
	}

	orc.Active = true
	return l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(orc).Error; err != nil {
			return err
		}
		return period.AppendEvent(tx, model.EntityOracle, orc.Id, "", "active", "registered", "")
	})
}

// Deactivate 停用预言机。已停用预言机的报告不参与后续聚合。
func (l *OracleLogic) Deactivate(oracleKey string) error {
	var orc model.OracleModel
	if err := l.db.Where("oracle_key = ?", oracleKey).First(&orc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOracleUnknown
		}
		return err
	}
	if !orc.Active {
		return nil
	}

	return l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&orc).Update("active", false).Error; err != nil {
			return err
		}
		return period.AppendEvent(tx, model.EntityOracle, orc.Id, "active", "inactive", "deactivated", "")
	})
}

// List 获取预言机列表
func (l *OracleLogic) List() ([]model.OracleModel, error) {
	var oracles []model.OracleModel
	err := l.db.Order("id ASC").Find(&oracles).Error
	return oracles, err
}
