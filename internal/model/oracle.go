package model

import (
	"time"
)

// OracleModel 已注册的收入预言机身份
type OracleModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OracleKey   string  `json:"oracle_key" gorm:"uniqueIndex;not null" binding:"required"` // 稳定业务标识
	Name        string  `json:"name"`
	PublicKey   string  `json:"public_key" gorm:"not null" binding:"required"` // secp256k1 压缩公钥（hex）
	TrustWeight float64 `json:"trust_weight" gorm:"default:1"`                 // 信任权重 (0,1]
	Active      bool    `json:"active" gorm:"default:true"`
}

// TableName 自定义表名
func (OracleModel) TableName() string {
	return "oracle"
}
