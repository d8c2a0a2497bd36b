package settlement

import (
	"errors"
	"time"

	"github.com/blues/rds/internal/logger"
	"github.com/blues/rds/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IsPaused 结算是否被管理员暂停
func IsPaused(db *gorm.DB) (bool, error) {
	var ctl model.SettlementControlModel
	if err := db.First(&ctl, 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return ctl.Paused, nil
}

// SetPaused 设置结算暂停开关
func SetPaused(db *gorm.DB, paused bool, reason string) error {
	ctl := model.SettlementControlModel{Id: 1, Paused: paused, Reason: reason}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"paused", "reason"}),
	}).Create(&ctl).Error
	if err != nil {
		return err
	}
	if paused {
		logger.Warn("Settlement paused: %s", reason)
	} else {
		logger.Info("Settlement resumed")
	}
	return nil
}

// Lease 结算签名者租约。同一时刻只允许一个进程持有签名者，
// 避免两个实例用同一账户并发广播导致nonce互踩。
type Lease struct {
	db    *gorm.DB
	owner string
	ttl   time.Duration
}

// NewLease 创建租约管理器
func NewLease(db *gorm.DB, owner string, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Lease{db: db, owner: owner, ttl: ttl}
}

// Acquire 抢占或续期租约，返回本进程是否持有
func (l *Lease) Acquire(signerAddr string) (bool, error) {
	now := time.Now().UTC()
	deadline := now.Add(-l.ttl)

	var lease model.SignerLeaseModel
	err := l.db.First(&lease, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		lease = model.SignerLeaseModel{Id: 1, Owner: l.owner, SignerAddr: signerAddr, HeartbeatAt: now}
		if err := l.db.Create(&lease).Error; err != nil {
			// 并发抢占，让对方持有
			return false, nil
		}
		logger.Info("Acquired settlement signer lease as %s", l.owner)
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if lease.Owner != l.owner && lease.HeartbeatAt.After(deadline) {
		return false, nil
	}

	// 本进程持有或持有者过期，带条件更新避免并发互踩
	res := l.db.Model(&model.SignerLeaseModel{}).
		Where("id = 1 AND (owner = ? OR heartbeat_at <= ?)", l.owner, deadline).
		Updates(map[string]interface{}{"owner": l.owner, "signer_addr": signerAddr, "heartbeat_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if lease.Owner != l.owner {
		logger.Warn("Took over stale settlement signer lease from %s", lease.Owner)
	}
	return true, nil
}

// Held 本进程当前是否持有未过期租约
func (l *Lease) Held() (bool, error) {
	var lease model.SignerLeaseModel
	if err := l.db.First(&lease, 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return lease.Owner == l.owner && lease.HeartbeatAt.After(time.Now().UTC().Add(-l.ttl)), nil
}

// Release 主动释放租约
func (l *Lease) Release() error {
	return l.db.Where("id = 1 AND owner = ?", l.owner).Delete(&model.SignerLeaseModel{}).Error
}
