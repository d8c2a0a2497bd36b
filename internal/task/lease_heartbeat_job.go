package task

import (
	"time"

	"github.com/blues/rds/internal/chain"
	"github.com/blues/rds/internal/config"
	"github.com/blues/rds/internal/logger"
	"github.com/blues/rds/internal/settlement"
	"github.com/go-co-op/gocron/v2"
)

// LeaseHeartbeatJob 签名者租约心跳：抢占或续期全局结算签名者租约。
// 未配置签名私钥的实例不参与抢占。
type LeaseHeartbeatJob struct {
	config *config.Config
	chains *chain.Manager
	lease  *settlement.Lease
}

// NewLeaseHeartbeatJob 创建租约心跳任务
func NewLeaseHeartbeatJob(cfg *config.Config, chains *chain.Manager, lease *settlement.Lease) *LeaseHeartbeatJob {
	return &LeaseHeartbeatJob{config: cfg, chains: chains, lease: lease}
}

// GetName 获取任务名称
func (j *LeaseHeartbeatJob) GetName() string {
	return "signer_lease_heartbeat"
}

// GetSchedule 获取调度配置
func (j *LeaseHeartbeatJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(15 * time.Second)
}

// Execute 执行任务
func (j *LeaseHeartbeatJob) Execute() {
	signer, err := j.chains.GetSigner()
	if err != nil {
		return
	}

	held, err := j.lease.Acquire(signer.Address().Hex())
	if err != nil {
		logger.Error("Failed to acquire signer lease: %v", err)
		return
	}
	if !held {
		logger.Debug("Signer lease held by another instance")
	}
}
