package task

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/blues/rds/internal/config"
	"github.com/blues/rds/internal/logger"
	"github.com/blues/rds/internal/logic"
	"github.com/blues/rds/internal/model"
	"github.com/blues/rds/internal/period"
	"github.com/blues/rds/internal/settlement"
	"github.com/go-co-op/gocron/v2"
	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"
)

// 单账期单步的执行时限
const stepTimeout = 2 * time.Minute

// 单轮处理的账期上限
const maxPeriodsPerTick = 100

// PeriodPipelineJob 账期流水线任务：找出可推进的账期，
// 在咨询锁保护下经worker池并发推进，每轮每账期至多一步。
type PeriodPipelineJob struct {
	db       *gorm.DB
	config   *config.Config
	pipeline *logic.PipelineLogic
	lease    *settlement.Lease
	owner    string
	pool     *ants.Pool
}

// NewPeriodPipelineJob 创建账期流水线任务
func NewPeriodPipelineJob(db *gorm.DB, cfg *config.Config, pipeline *logic.PipelineLogic,
	lease *settlement.Lease, instanceId string) *PeriodPipelineJob {
	workers := cfg.Task.WorkerPool
	if workers < 1 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		logger.Fatal("Failed to create worker pool: %v", err)
	}

	return &PeriodPipelineJob{
		db:       db,
		config:   cfg,
		pipeline: pipeline,
		lease:    lease,
		owner:    instanceId,
		pool:     pool,
	}
}

// GetName 获取任务名称
func (j *PeriodPipelineJob) GetName() string {
	return "period_pipeline"
}

// GetSchedule 获取调度配置
func (j *PeriodPipelineJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Task.Interval) * time.Second)
}

// Execute 执行任务
func (j *PeriodPipelineJob) Execute() {
	periods, err := j.pipeline.Runnable(maxPeriodsPerTick)
	if err != nil {
		logger.Error("Failed to fetch runnable periods: %v", err)
		return
	}
	if len(periods) == 0 {
		return
	}

	// 广播需要持有签名者租约，租约由心跳任务维护
	leaseHeld, err := j.lease.Held()
	if err != nil {
		logger.Error("Failed to check signer lease: %v", err)
		return
	}

	var wg sync.WaitGroup
	for i := range periods {
		p := periods[i]

		needsSigner := p.State == model.PeriodStatePlanned || p.State == model.PeriodStateSettling
		if needsSigner && !leaseHeld {
			logger.Debug("Skipping period %d: settlement signer lease not held", p.Id)
			continue
		}

		wg.Add(1)
		err := j.pool.Submit(func() {
			defer wg.Done()
			j.step(&p)
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit period %d to worker pool: %v", p.Id, err)
		}
	}
	wg.Wait()
}

// step 在咨询锁保护下推进单个账期一步
func (j *PeriodPipelineJob) step(p *model.PeriodModel) {
	acquired, err := period.AcquireLock(j.db, p, j.owner)
	if err != nil {
		logger.Error("Failed to acquire lock for period %d: %v", p.Id, err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := period.ReleaseLock(j.db, p, j.owner); err != nil {
			logger.Error("Failed to release lock for period %d: %v", p.Id, err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), stepTimeout)
	defer cancel()

	if err := j.pipeline.Step(ctx, p.Id); err != nil {
		var inv *period.InvariantViolationError
		if errors.As(err, &inv) {
			// 不变量被破坏：停止一切写入，进程退出交由运维介入
			logger.Error("Invariant violation on period %d: %s", p.Id, inv.Detail)
			logger.Sync()
			os.Exit(3)
		}
		logger.Error("Failed to step period %d: %v", p.Id, err)
	}
}
