package task

import (
	"github.com/blues/rds/internal/chain"
	"github.com/blues/rds/internal/config"
	"github.com/blues/rds/internal/indexer"
	"github.com/blues/rds/internal/logger"
	"github.com/blues/rds/internal/logic"
	"github.com/blues/rds/internal/settlement"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Manager 任务管理器
type Manager struct {
	scheduler  gocron.Scheduler
	db         *gorm.DB
	chains     *chain.Manager
	config     *config.Config
	pipeline   *logic.PipelineLogic
	lease      *settlement.Lease
	indexer    *indexer.Indexer
	instanceId string
}

// NewManager 创建新的任务管理器
func NewManager(db *gorm.DB, chains *chain.Manager, cfg *config.Config,
	pipeline *logic.PipelineLogic, lease *settlement.Lease, ix *indexer.Indexer) *Manager {
	s, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal("Failed to create scheduler: %v", err)
	}

	return &Manager{
		scheduler:  s,
		db:         db,
		chains:     chains,
		config:     cfg,
		pipeline:   pipeline,
		lease:      lease,
		indexer:    ix,
		instanceId: uuid.NewString(),
	}
}

// Start 启动任务管理器
func Start(db *gorm.DB, chains *chain.Manager, cfg *config.Config,
	pipeline *logic.PipelineLogic, lease *settlement.Lease, ix *indexer.Indexer) *Manager {
	manager := NewManager(db, chains, cfg, pipeline, lease, ix)

	// 注册所有任务
	manager.RegisterJobs()

	// 启动调度器
	manager.scheduler.Start()

	logger.Info("Task manager started successfully (instance %s)", manager.instanceId)
	return manager
}

// RegisterJobs 注册所有任务
func (m *Manager) RegisterJobs() {
	m.register(NewPeriodPipelineJob(m.db, m.config, m.pipeline, m.lease, m.instanceId))
	m.register(NewLeaseHeartbeatJob(m.config, m.chains, m.lease))
	m.register(NewIndexerJob(m.config, m.indexer))
}

// Job 可调度任务
type Job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	Execute()
}

// register 注册单个任务，同一任务不并发执行
func (m *Manager) register(job Job) {
	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Error("Failed to register job %s: %v", job.GetName(), err)
	}
}

// Stop 停止任务管理器
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}
