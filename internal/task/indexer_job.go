package task

import (
	"context"
	"time"

	"github.com/blues/rds/internal/config"
	"github.com/blues/rds/internal/indexer"
	"github.com/blues/rds/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

// 单轮索引同步的执行时限
const syncTimeout = 5 * time.Minute

// IndexerJob 持仓索引任务：周期性扫描Transfer事件更新链下索引
type IndexerJob struct {
	config  *config.Config
	indexer *indexer.Indexer
}

// NewIndexerJob 创建持仓索引任务
func NewIndexerJob(cfg *config.Config, ix *indexer.Indexer) *IndexerJob {
	return &IndexerJob{config: cfg, indexer: ix}
}

// GetName 获取任务名称
func (j *IndexerJob) GetName() string {
	return "holder_indexer"
}

// GetSchedule 获取调度配置
func (j *IndexerJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Task.Interval) * time.Second)
}

// Execute 执行任务
func (j *IndexerJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	if err := j.indexer.Sync(ctx); err != nil {
		logger.Error("Holder index sync failed: %v", err)
	}
}
