package main

import (
	"os"
	"time"

	"github.com/blues/rds/internal/chain"
	"github.com/blues/rds/internal/config"
	"github.com/blues/rds/internal/database"
	"github.com/blues/rds/internal/indexer"
	"github.com/blues/rds/internal/logger"
	"github.com/blues/rds/internal/logic"
	"github.com/blues/rds/internal/retry"
	"github.com/blues/rds/internal/router"
	"github.com/blues/rds/internal/settlement"
	"github.com/blues/rds/internal/snapshot"
	"github.com/blues/rds/internal/task"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {
	// 加载配置
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		logger.Sync()
		os.Exit(2)
	}

	// 初始化日志
	if err := logger.Setup(cfg.Log); err != nil {
		logger.Fatal("Failed to set up logger: %v", err)
	}
	defer logger.Sync()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 初始化链管理器
	chains, err := chain.NewManager(cfg.Chain, cfg.Snapshot.Confirmations)
	if err != nil {
		logger.Fatal("Failed to initialize chain manager: %v", err)
	}
	defer chains.Close()

	// 结算驱动。未配置签名私钥的实例不参与广播，
	// 流水线任务通过租约把结算阶段留给持有签名者的实例。
	var signer settlement.TxSigner
	if s, err := chains.GetSigner(); err == nil {
		signer = s
	} else {
		logger.Warn("No settlement signer configured, this instance will not broadcast")
	}
	driver := settlement.NewDriver(db, chains.GetClient(), signer, chains.GetTreasury(), settlement.Config{
		MaxBatchSize:  cfg.Settlement.MaxBatchSize,
		GasLimit:      cfg.Settlement.GasLimit,
		Confirmations: int64(cfg.Snapshot.Confirmations),
		Retry:         retry.FromConfig(cfg.Settlement.Retry),
	})

	// 流水线依赖
	coordinator := snapshot.NewCoordinator(db, chains.GetClient())
	pipeline := logic.NewPipelineLogic(db, cfg, chains, coordinator, driver)
	lease := settlement.NewLease(db, uuid.NewString(), 60*time.Second)
	holderIndexer := indexer.NewIndexer(db, chains, cfg.Chain.StartBlock)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(db, cfg)

	// 启动定时任务
	manager := task.Start(db, chains, cfg, pipeline, lease, holderIndexer)
	defer manager.Stop()

	// 启动服务器
	logger.Info("Server starting on port %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}
