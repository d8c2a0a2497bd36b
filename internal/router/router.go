package router

import (
	"github.com/blues/rds/internal/config"
	"github.com/blues/rds/internal/handler"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func Setup(db *gorm.DB, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "royalty-distribution-service",
		})
	})

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 收入报告
		reportHandler := handler.NewReportHandler(db, cfg.Currencies)
		v1.POST("/reports", reportHandler.SubmitReport)

		// 账期
		periodHandler := handler.NewPeriodHandler(db)
		periods := v1.Group("/periods")
		{
			periods.GET("", periodHandler.GetPeriods)
			periods.GET("/:id", periodHandler.GetPeriod)
			periods.POST("/:id/cancel", periodHandler.CancelPeriod)
			periods.POST("/:id/override-amount", periodHandler.OverrideAmount)
			periods.POST("/:id/reopen", periodHandler.ReopenPeriod)
		}

		// 作品
		workHandler := handler.NewWorkHandler(db)
		works := v1.Group("/works")
		{
			works.POST("", workHandler.CreateWork)
			works.GET("", workHandler.GetWorks)
			works.GET("/:work_key", workHandler.GetWork)
		}

		// 预言机
		oracleHandler := handler.NewOracleHandler(db)
		oracles := v1.Group("/oracles")
		{
			oracles.POST("", oracleHandler.RegisterOracle)
			oracles.GET("", oracleHandler.GetOracles)
			oracles.POST("/:oracle_key/deactivate", oracleHandler.DeactivateOracle)
		}

		// 结算开关
		settlementHandler := handler.NewSettlementHandler(db)
		settlementGroup := v1.Group("/settlement")
		{
			settlementGroup.GET("/status", settlementHandler.GetSettlementStatus)
			settlementGroup.POST("/pause", settlementHandler.PauseSettlement)
			settlementGroup.POST("/resume", settlementHandler.ResumeSettlement)
		}
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
