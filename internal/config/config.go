package config

import (
	"fmt"

	"github.com/blues/rds/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Chain       ChainConfig       `mapstructure:"chain"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Snapshot    SnapshotConfig    `mapstructure:"snapshot"`
	Planner     PlannerConfig     `mapstructure:"planner"`
	Settlement  SettlementConfig  `mapstructure:"settlement"`
	Fees        FeesConfig        `mapstructure:"fees"`
	Currencies  map[string]int    `mapstructure:"currencies"` // 货币 -> 最小单位小数位
	Task        TaskConfig        `mapstructure:"task"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ChainConfig 链配置
type ChainConfig struct {
	ChainType          string `mapstructure:"chain_type"`           // 链类型 (ethereum, polygon, etc.)
	ChainId            int64  `mapstructure:"chain_id"`             // 链ID
	RpcUrl             string `mapstructure:"rpc_url"`              // RPC节点URL
	PrivateKey         string `mapstructure:"private_key"`          // 结算签名私钥
	TreasuryAddress    string `mapstructure:"treasury_address"`     // 金库合约地址
	StartBlock         int64  `mapstructure:"start_block"`          // 索引起始区块
	RpcTimeout         int    `mapstructure:"rpc_timeout"`          // RPC调用超时（秒）
	MaxConcurrentCalls int64  `mapstructure:"max_concurrent_calls"` // RPC并发调用上限
}

// AggregationConfig 收入聚合配置
type AggregationConfig struct {
	Policy          string `mapstructure:"policy"`            // TrustedMedian, WeightedMean, StrictConsensus
	MinOracleCount  int    `mapstructure:"min_oracle_count"`  // 最少预言机数量
	MaxDeviationBps int    `mapstructure:"max_deviation_bps"` // 偏离中位数的最大基点
}

// SnapshotConfig 持仓快照配置
type SnapshotConfig struct {
	Confirmations int    `mapstructure:"confirmations"` // 终局性确认数
	Source        string `mapstructure:"source"`        // contract (balanceOfAt) 或 index (链下索引)
}

// PlannerConfig 分配计划配置
type PlannerConfig struct {
	DustThresholdMinor string `mapstructure:"dust_threshold_minor"` // 尘额阈值（最小单位，十进制字符串）
}

// SettlementConfig 链上结算配置
type SettlementConfig struct {
	MaxBatchSize int         `mapstructure:"max_batch_size"` // 单批最大行数
	GasLimit     uint64      `mapstructure:"gas_limit"`      // 单笔交易gas上限
	Retry        RetryConfig `mapstructure:"retry"`
}

// RetryConfig 外部调用重试配置
type RetryConfig struct {
	BaseMs      int     `mapstructure:"base_ms"`      // 初始退避（毫秒）
	Factor      float64 `mapstructure:"factor"`       // 退避倍数
	CapMs       int     `mapstructure:"cap_ms"`       // 退避上限（毫秒）
	MaxAttempts int     `mapstructure:"max_attempts"` // 单次发送最大尝试次数
}

// FeesConfig 费用配置
type FeesConfig struct {
	Schedule          []FeeLineConfig `mapstructure:"schedule"`           // 按顺序扣除的费用行
	ResidualRecipient string          `mapstructure:"residual_recipient"` // 余数接收地址
}

// FeeLineConfig 单条费用行
type FeeLineConfig struct {
	Recipient string `mapstructure:"recipient"`
	RateBps   int    `mapstructure:"rate_bps"`   // 按比例费用（基点）
	FlatMinor string `mapstructure:"flat_minor"` // 固定费用（最小单位，十进制字符串）
}

type TaskConfig struct {
	Interval   int `mapstructure:"interval"`    // 调度间隔（秒）
	WorkerPool int `mapstructure:"worker_pool"` // 账期并发处理数
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/rds")

	// 设置默认值
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "royalty")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("chain.chain_type", "ethereum")
	viper.SetDefault("chain.start_block", 0)
	viper.SetDefault("chain.rpc_timeout", 30)
	viper.SetDefault("chain.max_concurrent_calls", 8)
	viper.SetDefault("aggregation.policy", "TrustedMedian")
	viper.SetDefault("aggregation.min_oracle_count", 1)
	viper.SetDefault("aggregation.max_deviation_bps", 1000)
	viper.SetDefault("snapshot.confirmations", 32)
	viper.SetDefault("snapshot.source", "contract")
	viper.SetDefault("planner.dust_threshold_minor", "0")
	viper.SetDefault("settlement.max_batch_size", 100)
	viper.SetDefault("settlement.gas_limit", 3000000)
	viper.SetDefault("settlement.retry.base_ms", 1000)
	viper.SetDefault("settlement.retry.factor", 2.0)
	viper.SetDefault("settlement.retry.cap_ms", 60000)
	viper.SetDefault("settlement.retry.max_attempts", 8)
	viper.SetDefault("currencies", map[string]int{"ETH": 18})
	viper.SetDefault("task.interval", 15)
	viper.SetDefault("task.worker_pool", 4)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.file", "logs/app.log")

	// 自动读取环境变量
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return &config
}

// Validate 校验配置，失败时进程以退出码2结束
func (c *Config) Validate() error {
	if c.Chain.RpcUrl == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.ChainId <= 0 {
		return fmt.Errorf("chain.chain_id must be positive")
	}
	if c.Aggregation.MinOracleCount < 1 {
		return fmt.Errorf("aggregation.min_oracle_count must be >= 1")
	}
	if c.Aggregation.MaxDeviationBps < 0 || c.Aggregation.MaxDeviationBps > 10000 {
		return fmt.Errorf("aggregation.max_deviation_bps must be in [0, 10000]")
	}
	switch c.Aggregation.Policy {
	case "TrustedMedian", "WeightedMean", "StrictConsensus":
	default:
		return fmt.Errorf("unknown aggregation.policy: %s", c.Aggregation.Policy)
	}
	if c.Snapshot.Confirmations < 0 {
		return fmt.Errorf("snapshot.confirmations must be >= 0")
	}
	if c.Snapshot.Source != "contract" && c.Snapshot.Source != "index" {
		return fmt.Errorf("snapshot.source must be contract or index")
	}
	if c.Settlement.MaxBatchSize < 1 {
		return fmt.Errorf("settlement.max_batch_size must be >= 1")
	}
	if c.Fees.ResidualRecipient == "" {
		return fmt.Errorf("fees.residual_recipient is required")
	}
	for _, fee := range c.Fees.Schedule {
		if fee.Recipient == "" {
			return fmt.Errorf("fees.schedule entries require a recipient")
		}
		if fee.RateBps < 0 || fee.RateBps > 10000 {
			return fmt.Errorf("fee rate_bps must be in [0, 10000]")
		}
	}
	if len(c.Currencies) == 0 {
		return fmt.Errorf("at least one currency must be configured")
	}
	for cur, decimals := range c.Currencies {
		if decimals < 0 || decimals > 30 {
			return fmt.Errorf("currency %s has invalid decimals %d", cur, decimals)
		}
	}
	return nil
}
