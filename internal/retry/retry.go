package retry

import (
	"context"
	"time"

	"github.com/blues/rds/internal/config"
	"github.com/cenkalti/backoff/v4"
)

// Permanent 包装确定性错误，阻止重试
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Policy 外部调用重试策略。只用于传输层瞬时错误，
// 业务上的确定性失败必须用 Permanent 包装后返回。
type Policy struct {
	Base        time.Duration
	Factor      float64
	Cap         time.Duration
	MaxAttempts int
}

// DefaultPolicy 规范默认值：1s 起步，倍数2，上限60s，最多8次
func DefaultPolicy() Policy {
	return Policy{
		Base:        time.Second,
		Factor:      2,
		Cap:         60 * time.Second,
		MaxAttempts: 8,
	}
}

// FromConfig 从配置构造策略，零值回落到默认
func FromConfig(cfg config.RetryConfig) Policy {
	p := DefaultPolicy()
	if cfg.BaseMs > 0 {
		p.Base = time.Duration(cfg.BaseMs) * time.Millisecond
	}
	if cfg.Factor > 1 {
		p.Factor = cfg.Factor
	}
	if cfg.CapMs > 0 {
		p.Cap = time.Duration(cfg.CapMs) * time.Millisecond
	}
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	return p
}

// Do 以指数退避执行操作，抖动±25%由 backoff 的随机化因子提供
func (p Policy) Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.Multiplier = p.Factor
	b.MaxInterval = p.Cap
	b.RandomizationFactor = 0.25
	b.MaxElapsedTime = 0 // 次数上限由 WithMaxRetries 控制

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
	return backoff.Retry(op, policy)
}
