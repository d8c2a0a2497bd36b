package logic

import (
	"errors"
)

// 校验类错误：直接返回给调用方，不重试
var (
	ErrWorkUnknown     = errors.New("work not found")
	ErrWorkExists      = errors.New("work already registered")
	ErrOracleUnknown   = errors.New("oracle not found")
	ErrOracleExists    = errors.New("oracle already registered")
	ErrOracleInactive  = errors.New("oracle is not active")
	ErrBadSignature    = errors.New("report signature verification failed")
	ErrBadPeriodBounds = errors.New("period bounds not aligned to work grid")
	ErrBadAmount       = errors.New("amount must be non-negative and fit in 128 bits")
	ErrBadCurrency     = errors.New("currency not in allow-list")
	ErrPeriodUnknown   = errors.New("period not found")
	ErrPeriodClosed    = errors.New("period is closed for reports")
	ErrPeriodState     = errors.New("operation not allowed in current period state")
)
