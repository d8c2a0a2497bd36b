package planner

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// 行类型，与账本存储保持一致
const (
	LineTypeFee      = "fee"
	LineTypePayout   = "payout"
	LineTypeResidual = "residual"
)

// FeeRule 费用规则，按序生效
type FeeRule struct {
	Recipient string
	RateBps   int      // 按比例费用（基点），与 FlatMinor 二选一
	FlatMinor *big.Int // 固定费用（最小单位）
}

// Holder 快照中的持仓人
type Holder struct {
	Address string
	Balance *big.Int
}

// Line 计划中的一行
type Line struct {
	Type      string
	Recipient string
	Amount    *big.Int
	RateBps   int
}

// Plan 计算结果。相同输入产出字节一致的计划。
type Plan struct {
	Lines         []Line
	ResidualIndex int
	Hash          string
	TotalFees     *big.Int
	TotalPayout   *big.Int // 持仓人分配 + 余数
}

// Inputs 计划计算输入
type Inputs struct {
	PeriodKey         string // 账期标识，参与计划哈希
	AggregatedAmount  *big.Int
	Currency          string
	Holders           []Holder
	TotalSupply       *big.Int
	Fees              []FeeRule
	DustThreshold     *big.Int // 低于阈值的持仓行并入余数
	ResidualRecipient string
}

// Compute 由聚合金额、费用表与持仓快照计算分配计划。
// 纯函数：不触达存储，不产生副作用。
func Compute(in Inputs) (*Plan, error) {
	if in.AggregatedAmount == nil || in.AggregatedAmount.Sign() < 0 {
		return nil, fmt.Errorf("aggregated amount must be non-negative")
	}
	if in.TotalSupply == nil || in.TotalSupply.Sign() <= 0 {
		return nil, fmt.Errorf("total supply must be positive")
	}
	if in.ResidualRecipient == "" {
		return nil, fmt.Errorf("residual recipient is required")
	}

	// 持仓人按地址升序，保证计划可复现
	holders := make([]Holder, len(in.Holders))
	copy(holders, in.Holders)
	sort.Slice(holders, func(i, j int) bool {
		return strings.ToLower(holders[i].Address) < strings.ToLower(holders[j].Address)
	})

	dust := in.DustThreshold
	if dust == nil {
		dust = new(big.Int)
	}

	var lines []Line
	remaining := new(big.Int).Set(in.AggregatedAmount)
	totalFees := new(big.Int)

	// 1. 按序扣除费用，金额为0的费用行丢弃
	for _, fee := range in.Fees {
		amount := new(big.Int)
		if fee.FlatMinor != nil && fee.FlatMinor.Sign() > 0 {
			amount.Set(fee.FlatMinor)
			if amount.Cmp(remaining) > 0 {
				amount.Set(remaining)
			}
		} else {
			// floor(remaining * rateBps / 10000)
			amount.Mul(remaining, big.NewInt(int64(fee.RateBps)))
			amount.Div(amount, big.NewInt(10000))
		}
		if amount.Sign() == 0 {
			continue
		}

		remaining.Sub(remaining, amount)
		totalFees.Add(totalFees, amount)
		lines = append(lines, Line{
			Type:      LineTypeFee,
			Recipient: fee.Recipient,
			Amount:    amount,
			RateBps:   fee.RateBps,
		})
	}

	// 2. 按持仓比例分配净额，向下取整
	net := new(big.Int).Set(remaining)
	totalPayout := new(big.Int)
	for _, h := range holders {
		if h.Balance == nil || h.Balance.Sign() <= 0 {
			continue
		}
		raw := new(big.Int).Mul(net, h.Balance)
		raw.Div(raw, in.TotalSupply)

		// 零额行丢弃，尘额并入余数行
		if raw.Sign() == 0 || raw.Cmp(dust) < 0 {
			continue
		}

		totalPayout.Add(totalPayout, raw)
		lines = append(lines, Line{
			Type:      LineTypePayout,
			Recipient: h.Address,
			Amount:    raw,
		})
	}

	// 3. 余数行：取整余数 + 被丢弃的尘额，始终作为最后一行
	residual := new(big.Int).Sub(net, totalPayout)
	totalPayout.Add(totalPayout, residual)
	lines = append(lines, Line{
		Type:      LineTypeResidual,
		Recipient: in.ResidualRecipient,
		Amount:    residual,
	})

	plan := &Plan{
		Lines:         lines,
		ResidualIndex: len(lines) - 1,
		TotalFees:     totalFees,
		TotalPayout:   totalPayout,
	}

	// 不变量：费用 + 分配 + 余数 == 聚合金额
	check := new(big.Int).Add(totalFees, totalPayout)
	if check.Cmp(in.AggregatedAmount) != 0 {
		return nil, fmt.Errorf("plan invariant violated: fees %s + payout %s != aggregated %s",
			totalFees, totalPayout, in.AggregatedAmount)
	}

	plan.Hash = planHash(in.PeriodKey, lines)
	return plan, nil
}

// planHash 计划的规范化哈希
func planHash(periodKey string, lines []Line) string {
	parts := make([]string, 0, len(lines)+1)
	parts = append(parts, periodKey)
	for _, l := range lines {
		parts = append(parts, fmt.Sprintf("%s|%s|%s|%d", l.Type, l.Recipient, l.Amount, l.RateBps))
	}
	return hex.EncodeToString(crypto.Keccak256([]byte(strings.Join(parts, "\n"))))
}
