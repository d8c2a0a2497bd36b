package aggregator

import (
	"fmt"
	"math/big"
	"sort"
)

// 聚合策略
const (
	PolicyTrustedMedian   = "TrustedMedian"
	PolicyWeightedMean    = "WeightedMean"
	PolicyStrictConsensus = "StrictConsensus"
)

// Report 参与聚合的单条报告（仅活跃预言机）
type Report struct {
	OracleKey string
	Amount    *big.Int // 最小单位金额
	Weight    float64  // 信任权重 (0,1]
}

// Settings 聚合参数
type Settings struct {
	Policy          string
	MinOracleCount  int
	MaxDeviationBps int
}

// Outcome 聚合结果类别
type Outcome int

const (
	OutcomeInsufficient Outcome = iota // 报告不足，账期保持Open
	OutcomeAggregated                  // 聚合成功
	OutcomeDisputed                    // 偏差过大，账期进入Disputed
)

// Result 聚合结果
type Result struct {
	Outcome Outcome
	Amount  *big.Int // 聚合金额，仅 OutcomeAggregated 时有效
	Used    []string // 参与最终计算的预言机
	Dropped []string // 因偏差被剔除的预言机
	Reason  string   // Disputed 原因
}

// 权重定点化精度。float权重换算为整数，保证聚合结果跨运行确定。
const weightScale = 1_000_000

func scaledWeight(w float64) int64 {
	if w <= 0 {
		return 0
	}
	if w > 1 {
		w = 1
	}
	return int64(w*weightScale + 0.5)
}

// Aggregate 将同一账期的多条报告聚合为一个权威金额
func Aggregate(reports []Report, s Settings) (Result, error) {
	if s.MinOracleCount < 1 {
		return Result{}, fmt.Errorf("min oracle count must be >= 1")
	}

	if len(reports) < s.MinOracleCount {
		return Result{Outcome: OutcomeInsufficient}, nil
	}

	// 排序保证确定性：金额升序，金额相同按预言机标识
	sorted := make([]Report, len(reports))
	copy(sorted, reports)
	sort.Slice(sorted, func(i, j int) bool {
		c := sorted[i].Amount.Cmp(sorted[j].Amount)
		if c != 0 {
			return c < 0
		}
		return sorted[i].OracleKey < sorted[j].OracleKey
	})

	switch s.Policy {
	case PolicyTrustedMedian:
		return aggregateTrustedMedian(sorted, s)
	case PolicyWeightedMean:
		amount := weightedMean(sorted)
		return Result{Outcome: OutcomeAggregated, Amount: amount, Used: oracleKeys(sorted)}, nil
	case PolicyStrictConsensus:
		return aggregateStrictConsensus(sorted)
	default:
		return Result{}, fmt.Errorf("unknown aggregation policy: %s", s.Policy)
	}
}

// aggregateTrustedMedian 信任加权中位数 + 偏差剔除 + 加权平均
func aggregateTrustedMedian(sorted []Report, s Settings) (Result, error) {
	median := weightedMedian(sorted)

	var kept []Report
	var dropped []string
	for _, r := range sorted {
		if deviationExceeds(r.Amount, median, s.MaxDeviationBps) {
			dropped = append(dropped, r.OracleKey)
			continue
		}
		kept = append(kept, r)
	}

	if len(kept) < s.MinOracleCount {
		return Result{
			Outcome: OutcomeDisputed,
			Dropped: dropped,
			Reason:  "deviation",
		}, nil
	}

	return Result{
		Outcome: OutcomeAggregated,
		Amount:  weightedMean(kept),
		Used:    oracleKeys(kept),
		Dropped: dropped,
	}, nil
}

// aggregateStrictConsensus 要求所有报告金额一致
func aggregateStrictConsensus(sorted []Report) (Result, error) {
	first := sorted[0].Amount
	for _, r := range sorted[1:] {
		if r.Amount.Cmp(first) != 0 {
			return Result{Outcome: OutcomeDisputed, Reason: "consensus"}, nil
		}
	}
	return Result{
		Outcome: OutcomeAggregated,
		Amount:  new(big.Int).Set(first),
		Used:    oracleKeys(sorted),
	}, nil
}

// weightedMedian 信任加权中位数：累计权重首次达到总权重一半的报告金额。
// 输入必须已按金额升序排序。
func weightedMedian(sorted []Report) *big.Int {
	var total int64
	for _, r := range sorted {
		total += scaledWeight(r.Weight)
	}

	var cum int64
	for _, r := range sorted {
		cum += scaledWeight(r.Weight)
		if 2*cum >= total {
			return new(big.Int).Set(r.Amount)
		}
	}
	return new(big.Int).Set(sorted[len(sorted)-1].Amount)
}

// weightedMean 信任加权平均，向下取整
func weightedMean(reports []Report) *big.Int {
	sum := new(big.Int)
	var totalWeight int64
	for _, r := range reports {
		w := scaledWeight(r.Weight)
		totalWeight += w
		sum.Add(sum, new(big.Int).Mul(r.Amount, big.NewInt(w)))
	}
	if totalWeight == 0 {
		return new(big.Int)
	}
	return sum.Div(sum, big.NewInt(totalWeight))
}

// deviationExceeds 金额偏离中位数是否超过阈值（基点）
func deviationExceeds(amount, median *big.Int, maxBps int) bool {
	if median.Sign() == 0 {
		return amount.Sign() != 0
	}

	diff := new(big.Int).Sub(amount, median)
	diff.Abs(diff)
	// diff * 10000 > median * maxBps
	lhs := new(big.Int).Mul(diff, big.NewInt(10000))
	rhs := new(big.Int).Mul(median, big.NewInt(int64(maxBps)))
	return lhs.Cmp(rhs) > 0
}

func oracleKeys(reports []Report) []string {
	keys := make([]string, 0, len(reports))
	for _, r := range reports {
		keys = append(keys, r.OracleKey)
	}
	return keys
}
