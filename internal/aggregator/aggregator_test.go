package aggregator

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func amt(v int64) *big.Int {
	return big.NewInt(v)
}

func TestAggregate_InsufficientReports(t *testing.T) {
	reports := []Report{
		{OracleKey: "o1", Amount: amt(100), Weight: 1},
	}
	res, err := Aggregate(reports, Settings{Policy: PolicyTrustedMedian, MinOracleCount: 2, MaxDeviationBps: 500})
	require.NoError(t, err)
	require.Equal(t, OutcomeInsufficient, res.Outcome)
}

func TestAggregate_TrustedMedianDropsOutlier(t *testing.T) {
	// 中位数 1020000，o3 偏离 4705bps 被剔除，
	// 剩余按权重平均向下取整得 1010000
	reports := []Report{
		{OracleKey: "o1", Amount: amt(1_000_000), Weight: 1},
		{OracleKey: "o2", Amount: amt(1_020_000), Weight: 1},
		{OracleKey: "o3", Amount: amt(1_500_000), Weight: 1},
	}
	res, err := Aggregate(reports, Settings{Policy: PolicyTrustedMedian, MinOracleCount: 2, MaxDeviationBps: 1000})
	require.NoError(t, err)
	require.Equal(t, OutcomeAggregated, res.Outcome)
	require.Equal(t, amt(1_010_000), res.Amount)
	require.Equal(t, []string{"o1", "o2"}, res.Used)
	require.Equal(t, []string{"o3"}, res.Dropped)
}

func TestAggregate_TrustedMedianDisputedWhenTooFewSurvive(t *testing.T) {
	reports := []Report{
		{OracleKey: "o1", Amount: amt(100), Weight: 1},
		{OracleKey: "o2", Amount: amt(100_000), Weight: 1},
		{OracleKey: "o3", Amount: amt(200_000), Weight: 1},
	}
	res, err := Aggregate(reports, Settings{Policy: PolicyTrustedMedian, MinOracleCount: 3, MaxDeviationBps: 100})
	require.NoError(t, err)
	require.Equal(t, OutcomeDisputed, res.Outcome)
	require.Equal(t, "deviation", res.Reason)
	require.NotEmpty(t, res.Dropped)
}

func TestAggregate_TrustedMedianWeightsShiftMedian(t *testing.T) {
	// 高权重预言机主导中位数
	reports := []Report{
		{OracleKey: "o1", Amount: amt(100), Weight: 0.1},
		{OracleKey: "o2", Amount: amt(200), Weight: 0.1},
		{OracleKey: "o3", Amount: amt(300), Weight: 0.8},
	}
	require.Equal(t, amt(300), weightedMedian(reports))
}

func TestAggregate_WeightedMean(t *testing.T) {
	reports := []Report{
		{OracleKey: "o1", Amount: amt(100), Weight: 0.5},
		{OracleKey: "o2", Amount: amt(200), Weight: 0.5},
	}
	res, err := Aggregate(reports, Settings{Policy: PolicyWeightedMean, MinOracleCount: 1})
	require.NoError(t, err)
	require.Equal(t, OutcomeAggregated, res.Outcome)
	require.Equal(t, amt(150), res.Amount)
}

func TestAggregate_WeightedMeanFloors(t *testing.T) {
	reports := []Report{
		{OracleKey: "o1", Amount: amt(100), Weight: 1},
		{OracleKey: "o2", Amount: amt(101), Weight: 1},
	}
	res, err := Aggregate(reports, Settings{Policy: PolicyWeightedMean, MinOracleCount: 1})
	require.NoError(t, err)
	require.Equal(t, amt(100), res.Amount)
}

func TestAggregate_StrictConsensus(t *testing.T) {
	t.Run("all equal", func(t *testing.T) {
		reports := []Report{
			{OracleKey: "o1", Amount: amt(500), Weight: 1},
			{OracleKey: "o2", Amount: amt(500), Weight: 1},
		}
		res, err := Aggregate(reports, Settings{Policy: PolicyStrictConsensus, MinOracleCount: 2})
		require.NoError(t, err)
		require.Equal(t, OutcomeAggregated, res.Outcome)
		require.Equal(t, amt(500), res.Amount)
	})

	t.Run("any mismatch disputes", func(t *testing.T) {
		reports := []Report{
			{OracleKey: "o1", Amount: amt(500), Weight: 1},
			{OracleKey: "o2", Amount: amt(501), Weight: 1},
		}
		res, err := Aggregate(reports, Settings{Policy: PolicyStrictConsensus, MinOracleCount: 2})
		require.NoError(t, err)
		require.Equal(t, OutcomeDisputed, res.Outcome)
		require.Equal(t, "consensus", res.Reason)
	})
}

func TestAggregate_DeterministicAcrossInputOrder(t *testing.T) {
	a := []Report{
		{OracleKey: "o1", Amount: amt(1_000_000), Weight: 0.7},
		{OracleKey: "o2", Amount: amt(1_020_000), Weight: 0.9},
		{OracleKey: "o3", Amount: amt(990_000), Weight: 0.4},
	}
	b := []Report{a[2], a[0], a[1]}

	s := Settings{Policy: PolicyTrustedMedian, MinOracleCount: 2, MaxDeviationBps: 1000}
	ra, err := Aggregate(a, s)
	require.NoError(t, err)
	rb, err := Aggregate(b, s)
	require.NoError(t, err)
	require.Equal(t, ra.Amount, rb.Amount)
	require.Equal(t, ra.Used, rb.Used)
}

func TestAggregate_UnknownPolicy(t *testing.T) {
	_, err := Aggregate([]Report{{OracleKey: "o1", Amount: amt(1), Weight: 1}},
		Settings{Policy: "Nope", MinOracleCount: 1})
	require.Error(t, err)
}

func TestDeviationExceeds_ZeroMedian(t *testing.T) {
	require.True(t, deviationExceeds(amt(1), amt(0), 10000))
	require.False(t, deviationExceeds(amt(0), amt(0), 0))
}
