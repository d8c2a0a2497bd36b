package planner

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func basicInputs() Inputs {
	return Inputs{
		PeriodKey:        "1:1704067200:1706745600:1",
		AggregatedAmount: big.NewInt(1_000_000),
		Currency:         "USD",
		Holders: []Holder{
			{Address: "0xaaa1", Balance: big.NewInt(600)},
			{Address: "0xbbb2", Balance: big.NewInt(300)},
			{Address: "0xccc3", Balance: big.NewInt(100)},
		},
		TotalSupply:       big.NewInt(1000),
		Fees:              []FeeRule{{Recipient: "0xfee1", RateBps: 250}},
		DustThreshold:     big.NewInt(0),
		ResidualRecipient: "0xresid",
	}
}

func TestCompute_FeeThenProRata(t *testing.T) {
	plan, err := Compute(basicInputs())
	require.NoError(t, err)

	// 2.5% 费用 = 25000，净额 975000 按 600/300/100 分配
	require.Equal(t, big.NewInt(25_000), plan.Lines[0].Amount)
	require.Equal(t, LineTypeFee, plan.Lines[0].Type)
	require.Equal(t, big.NewInt(585_000), plan.Lines[1].Amount)
	require.Equal(t, big.NewInt(292_500), plan.Lines[2].Amount)
	require.Equal(t, big.NewInt(97_500), plan.Lines[3].Amount)

	// 整除时余数行仍然存在，金额为0
	last := plan.Lines[len(plan.Lines)-1]
	require.Equal(t, LineTypeResidual, last.Type)
	require.Equal(t, "0", last.Amount.String())
	require.Equal(t, plan.ResidualIndex, len(plan.Lines)-1)
}

func TestCompute_ConservationInvariant(t *testing.T) {
	in := basicInputs()
	in.AggregatedAmount = big.NewInt(999_983) // 除不尽，产生取整余数
	plan, err := Compute(in)
	require.NoError(t, err)

	sum := new(big.Int)
	for _, l := range plan.Lines {
		sum.Add(sum, l.Amount)
	}
	require.Equal(t, in.AggregatedAmount, sum)
	require.Equal(t, in.AggregatedAmount, new(big.Int).Add(plan.TotalFees, plan.TotalPayout))
}

func TestCompute_FlatFeeCappedAtRemaining(t *testing.T) {
	in := basicInputs()
	in.AggregatedAmount = big.NewInt(100)
	in.Fees = []FeeRule{{Recipient: "0xfee1", FlatMinor: big.NewInt(500)}}
	plan, err := Compute(in)
	require.NoError(t, err)

	require.Equal(t, big.NewInt(100), plan.Lines[0].Amount)
	// 净额为0：只剩费用行与零余数行
	require.Len(t, plan.Lines, 2)
	require.Equal(t, LineTypeResidual, plan.Lines[1].Type)
	require.Equal(t, big.NewInt(0), plan.Lines[1].Amount)
}

func TestCompute_ZeroFeeLineDropped(t *testing.T) {
	in := basicInputs()
	in.Fees = []FeeRule{{Recipient: "0xfee1", RateBps: 0}}
	plan, err := Compute(in)
	require.NoError(t, err)

	for _, l := range plan.Lines {
		require.NotEqual(t, LineTypeFee, l.Type)
	}
}

func TestCompute_DustFoldsIntoResidual(t *testing.T) {
	in := basicInputs()
	in.Fees = nil
	in.AggregatedAmount = big.NewInt(1000)
	in.DustThreshold = big.NewInt(150)
	// 分配: 600, 300, 100 -> 100 低于阈值并入余数
	plan, err := Compute(in)
	require.NoError(t, err)

	require.Len(t, plan.Lines, 3) // 两条payout + 余数
	last := plan.Lines[2]
	require.Equal(t, LineTypeResidual, last.Type)
	require.Equal(t, big.NewInt(100), last.Amount)

	sum := new(big.Int)
	for _, l := range plan.Lines {
		sum.Add(sum, l.Amount)
	}
	require.Equal(t, in.AggregatedAmount, sum)
}

func TestCompute_ZeroAmountStillEmitsResidual(t *testing.T) {
	in := basicInputs()
	in.AggregatedAmount = big.NewInt(0)
	plan, err := Compute(in)
	require.NoError(t, err)

	require.Len(t, plan.Lines, 1)
	require.Equal(t, LineTypeResidual, plan.Lines[0].Type)
	require.Equal(t, big.NewInt(0), plan.Lines[0].Amount)
}

func TestCompute_HashDeterministicAndOrderInsensitive(t *testing.T) {
	a := basicInputs()
	b := basicInputs()
	b.Holders = []Holder{b.Holders[2], b.Holders[0], b.Holders[1]}

	pa, err := Compute(a)
	require.NoError(t, err)
	pb, err := Compute(b)
	require.NoError(t, err)
	require.Equal(t, pa.Hash, pb.Hash)
	require.Equal(t, pa.Lines, pb.Lines)

	// 不同账期标识产生不同哈希
	c := basicInputs()
	c.PeriodKey = "1:1704067200:1706745600:2"
	pc, err := Compute(c)
	require.NoError(t, err)
	require.NotEqual(t, pa.Hash, pc.Hash)
}

func TestCompute_InputValidation(t *testing.T) {
	in := basicInputs()
	in.TotalSupply = big.NewInt(0)
	_, err := Compute(in)
	require.Error(t, err)

	in = basicInputs()
	in.ResidualRecipient = ""
	_, err = Compute(in)
	require.Error(t, err)

	in = basicInputs()
	in.AggregatedAmount = big.NewInt(-1)
	_, err = Compute(in)
	require.Error(t, err)
}
