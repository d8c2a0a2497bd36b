package model

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAmount_ParseAndString(t *testing.T) {
	a, err := ParseAmount("340282366920938463463374607431768211455") // 2^128 - 1
	require.NoError(t, err)
	require.Equal(t, "340282366920938463463374607431768211455", a.String())
	require.True(t, a.IsValidMinorUnits())

	_, err = ParseAmount("not-a-number")
	require.Error(t, err)
}

func TestAmount_MinorUnitBounds(t *testing.T) {
	over := NewAmount(new(big.Int).Lsh(big.NewInt(1), 128)) // 2^128
	require.False(t, over.IsValidMinorUnits())

	neg := NewAmountFromInt64(-1)
	require.False(t, neg.IsValidMinorUnits())

	require.True(t, NewAmountFromInt64(0).IsValidMinorUnits())
}

func TestAmount_ScanValue(t *testing.T) {
	var a Amount
	require.NoError(t, a.Scan("12345"))
	require.Equal(t, "12345", a.String())

	require.NoError(t, a.Scan([]byte("67890")))
	require.Equal(t, "67890", a.String())

	require.NoError(t, a.Scan(nil))
	require.Equal(t, "0", a.String())

	v, err := NewAmountFromInt64(42).Value()
	require.NoError(t, err)
	require.Equal(t, "42", v)

	require.Error(t, a.Scan(3.14))
}

func TestAmount_JSON(t *testing.T) {
	out, err := json.Marshal(NewAmountFromInt64(1_000_000))
	require.NoError(t, err)
	require.Equal(t, `"1000000"`, string(out))

	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"99"`), &a))
	require.Equal(t, "99", a.String())

	// 数字形式同样接受
	require.NoError(t, json.Unmarshal([]byte(`123`), &a))
	require.Equal(t, "123", a.String())

	require.Error(t, json.Unmarshal([]byte(`"xyz"`), &a))
}

func TestAmount_BigIntIsCopy(t *testing.T) {
	a := NewAmountFromInt64(10)
	b := a.BigInt()
	b.SetInt64(999)
	require.Equal(t, "10", a.String())
}
