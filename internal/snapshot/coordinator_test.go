package snapshot

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/blues/rds/internal/database"
	"github.com/blues/rds/internal/model"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

type fakeHeaders struct {
	finalized uint64
	headTime  uint64
}

func (f *fakeHeaders) FinalizedBlock(ctx context.Context) (uint64, error) {
	return f.finalized, nil
}

func (f *fakeHeaders) HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	return &types.Header{Number: new(big.Int).SetUint64(number), Time: f.headTime}, nil
}

type fakeSource struct {
	total    *big.Int
	balances [][]Balance // 依次返回，支持两读不一致场景
	reads    int
}

func (f *fakeSource) TotalSupplyAt(ctx context.Context, blockNum uint64) (*big.Int, error) {
	return new(big.Int).Set(f.total), nil
}

func (f *fakeSource) BalancesAt(ctx context.Context, blockNum uint64) ([]Balance, error) {
	i := f.reads
	if i >= len(f.balances) {
		i = len(f.balances) - 1
	}
	f.reads++
	return f.balances[i], nil
}

func snapshotPeriod(t *testing.T, db *gorm.DB) *model.PeriodModel {
	t.Helper()
	p := &model.PeriodModel{
		WorkId:           1,
		PeriodStart:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Attempt:          1,
		State:            model.PeriodStateAggregating,
		AggregatedAmount: model.NewAmountFromInt64(1_000_000),
		Currency:         "USD",
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestChooseBlock(t *testing.T) {
	db := testDB(t)
	periodEnd := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("finalized head past period end", func(t *testing.T) {
		c := NewCoordinator(db, &fakeHeaders{finalized: 500, headTime: uint64(periodEnd.Unix()) + 10})
		block, ready, err := c.ChooseBlock(context.Background(), periodEnd)
		require.NoError(t, err)
		require.True(t, ready)
		require.EqualValues(t, 500, block)
	})

	t.Run("finality lagging", func(t *testing.T) {
		c := NewCoordinator(db, &fakeHeaders{finalized: 500, headTime: uint64(periodEnd.Unix()) - 10})
		_, ready, err := c.ChooseBlock(context.Background(), periodEnd)
		require.NoError(t, err)
		require.False(t, ready)
	})
}

func TestTake_PersistsSortedSnapshot(t *testing.T) {
	db := testDB(t)
	p := snapshotPeriod(t, db)

	src := &fakeSource{
		total: big.NewInt(1000),
		balances: [][]Balance{{
			{Holder: "0xCCC", Balance: big.NewInt(100)},
			{Holder: "0xAAA", Balance: big.NewInt(600)},
			{Holder: "0xBBB", Balance: big.NewInt(300)},
		}},
	}

	c := NewCoordinator(db, &fakeHeaders{})
	require.NoError(t, c.Take(context.Background(), p, 500, src))

	require.Equal(t, model.PeriodStateSnapshotted, p.State)
	require.EqualValues(t, 500, p.SnapshotBlock)

	var snap model.HolderSnapshotModel
	require.NoError(t, db.Where("period_id = ?", p.Id).First(&snap).Error)
	require.Equal(t, 3, snap.HolderCount)
	require.Equal(t, "1000", snap.TotalSupply.String())

	// 持仓按地址升序持久化
	var rows []model.HolderBalanceModel
	require.NoError(t, db.Where("snapshot_id = ?", snap.Id).Order("position ASC").Find(&rows).Error)
	require.Equal(t, []string{"0xAAA", "0xBBB", "0xCCC"}, []string{rows[0].Holder, rows[1].Holder, rows[2].Holder})
}

func TestTake_RereadRecoversTransientMismatch(t *testing.T) {
	db := testDB(t)
	p := snapshotPeriod(t, db)

	src := &fakeSource{
		total: big.NewInt(1000),
		balances: [][]Balance{
			{{Holder: "0xAAA", Balance: big.NewInt(999)}}, // 第一次读到不一致
			{{Holder: "0xAAA", Balance: big.NewInt(1000)}},
		},
	}

	c := NewCoordinator(db, &fakeHeaders{})
	require.NoError(t, c.Take(context.Background(), p, 500, src))
	require.Equal(t, model.PeriodStateSnapshotted, p.State)
	require.Equal(t, 2, src.reads)
}

func TestTake_PersistentMismatchFails(t *testing.T) {
	db := testDB(t)
	p := snapshotPeriod(t, db)

	src := &fakeSource{
		total:    big.NewInt(1000),
		balances: [][]Balance{{{Holder: "0xAAA", Balance: big.NewInt(999)}}},
	}

	c := NewCoordinator(db, &fakeHeaders{})
	err := c.Take(context.Background(), p, 500, src)
	require.ErrorIs(t, err, ErrSnapshotMismatch)

	// 未落库任何快照
	var count int64
	require.NoError(t, db.Model(&model.HolderSnapshotModel{}).Count(&count).Error)
	require.Zero(t, count)
}
