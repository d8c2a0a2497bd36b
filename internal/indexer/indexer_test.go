package indexer

import (
	"math/big"
	"testing"

	"github.com/blues/rds/internal/database"
	"github.com/blues/rds/internal/model"
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

const token = "0x00000000000000000000000000000000000000aa"

func balanceOf(t *testing.T, db *gorm.DB, holder string) string {
	t.Helper()
	var row model.HolderIndexModel
	require.NoError(t, db.Where("token_address = ? AND holder = ?", token, holder).First(&row).Error)
	return row.Balance.String()
}

func TestApplyDelta(t *testing.T) {
	db := testDB(t)

	t.Run("creates holder on first credit", func(t *testing.T) {
		require.NoError(t, applyDelta(db, token, "0xA1", big.NewInt(100), 10))
		require.Equal(t, "100", balanceOf(t, db, "0xA1"))
	})

	t.Run("accumulates further deltas", func(t *testing.T) {
		require.NoError(t, applyDelta(db, token, "0xA1", big.NewInt(50), 11))
		require.NoError(t, applyDelta(db, token, "0xA1", big.NewInt(-120), 12))
		require.Equal(t, "30", balanceOf(t, db, "0xA1"))

		var row model.HolderIndexModel
		require.NoError(t, db.Where("token_address = ? AND holder = ?", token, "0xA1").First(&row).Error)
		require.EqualValues(t, 12, row.UpdatedBlock)
	})

	t.Run("rejects negative balance", func(t *testing.T) {
		require.Error(t, applyDelta(db, token, "0xA1", big.NewInt(-1000), 13))
		require.Error(t, applyDelta(db, token, "0xUnknown", big.NewInt(-1), 13))
	})
}

func TestAddDelta_MergesPerHolder(t *testing.T) {
	deltas := make(map[string]*big.Int)
	addDelta(deltas, "0xA1", big.NewInt(100))
	addDelta(deltas, "0xA1", big.NewInt(-30))
	addDelta(deltas, "0xB2", big.NewInt(5))

	require.Equal(t, big.NewInt(70), deltas["0xA1"])
	require.Equal(t, big.NewInt(5), deltas["0xB2"])
}
