package period

import (
	"testing"
	"time"

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

func newPeriod(t *testing.T, db *gorm.DB, state model.PeriodState) *model.PeriodModel {
	t.Helper()
	p := &model.PeriodModel{
		WorkId:      1,
		PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Attempt:     1,
		State:       state,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestTransition_ForwardOneStep(t *testing.T) {
	db := testDB(t)
	p := newPeriod(t, db, model.PeriodStateOpen)

	require.NoError(t, Transition(db, p, model.PeriodStateAggregating, "test", ""))
	require.Equal(t, model.PeriodStateAggregating, p.State)

	var stored model.PeriodModel
	require.NoError(t, db.First(&stored, p.Id).Error)
	require.Equal(t, model.PeriodStateAggregating, stored.State)

	// 审计事件已追加
	var events []model.EventModel
	require.NoError(t, db.Where("entity_type = ? AND entity_id = ?", model.EntityPeriod, p.Id).Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, string(model.PeriodStateOpen), events[0].FromState)
	require.Equal(t, string(model.PeriodStateAggregating), events[0].ToState)
}

func TestTransition_RejectsSkippingStates(t *testing.T) {
	db := testDB(t)
	p := newPeriod(t, db, model.PeriodStateOpen)

	err := Transition(db, p, model.PeriodStatePlanned, "test", "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, model.PeriodStateOpen, p.State)
}

func TestTransition_RejectsBackward(t *testing.T) {
	db := testDB(t)
	p := newPeriod(t, db, model.PeriodStateSnapshotted)

	err := Transition(db, p, model.PeriodStateAggregating, "test", "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_TerminalStatesFrozen(t *testing.T) {
	db := testDB(t)
	for i, s := range []model.PeriodState{model.PeriodStateSettled, model.PeriodStateDisputed, model.PeriodStateFailed} {
		p := &model.PeriodModel{
			WorkId:      2,
			PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			Attempt:     1000 + i,
			State:       s,
		}
		require.NoError(t, db.Create(p).Error)
		err := Transition(db, p, model.PeriodStateFailed, "test", "")
		require.ErrorIs(t, err, ErrInvalidTransition, "state %s", s)
	}
}

func TestTransition_DisputedAndFailedReachableFromAnywhere(t *testing.T) {
	db := testDB(t)

	p := newPeriod(t, db, model.PeriodStateSettling)
	require.NoError(t, Transition(db, p, model.PeriodStateFailed, model.CauseChainRevert, ""))
	require.Equal(t, model.CauseChainRevert, func() string {
		var stored model.PeriodModel
		require.NoError(t, db.First(&stored, p.Id).Error)
		return stored.FailReason
	}())

	p2 := &model.PeriodModel{
		WorkId:      1,
		PeriodStart: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Attempt:     1,
		State:       model.PeriodStateOpen,
	}
	require.NoError(t, db.Create(p2).Error)
	require.NoError(t, Transition(db, p2, model.PeriodStateDisputed, model.CauseDeviation, ""))

	var stored model.PeriodModel
	require.NoError(t, db.First(&stored, p2.Id).Error)
	require.Equal(t, model.CauseDeviation, stored.DisputeReason)
}

func TestTransition_LostRaceDoesNotApply(t *testing.T) {
	db := testDB(t)
	p := newPeriod(t, db, model.PeriodStateOpen)

	// 另一个worker已推进
	require.NoError(t, db.Model(&model.PeriodModel{}).Where("id = ?", p.Id).
		Update("state", model.PeriodStateAggregating).Error)

	err := Transition(db, p, model.PeriodStateAggregating, "test", "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestForceFromDisputed(t *testing.T) {
	db := testDB(t)

	t.Run("back to aggregating", func(t *testing.T) {
		p := newPeriod(t, db, model.PeriodStateDisputed)
		require.NoError(t, ForceFromDisputed(db, p, model.PeriodStateAggregating, model.CauseAdminOverride, ""))
		require.Equal(t, model.PeriodStateAggregating, p.State)
		require.Empty(t, p.DisputeReason)
	})

	t.Run("only disputed source allowed", func(t *testing.T) {
		p := &model.PeriodModel{
			WorkId:      1,
			PeriodStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			Attempt:     1,
			State:       model.PeriodStateOpen,
		}
		require.NoError(t, db.Create(p).Error)
		err := ForceFromDisputed(db, p, model.PeriodStateAggregating, model.CauseAdminOverride, "")
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("settling not a valid target", func(t *testing.T) {
		p := &model.PeriodModel{
			WorkId:      1,
			PeriodStart: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			Attempt:     1,
			State:       model.PeriodStateDisputed,
		}
		require.NoError(t, db.Create(p).Error)
		err := ForceFromDisputed(db, p, model.PeriodStateSettling, model.CauseAdminOverride, "")
		require.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestAcquireLock_Exclusive(t *testing.T) {
	db := testDB(t)
	p := newPeriod(t, db, model.PeriodStateOpen)

	ok, err := AcquireLock(db, p, "worker-a")
	require.NoError(t, err)
	require.True(t, ok)

	// 第二个持有者拿不到
	ok, err = AcquireLock(db, p, "worker-b")
	require.NoError(t, err)
	require.False(t, ok)

	// 非持有者释放无效
	require.NoError(t, ReleaseLock(db, p, "worker-b"))
	ok, err = AcquireLock(db, p, "worker-b")
	require.NoError(t, err)
	require.False(t, ok)

	// 持有者释放后可重新获取
	require.NoError(t, ReleaseLock(db, p, "worker-a"))
	ok, err = AcquireLock(db, p, "worker-b")
	require.NoError(t, err)
	require.True(t, ok)
}
