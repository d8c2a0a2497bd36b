package logic

import (
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/blues/rds/internal/database"
	"github.com/blues/rds/internal/model"
	"github.com/blues/rds/internal/oracle"
	"github.com/ethereum/go-ethereum/crypto"
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

var testCurrencies = map[string]int{"USD": 2, "ETH": 18}

type reportFixture struct {
	db      *gorm.DB
	logic   *ReportLogic
	work    *model.WorkModel
	oracle  *model.OracleModel
	privHex string
}

func newReportFixture(t *testing.T) *reportFixture {
	t.Helper()
	db := testDB(t)

	work := &model.WorkModel{
		WorkKey:      "work-song-a",
		ArtistId:     "artist-1",
		TokenAddress: "0x00000000000000000000000000000000000000aa",
		ChainId:      1,
		PeriodGrid:   "month",
	}
	require.NoError(t, db.Create(work).Error)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	privHex := hex.EncodeToString(crypto.FromECDSA(key))
	pubHex, err := oracle.CompressedPublicKey(privHex)
	require.NoError(t, err)

	orc := &model.OracleModel{
		OracleKey:   "oracle-1",
		PublicKey:   pubHex,
		TrustWeight: 1,
		Active:      true,
	}
	require.NoError(t, db.Create(orc).Error)

	return &reportFixture{
		db:      db,
		logic:   NewReportLogic(db, testCurrencies),
		work:    work,
		oracle:  orc,
		privHex: privHex,
	}
}

func (f *reportFixture) params(t *testing.T) SubmitParams {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	amount := big.NewInt(1_000_000)

	sig, err := oracle.Sign(f.privHex, oracle.ReportPayload{
		OracleKey:   f.oracle.OracleKey,
		WorkKey:     f.work.WorkKey,
		PeriodStart: start,
		PeriodEnd:   end,
		Amount:      amount,
		Currency:    "USD",
		Source:      "streaming",
		ReportHash:  "h1",
	})
	require.NoError(t, err)

	return SubmitParams{
		OracleKey:   f.oracle.OracleKey,
		WorkKey:     f.work.WorkKey,
		PeriodStart: start,
		PeriodEnd:   end,
		Amount:      model.NewAmount(amount),
		Currency:    "USD",
		Source:      "streaming",
		ReportHash:  "h1",
		Signature:   sig,
	}
}

func TestSubmit_CreatesPeriodAndReport(t *testing.T) {
	f := newReportFixture(t)

	report, duplicate, err := f.logic.Submit(f.params(t))
	require.NoError(t, err)
	require.False(t, duplicate)
	require.NotZero(t, report.Id)

	// 首条报告创建了Open账期
	var p model.PeriodModel
	require.NoError(t, f.db.Where("work_id = ?", f.work.Id).First(&p).Error)
	require.Equal(t, model.PeriodStateOpen, p.State)
	require.Equal(t, 1, p.Attempt)
}

func TestSubmit_DuplicateIsIdempotent(t *testing.T) {
	f := newReportFixture(t)

	_, duplicate, err := f.logic.Submit(f.params(t))
	require.NoError(t, err)
	require.False(t, duplicate)

	_, duplicate, err = f.logic.Submit(f.params(t))
	require.NoError(t, err)
	require.True(t, duplicate)

	var count int64
	require.NoError(t, f.db.Model(&model.RevenueReportModel{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSubmit_UnknownOracleAndWork(t *testing.T) {
	f := newReportFixture(t)

	p := f.params(t)
	p.OracleKey = "nope"
	_, _, err := f.logic.Submit(p)
	require.ErrorIs(t, err, ErrOracleUnknown)

	p = f.params(t)
	p.WorkKey = "nope"
	_, _, err = f.logic.Submit(p)
	require.ErrorIs(t, err, ErrWorkUnknown)
}

func TestSubmit_InactiveOracleRejected(t *testing.T) {
	f := newReportFixture(t)
	require.NoError(t, f.db.Model(f.oracle).Update("active", false).Error)

	_, _, err := f.logic.Submit(f.params(t))
	require.ErrorIs(t, err, ErrOracleInactive)
}

func TestSubmit_BadSignatureRejected(t *testing.T) {
	f := newReportFixture(t)

	p := f.params(t)
	p.Amount = model.NewAmount(big.NewInt(999)) // 签名覆盖金额
	_, _, err := f.logic.Submit(p)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestSubmit_MisalignedPeriodRejected(t *testing.T) {
	f := newReportFixture(t)

	p := f.params(t)
	p.PeriodStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	_, _, err := f.logic.Submit(p)
	require.ErrorIs(t, err, ErrBadPeriodBounds)

	p = f.params(t)
	p.PeriodEnd = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	_, _, err = f.logic.Submit(p)
	require.ErrorIs(t, err, ErrBadPeriodBounds)
}

func TestSubmit_UnknownCurrencyRejected(t *testing.T) {
	f := newReportFixture(t)

	p := f.params(t)
	p.Currency = "XYZ"
	_, _, err := f.logic.Submit(p)
	require.ErrorIs(t, err, ErrBadCurrency)
}

func TestSubmit_ClosedPeriodRejected(t *testing.T) {
	f := newReportFixture(t)

	// 先正常提交建立账期，然后把账期推到快照之后
	_, _, err := f.logic.Submit(f.params(t))
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.PeriodModel{}).Where("work_id = ?", f.work.Id).
		Update("state", model.PeriodStateSnapshotted).Error)

	p := f.params(t)
	p.ReportHash = "h2" // 新报告，非去重路径
	sig, err := oracle.Sign(f.privHex, oracle.ReportPayload{
		OracleKey:   p.OracleKey,
		WorkKey:     p.WorkKey,
		PeriodStart: p.PeriodStart,
		PeriodEnd:   p.PeriodEnd,
		Amount:      p.Amount.BigInt(),
		Currency:    p.Currency,
		Source:      p.Source,
		ReportHash:  p.ReportHash,
	})
	require.NoError(t, err)
	p.Signature = sig

	_, _, err = f.logic.Submit(p)
	require.ErrorIs(t, err, ErrPeriodClosed)
}

func TestAlignedToGrid(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	require.True(t, alignedToGrid("month", jan, feb))
	require.True(t, alignedToGrid("", jan, feb))
	require.False(t, alignedToGrid("month", jan, jan))
	require.False(t, alignedToGrid("month", feb, jan))
	require.False(t, alignedToGrid("month", jan.Add(time.Hour), feb))
	require.False(t, alignedToGrid("week", jan, feb))
}
