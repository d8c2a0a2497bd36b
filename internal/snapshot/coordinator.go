package snapshot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/blues/rds/internal/logger"
	"github.com/blues/rds/internal/model"
	"github.com/blues/rds/internal/period"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"gorm.io/gorm"
)

// ErrSnapshotMismatch 余额合计与总供应量不符，重读一次后仍不一致
var ErrSnapshotMismatch = errors.New("snapshot balances do not sum to total supply")

// HeaderReader 终局性与区块头查询
type HeaderReader interface {
	FinalizedBlock(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error)
}

// Token 快照所需的代币合约视图
type Token interface {
	TotalSupplyAt(ctx context.Context, blockNum uint64) (*big.Int, error)
	BalanceOfAt(ctx context.Context, holder common.Address, blockNum uint64) (*big.Int, error)
	HoldersAt(ctx context.Context, blockNum uint64) ([]common.Address, error)
}

// Balance 快照中的一条持仓
type Balance struct {
	Holder  string
	Balance *big.Int
}

// Source 持仓来源：返回指定区块的非零余额表与总供应量
type Source interface {
	TotalSupplyAt(ctx context.Context, blockNum uint64) (*big.Int, error)
	BalancesAt(ctx context.Context, blockNum uint64) ([]Balance, error)
}

// Coordinator 快照协调器
type Coordinator struct {
	db      *gorm.DB
	headers HeaderReader
}

// NewCoordinator 创建快照协调器
func NewCoordinator(db *gorm.DB, headers HeaderReader) *Coordinator {
	return &Coordinator{db: db, headers: headers}
}

// ChooseBlock 选取快照区块：已终局且时间戳不早于账期结束的最高区块。
// 终局区块尚未越过账期结束时返回 ready=false，下个tick再试。
func (c *Coordinator) ChooseBlock(ctx context.Context, periodEnd time.Time) (uint64, bool, error) {
	finalized, err := c.headers.FinalizedBlock(ctx)
	if err != nil {
		return 0, false, err
	}
	if finalized == 0 {
		return 0, false, nil
	}

	header, err := c.headers.HeaderByNumber(ctx, finalized)
	if err != nil {
		return 0, false, err
	}
	if int64(header.Time) < periodEnd.UTC().Unix() {
		return 0, false, nil
	}
	return finalized, true, nil
}

// Take 读取持仓表并原子落库，账期 Aggregating -> Snapshotted。
// 余额合计与总供应量不符时重读一次，仍不一致返回 ErrSnapshotMismatch。
func (c *Coordinator) Take(ctx context.Context, p *model.PeriodModel, blockNum uint64, src Source) error {
	balances, total, err := c.read(ctx, blockNum, src)
	if err != nil {
		return err
	}

	if !sumMatches(balances, total) {
		logger.Warn("Snapshot mismatch for period %d at block %d, re-reading", p.Id, blockNum)
		balances, total, err = c.read(ctx, blockNum, src)
		if err != nil {
			return err
		}
		if !sumMatches(balances, total) {
			return ErrSnapshotMismatch
		}
	}

	// 地址升序，保证下游计划确定性
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].Holder < balances[j].Holder
	})

	return c.db.Transaction(func(tx *gorm.DB) error {
		snapshot := &model.HolderSnapshotModel{
			PeriodId:    p.Id,
			BlockNum:    int64(blockNum),
			TotalSupply: model.NewAmount(total),
			HolderCount: len(balances),
		}
		if err := tx.Create(snapshot).Error; err != nil {
			return err
		}

		rows := make([]model.HolderBalanceModel, 0, len(balances))
		for i, b := range balances {
			rows = append(rows, model.HolderBalanceModel{
				SnapshotId: snapshot.Id,
				Position:   i,
				Holder:     b.Holder,
				Balance:    model.NewAmount(b.Balance),
			})
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 200).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&model.PeriodModel{}).Where("id = ?", p.Id).
			Update("snapshot_block", int64(blockNum)).Error; err != nil {
			return err
		}
		p.SnapshotBlock = int64(blockNum)

		return period.Transition(tx, p, model.PeriodStateSnapshotted, model.CauseSnapshotTaken,
			fmt.Sprintf(`{"block":%d,"holders":%d}`, blockNum, len(balances)))
	})
}

func (c *Coordinator) read(ctx context.Context, blockNum uint64, src Source) ([]Balance, *big.Int, error) {
	total, err := src.TotalSupplyAt(ctx, blockNum)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read total supply: %w", err)
	}
	balances, err := src.BalancesAt(ctx, blockNum)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read balances: %w", err)
	}
	return balances, total, nil
}

func sumMatches(balances []Balance, total *big.Int) bool {
	sum := new(big.Int)
	for _, b := range balances {
		sum.Add(sum, b.Balance)
	}
	return sum.Cmp(total) == 0
}
