package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/blues/rds/internal/chain"
	"github.com/blues/rds/internal/logger"
	"github.com/blues/rds/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 单轮扫描的区块窗口上限，过大时RPC节点会拒绝日志查询
const maxScanRange = 2000

// Indexer 持仓索引器：扫描各作品代币的 Transfer 事件，
// 维护 holder_index 物化视图与每代币游标。只跟进已终局区块。
type Indexer struct {
	db         *gorm.DB
	chains     *chain.Manager
	startBlock int64
}

// NewIndexer 创建索引器
func NewIndexer(db *gorm.DB, chains *chain.Manager, startBlock int64) *Indexer {
	return &Indexer{db: db, chains: chains, startBlock: startBlock}
}

// Sync 推进所有注册作品的索引，单代币失败不阻塞其他代币
func (ix *Indexer) Sync(ctx context.Context) error {
	var works []model.WorkModel
	if err := ix.db.Find(&works).Error; err != nil {
		return err
	}

	finalized, err := ix.chains.GetClient().FinalizedBlock(ctx)
	if err != nil {
		return err
	}
	if finalized == 0 {
		return nil
	}

	seen := make(map[string]bool)
	for _, work := range works {
		if seen[work.TokenAddress] {
			continue
		}
		seen[work.TokenAddress] = true

		if err := ix.syncToken(ctx, work.TokenAddress, finalized); err != nil {
			logger.Error("Failed to index token %s: %v", work.TokenAddress, err)
		}
	}
	return nil
}

// syncToken 推进单个代币的索引到终局区块
func (ix *Indexer) syncToken(ctx context.Context, tokenAddress string, finalized uint64) error {
	token, err := ix.chains.GetToken(tokenAddress)
	if err != nil {
		return err
	}

	cursor, err := ix.cursorFor(tokenAddress)
	if err != nil {
		return err
	}

	from := uint64(cursor.LastBlock + 1)
	for from <= finalized {
		to := from + maxScanRange - 1
		if to > finalized {
			to = finalized
		}

		logs, err := ix.chains.GetClient().FilterLogs(ctx, []common.Address{token.GetAddress()}, from, to)
		if err != nil {
			return fmt.Errorf("failed to filter logs [%d, %d]: %w", from, to, err)
		}

		if err := ix.apply(token, tokenAddress, logs, int64(to)); err != nil {
			return err
		}

		if len(logs) > 0 {
			logger.Debug("Indexed %d logs for %s in blocks [%d, %d]", len(logs), tokenAddress, from, to)
		}
		from = to + 1
	}
	return nil
}

// cursorFor 加载或初始化代币游标
func (ix *Indexer) cursorFor(tokenAddress string) (*model.ChainCursorModel, error) {
	var cursor model.ChainCursorModel
	err := ix.db.Where("token_address = ?", tokenAddress).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cursor = model.ChainCursorModel{TokenAddress: tokenAddress, LastBlock: ix.startBlock - 1}
		if cursor.LastBlock < -1 {
			cursor.LastBlock = -1
		}
		if err := ix.db.Create(&cursor).Error; err != nil {
			return nil, err
		}
		return &cursor, nil
	}
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

// apply 在一个事务内应用Transfer增量并推进游标
func (ix *Indexer) apply(token *chain.RoyaltyToken, tokenAddress string, logs []types.Log, toBlock int64) error {
	// 先在内存里合并同一持仓人的多笔变化，减少写放大
	deltas := make(map[string]*big.Int)
	transferID := token.TransferEventID()
	for _, lg := range logs {
		if len(lg.Topics) == 0 || lg.Topics[0] != transferID {
			continue
		}
		from, to, value, err := token.ParseTransfer(lg)
		if err != nil {
			logger.Warn("Skipping unparseable Transfer log at block %d: %v", lg.BlockNumber, err)
			continue
		}
		if value.Sign() == 0 {
			continue
		}

		// 铸造与销毁以零地址表示，不计入持仓
		if from != (common.Address{}) {
			addDelta(deltas, from.Hex(), new(big.Int).Neg(value))
		}
		if to != (common.Address{}) {
			addDelta(deltas, to.Hex(), value)
		}
	}

	return ix.db.Transaction(func(tx *gorm.DB) error {
		for holder, delta := range deltas {
			if err := applyDelta(tx, tokenAddress, holder, delta, toBlock); err != nil {
				return err
			}
		}

		return tx.Model(&model.ChainCursorModel{}).
			Where("token_address = ?", tokenAddress).
			Update("last_block", toBlock).Error
	})
}

func addDelta(deltas map[string]*big.Int, holder string, delta *big.Int) {
	if cur, ok := deltas[holder]; ok {
		cur.Add(cur, delta)
		return
	}
	deltas[holder] = new(big.Int).Set(delta)
}

// applyDelta 叠加单个持仓人的余额变化
func applyDelta(tx *gorm.DB, tokenAddress, holder string, delta *big.Int, block int64) error {
	if delta.Sign() == 0 {
		return nil
	}

	var row model.HolderIndexModel
	err := tx.Where("token_address = ? AND holder = ?", tokenAddress, holder).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if delta.Sign() < 0 {
			return fmt.Errorf("negative balance for unknown holder %s of %s", holder, tokenAddress)
		}
		row = model.HolderIndexModel{
			TokenAddress: tokenAddress,
			Holder:       holder,
			Balance:      model.NewAmount(delta),
			UpdatedBlock: block,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_address"}, {Name: "holder"}},
			DoUpdates: clause.AssignmentColumns([]string{"balance", "updated_block"}),
		}).Create(&row).Error
	}
	if err != nil {
		return err
	}

	next := new(big.Int).Add(row.Balance.BigInt(), delta)
	if next.Sign() < 0 {
		return fmt.Errorf("holder %s of %s would go negative at block %d", holder, tokenAddress, block)
	}

	return tx.Model(&model.HolderIndexModel{}).
		Where("token_address = ? AND holder = ?", tokenAddress, holder).
		Updates(map[string]interface{}{
			"balance":       model.NewAmount(next),
			"updated_block": block,
		}).Error
}
