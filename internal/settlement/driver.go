package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/blues/rds/internal/chain"
	"github.com/blues/rds/internal/logger"
	"github.com/blues/rds/internal/model"
	"github.com/blues/rds/internal/period"
	"github.com/blues/rds/internal/retry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"gorm.io/gorm"
)

// ErrChainRevert 链上确定性回滚，不重试，需管理员介入
var ErrChainRevert = errors.New("transaction reverted on chain")

// Backend 结算所需的链后端，chain.Client 满足
type Backend interface {
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	LatestBlock(ctx context.Context) (uint64, error)
}

// TxSigner 交易签名器，chain.Signer 满足
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// Treasury 金库合约视图，chain.Treasury 满足
type Treasury interface {
	GetAddress() common.Address
	PackDistribute(planRef, batchRef [32]byte, recipients []common.Address, amounts []*big.Int) ([]byte, error)
	ParseDistributed(logs []*types.Log, planRef, batchRef [32]byte) ([]chain.LineResult, error)
}

// Config 驱动参数
type Config struct {
	MaxBatchSize  int
	GasLimit      uint64
	Confirmations int64
	Retry         retry.Policy
}

// Driver 结算驱动：把分配计划按批次推上链，
// 广播前先落库(nonce, txHash)，崩溃后按记录恢复，保证每行至多支付一次。
type Driver struct {
	db       *gorm.DB
	backend  Backend
	signer   TxSigner
	treasury Treasury
	cfg      Config
}

// NewDriver 创建结算驱动
func NewDriver(db *gorm.DB, backend Backend, signer TxSigner, treasury Treasury, cfg Config) *Driver {
	if cfg.MaxBatchSize < 1 {
		cfg.MaxBatchSize = 100
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 3_000_000
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	return &Driver{db: db, backend: backend, signer: signer, treasury: treasury, cfg: cfg}
}

// Begin 开始结算：账期 Planned -> Settling，计划切分为Pending批次
func (d *Driver) Begin(planId int64) error {
	var plan model.PayoutPlanModel
	if err := d.db.First(&plan, planId).Error; err != nil {
		return fmt.Errorf("failed to load plan %d: %w", planId, err)
	}

	var p model.PeriodModel
	if err := d.db.First(&p, plan.PeriodId).Error; err != nil {
		return fmt.Errorf("failed to load period %d: %w", plan.PeriodId, err)
	}
	if p.State != model.PeriodStatePlanned {
		return fmt.Errorf("period %d is %s, expected planned", p.Id, p.State)
	}

	return d.db.Transaction(func(tx *gorm.DB) error {
		// 幂等：批次已存在说明Begin执行过，只需推进状态
		var existing int64
		if err := tx.Model(&model.PayoutBatchModel{}).Where("plan_id = ?", plan.Id).Count(&existing).Error; err != nil {
			return err
		}
		if existing == 0 {
			for i, from := 0, 0; from < plan.LineCount; i, from = i+1, from+d.cfg.MaxBatchSize {
				to := from + d.cfg.MaxBatchSize
				if to > plan.LineCount {
					to = plan.LineCount
				}
				batch := &model.PayoutBatchModel{
					PlanId:     plan.Id,
					BatchIndex: i,
					FromLine:   from,
					ToLine:     to,
					Status:     model.BatchStatusPending,
				}
				if err := tx.Create(batch).Error; err != nil {
					return err
				}
			}
		}

		return period.Transition(tx, &p, model.PeriodStateSettling, model.CauseSettlementBegin,
			fmt.Sprintf(`{"plan":%d,"lines":%d}`, plan.Id, plan.LineCount))
	})
}

// Step 协作式推进一个批次。批次严格按序处理，
// 同一计划同时至多一个Submitted批次。返回 done=true 表示计划已结清。
func (d *Driver) Step(ctx context.Context, planId int64) (bool, error) {
	if paused, err := IsPaused(d.db); err != nil {
		return false, err
	} else if paused {
		return false, nil
	}

	var plan model.PayoutPlanModel
	if err := d.db.First(&plan, planId).Error; err != nil {
		return false, fmt.Errorf("failed to load plan %d: %w", planId, err)
	}
	if plan.Status == model.PlanStatusFailed {
		return false, nil
	}

	var batches []model.PayoutBatchModel
	if err := d.db.Where("plan_id = ?", planId).Order("batch_index ASC").Find(&batches).Error; err != nil {
		return false, err
	}
	if len(batches) == 0 {
		return false, fmt.Errorf("plan %d has no batches", planId)
	}

	// 重组检查：最近确认的批次若仍在终局窗口内，确认其回执未被重组掉
	if err := d.checkReorg(ctx, &plan, batches); err != nil {
		return false, err
	}

	for i := range batches {
		batch := &batches[i]
		switch batch.Status {
		case model.BatchStatusConfirmed:
			continue
		case model.BatchStatusFailed:
			return false, nil
		case model.BatchStatusSubmitted:
			return false, d.resolveSubmitted(ctx, &plan, batch)
		case model.BatchStatusPending:
			return false, d.submit(ctx, &plan, batch)
		default:
			return false, fmt.Errorf("batch %d in unknown status %s", batch.Id, batch.Status)
		}
	}

	// 全部批次已确认：Settling -> Settled
	var p model.PeriodModel
	if err := d.db.First(&p, plan.PeriodId).Error; err != nil {
		return false, err
	}
	if p.State == model.PeriodStateSettling {
		err := d.db.Transaction(func(tx *gorm.DB) error {
			return period.Transition(tx, &p, model.PeriodStateSettled, model.CauseSettlementDone, "")
		})
		if err != nil {
			return false, err
		}
		logger.Info("Plan %d fully settled, period %d settled", plan.Id, p.Id)
	}
	return true, nil
}

// checkReorg 最近确认批次的回执消失时回退为Submitted并删除回执
func (d *Driver) checkReorg(ctx context.Context, plan *model.PayoutPlanModel, batches []model.PayoutBatchModel) error {
	var last *model.PayoutBatchModel
	for i := range batches {
		if batches[i].Status == model.BatchStatusConfirmed {
			last = &batches[i]
		}
	}
	if last == nil {
		return nil
	}

	var rec model.ReceiptModel
	if err := d.db.Where("batch_id = ?", last.Id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	// 终局窗口之外的批次不再复查
	latest, err := d.backend.LatestBlock(ctx)
	if err != nil {
		return err
	}
	if int64(latest) >= rec.BlockNum+d.cfg.Confirmations*2 {
		return nil
	}

	receipt, err := d.backend.TransactionReceipt(ctx, common.HexToHash(rec.TxHash))
	if err == nil && receipt != nil {
		return nil
	}

	logger.Warn("Reorg detected: receipt for batch %d (tx %s) disappeared, requeueing", last.Id, rec.TxHash)
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.ReceiptModel{}, rec.Id).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.PayoutBatchModel{}).Where("id = ?", last.Id).
			Updates(map[string]interface{}{"status": model.BatchStatusSubmitted, "confirmed_at": nil}).Error; err != nil {
			return err
		}
		last.Status = model.BatchStatusSubmitted
		return period.AppendEvent(tx, model.EntityBatch, last.Id,
			string(model.BatchStatusConfirmed), string(model.BatchStatusSubmitted), model.CauseReorg, "")
	})
}

// resolveSubmitted 处理已广播批次：确认、等待、或按记录的(nonce, txHash)恢复
func (d *Driver) resolveSubmitted(ctx context.Context, plan *model.PayoutPlanModel, batch *model.PayoutBatchModel) error {
	txHash := common.HexToHash(batch.TxHash)

	receipt, err := d.backend.TransactionReceipt(ctx, txHash)
	if err == nil && receipt != nil {
		if receipt.Status == types.ReceiptStatusFailed {
			// 确定性回滚：批次与计划失败，账期失败，不重试
			return d.markReverted(plan, batch)
		}

		latest, err := d.backend.LatestBlock(ctx)
		if err != nil {
			return err
		}
		if int64(latest) < receipt.BlockNumber.Int64()+d.cfg.Confirmations {
			return nil // 等待终局
		}
		return d.confirm(plan, batch, receipt)
	}

	// 回执不存在：交易可能还在内存池，或从未成功广播（崩溃窗口）
	_, pending, err := d.backend.TransactionByHash(ctx, txHash)
	if err == nil && pending {
		return nil
	}
	if err == nil && !pending {
		return nil // 已打包但回执暂不可见，下个tick再查
	}

	// 链上不知道这笔交易：用记录的nonce重建并重新广播。
	// 相同nonce保证即使旧交易随后出现也只会有一笔上链。
	logger.Warn("Tx %s for batch %d unknown to chain, rebroadcasting with nonce %d", batch.TxHash, batch.Id, batch.Nonce)
	return d.broadcast(ctx, plan, batch, uint64(batch.Nonce))
}

// submit 提交Pending批次：保留nonce，先落库(nonce, txHash)再广播
func (d *Driver) submit(ctx context.Context, plan *model.PayoutPlanModel, batch *model.PayoutBatchModel) error {
	nonce := uint64(0)
	if batch.Nonce >= 0 {
		// 崩溃恢复：nonce已保留，沿用
		nonce = uint64(batch.Nonce)
	} else {
		n, err := d.backend.NonceAt(ctx, d.signer.Address())
		if err != nil {
			return fmt.Errorf("failed to fetch nonce: %w", err)
		}
		nonce = n
	}
	return d.broadcast(ctx, plan, batch, nonce)
}

// broadcast 构造、签名、落库、广播
func (d *Driver) broadcast(ctx context.Context, plan *model.PayoutPlanModel, batch *model.PayoutBatchModel, nonce uint64) error {
	lines, err := d.loadLines(plan.Id, batch.FromLine, batch.ToLine)
	if err != nil {
		return err
	}

	recipients := make([]common.Address, 0, len(lines))
	amounts := make([]*big.Int, 0, len(lines))
	for _, l := range lines {
		recipients = append(recipients, common.HexToAddress(l.Recipient))
		amounts = append(amounts, l.Amount.BigInt())
	}

	data, err := d.treasury.PackDistribute(PlanRef(plan), BatchRef(plan, batch.BatchIndex), recipients, amounts)
	if err != nil {
		return fmt.Errorf("failed to pack distribute call: %w", err)
	}

	gasPrice, err := d.backend.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, d.treasury.GetAddress(), new(big.Int), d.cfg.GasLimit, gasPrice, data)
	signed, err := d.signer.SignTx(tx)
	if err != nil {
		return err
	}

	// 广播前先持久化交易意图，崩溃后可按 (nonce, txHash) 恢复
	err = d.db.Transaction(func(dbtx *gorm.DB) error {
		res := dbtx.Model(&model.PayoutBatchModel{}).Where("id = ?", batch.Id).
			Updates(map[string]interface{}{
				"status":        model.BatchStatusSubmitted,
				"nonce":         int64(nonce),
				"tx_hash":       signed.Hash().Hex(),
				"attempt_count": batch.AttemptCount + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		return period.AppendEvent(dbtx, model.EntityBatch, batch.Id,
			string(batch.Status), string(model.BatchStatusSubmitted), "broadcast",
			fmt.Sprintf(`{"nonce":%d,"tx":%q}`, nonce, signed.Hash().Hex()))
	})
	if err != nil {
		return err
	}
	batch.Status = model.BatchStatusSubmitted
	batch.Nonce = int64(nonce)
	batch.TxHash = signed.Hash().Hex()

	// 只重试传输层错误；nonce冲突等确定性错误交给下个tick恢复
	sendErr := d.cfg.Retry.Do(ctx, func() error {
		return d.backend.SendTransaction(ctx, signed)
	})
	if sendErr != nil {
		logger.Error("Broadcast failed for batch %d after retries: %v", batch.Id, sendErr)
		return sendErr
	}

	logger.Info("Broadcast batch %d of plan %d (tx %s, nonce %d)", batch.BatchIndex, plan.Id, batch.TxHash, nonce)
	return nil
}

// confirm 持久化回执并标记批次Confirmed
func (d *Driver) confirm(plan *model.PayoutPlanModel, batch *model.PayoutBatchModel, receipt *types.Receipt) error {
	results, err := d.treasury.ParseDistributed(receipt.Logs, PlanRef(plan), BatchRef(plan, batch.BatchIndex))
	if err != nil {
		return err
	}

	bitmap := successBitmap(results, batch.ToLine-batch.FromLine)
	now := time.Now().UTC()

	err = d.db.Transaction(func(tx *gorm.DB) error {
		rec := &model.ReceiptModel{
			BatchId:       batch.Id,
			TxHash:        batch.TxHash,
			BlockNum:      receipt.BlockNumber.Int64(),
			GasUsed:       receipt.GasUsed,
			SuccessBitmap: bitmap,
		}
		if err := tx.Create(rec).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.PayoutBatchModel{}).Where("id = ?", batch.Id).
			Updates(map[string]interface{}{"status": model.BatchStatusConfirmed, "confirmed_at": &now}).Error; err != nil {
			return err
		}
		return period.AppendEvent(tx, model.EntityBatch, batch.Id,
			string(model.BatchStatusSubmitted), string(model.BatchStatusConfirmed), "confirmed",
			fmt.Sprintf(`{"block":%d}`, receipt.BlockNumber.Int64()))
	})
	if err != nil {
		return err
	}

	batch.Status = model.BatchStatusConfirmed
	logger.Info("Batch %d of plan %d confirmed in block %d", batch.BatchIndex, plan.Id, receipt.BlockNumber.Int64())
	return nil
}

// markReverted 确定性回滚：批次Failed、计划Failed、账期Failed
func (d *Driver) markReverted(plan *model.PayoutPlanModel, batch *model.PayoutBatchModel) error {
	var p model.PeriodModel
	if err := d.db.First(&p, plan.PeriodId).Error; err != nil {
		return err
	}

	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.PayoutBatchModel{}).Where("id = ?", batch.Id).
			Updates(map[string]interface{}{"status": model.BatchStatusFailed, "fail_reason": "reverted"}).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.PayoutPlanModel{}).Where("id = ?", plan.Id).
			Update("status", model.PlanStatusFailed).Error; err != nil {
			return err
		}
		if err := period.AppendEvent(tx, model.EntityBatch, batch.Id,
			string(model.BatchStatusSubmitted), string(model.BatchStatusFailed), model.CauseChainRevert,
			fmt.Sprintf(`{"tx":%q}`, batch.TxHash)); err != nil {
			return err
		}
		return period.Transition(tx, &p, model.PeriodStateFailed, model.CauseChainRevert,
			fmt.Sprintf(`{"batch":%d}`, batch.BatchIndex))
	})
	if err != nil {
		return err
	}

	batch.Status = model.BatchStatusFailed
	plan.Status = model.PlanStatusFailed
	logger.Error("Batch %d of plan %d reverted on chain, plan failed", batch.BatchIndex, plan.Id)
	return ErrChainRevert
}

func (d *Driver) loadLines(planId int64, from, to int) ([]model.PayoutLineModel, error) {
	var lines []model.PayoutLineModel
	err := d.db.Where("plan_id = ? AND line_index >= ? AND line_index < ?", planId, from, to).
		Order("line_index ASC").Find(&lines).Error
	if err != nil {
		return nil, err
	}
	if len(lines) != to-from {
		return nil, fmt.Errorf("plan %d lines [%d,%d) incomplete: got %d", planId, from, to, len(lines))
	}
	return lines, nil
}

// PlanRef 计划的链上bytes32引用
func PlanRef(plan *model.PayoutPlanModel) [32]byte {
	var ref [32]byte
	copy(ref[:], crypto.Keccak256([]byte("plan:"+plan.PlanHash)))
	return ref
}

// BatchRef 批次的链上bytes32引用
func BatchRef(plan *model.PayoutPlanModel, batchIndex int) [32]byte {
	var ref [32]byte
	copy(ref[:], crypto.Keccak256([]byte(fmt.Sprintf("batch:%s:%d", plan.PlanHash, batchIndex))))
	return ref
}

// successBitmap 每行成功位图的hex编码，低位在前
func successBitmap(results []chain.LineResult, lineCount int) string {
	bits := make([]byte, (lineCount+7)/8)
	for _, r := range results {
		if r.Success && r.LineIndex >= 0 && r.LineIndex < lineCount {
			bits[r.LineIndex/8] |= 1 << (r.LineIndex % 8)
		}
	}
	return fmt.Sprintf("%x", bits)
}
