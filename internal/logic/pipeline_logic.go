package logic

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/blues/rds/internal/aggregator"
	"github.com/blues/rds/internal/chain"
	"github.com/blues/rds/internal/config"
	"github.com/blues/rds/internal/logger"
	"github.com/blues/rds/internal/model"
	"github.com/blues/rds/internal/period"
	"github.com/blues/rds/internal/planner"
	"github.com/blues/rds/internal/settlement"
	"github.com/blues/rds/internal/snapshot"
	"gorm.io/gorm"
)

// PipelineLogic 账期流水线推进：每次 Step 把账期向终态推进至多一步。
// 幂等，可由调度器反复调用。
type PipelineLogic struct {
	db     *gorm.DB
	cfg    *config.Config
	chains *chain.Manager
	coord  *snapshot.Coordinator
	driver *settlement.Driver
}

// NewPipelineLogic 创建流水线逻辑
func NewPipelineLogic(db *gorm.DB, cfg *config.Config, chains *chain.Manager,
	coord *snapshot.Coordinator, driver *settlement.Driver) *PipelineLogic {
	return &PipelineLogic{db: db, cfg: cfg, chains: chains, coord: coord, driver: driver}
}

// Runnable 待推进的账期：非终态且账期已结束
func (l *PipelineLogic) Runnable(limit int) ([]model.PeriodModel, error) {
	states := []model.PeriodState{
		model.PeriodStateOpen,
		model.PeriodStateAggregating,
		model.PeriodStateSnapshotted,
		model.PeriodStatePlanned,
		model.PeriodStateSettling,
	}

	var periods []model.PeriodModel
	err := l.db.Where("state IN ? AND period_end <= ?", states, time.Now().UTC()).
		Order("id ASC").Limit(limit).Find(&periods).Error
	return periods, err
}

// Step 按当前状态推进账期一步
func (l *PipelineLogic) Step(ctx context.Context, periodId int64) error {
	var p model.PeriodModel
	if err := l.db.First(&p, periodId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPeriodUnknown
		}
		return err
	}

	switch p.State {
	case model.PeriodStateOpen:
		return l.aggregate(&p)
	case model.PeriodStateAggregating:
		return l.takeSnapshot(ctx, &p)
	case model.PeriodStateSnapshotted:
		return l.computePlan(&p)
	case model.PeriodStatePlanned:
		return l.driver.Begin(p.PlanId)
	case model.PeriodStateSettling:
		_, err := l.driver.Step(ctx, p.PlanId)
		if errors.Is(err, settlement.ErrChainRevert) {
			// 账期已标记失败，等待管理员处理
			return nil
		}
		return err
	default:
		return nil
	}
}

// aggregate 聚合账期报告：Open -> Aggregating，偏差过大进入 Disputed
func (l *PipelineLogic) aggregate(p *model.PeriodModel) error {
	if p.PeriodEnd.After(time.Now().UTC()) {
		return nil // 账期未结束，继续收集报告
	}

	var work model.WorkModel
	if err := l.db.First(&work, p.WorkId).Error; err != nil {
		return err
	}

	reports, currency, err := l.loadReports(p)
	if err != nil {
		return err
	}

	settings := l.settingsFor(&work)
	result, err := aggregator.Aggregate(reports, settings)
	if err != nil {
		return err
	}

	switch result.Outcome {
	case aggregator.OutcomeInsufficient:
		logger.Debug("Period %d has %d reports, need %d, staying open", p.Id, len(reports), settings.MinOracleCount)
		return nil

	case aggregator.OutcomeDisputed:
		logger.Warn("Period %d disputed: %s (dropped: %v)", p.Id, result.Reason, result.Dropped)
		return l.db.Transaction(func(tx *gorm.DB) error {
			return period.Transition(tx, p, model.PeriodStateDisputed, model.CauseDeviation,
				fmt.Sprintf(`{"reason":%q,"dropped":%q}`, result.Reason, strings.Join(result.Dropped, ",")))
		})

	case aggregator.OutcomeAggregated:
		logger.Info("Period %d aggregated to %s %s from %d oracles", p.Id, result.Amount, currency, len(result.Used))
		return l.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&model.PeriodModel{}).Where("id = ?", p.Id).
				Updates(map[string]interface{}{
					"aggregated_amount": model.NewAmount(result.Amount),
					"currency":          currency,
				}).Error; err != nil {
				return err
			}
			p.AggregatedAmount = model.NewAmount(result.Amount)
			p.Currency = currency
			return period.Transition(tx, p, model.PeriodStateAggregating, model.CausePeriodAggregated,
				fmt.Sprintf(`{"used":%q,"dropped":%q}`,
					strings.Join(result.Used, ","), strings.Join(result.Dropped, ",")))
		})

	default:
		return fmt.Errorf("unknown aggregation outcome %d", result.Outcome)
	}
}

// loadReports 加载参与聚合的报告：仅活跃预言机，同一预言机取最新一条。
// 报告货币不一致时返回错误，账期进入争议由调用方处理。
func (l *PipelineLogic) loadReports(p *model.PeriodModel) ([]aggregator.Report, string, error) {
	var rows []model.RevenueReportModel
	err := l.db.Where("work_id = ? AND period_start = ? AND period_end = ?",
		p.WorkId, p.PeriodStart, p.PeriodEnd).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, "", err
	}
	if len(rows) == 0 {
		return nil, "", nil
	}

	// 同一预言机多次提交取最新
	latest := make(map[int64]model.RevenueReportModel)
	for _, r := range rows {
		latest[r.OracleId] = r
	}

	oracleIds := make([]int64, 0, len(latest))
	for id := range latest {
		oracleIds = append(oracleIds, id)
	}

	var oracles []model.OracleModel
	if err := l.db.Where("id IN ? AND active = ?", oracleIds, true).Find(&oracles).Error; err != nil {
		return nil, "", err
	}

	currency := ""
	reports := make([]aggregator.Report, 0, len(oracles))
	for _, orc := range oracles {
		r := latest[orc.Id]
		if currency == "" {
			currency = r.Currency
		} else if currency != r.Currency {
			return nil, "", fmt.Errorf("period %d has mixed report currencies %s and %s", p.Id, currency, r.Currency)
		}
		reports = append(reports, aggregator.Report{
			OracleKey: orc.OracleKey,
			Amount:    r.Amount.BigInt(),
			Weight:    orc.TrustWeight,
		})
	}
	return reports, currency, nil
}

// settingsFor 作品级配置覆盖全局默认
func (l *PipelineLogic) settingsFor(work *model.WorkModel) aggregator.Settings {
	s := aggregator.Settings{
		Policy:          l.cfg.Aggregation.Policy,
		MinOracleCount:  l.cfg.Aggregation.MinOracleCount,
		MaxDeviationBps: l.cfg.Aggregation.MaxDeviationBps,
	}
	if work.AggregationPolicy != "" {
		s.Policy = work.AggregationPolicy
	}
	if work.MinOracleCount > 0 {
		s.MinOracleCount = work.MinOracleCount
	}
	if work.MaxDeviationBps > 0 {
		s.MaxDeviationBps = work.MaxDeviationBps
	}
	return s
}

// takeSnapshot 持仓快照：Aggregating -> Snapshotted，
// 余额合计两次不符进入 Failed
func (l *PipelineLogic) takeSnapshot(ctx context.Context, p *model.PeriodModel) error {
	var work model.WorkModel
	if err := l.db.First(&work, p.WorkId).Error; err != nil {
		return err
	}

	token, err := l.chains.GetToken(work.TokenAddress)
	if err != nil {
		return err
	}

	var src snapshot.Source
	sourceKind := l.cfg.Snapshot.Source
	if work.SnapshotSource != "" {
		sourceKind = work.SnapshotSource
	}
	switch sourceKind {
	case "index":
		src = snapshot.NewIndexSource(l.db, token, work.TokenAddress)
	default:
		src = snapshot.NewContractSource(token)
	}

	blockNum, ready, err := l.coord.ChooseBlock(ctx, p.PeriodEnd)
	if err != nil {
		return err
	}
	if !ready {
		logger.Debug("Finalized head not past period %d end yet, waiting", p.Id)
		return nil
	}

	err = l.coord.Take(ctx, p, blockNum, src)
	if errors.Is(err, snapshot.ErrSnapshotMismatch) {
		logger.Error("Snapshot mismatch for period %d at block %d, marking failed", p.Id, blockNum)
		return l.db.Transaction(func(tx *gorm.DB) error {
			return period.Transition(tx, p, model.PeriodStateFailed, model.CauseSnapshotMismatch,
				fmt.Sprintf(`{"block":%d}`, blockNum))
		})
	}
	return err
}

// computePlan 生成分配计划：Snapshotted -> Planned
func (l *PipelineLogic) computePlan(p *model.PeriodModel) error {
	var snap model.HolderSnapshotModel
	if err := l.db.Where("period_id = ?", p.Id).First(&snap).Error; err != nil {
		return fmt.Errorf("failed to load snapshot for period %d: %w", p.Id, err)
	}

	var balances []model.HolderBalanceModel
	if err := l.db.Where("snapshot_id = ?", snap.Id).Order("position ASC").Find(&balances).Error; err != nil {
		return err
	}

	holders := make([]planner.Holder, 0, len(balances))
	for _, b := range balances {
		holders = append(holders, planner.Holder{Address: b.Holder, Balance: b.Balance.BigInt()})
	}

	fees, err := l.feeRules()
	if err != nil {
		return err
	}
	dust, err := parseMinor(l.cfg.Planner.DustThresholdMinor)
	if err != nil {
		return fmt.Errorf("invalid dust threshold: %w", err)
	}

	plan, err := planner.Compute(planner.Inputs{
		PeriodKey:         period.Key(p),
		AggregatedAmount:  p.AggregatedAmount.BigInt(),
		Currency:          p.Currency,
		Holders:           holders,
		TotalSupply:       snap.TotalSupply.BigInt(),
		Fees:              fees,
		DustThreshold:     dust,
		ResidualRecipient: l.cfg.Fees.ResidualRecipient,
	})
	if err != nil {
		// 计划不变量被破坏说明数据已不可信，调用方必须停写退出
		return &period.InvariantViolationError{Detail: err.Error()}
	}

	return l.db.Transaction(func(tx *gorm.DB) error {
		row := &model.PayoutPlanModel{
			PeriodId:          p.Id,
			Currency:          p.Currency,
			PlanHash:          plan.Hash,
			ResidualLineIndex: plan.ResidualIndex,
			LineCount:         len(plan.Lines),
			TotalFees:         model.NewAmount(plan.TotalFees),
			TotalPayout:       model.NewAmount(plan.TotalPayout),
			Status:            model.PlanStatusActive,
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}

		lines := make([]model.PayoutLineModel, 0, len(plan.Lines))
		for i, line := range plan.Lines {
			lines = append(lines, model.PayoutLineModel{
				PlanId:    row.Id,
				LineIndex: i,
				LineType:  line.Type,
				Recipient: line.Recipient,
				Amount:    model.NewAmount(line.Amount),
				RateBps:   line.RateBps,
			})
		}
		if err := tx.CreateInBatches(lines, 200).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.PeriodModel{}).Where("id = ?", p.Id).
			Update("plan_id", row.Id).Error; err != nil {
			return err
		}
		p.PlanId = row.Id

		logger.Info("Plan %d computed for period %d: %d lines, hash %s", row.Id, p.Id, len(plan.Lines), plan.Hash)
		return period.Transition(tx, p, model.PeriodStatePlanned, model.CausePlanComputed,
			fmt.Sprintf(`{"plan":%d,"hash":%q,"lines":%d}`, row.Id, plan.Hash, len(plan.Lines)))
	})
}

// feeRules 配置中的费用表
func (l *PipelineLogic) feeRules() ([]planner.FeeRule, error) {
	rules := make([]planner.FeeRule, 0, len(l.cfg.Fees.Schedule))
	for _, fee := range l.cfg.Fees.Schedule {
		rule := planner.FeeRule{Recipient: fee.Recipient, RateBps: fee.RateBps}
		if fee.FlatMinor != "" {
			flat, err := parseMinor(fee.FlatMinor)
			if err != nil {
				return nil, fmt.Errorf("invalid flat fee for %s: %w", fee.Recipient, err)
			}
			rule.FlatMinor = flat
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseMinor(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("not a non-negative decimal integer: %q", s)
	}
	return v, nil
}
