package snapshot

import (
	"context"
	"math/big"

	"github.com/blues/rds/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

// ContractSource 链上快照来源：代币合约自带 holdersAt/balanceOfAt
type ContractSource struct {
	token Token
}

// NewContractSource 创建链上快照来源
func NewContractSource(token Token) *ContractSource {
	return &ContractSource{token: token}
}

// TotalSupplyAt 指定区块的总供应量
func (s *ContractSource) TotalSupplyAt(ctx context.Context, blockNum uint64) (*big.Int, error) {
	return s.token.TotalSupplyAt(ctx, blockNum)
}

// BalancesAt 枚举合约持仓人并逐一读取余额，过滤零余额
func (s *ContractSource) BalancesAt(ctx context.Context, blockNum uint64) ([]Balance, error) {
	holders, err := s.token.HoldersAt(ctx, blockNum)
	if err != nil {
		return nil, err
	}
	return balancesFor(ctx, s.token, holders, blockNum)
}

// IndexSource 链下索引来源：候选持仓人来自 holder_index 物化视图，
// 余额仍从合约 balanceOfAt 读取，保证与链上一致。
type IndexSource struct {
	db           *gorm.DB
	token        Token
	tokenAddress string
}

// NewIndexSource 创建链下索引来源
func NewIndexSource(db *gorm.DB, token Token, tokenAddress string) *IndexSource {
	return &IndexSource{db: db, token: token, tokenAddress: tokenAddress}
}

// TotalSupplyAt 指定区块的总供应量
func (s *IndexSource) TotalSupplyAt(ctx context.Context, blockNum uint64) (*big.Int, error) {
	return s.token.TotalSupplyAt(ctx, blockNum)
}

// BalancesAt 从索引取候选持仓人，从合约读快照区块余额
func (s *IndexSource) BalancesAt(ctx context.Context, blockNum uint64) ([]Balance, error) {
	var rows []model.HolderIndexModel
	if err := s.db.Where("token_address = ? AND balance > 0", s.tokenAddress).
		Order("holder ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	holders := make([]common.Address, 0, len(rows))
	for _, r := range rows {
		holders = append(holders, common.HexToAddress(r.Holder))
	}
	return balancesFor(ctx, s.token, holders, blockNum)
}

func balancesFor(ctx context.Context, token Token, holders []common.Address, blockNum uint64) ([]Balance, error) {
	balances := make([]Balance, 0, len(holders))
	for _, h := range holders {
		b, err := token.BalanceOfAt(ctx, h, blockNum)
		if err != nil {
			return nil, err
		}
		if b.Sign() == 0 {
			continue
		}
		balances = append(balances, Balance{Holder: h.Hex(), Balance: b})
	}
	return balances, nil
}
