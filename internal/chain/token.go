package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// 版税代币合约ABI（核心只依赖的最小方法集）
const royaltyTokenABI = `[
	{
		"constant": true,
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "account", "type": "address"},
			{"name": "blockNumber", "type": "uint256"}
		],
		"name": "balanceOfAt",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "blockNumber", "type": "uint256"}],
		"name": "totalSupplyAt",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "blockNumber", "type": "uint256"}],
		"name": "holdersAt",
		"outputs": [{"name": "", "type": "address[]"}],
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "from", "type": "address"},
			{"indexed": true, "name": "to", "type": "address"},
			{"indexed": false, "name": "value", "type": "uint256"}
		],
		"name": "Transfer",
		"type": "event"
	}
]`

// RoyaltyToken 版税代币合约工具类
type RoyaltyToken struct {
	client  *Client
	address common.Address
	abi     abi.ABI
}

// NewRoyaltyToken 按地址绑定版税代币合约
func NewRoyaltyToken(client *Client, address string) (*RoyaltyToken, error) {
	parsedABI, err := abi.JSON(strings.NewReader(royaltyTokenABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token ABI: %w", err)
	}

	return &RoyaltyToken{
		client:  client,
		address: common.HexToAddress(address),
		abi:     parsedABI,
	}, nil
}

// GetAddress 获取合约地址
func (t *RoyaltyToken) GetAddress() common.Address {
	return t.address
}

// BalanceOfAt 查询指定区块高度的余额
func (t *RoyaltyToken) BalanceOfAt(ctx context.Context, holder common.Address, blockNum uint64) (*big.Int, error) {
	data, err := t.abi.Pack("balanceOfAt", holder, new(big.Int).SetUint64(blockNum))
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOfAt: %w", err)
	}

	out, err := t.client.CallContract(ctx, t.address, data, nil)
	if err != nil {
		return nil, err
	}

	values, err := t.abi.Unpack("balanceOfAt", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOfAt: %w", err)
	}
	return values[0].(*big.Int), nil
}

// TotalSupplyAt 查询指定区块高度的总供应量
func (t *RoyaltyToken) TotalSupplyAt(ctx context.Context, blockNum uint64) (*big.Int, error) {
	data, err := t.abi.Pack("totalSupplyAt", new(big.Int).SetUint64(blockNum))
	if err != nil {
		return nil, fmt.Errorf("failed to pack totalSupplyAt: %w", err)
	}

	out, err := t.client.CallContract(ctx, t.address, data, nil)
	if err != nil {
		return nil, err
	}

	values, err := t.abi.Unpack("totalSupplyAt", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack totalSupplyAt: %w", err)
	}
	return values[0].(*big.Int), nil
}

// HoldersAt 查询指定区块高度的持仓人列表（地址升序）
func (t *RoyaltyToken) HoldersAt(ctx context.Context, blockNum uint64) ([]common.Address, error) {
	data, err := t.abi.Pack("holdersAt", new(big.Int).SetUint64(blockNum))
	if err != nil {
		return nil, fmt.Errorf("failed to pack holdersAt: %w", err)
	}

	out, err := t.client.CallContract(ctx, t.address, data, nil)
	if err != nil {
		return nil, err
	}

	values, err := t.abi.Unpack("holdersAt", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack holdersAt: %w", err)
	}

	holders := values[0].([]common.Address)
	sort.Slice(holders, func(i, j int) bool {
		return holders[i].Hex() < holders[j].Hex()
	})
	return holders, nil
}

// TransferEventID Transfer事件签名
func (t *RoyaltyToken) TransferEventID() common.Hash {
	return t.abi.Events["Transfer"].ID
}

// ParseTransfer 解析Transfer事件日志
func (t *RoyaltyToken) ParseTransfer(log types.Log) (from, to common.Address, value *big.Int, err error) {
	if len(log.Topics) < 3 {
		return from, to, nil, fmt.Errorf("invalid Transfer event: insufficient topics")
	}
	if log.Topics[0] != t.abi.Events["Transfer"].ID {
		return from, to, nil, fmt.Errorf("not a Transfer event: %s", log.Topics[0].Hex())
	}

	from = common.BytesToAddress(log.Topics[1].Bytes())
	to = common.BytesToAddress(log.Topics[2].Bytes())
	value = new(big.Int).SetBytes(log.Data)
	return from, to, value, nil
}
