package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// 金库合约ABI：批量分发 + 每行一个结果事件
const treasuryABI = `[
	{
		"inputs": [
			{"name": "planId", "type": "bytes32"},
			{"name": "batchRef", "type": "bytes32"},
			{"name": "recipients", "type": "address[]"},
			{"name": "amounts", "type": "uint256[]"}
		],
		"name": "distribute",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "planId", "type": "bytes32"},
			{"indexed": true, "name": "batchRef", "type": "bytes32"},
			{"indexed": false, "name": "lineIndex", "type": "uint256"},
			{"indexed": false, "name": "success", "type": "bool"}
		],
		"name": "Distributed",
		"type": "event"
	}
]`

// Treasury 金库合约工具类
type Treasury struct {
	address common.Address
	abi     abi.ABI
}

// LineResult 单行分发结果，从 Distributed 事件解析
type LineResult struct {
	LineIndex int
	Success   bool
}

// NewTreasury 绑定金库合约
func NewTreasury(address string) (*Treasury, error) {
	parsedABI, err := abi.JSON(strings.NewReader(treasuryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse treasury ABI: %w", err)
	}

	return &Treasury{
		address: common.HexToAddress(address),
		abi:     parsedABI,
	}, nil
}

// GetAddress 获取合约地址
func (t *Treasury) GetAddress() common.Address {
	return t.address
}

// PackDistribute 编码 distribute 调用数据
func (t *Treasury) PackDistribute(planRef, batchRef [32]byte, recipients []common.Address, amounts []*big.Int) ([]byte, error) {
	if len(recipients) != len(amounts) {
		return nil, fmt.Errorf("recipients/amounts length mismatch: %d != %d", len(recipients), len(amounts))
	}
	return t.abi.Pack("distribute", planRef, batchRef, recipients, amounts)
}

// ParseDistributed 从交易回执日志中解析指定批次的每行结果
func (t *Treasury) ParseDistributed(logs []*types.Log, planRef, batchRef [32]byte) ([]LineResult, error) {
	eventID := t.abi.Events["Distributed"].ID

	var results []LineResult
	for _, log := range logs {
		if log == nil || log.Address != t.address {
			continue
		}
		if len(log.Topics) < 3 || log.Topics[0] != eventID {
			continue
		}
		if log.Topics[1] != common.Hash(planRef) || log.Topics[2] != common.Hash(batchRef) {
			continue
		}

		values, err := t.abi.Unpack("Distributed", log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack Distributed event: %w", err)
		}

		lineIndex := values[0].(*big.Int)
		success := values[1].(bool)
		results = append(results, LineResult{
			LineIndex: int(lineIndex.Int64()),
			Success:   success,
		})
	}
	return results, nil
}
