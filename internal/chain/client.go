package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/blues/rds/internal/config"
	"github.com/blues/rds/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/semaphore"
)

// Client RPC客户端封装：并发调用限流 + 单次调用超时 + 终局性窗口
type Client struct {
	client        *ethclient.Client
	sem           *semaphore.Weighted
	timeout       time.Duration
	confirmations int64
	chainId       int64
}

// NewClient 创建链客户端
func NewClient(cfg config.ChainConfig, confirmations int) (*Client, error) {
	rpcUrl := cfg.RpcUrl
	if rpcUrl == "" {
		return nil, fmt.Errorf("no RPC URL configured")
	}

	// 验证链类型
	supported := map[string]bool{"ethereum": true, "polygon": true, "bsc": true, "arbitrum": true, "optimism": true}
	if !supported[cfg.ChainType] {
		return nil, fmt.Errorf("unsupported chain type %s", cfg.ChainType)
	}

	logger.Info("Creating %s client connection (RPC: %s)", cfg.ChainType, rpcUrl)
	client, err := ethclient.Dial(rpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.ChainType, err)
	}

	maxCalls := cfg.MaxConcurrentCalls
	if maxCalls <= 0 {
		maxCalls = 8
	}
	timeout := time.Duration(cfg.RpcTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		client:        client,
		sem:           semaphore.NewWeighted(maxCalls),
		timeout:       timeout,
		confirmations: int64(confirmations),
		chainId:       cfg.ChainId,
	}

	// 测试连接
	if _, err := c.LatestBlock(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("client connection test failed (%s): %w", cfg.ChainType, err)
	}

	logger.Info("Successfully created %s client", cfg.ChainType)
	return c, nil
}

// withLimit 在限流与超时下执行单次RPC调用
func (c *Client) withLimit(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return fn(callCtx)
}

// ChainId 获取链ID
func (c *Client) ChainId() int64 {
	return c.chainId
}

// LatestBlock 获取最新区块号
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	var num uint64
	err := c.withLimit(ctx, func(ctx context.Context) error {
		n, err := c.client.BlockNumber(ctx)
		num = n
		return err
	})
	return num, err
}

// FinalizedBlock 获取已终局的区块号（最新区块减确认数）
func (c *Client) FinalizedBlock(ctx context.Context) (uint64, error) {
	latest, err := c.LatestBlock(ctx)
	if err != nil {
		return 0, err
	}
	if latest < uint64(c.confirmations) {
		return 0, nil
	}
	return latest - uint64(c.confirmations), nil
}

// HeaderByNumber 获取指定区块头
func (c *Client) HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	var header *types.Header
	err := c.withLimit(ctx, func(ctx context.Context) error {
		h, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		header = h
		return err
	})
	return header, err
}

// FilterLogs 获取指定区块范围内的日志
func (c *Client) FilterLogs(ctx context.Context, addresses []common.Address, fromBlock, toBlock uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}

	var logs []types.Log
	err := c.withLimit(ctx, func(ctx context.Context) error {
		l, err := c.client.FilterLogs(ctx, query)
		logs = l
		return err
	})
	return logs, err
}

// CallContract 只读合约调用
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte, blockNum *big.Int) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}

	var out []byte
	err := c.withLimit(ctx, func(ctx context.Context) error {
		o, err := c.client.CallContract(ctx, msg, blockNum)
		out = o
		return err
	})
	return out, err
}

// NonceAt 获取账户已确认nonce
func (c *Client) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.withLimit(ctx, func(ctx context.Context) error {
		n, err := c.client.NonceAt(ctx, account, nil)
		nonce = n
		return err
	})
	return nonce, err
}

// SuggestGasPrice 获取建议gas价格
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.withLimit(ctx, func(ctx context.Context) error {
		p, err := c.client.SuggestGasPrice(ctx)
		price = p
		return err
	})
	return price, err
}

// SendTransaction 广播已签名交易
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.withLimit(ctx, func(ctx context.Context) error {
		return c.client.SendTransaction(ctx, tx)
	})
}

// TransactionByHash 按哈希查询交易
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	var tx *types.Transaction
	var pending bool
	err := c.withLimit(ctx, func(ctx context.Context) error {
		t, p, err := c.client.TransactionByHash(ctx, hash)
		tx, pending = t, p
		return err
	})
	return tx, pending, err
}

// TransactionReceipt 按哈希查询交易回执
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.withLimit(ctx, func(ctx context.Context) error {
		r, err := c.client.TransactionReceipt(ctx, hash)
		receipt = r
		return err
	})
	return receipt, err
}

// Close 关闭客户端
func (c *Client) Close() {
	c.client.Close()
	logger.Info("Chain client closed")
}
