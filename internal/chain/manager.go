package chain

import (
	"fmt"
	"sync"

	"github.com/blues/rds/internal/config"
	"github.com/blues/rds/internal/logger"
)

// Manager 链管理器：客户端、金库合约、签名器与按地址缓存的代币合约
type Manager struct {
	mu       sync.RWMutex
	client   *Client
	treasury *Treasury
	signer   *Signer
	tokens   map[string]*RoyaltyToken // 地址 -> 代币合约
	config   config.ChainConfig
}

// NewManager 创建链管理器
func NewManager(cfg config.ChainConfig, confirmations int) (*Manager, error) {
	logger.Info("Initializing chain manager (type: %s, id: %d)", cfg.ChainType, cfg.ChainId)

	client, err := NewClient(cfg, confirmations)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}

	treasury, err := NewTreasury(cfg.TreasuryAddress)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize treasury contract: %w", err)
	}

	var signer *Signer
	if cfg.PrivateKey != "" {
		signer, err = NewSigner(cfg.PrivateKey, cfg.ChainId)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to initialize signer: %w", err)
		}
		logger.Info("Settlement signer address: %s", signer.Address().Hex())
	}

	return &Manager{
		client:   client,
		treasury: treasury,
		signer:   signer,
		tokens:   make(map[string]*RoyaltyToken),
		config:   cfg,
	}, nil
}

// GetClient 获取客户端
func (m *Manager) GetClient() *Client {
	return m.client
}

// GetTreasury 获取金库合约
func (m *Manager) GetTreasury() *Treasury {
	return m.treasury
}

// GetSigner 获取签名器，未配置私钥时返回错误
func (m *Manager) GetSigner() (*Signer, error) {
	if m.signer == nil {
		return nil, fmt.Errorf("no settlement signer configured")
	}
	return m.signer, nil
}

// GetToken 按地址获取版税代币合约，首次访问时绑定并缓存
func (m *Manager) GetToken(address string) (*RoyaltyToken, error) {
	m.mu.RLock()
	token, exists := m.tokens[address]
	m.mu.RUnlock()
	if exists {
		return token, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if token, exists = m.tokens[address]; exists {
		return token, nil
	}

	token, err := NewRoyaltyToken(m.client, address)
	if err != nil {
		return nil, fmt.Errorf("failed to bind token contract %s: %w", address, err)
	}
	m.tokens[address] = token
	return token, nil
}

// GetChainId 获取链ID
func (m *Manager) GetChainId() int64 {
	return m.config.ChainId
}

// Close 关闭管理器
func (m *Manager) Close() error {
	m.client.Close()
	logger.Info("Chain manager closed")
	return nil
}
