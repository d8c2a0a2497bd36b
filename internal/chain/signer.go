package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer 结算交易签名器。私钥全局唯一使用，
// 独占性由数据库中的 settlement_signer_lease 行保证。
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainId    *big.Int
}

// NewSigner 从hex私钥创建签名器
func NewSigner(privateKeyHex string, chainId int64) (*Signer, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chainId:    big.NewInt(chainId),
	}, nil
}

// Address 签名账户地址
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx 签名交易
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainId), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}
