package oracle

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// ReportPayload 报告签名所覆盖的字段
type ReportPayload struct {
	OracleKey   string
	WorkKey     string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Amount      *big.Int
	Currency    string
	Source      string
	ReportHash  string
}

// CanonicalHash 报告的规范化哈希：
// keccak256(oracleKey‖workKey‖start‖end‖amount‖currency‖source‖reportHash)，
// 字段以 "|" 连接，时间取UTC秒级Unix时间戳的十进制表示。
func CanonicalHash(p ReportPayload) []byte {
	parts := []string{
		p.OracleKey,
		p.WorkKey,
		fmt.Sprintf("%d", p.PeriodStart.UTC().Unix()),
		fmt.Sprintf("%d", p.PeriodEnd.UTC().Unix()),
		p.Amount.String(),
		p.Currency,
		p.Source,
		p.ReportHash,
	}
	return crypto.Keccak256([]byte(strings.Join(parts, "|")))
}

// Sign 对报告负载签名，返回hex编码的65字节签名。测试与预言机客户端使用。
func Sign(privateKeyHex string, p ReportPayload) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	sig, err := crypto.Sign(CanonicalHash(p), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign report: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// Verify 校验报告签名。公钥为33字节压缩secp256k1公钥的hex编码，
// 签名接受64字节(r‖s)或65字节(r‖s‖v)。
func Verify(publicKeyHex string, p ReportPayload, signatureHex string) error {
	pubKey, err := hex.DecodeString(strings.TrimPrefix(publicKeyHex, "0x"))
	if err != nil {
		return fmt.Errorf("invalid public key encoding: %w", err)
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) == 65 {
		sig = sig[:64] // 丢弃恢复位
	}
	if len(sig) != 64 {
		return fmt.Errorf("invalid signature length: %d", len(sig))
	}

	if !crypto.VerifySignature(pubKey, CanonicalHash(p), sig) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

// CompressedPublicKey 从hex私钥导出压缩公钥的hex编码。注册预言机时使用。
func CompressedPublicKey(privateKeyHex string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}
	return hex.EncodeToString(crypto.CompressPubkey(&key.PublicKey)), nil
}
