package model

import (
	"database/sql/driver"
	"fmt"
	"math/big"
)

// Amount 以最小货币单位表示的整数金额，数据库中存为十进制字符串。
// 金额上限为128位无符号整数，超出视为非法输入。
type Amount struct {
	value big.Int
}

// NewAmount 从 big.Int 创建金额
func NewAmount(v *big.Int) Amount {
	var a Amount
	if v != nil {
		a.value.Set(v)
	}
	return a
}

// NewAmountFromInt64 从 int64 创建金额
func NewAmountFromInt64(v int64) Amount {
	var a Amount
	a.value.SetInt64(v)
	return a
}

// ParseAmount 解析十进制字符串金额
func ParseAmount(s string) (Amount, error) {
	var a Amount
	if s == "" {
		return a, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return a, fmt.Errorf("invalid amount: %q", s)
	}
	a.value.Set(v)
	return a, nil
}

// BigInt 返回金额的副本
func (a Amount) BigInt() *big.Int {
	return new(big.Int).Set(&a.value)
}

// String 十进制字符串表示
func (a Amount) String() string {
	return a.value.String()
}

// Sign 符号：-1, 0, 1
func (a Amount) Sign() int {
	return a.value.Sign()
}

// Cmp 比较两个金额
func (a Amount) Cmp(b Amount) int {
	return a.value.Cmp(&b.value)
}

// IsValidMinorUnits 金额非负且不超过128位
func (a Amount) IsValidMinorUnits() bool {
	return a.value.Sign() >= 0 && a.value.BitLen() <= 128
}

// Value 实现 driver.Valuer
func (a Amount) Value() (driver.Value, error) {
	return a.value.String(), nil
}

// Scan 实现 sql.Scanner
func (a *Amount) Scan(src interface{}) error {
	if src == nil {
		a.value.SetInt64(0)
		return nil
	}

	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		a.value.SetInt64(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}

	if s == "" {
		a.value.SetInt64(0)
		return nil
	}
	if _, ok := a.value.SetString(s, 10); !ok {
		return fmt.Errorf("cannot scan %q into Amount", s)
	}
	return nil
}

// MarshalJSON 序列化为十进制字符串
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.value.String() + `"`), nil
}

// UnmarshalJSON 支持字符串与数字两种形式
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "null" || s == "" {
		a.value.SetInt64(0)
		return nil
	}
	if _, ok := a.value.SetString(s, 10); !ok {
		return fmt.Errorf("invalid amount: %s", string(data))
	}
	return nil
}

// GormDataType 指定列类型
func (Amount) GormDataType() string {
	return "numeric(40,0)"
}
