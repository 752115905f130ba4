package models

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/holiman/uint256"
)

// Uint256 封装 uint256.Int 以支持 sql.Scanner 和 driver.Valuer.
// 专为 EVM 链金额计算设计，避免精度丢失.
type Uint256 struct {
	*uint256.Int
}

func NewUint256(n uint64) Uint256 {
	return Uint256{uint256.NewInt(n)}
}

func NewUint256FromString(s string) (Uint256, bool) {
	u, err := uint256.FromDecimal(s)
	if err != nil {
		return Uint256{}, false
	}
	return Uint256{u}, true
}

// Value 实现 driver.Valuer (写入数据库).
func (u Uint256) Value() (driver.Value, error) {
	if u.Int == nil {
		return "0", nil
	}
	return u.Int.Dec(), nil
}

// Scan 实现 sql.Scanner (读取数据库).
func (u *Uint256) Scan(value interface{}) error {
	if value == nil {
		u.Int = uint256.NewInt(0)
		return nil
	}

	var s string
	switch v := value.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("unsupported type for Uint256: %T", v)
	}

	// 处理科学计数法（PostgreSQL NUMERIC 可能返回）
	if strings.ContainsAny(s, "eE") {
		// 用 big.Float 解析科学计数法，再转 big.Int，最后转 uint256
		f, _, err := big.ParseFloat(s, 10, 0, big.ToNearestEven)
		if err != nil {
			return fmt.Errorf("failed to parse numeric %q: %w", s, err)
		}
		bi, acc := f.Int(nil)
		if acc != big.Exact {
			return fmt.Errorf("numeric %q is not an integer", s)
		}
		var overflow bool
		u.Int, overflow = uint256.FromBig(bi)
		if overflow {
			return fmt.Errorf("value %s overflows uint256", s)
		}
		return nil
	}

	// 普通十进制解析
	var err error
	u.Int, err = uint256.FromDecimal(s)
	if err != nil {
		return fmt.Errorf("failed to convert %s to Uint256: %w", s, err)
	}
	return nil
}

// String 返回十进制字符串表示.
func (u Uint256) String() string {
	if u.Int == nil {
		return "0"
	}
	return u.Int.Dec()
}

// Uint256FromInt wraps v; nil becomes zero.
func Uint256FromInt(v *uint256.Int) Uint256 {
	if v == nil {
		return NewUint256(0)
	}
	return Uint256{v}
}

// JournalTx 对应 tx_journal 表
type JournalTx struct {
	Hash        string         `db:"tx_hash"`
	Endpoint    string         `db:"endpoint"`
	Nonce       int64          `db:"nonce"`
	To          string         `db:"to_address"`
	Value       Uint256        `db:"value"`
	SubmittedAt time.Time      `db:"submitted_at"`
	Status      sql.NullString `db:"status"`
	BlockNumber sql.NullInt64  `db:"block_number"`
	GasUsed     sql.NullInt64  `db:"gas_used"`
	ConfirmedAt sql.NullTime   `db:"confirmed_at"`
}

// Succeeded reports whether a receipt with status 0x1 has been recorded.
func (t *JournalTx) Succeeded() bool {
	return t.Status.Valid && t.Status.String == "0x1"
}
