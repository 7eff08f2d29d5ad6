package model

import (
	"database/sql/driver"
	"fmt"
	"math/big"
)

// BigInt carries token amounts and salts through the system as arbitrary
// precision integers. It marshals as a decimal string in JSON and maps to a
// NUMERIC column in Postgres: on-chain values are uint256 and overflow int64.
type BigInt struct {
	big.Int
}

func NewBigInt(v int64) *BigInt {
	b := &BigInt{}
	b.SetInt64(v)
	return b
}

// ParseBigInt parses a base-10 string into a BigInt.
func ParseBigInt(s string) (*BigInt, error) {
	b := &BigInt{}
	if _, ok := b.SetString(s, 10); !ok {
		return nil, fmt.Errorf("invalid decimal amount: %q", s)
	}
	return b, nil
}

func (b *BigInt) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	return []byte(`"` + b.String() + `"`), nil
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if _, ok := b.SetString(s, 10); !ok {
		return fmt.Errorf("invalid decimal amount: %q", s)
	}
	return nil
}

// Value implements driver.Valuer, storing the amount as its decimal string.
func (b *BigInt) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	return b.String(), nil
}

// Scan implements sql.Scanner for NUMERIC and TEXT columns.
func (b *BigInt) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case int64:
		b.SetInt64(v)
		return nil
	case []byte:
		if _, ok := b.SetString(string(v), 10); !ok {
			return fmt.Errorf("cannot scan %q into BigInt", v)
		}
		return nil
	case string:
		if _, ok := b.SetString(v, 10); !ok {
			return fmt.Errorf("cannot scan %q into BigInt", v)
		}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into BigInt", src)
	}
}

// Cmp compares against another BigInt, treating nil as zero.
func (b *BigInt) Cmp(other *BigInt) int {
	var x, y big.Int
	if b != nil {
		x.Set(&b.Int)
	}
	if other != nil {
		y.Set(&other.Int)
	}
	return x.Cmp(&y)
}

// Sign reports the sign of the amount, treating nil as zero.
func (b *BigInt) Sign() int {
	if b == nil {
		return 0
	}
	return b.Int.Sign()
}
