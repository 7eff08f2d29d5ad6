package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validPermission() SpendPermission {
	return SpendPermission{
		Account:   "0x1111111111111111111111111111111111111111",
		Spender:   "0x2222222222222222222222222222222222222222",
		Token:     "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Allowance: NewBigInt(100000),
		Period:    86400,
		Start:     1700000000,
		End:       1800000000,
		Salt:      NewBigInt(1),
		ExtraData: "0x",
	}
}

func TestSpendPermissionValidate(t *testing.T) {
	assert.NoError(t, validPermission().Validate())

	p := validPermission()
	p.Account = "1111111111111111111111111111111111111111"
	assert.Error(t, p.Validate(), "missing 0x prefix")

	p = validPermission()
	p.Spender = "0x123"
	assert.Error(t, p.Validate(), "short address")

	p = validPermission()
	p.Token = "0xZZ11111111111111111111111111111111111111"
	assert.Error(t, p.Validate(), "non-hex address")

	p = validPermission()
	p.Allowance = NewBigInt(0)
	assert.Error(t, p.Validate(), "zero allowance")

	p = validPermission()
	p.Allowance = nil
	assert.Error(t, p.Validate(), "nil allowance")

	p = validPermission()
	p.Period = 0
	assert.Error(t, p.Validate(), "zero period")

	p = validPermission()
	p.Start = p.End + 1
	assert.Error(t, p.Validate(), "start after end")

	p = validPermission()
	p.Start = p.End
	assert.NoError(t, p.Validate(), "point window is allowed")
}

func TestSameParties(t *testing.T) {
	p := validPermission()

	assert.True(t, p.SameParties(p.Account, p.Spender))
	assert.True(t, p.SameParties(
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222",
	))
	// Checksum casing differences still match.
	assert.True(t, p.SameParties(
		"0x1111111111111111111111111111111111111111",
		"0X2222222222222222222222222222222222222222",
	))
	assert.False(t, p.SameParties(p.Spender, p.Account))
}

func TestSubscriptionPermissionRoundTrip(t *testing.T) {
	p := validPermission()
	sub := Subscription{
		ID:        "sub-1",
		Account:   p.Account,
		Spender:   p.Spender,
		Token:     p.Token,
		Allowance: p.Allowance,
		Period:    p.Period,
		Start:     time.Unix(p.Start, 0).UTC(),
		End:       time.Unix(p.End, 0).UTC(),
		Salt:      p.Salt,
		ExtraData: p.ExtraData,
	}

	got := sub.Permission()
	assert.Equal(t, p.Account, got.Account)
	assert.Equal(t, p.Spender, got.Spender)
	assert.Equal(t, p.Start, got.Start)
	assert.Equal(t, p.End, got.End)
	assert.Equal(t, 0, got.Allowance.Cmp(p.Allowance))
}
