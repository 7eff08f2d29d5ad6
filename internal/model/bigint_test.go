package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBigInt(t *testing.T) {
	b, err := ParseBigInt("340282366920938463463374607431768211455")
	require.NoError(t, err)
	assert.Equal(t, "340282366920938463463374607431768211455", b.String())

	_, err = ParseBigInt("1.5")
	assert.Error(t, err)

	_, err = ParseBigInt("")
	assert.Error(t, err)

	_, err = ParseBigInt("0x10")
	assert.Error(t, err)
}

func TestBigIntJSONRoundTrip(t *testing.T) {
	type payload struct {
		Amount *BigInt `json:"amount"`
	}

	b, err := ParseBigInt("50000")
	require.NoError(t, err)

	data, err := json.Marshal(payload{Amount: b})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"50000"}`, string(data))

	var decoded payload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 0, decoded.Amount.Cmp(b))
}

func TestBigIntUnmarshalRejectsFloats(t *testing.T) {
	var b BigInt
	assert.Error(t, json.Unmarshal([]byte(`"1.5"`), &b))
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &b))
}

func TestBigIntUnmarshalAcceptsBareNumber(t *testing.T) {
	var b BigInt
	require.NoError(t, json.Unmarshal([]byte(`50000`), &b))
	assert.Equal(t, "50000", b.String())
}

func TestBigIntSQL(t *testing.T) {
	b, err := ParseBigInt("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)

	v, err := b.Value()
	require.NoError(t, err)
	assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", v)

	var scanned BigInt
	require.NoError(t, scanned.Scan([]byte("50000")))
	assert.Equal(t, "50000", scanned.String())

	require.NoError(t, scanned.Scan(int64(7)))
	assert.Equal(t, "7", scanned.String())

	assert.Error(t, scanned.Scan(3.14))
}

func TestBigIntNilSafety(t *testing.T) {
	var b *BigInt
	assert.Equal(t, 0, b.Sign())
	assert.Equal(t, 0, b.Cmp(nil))
	assert.Equal(t, -1, b.Cmp(NewBigInt(1)))

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	v, err := b.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
