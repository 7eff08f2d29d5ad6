package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidHex(t *testing.T) {
	assert.True(t, IsValidHex("0x"))
	assert.True(t, IsValidHex("0x00"))
	assert.True(t, IsValidHex("0xDEADbeef"))

	assert.False(t, IsValidHex(""))
	assert.False(t, IsValidHex("deadbeef"))
	assert.False(t, IsValidHex("0x0"), "odd length")
	assert.False(t, IsValidHex("0xzz"))
}

func TestHashKey(t *testing.T) {
	a := HashKey([]byte("payload"))
	b := HashKey([]byte("payload"))
	c := HashKey([]byte("other"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
