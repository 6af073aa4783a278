package amount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	assert.Equal(t, "123", Clean(" 123 "))
	assert.Equal(t, "", Clean("12.5"))
	assert.Equal(t, "", Clean("-5"))
	assert.Equal(t, "", Clean("100uzig"))
	assert.Equal(t, "", Clean(""))
}

func TestPrice(t *testing.T) {
	// 2 base (exp 6) against 5 quote (exp 6)
	p, ok := Price("2000000", 6, "5000000", 6)
	require.True(t, ok)
	assert.True(t, p.Equal(decimal.RequireFromString("2.5")), p.String())

	// mixed exponents
	p, ok = Price("1000000000000000000", 18, "3000000", 6)
	require.True(t, ok)
	assert.True(t, p.Equal(decimal.NewFromInt(3)), p.String())

	_, ok = Price("0", 6, "10", 6)
	assert.False(t, ok)
	_, ok = Price("10", 6, "bad", 6)
	assert.False(t, ok)
}

func TestFormatAndToRaw(t *testing.T) {
	assert.Equal(t, "1.500000", Format("1500000", 6))
	assert.Equal(t, "0", Format("x", 6))
	assert.True(t, ToRaw(decimal.RequireFromString("1.2345678"), 6).Equal(decimal.NewFromInt(1234567)))
}
