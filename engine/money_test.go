package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsplit/settlement-engine/engine"
)

func TestParseMoney_ValidDecimal(t *testing.T) {
	m, err := engine.ParseMoney("12.50", "USD")
	require.NoError(t, err)
	assert.Equal(t, "12.5", m.String())
	assert.Equal(t, "USD", m.Currency)
}

func TestParseMoney_NotADecimal(t *testing.T) {
	_, err := engine.ParseMoney("twelve", "USD")
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestMoney_SubMinorUnitPrecision_Rejected(t *testing.T) {
	// Sub-cent amounts can't be represented in USD, so entry creation
	// refuses them outright.
	_, err := engine.NewEntry("exp-1", "", "alice", "bob", engine.MustMoney("10.005", "USD"))
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestMoney_ZeroDecimalCurrency(t *testing.T) {
	// JPY has no minor unit: whole yen only.
	_, err := engine.NewEntry("exp-1", "", "alice", "bob", engine.MustMoney("100", "JPY"))
	assert.NoError(t, err)

	_, err = engine.NewEntry("exp-2", "", "alice", "bob", engine.MustMoney("100.5", "JPY"))
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestMoney_QuantizedTrailingZeros_Accepted(t *testing.T) {
	// "12.500" is exactly 12.50 - representation must not matter.
	_, err := engine.NewEntry("exp-1", "", "alice", "bob", engine.MustMoney("12.500", "USD"))
	assert.NoError(t, err)
}

func TestMinorUnit(t *testing.T) {
	assert.Equal(t, "0.01", engine.MinorUnit("USD").String())
	assert.Equal(t, "1", engine.MinorUnit("JPY").String())
}

func TestMoney_WithinEpsilon(t *testing.T) {
	assert.True(t, engine.Zero("USD").WithinEpsilon())
	assert.True(t, engine.MustMoney("0.005", "USD").WithinEpsilon())
	assert.False(t, engine.MustMoney("0.01", "USD").WithinEpsilon())
}
