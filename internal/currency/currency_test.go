package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUnit(t *testing.T) {
	cases := []struct {
		unit string
		code Code
		mult int
	}{
		{"USD", USD, 1},
		{"JPY(100)", JPY, 100},
		{"IDR (100)", IDR, 100},
		{" eur ", EUR, 1},
	}
	for _, tc := range cases {
		code, mult, err := NormalizeUnit(tc.unit)
		require.NoError(t, err, tc.unit)
		assert.Equal(t, tc.code, code, tc.unit)
		assert.Equal(t, tc.mult, mult, tc.unit)
	}
}

func TestNormalizeUnitRejectsUnknown(t *testing.T) {
	for _, unit := range []string{"", "KRW", "US", "JPY(abc)", "JPY(0)"} {
		_, _, err := NormalizeUnit(unit)
		assert.Error(t, err, unit)
	}
}

func TestParse(t *testing.T) {
	c, err := Parse("usd")
	require.NoError(t, err)
	assert.Equal(t, USD, c)

	_, err = Parse("XXX")
	assert.Error(t, err)
	assert.Len(t, All(), len(known))
}
