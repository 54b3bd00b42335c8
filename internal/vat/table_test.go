package vat

import (
	"testing"

	"github.com/IBM/fp-go/v2/option"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultTableRatesInRange(t *testing.T) {
	table := Default()
	countries := table.Countries()
	require.Len(t, countries, 30)

	one := decimal.NewFromInt(1)
	for _, c := range countries {
		for _, rt := range []RateType{Standard, Reduced} {
			r := table.Lookup(c.Code, rt)
			assert.Equal(t, Found, r.Source, c.Code)
			assert.False(t, r.Value.IsNegative(), "%s %s", c.Code, rt)
			assert.True(t, r.Value.LessThanOrEqual(one), "%s %s", c.Code, rt)
		}
	}
	assert.Equal(t, "AT", countries[0].Code)
}

func TestLookup(t *testing.T) {
	table := Default()

	t.Run("Denmark has a single tier", func(t *testing.T) {
		assert.True(t, table.Rate("DK", Standard).Equal(decimal.RequireFromString("0.25")))
		assert.True(t, table.Rate("DK", Reduced).Equal(decimal.RequireFromString("0.25")))
		assert.False(t, table.HasDistinctReducedRate("DK"))
	})

	t.Run("Germany reduced differs", func(t *testing.T) {
		assert.True(t, table.Rate("DE", Reduced).Equal(decimal.RequireFromString("0.07")))
		assert.True(t, table.HasDistinctReducedRate("DE"))
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.True(t, table.Rate(" de ", Standard).Equal(decimal.RequireFromString("0.19")))
		assert.True(t, table.Rate("fr", "REDUCED").Equal(decimal.RequireFromString("0.055")))
	})

	t.Run("unknown rate type means standard", func(t *testing.T) {
		assert.True(t, table.Rate("FR", "").Equal(decimal.RequireFromString("0.20")))
		assert.True(t, table.Rate("FR", "super-reduced").Equal(decimal.RequireFromString("0.20")))
	})

	t.Run("unknown country falls back", func(t *testing.T) {
		r := table.Lookup("XX", Standard)
		assert.True(t, r.IsFallback())
		assert.True(t, r.Value.Equal(FallbackRate))
		assert.Contains(t, r.Reason, "XX")
		assert.False(t, table.HasDistinctReducedRate("XX"))
	})
}

func TestLookupMissIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	table := Default().WithLogger(zap.New(core).Sugar())

	table.Rate("ZZ", Reduced)
	table.Rate("AT", Reduced)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "ZZ", logs.All()[0].ContextMap()["country"])
}

func TestPercentage(t *testing.T) {
	table := Default()
	cases := []struct {
		code string
		rt   RateType
		want int64
	}{
		{"FR", Standard, 20},
		{"FI", Standard, 26},
		{"IE", Reduced, 5},
		{"CH", Standard, 8},
		{"CH", Reduced, 3},
		{"XX", Standard, 19},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, table.Percentage(tc.code, tc.rt), "%s %s", tc.code, tc.rt)
	}
}

func TestCountryName(t *testing.T) {
	table := Default()
	assert.Equal(t, "Czech Republic", table.CountryName("cz"))
	assert.Equal(t, "xx", table.CountryName("xx"))
	assert.True(t, option.IsNone(table.Country("")))
	assert.Equal(t, "Germany: 7% VAT", table.Describe("DE", Reduced))
}

func TestNewTableRejectsInvalidEntries(t *testing.T) {
	_, err := NewTable([]Country{country("DE", "Germany", "1.19", "0.07")})
	assert.Error(t, err)

	_, err = NewTable([]Country{country("DEU", "Germany", "0.19", "0.07")})
	assert.Error(t, err)

	_, err = NewTable([]Country{
		country("de", "Germany", "0.19", "0.07"),
		country("DE", "Germany", "0.19", "0.07"),
	})
	assert.Error(t, err)
}
