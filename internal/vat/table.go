package vat

import (
	"fmt"
	"sort"
	"strings"

	"github.com/IBM/fp-go/v2/function"
	"github.com/IBM/fp-go/v2/option"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type RateType string

const (
	Standard RateType = "standard"
	Reduced  RateType = "reduced"
)

// ParseRateType maps free text to a rate tier. Anything that is not "reduced"
// is treated as the standard tier.
func ParseRateType(s string) RateType {
	if strings.EqualFold(strings.TrimSpace(s), string(Reduced)) {
		return Reduced
	}
	return Standard
}

// FallbackRate applies to country codes missing from the table.
var FallbackRate = decimal.RequireFromString("0.19")

type Country struct {
	Code     string
	Name     string
	Standard decimal.Decimal
	Reduced  decimal.Decimal
}

func (c Country) rate(t RateType) decimal.Decimal {
	if t == Reduced {
		return c.Reduced
	}
	return c.Standard
}

type Source int

const (
	Found Source = iota
	Fallback
)

func (s Source) String() string {
	if s == Fallback {
		return "fallback"
	}
	return "found"
}

// Rate is the outcome of a lookup. Callers that care can tell a rate read
// from the table apart from the default substituted for an unknown country.
type Rate struct {
	Value  decimal.Decimal
	Source Source
	Reason string
}

func (r Rate) IsFallback() bool { return r.Source == Fallback }

type Table struct {
	entries map[string]Country
	logger  *zap.SugaredLogger
}

var defaultTable = mustTable(defaultCountries)

// Default returns the built-in table of EU and neighbouring countries.
func Default() *Table { return defaultTable }

// NewTable builds a table keyed by uppercase country code. Every rate must lie in [0, 1].
func NewTable(countries []Country) (*Table, error) {
	entries := make(map[string]Country, len(countries))
	for _, c := range countries {
		code := normalize(c.Code)
		if len(code) != 2 {
			return nil, fmt.Errorf("country %q: code must have two letters", c.Code)
		}
		if _, dup := entries[code]; dup {
			return nil, fmt.Errorf("country %s: duplicate entry", code)
		}
		for _, r := range []decimal.Decimal{c.Standard, c.Reduced} {
			if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
				return nil, fmt.Errorf("country %s: rate %s outside [0, 1]", code, r)
			}
		}
		c.Code = code
		entries[code] = c
	}
	return &Table{entries: entries, logger: zap.NewNop().Sugar()}, nil
}

func mustTable(countries []Country) *Table {
	t, err := NewTable(countries)
	if err != nil {
		panic(err)
	}
	return t
}

// WithLogger returns a view of the table that reports lookup misses to logger.
// The entries are shared, not copied.
func (t *Table) WithLogger(logger *zap.SugaredLogger) *Table {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Table{entries: t.entries, logger: logger}
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (t *Table) Country(code string) option.Option[Country] {
	c, ok := t.entries[normalize(code)]
	if !ok {
		return option.None[Country]()
	}
	return option.Some(c)
}

// Lookup never fails: unknown codes resolve to FallbackRate with the reason recorded.
func (t *Table) Lookup(code string, rateType RateType) Rate {
	return function.Pipe1(
		t.Country(code),
		option.Fold(
			func() Rate {
				reason := fmt.Sprintf("VAT rate not found for country %q, using %s%%",
					code, FallbackRate.Shift(2).String())
				t.logger.Warnw("VAT rate lookup miss", "country", code, "fallback", FallbackRate.String())
				return Rate{Value: FallbackRate, Source: Fallback, Reason: reason}
			},
			func(c Country) Rate {
				return Rate{Value: c.rate(ParseRateType(string(rateType))), Source: Found}
			},
		),
	)
}

func (t *Table) Rate(code string, rateType RateType) decimal.Decimal {
	return t.Lookup(code, rateType).Value
}

// Percentage is the rate as a whole percent, rounded half up.
func (t *Table) Percentage(code string, rateType RateType) int64 {
	return t.Rate(code, rateType).Shift(2).Round(0).IntPart()
}

// CountryName falls back to the code as given when the country is unknown.
func (t *Table) CountryName(code string) string {
	return option.MonadGetOrElse(
		option.Map(func(c Country) string { return c.Name })(t.Country(code)),
		function.Constant(code),
	)
}

func (t *Table) HasDistinctReducedRate(code string) bool {
	c, ok := t.entries[normalize(code)]
	return ok && !c.Reduced.Equal(c.Standard)
}

// Countries lists the table sorted by country code.
func (t *Table) Countries() []Country {
	codes := lo.Keys(t.entries)
	sort.Strings(codes)
	return lo.Map(codes, func(code string, _ int) Country { return t.entries[code] })
}

// Describe renders the summary line shown next to the country selector.
func (t *Table) Describe(code string, rateType RateType) string {
	return fmt.Sprintf("%s: %d%% VAT", t.CountryName(code), t.Percentage(code, rateType))
}
