package form

import (
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/models"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/vat"
)

// Totals are exact decimals; only VATAmount is rounded to cents, before it is
// added into Total. Formatted rounds the rest for display.
type Totals struct {
	Subtotal  decimal.Decimal
	Shipping  decimal.Decimal
	VATRate   vat.Rate
	VATAmount decimal.Decimal
	Total     decimal.Decimal
}

// NoCountryRate applies while no buyer country is selected.
var NoCountryRate = vat.Rate{Value: decimal.Zero, Source: vat.Found}

// PreviewTotals charges no VAT until a country is chosen; unknown countries
// get the table's fallback rate.
func PreviewTotals(req models.InvoiceRequest, rates *vat.Table) Totals {
	if rates == nil {
		rates = vat.Default()
	}
	subtotal := lo.Reduce(req.Items, func(acc decimal.Decimal, item models.LineItem, _ int) decimal.Decimal {
		return acc.Add(item.Amount())
	}, decimal.Zero)
	shipping := req.ShippingTotal
	rate := NoCountryRate
	if strings.TrimSpace(req.BuyerCountry) != "" {
		rate = rates.Lookup(req.BuyerCountry, vat.ParseRateType(req.VATRateType))
	}
	vatAmount := subtotal.Add(shipping).Mul(rate.Value).Round(2)
	return Totals{
		Subtotal:  subtotal,
		Shipping:  shipping,
		VATRate:   rate,
		VATAmount: vatAmount,
		Total:     subtotal.Add(shipping).Add(vatAmount),
	}
}

type FormattedTotals struct {
	Subtotal string `json:"subtotal"`
	Shipping string `json:"shipping"`
	VAT      string `json:"vat"`
	Total    string `json:"total"`
}

func (t Totals) Formatted() FormattedTotals {
	return FormattedTotals{
		Subtotal: t.Subtotal.StringFixed(2),
		Shipping: t.Shipping.StringFixed(2),
		VAT:      t.VATAmount.StringFixed(2),
		Total:    t.Total.StringFixed(2),
	}
}

var termDays = []struct {
	marker string
	days   int
}{
	{"Immediate", 0},
	{"7", 7},
	{"14", 14},
	{"30", 30},
	{"60", 60},
	{"90", 90},
}

// DueDate derives the payment due date from free-form terms such as "Net 14".
// Terms that name no known period get 30 days.
func DueDate(issued time.Time, terms string) time.Time {
	for _, t := range termDays {
		if strings.Contains(terms, t.marker) {
			return issued.AddDate(0, 0, t.days)
		}
	}
	return issued.AddDate(0, 0, 30)
}
