package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/form"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/models"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/submit"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/vat"
)

func TestVATLine(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{})
	rates := vat.Default()

	assert.Contains(t, p.VATLine(rates, "", vat.Standard), SelectCountryPrompt)
	assert.Contains(t, p.VATLine(rates, "de", vat.Standard), "Germany: 19% VAT")
	assert.Contains(t, p.VATLine(rates, "DE", vat.Reduced), "Germany: 7% VAT")
	line := p.VATLine(rates, "XX", vat.Standard)
	assert.Contains(t, line, "XX: 19% VAT")
	assert.Contains(t, line, "default rate")
}

func TestTotals(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{})
	req := models.InvoiceRequest{
		BuyerCountry:  "DE",
		ShippingTotal: decimal.NewFromInt(5),
		Items:         []models.LineItem{{Quantity: 2, UnitPrice: decimal.NewFromInt(10)}},
	}
	out := p.Totals(form.PreviewTotals(req, vat.Default()), "€")
	assert.Contains(t, out, "20.00 €")
	assert.Contains(t, out, "VAT 19%")
	assert.Contains(t, out, "4.75 €")
	assert.Contains(t, out, "29.75 €")

	req.BuyerCountry = "ZZ"
	out = p.Totals(form.PreviewTotals(req, vat.Default()), "€")
	assert.Contains(t, out, "ZZ")
}

func TestItems(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{})
	out := p.Items([]models.LineItem{{
		ProductName: "Consulting",
		SKU:         "SKU-1",
		Quantity:    3,
		UnitCode:    models.UnitHours,
		UnitPrice:   decimal.RequireFromString("80"),
	}}, "€")
	assert.Contains(t, out, "Consulting")
	assert.Contains(t, out, "hours")
	assert.Contains(t, out, "240.00 €")
}

func TestRateTable(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{})
	out := p.RateTable(vat.Default())
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, len(vat.Default().Countries())+1)
	assert.Contains(t, out, "Denmark")
	assert.Contains(t, out, "25.5%")
}

func TestNotice(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Notice(submit.Notice{Kind: submit.NoticeError, Message: "Failed"})
	p.Notice(submit.Notice{Kind: submit.NoticeSuccess, Message: submit.SuccessMessage})
	assert.Contains(t, buf.String(), "Failed\n")
	assert.Contains(t, buf.String(), submit.SuccessMessage)
}
