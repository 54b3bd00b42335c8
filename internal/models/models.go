package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// The invoice API expects amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type UnitCode string

const (
	UnitPieces    UnitCode = "C62"
	UnitHours     UnitCode = "HUR"
	UnitDays      UnitCode = "DAY"
	UnitMonths    UnitCode = "MON"
	UnitKilograms UnitCode = "KGM"
	UnitLiters    UnitCode = "LTR"
	UnitMeters    UnitCode = "MTR"
)

var unitLabels = map[UnitCode]string{
	UnitPieces:    "units",
	UnitHours:     "hours",
	UnitDays:      "days",
	UnitMonths:    "months",
	UnitKilograms: "kilograms",
	UnitLiters:    "liters",
	UnitMeters:    "meters",
}

func (u UnitCode) Label() string {
	if l, ok := unitLabels[u]; ok {
		return l
	}
	return string(u)
}

// ParseUnitCode accepts either the coded value ("HUR") or its label ("hours").
func ParseUnitCode(s string) (UnitCode, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnitPieces, nil
	}
	for code, label := range unitLabels {
		if strings.EqualFold(s, string(code)) || strings.EqualFold(s, label) {
			return code, nil
		}
	}
	return "", fmt.Errorf("unknown unit %q", s)
}

type LineItem struct {
	ProductName string          `json:"product_name" validate:"required"`
	SKU         string          `json:"sku"`
	Quantity    int             `json:"quantity"     validate:"gte=1"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	UnitCode    UnitCode        `json:"unit_code"    validate:"required,oneof=C62 HUR DAY MON KGM LTR MTR"`
}

func (i LineItem) Amount() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type InvoiceRequest struct {
	BuyerName        string          `json:"buyer_name"        validate:"required"`
	BuyerStreet      string          `json:"buyer_street"      validate:"required"`
	BuyerCity        string          `json:"buyer_city"        validate:"required"`
	BuyerPostal      string          `json:"buyer_postal"      validate:"required"`
	BuyerCountry     string          `json:"buyer_country"     validate:"required,len=2,alpha"`
	BuyerVATID       string          `json:"buyer_vat_id"`
	VATRateType      string          `json:"vat_rate_type"     validate:"oneof=standard reduced"`
	VATRate          decimal.Decimal `json:"vat_rate"`
	ShippingTotal    decimal.Decimal `json:"shipping_total"`
	Currency         string          `json:"currency"`
	ShippingService  string          `json:"shipping_service"`
	PaymentTerms     string          `json:"payment_terms"`
	PaymentMeans     string          `json:"payment_means"`
	PaymentReference string          `json:"payment_reference"`
	Items            []LineItem      `json:"items"             validate:"dive"`
}

type InvoiceResult struct {
	Success     bool   `json:"success"`
	InvoiceID   string `json:"invoice_id,omitempty"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// CompanySettings is passed through to the settings endpoint as-is.
type CompanySettings map[string]string

// RequiredSettings are the keys the invoice service refuses to save without.
var RequiredSettings = []string{"name", "address_line", "uid", "court", "bank", "iban"}

func (s CompanySettings) Missing() []string {
	var missing []string
	for _, k := range RequiredSettings {
		if strings.TrimSpace(s[k]) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

type SettingsResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
