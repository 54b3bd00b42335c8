// Package draft stores an invoice form as a YAML or JSON document so it can
// be edited outside the program and submitted later.
package draft

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/ioeither/file"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/form"
)

// Amount is a quantity or price as written in the document. Numbers and
// strings are both accepted; parsing happens when the form is built.
type Amount string

func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", value.Line)
	}
	*a = Amount(value.Value)
	return nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	*a = Amount(data)
	return nil
}

type Buyer struct {
	Name    string `yaml:"name"             json:"name"`
	Street  string `yaml:"street"           json:"street"`
	City    string `yaml:"city"             json:"city"`
	Postal  string `yaml:"postal"           json:"postal"`
	Country string `yaml:"country"          json:"country"`
	VATID   string `yaml:"vat_id,omitempty" json:"vat_id,omitempty"`
}

type Payment struct {
	Currency        string `yaml:"currency,omitempty"          json:"currency,omitempty"`
	ShippingService string `yaml:"shipping_service,omitempty"  json:"shipping_service,omitempty"`
	Terms           string `yaml:"payment_terms,omitempty"     json:"payment_terms,omitempty"`
	Means           string `yaml:"payment_means,omitempty"     json:"payment_means,omitempty"`
	Reference       string `yaml:"payment_reference,omitempty" json:"payment_reference,omitempty"`
}

type Item struct {
	ProductName string `yaml:"product_name"        json:"product_name"`
	SKU         string `yaml:"sku,omitempty"       json:"sku,omitempty"`
	Quantity    Amount `yaml:"quantity"            json:"quantity"`
	UnitCode    string `yaml:"unit_code,omitempty" json:"unit_code,omitempty"`
	UnitPrice   Amount `yaml:"unit_price"          json:"unit_price"`
}

type Draft struct {
	Buyer         Buyer   `yaml:"buyer"                    json:"buyer"`
	VATRateType   string  `yaml:"vat_rate_type,omitempty"  json:"vat_rate_type,omitempty"`
	ShippingTotal Amount  `yaml:"shipping_total,omitempty" json:"shipping_total,omitempty"`
	Payment       Payment `yaml:"payment"                  json:"payment"`
	Items         []Item  `yaml:"items"                    json:"items"`
}

// Load reads a draft; the format follows the file extension and falls back
// to JSON then YAML.
func Load(path string) (Draft, error) {
	data, err := ET.UnwrapError(file.ReadFile(path)())
	if err != nil {
		return Draft{}, fmt.Errorf("read draft: %w", err)
	}

	var d Draft
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = decodeJSON(data, &d)
	case ".yaml", ".yml":
		err = decodeYAML(data, &d)
	default:
		if err = decodeJSON(data, &d); err != nil {
			d = Draft{}
			err = decodeYAML(data, &d)
		}
	}
	if err != nil {
		return Draft{}, fmt.Errorf("parse draft %s: %w", path, err)
	}
	return d, nil
}

func decodeJSON(data []byte, d *Draft) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(d)
}

func decodeYAML(data []byte, d *Draft) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(d)
}

// Save writes the draft as JSON for a .json path and YAML otherwise.
func Save(path string, d Draft) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(d, "", "  ")
	} else {
		data, err = yaml.Marshal(d)
	}
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create draft directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Apply resets f and fills it from the draft. An item list that is empty
// leaves the form's fresh default item in place.
func (d Draft) Apply(f *form.Form) error {
	f.Reset()
	f.SetBuyer(form.Buyer(d.Buyer))
	f.SetPayment(form.Payment(d.Payment))
	f.SetShipping(string(d.ShippingTotal))
	if d.VATRateType != "" {
		f.SetRateType(d.VATRateType)
	}

	for i, item := range d.Items {
		id := f.Items()[0].ID
		if i > 0 {
			id = f.AddItem().ID
		}
		err := f.UpdateItem(id, func(in *form.ItemInput) {
			in.ProductName = item.ProductName
			in.SKU = lo.CoalesceOrEmpty(item.SKU, in.SKU)
			in.Quantity = string(item.Quantity)
			in.UnitCode = lo.CoalesceOrEmpty(item.UnitCode, in.UnitCode)
			in.UnitPrice = string(item.UnitPrice)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// FromForm captures the current state of f.
func FromForm(f *form.Form) Draft {
	return Draft{
		Buyer:         Buyer(f.Buyer()),
		VATRateType:   string(f.RateType()),
		ShippingTotal: Amount(f.Shipping()),
		Payment:       Payment(f.Payment()),
		Items: lo.Map(f.Items(), func(in form.ItemInput, _ int) Item {
			return Item{
				ProductName: in.ProductName,
				SKU:         in.SKU,
				Quantity:    Amount(in.Quantity),
				UnitCode:    in.UnitCode,
				UnitPrice:   Amount(in.UnitPrice),
			}
		}),
	}
}
