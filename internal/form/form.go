package form

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/models"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/vat"
)

type ItemID uint64

// ItemInput is one line-item editor. Quantity and UnitPrice hold the text as
// entered; they are parsed only when the request is built.
type ItemInput struct {
	ID          ItemID
	ProductName string
	SKU         string
	Quantity    string
	UnitCode    string
	UnitPrice   string
}

type Buyer struct {
	Name    string
	Street  string
	City    string
	Postal  string
	Country string
	VATID   string
}

type Payment struct {
	Currency        string
	ShippingService string
	Terms           string
	Means           string
	Reference       string
}

// Defaults seed the payment section and rate tier on creation and on Reset.
type Defaults struct {
	Payment  Payment
	RateType vat.RateType
}

type Option func(*Form)

func WithDefaults(d Defaults) Option {
	return func(f *Form) { f.defaults = d }
}

// Form owns the state of one invoice being edited. Item ids come from a
// counter private to the form, so independent forms never share keys.
type Form struct {
	mu       sync.Mutex
	rates    *vat.Table
	defaults Defaults
	nextID   ItemID
	items    []ItemInput
	buyer    Buyer
	payment  Payment
	rateType vat.RateType
	shipping string
}

// New returns a form holding a single default item.
func New(rates *vat.Table, opts ...Option) *Form {
	if rates == nil {
		rates = vat.Default()
	}
	f := &Form{rates: rates, defaults: Defaults{RateType: vat.Standard}}
	for _, opt := range opts {
		opt(f)
	}
	f.clear()
	f.addItem()
	return f
}

func (f *Form) clear() {
	f.items = nil
	f.buyer = Buyer{}
	f.payment = f.defaults.Payment
	f.rateType = vat.ParseRateType(string(f.defaults.RateType))
	f.shipping = ""
}

func (f *Form) addItem() ItemInput {
	f.nextID++
	item := ItemInput{
		ID:       f.nextID,
		SKU:      fmt.Sprintf("SKU-%d", f.nextID),
		Quantity: "1",
		UnitCode: string(models.UnitPieces),
	}
	f.items = append(f.items, item)
	return item
}

func (f *Form) AddItem() ItemInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addItem()
}

// RemoveItem refuses to drop the last remaining item.
func (f *Form) RemoveItem(id ItemID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, idx, ok := lo.FindIndexOf(f.items, func(it ItemInput) bool { return it.ID == id })
	if !ok {
		return fmt.Errorf("remove item %d: %w", id, ErrUnknownItem)
	}
	if len(f.items) == 1 {
		return ErrLastItem
	}
	f.items = append(f.items[:idx], f.items[idx+1:]...)
	return nil
}

// UpdateItem edits an item in place. The id cannot be changed.
func (f *Form) UpdateItem(id ItemID, edit func(*ItemInput)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			edit(&f.items[i])
			f.items[i].ID = id
			return nil
		}
	}
	return fmt.Errorf("update item %d: %w", id, ErrUnknownItem)
}

// Items returns a copy of the items in display order.
func (f *Form) Items() []ItemInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ItemInput(nil), f.items...)
}

func (f *Form) Buyer() Buyer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buyer
}

func (f *Form) SetBuyer(b Buyer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buyer = b
}

func (f *Form) Payment() Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payment
}

// SetPayment replaces the payment section; empty fields keep their defaults.
func (f *Form) SetPayment(p Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.defaults.Payment
	f.payment = Payment{
		Currency:        lo.CoalesceOrEmpty(p.Currency, d.Currency),
		ShippingService: lo.CoalesceOrEmpty(p.ShippingService, d.ShippingService),
		Terms:           lo.CoalesceOrEmpty(p.Terms, d.Terms),
		Means:           lo.CoalesceOrEmpty(p.Means, d.Means),
		Reference:       lo.CoalesceOrEmpty(p.Reference, d.Reference),
	}
}

func (f *Form) RateType() vat.RateType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rateType
}

func (f *Form) SetRateType(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateType = vat.ParseRateType(s)
}

func (f *Form) Shipping() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shipping
}

func (f *Form) SetShipping(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shipping = s
}

// Reset empties the form and starts over with one fresh item. The id counter
// keeps running.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clear()
	f.addItem()
}

// BuildRequest assembles the request from the current inputs. Quantities and
// prices that do not parse are rejected rather than sent.
func (f *Form) BuildRequest() (models.InvoiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	verr := &ValidationError{}
	shipping, err := parseAmount(f.shipping, true)
	if err != nil {
		verr.add("shipping_total", err.Error())
	}

	req := models.InvoiceRequest{
		BuyerName:        strings.TrimSpace(f.buyer.Name),
		BuyerStreet:      strings.TrimSpace(f.buyer.Street),
		BuyerCity:        strings.TrimSpace(f.buyer.City),
		BuyerPostal:      strings.TrimSpace(f.buyer.Postal),
		BuyerCountry:     strings.ToUpper(strings.TrimSpace(f.buyer.Country)),
		BuyerVATID:       strings.TrimSpace(f.buyer.VATID),
		VATRateType:      string(f.rateType),
		ShippingTotal:    shipping,
		Currency:         f.payment.Currency,
		ShippingService:  f.payment.ShippingService,
		PaymentTerms:     f.payment.Terms,
		PaymentMeans:     f.payment.Means,
		PaymentReference: f.payment.Reference,
		Items:            make([]models.LineItem, 0, len(f.items)),
	}
	for i, in := range f.items {
		req.Items = append(req.Items, in.lineItem(fmt.Sprintf("items[%d]", i), verr))
	}
	if req.BuyerCountry != "" {
		req.VATRate = f.rates.Rate(req.BuyerCountry, f.rateType)
	}

	check(req, verr)
	if err := verr.orNil(); err != nil {
		return models.InvoiceRequest{}, err
	}
	return req, nil
}

func (in ItemInput) lineItem(prefix string, verr *ValidationError) models.LineItem {
	item := models.LineItem{
		ProductName: strings.TrimSpace(in.ProductName),
		SKU:         strings.TrimSpace(in.SKU),
	}
	qty, err := strconv.Atoi(strings.TrimSpace(in.Quantity))
	if err != nil {
		verr.add(prefix+".quantity", "must be a whole number")
	}
	item.Quantity = qty

	price, err := parseAmount(in.UnitPrice, false)
	if err != nil {
		verr.add(prefix+".unit_price", err.Error())
	}
	item.UnitPrice = price

	unit, err := models.ParseUnitCode(in.UnitCode)
	if err != nil {
		verr.add(prefix+".unit_code", err.Error())
	}
	item.UnitCode = unit
	return item
}

func parseAmount(s string, emptyIsZero bool) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if emptyIsZero {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("must be a number")
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("must not be negative")
	}
	return d, nil
}

// Validate applies the submission rules to an already assembled request.
func Validate(req models.InvoiceRequest) error {
	verr := &ValidationError{}
	check(req, verr)
	return verr.orNil()
}

func check(req models.InvoiceRequest, verr *ValidationError) {
	if len(req.Items) == 0 {
		verr.cause = ErrNoItems
	}
	if req.ShippingTotal.IsNegative() {
		verr.add("shipping_total", "must not be negative")
	}
	for i, item := range req.Items {
		if item.UnitPrice.IsNegative() {
			verr.add(fmt.Sprintf("items[%d].unit_price", i), "must not be negative")
		}
	}
	if err := validate.Struct(req); err != nil {
		verr.addValidator(err)
	}
}

// PreviewTotals is the live total shown while editing. Unlike BuildRequest it
// counts unparsable amounts as zero.
func (f *Form) PreviewTotals() Totals {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := models.InvoiceRequest{
		BuyerCountry: f.buyer.Country,
		VATRateType:  string(f.rateType),
		Items: lo.Map(f.items, func(in ItemInput, _ int) models.LineItem {
			qty, _ := strconv.Atoi(strings.TrimSpace(in.Quantity))
			price, _ := parseAmount(in.UnitPrice, true)
			return models.LineItem{Quantity: qty, UnitPrice: price}
		}),
	}
	req.ShippingTotal, _ = parseAmount(f.shipping, true)
	return PreviewTotals(req, f.rates)
}
