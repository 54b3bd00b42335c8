// Package display renders rates, totals and notices for the terminal.
package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/form"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/models"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/submit"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/vat"
)

const SelectCountryPrompt = "Select a country to see VAT rate"

var (
	colorMuted   = lipgloss.Color("#86868B")
	colorSuccess = lipgloss.Color("#34C759")
	colorError   = lipgloss.Color("#FF3B30")
	colorWarning = lipgloss.Color("#FF9500")
)

type styleSet struct {
	muted   lipgloss.Style
	success lipgloss.Style
	error   lipgloss.Style
	warning lipgloss.Style
	label   lipgloss.Style
	total   lipgloss.Style
	header  lipgloss.Style
}

// Printer writes styled lines to w. Colour is decided by the renderer, so
// output that is not a terminal stays plain.
type Printer struct {
	w      io.Writer
	styles styleSet
}

func NewPrinter(w io.Writer) *Printer {
	renderer := lipgloss.NewRenderer(w)
	return &Printer{
		w: w,
		styles: styleSet{
			muted:   renderer.NewStyle().Foreground(colorMuted),
			success: renderer.NewStyle().Foreground(colorSuccess),
			error:   renderer.NewStyle().Foreground(colorError),
			warning: renderer.NewStyle().Foreground(colorWarning),
			label:   renderer.NewStyle().Width(10),
			total:   renderer.NewStyle().Bold(true),
			header:  renderer.NewStyle().Bold(true).Underline(true),
		},
	}
}

// VATLine is the rate summary shown next to the country. Unknown countries
// are shown with the fallback rate in the error colour.
func (p *Printer) VATLine(rates *vat.Table, code string, rateType vat.RateType) string {
	if strings.TrimSpace(code) == "" {
		return p.styles.muted.Render(SelectCountryPrompt)
	}
	line := rates.Describe(code, rateType)
	if rates.Lookup(code, rateType).IsFallback() {
		return p.styles.error.Render(line + " (unknown country, default rate)")
	}
	return p.styles.success.Render(line)
}

// Totals renders the preview block. The VAT line carries the applied percentage.
func (p *Printer) Totals(t form.Totals, currency string) string {
	f := t.Formatted()
	pct := t.VATRate.Value.Shift(2).Round(1).String()
	rows := []string{
		p.row("Subtotal", f.Subtotal, currency),
		p.row("Shipping", f.Shipping, currency),
		p.row(fmt.Sprintf("VAT %s%%", pct), f.VAT, currency),
		p.styles.total.Render(p.row("Total", f.Total, currency)),
	}
	if t.VATRate.IsFallback() {
		rows = append(rows, p.styles.warning.Render(t.VATRate.Reason))
	}
	return strings.Join(rows, "\n")
}

func (p *Printer) row(label, amount, currency string) string {
	return strings.TrimSpace(fmt.Sprintf("%s %10s %s", p.styles.label.Render(label), amount, currency))
}

// Items lists the line items of a request.
func (p *Printer) Items(items []models.LineItem, currency string) string {
	lines := lo.Map(items, func(it models.LineItem, i int) string {
		return fmt.Sprintf("%2d. %-24s %-8s %4d %-9s × %s %s = %s %s",
			i+1, it.ProductName, it.SKU, it.Quantity, it.UnitCode.Label(),
			it.UnitPrice.StringFixed(2), currency, it.Amount().StringFixed(2), currency)
	})
	return strings.Join(lines, "\n")
}

// RateTable lists every country with its standard and reduced rate.
func (p *Printer) RateTable(rates *vat.Table) string {
	var b strings.Builder
	b.WriteString(p.styles.header.Render(fmt.Sprintf("%-4s %-16s %9s %9s", "CODE", "COUNTRY", "STANDARD", "REDUCED")))
	for _, c := range rates.Countries() {
		line := fmt.Sprintf("%-4s %-16s %8s%% %8s%%",
			c.Code, c.Name, c.Standard.Shift(2).String(), c.Reduced.Shift(2).String())
		b.WriteString("\n")
		if !rates.HasDistinctReducedRate(c.Code) {
			b.WriteString(p.styles.muted.Render(line))
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}

func (p *Printer) Notice(n submit.Notice) {
	style := p.styles.success
	switch n.Kind {
	case submit.NoticeError:
		style = p.styles.error
	case submit.NoticeWarning:
		style = p.styles.warning
	}
	fmt.Fprintln(p.w, style.Render(n.Message))
}

func (p *Printer) Println(s string) {
	fmt.Fprintln(p.w, s)
}
