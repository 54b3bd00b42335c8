package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/display"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/draft"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/form"
)

var previewCmd = &cobra.Command{
	Use:   "preview <draft>",
	Short: "Show the totals an invoice draft would produce",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := draft.Load(args[0])
		if err != nil {
			return err
		}
		f := services.NewForm()
		if err := d.Apply(f); err != nil {
			return err
		}

		printer := display.NewPrinter(cmd.OutOrStdout())
		buyer, payment := f.Buyer(), f.Payment()
		printer.Println(printer.VATLine(services.Rates, buyer.Country, f.RateType()))

		req, err := f.BuildRequest()
		var verr *form.ValidationError
		switch {
		case errors.As(err, &verr):
			for _, fe := range verr.Fields {
				printer.Println("  " + fe.String())
			}
			if len(verr.Fields) == 0 {
				printer.Println("  " + verr.Error())
			}
		case err != nil:
			return err
		default:
			printer.Println(printer.Items(req.Items, payment.Currency))
		}

		printer.Println(printer.Totals(f.PreviewTotals(), payment.Currency))
		if payment.Terms != "" {
			due := form.DueDate(time.Now(), payment.Terms)
			printer.Println(fmt.Sprintf("Due %s (%s)", due.Format("2006-01-02"), payment.Terms))
		}
		return nil
	},
}
