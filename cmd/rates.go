package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/display"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/vat"
)

var rateType string

var ratesCmd = &cobra.Command{
	Use:   "rates [country-code]",
	Short: "Show the VAT rate table, or the rate for one country",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printer := display.NewPrinter(cmd.OutOrStdout())
		if len(args) == 0 {
			printer.Println(printer.RateTable(services.Rates))
			return nil
		}
		printer.Println(printer.VATLine(services.Rates, args[0], vat.ParseRateType(rateType)))
		return nil
	},
}

func init() {
	ratesCmd.Flags().StringVar(&rateType, "type", "standard", "Rate type (standard|reduced)")
}
