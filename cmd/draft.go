package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/draft"
)

var forceDraft bool

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Invoice draft documents",
}

var newDraftCmd = &cobra.Command{
	Use:   "new <file.yaml|file.json>",
	Short: "Write an empty invoice draft to fill in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err == nil && !forceDraft {
			return fmt.Errorf("%s already exists, use --force to replace it", path)
		}
		if err := draft.Save(path, draft.FromForm(services.NewForm())); err != nil {
			return err
		}
		logger.Infow("Draft written", "path", path)
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	newDraftCmd.Flags().BoolVar(&forceDraft, "force", false, "Overwrite an existing file")
	draftCmd.AddCommand(newDraftCmd)
}
