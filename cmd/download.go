package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download <filename>",
	Short: "Download a generated invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		res := services.API.Download(ctx, args[0])()
		if ET.IsLeft(res) {
			_, err := ET.UnwrapError(res)
			return fmt.Errorf("download failed: %w", err)
		}
		path, _ := ET.UnwrapError(res)
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}
