package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/function"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/models"
)

var settingsFile string

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Company settings stored by the invoice service",
}

var getSettingsCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the stored company settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		settings, err := ET.UnwrapError(services.API.CompanySettings(ctx)())
		if err != nil {
			return fmt.Errorf("get settings: %w", err)
		}
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal settings: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var setSettingsCmd = &cobra.Command{
	Use:   "set [key=value...]",
	Short: "Update company settings",
	Long: "Merges the given keys (from --file and/or key=value arguments) into the stored " +
		"settings and saves them. The service requires name, address_line, uid, court, bank and iban.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		updates, err := settingsUpdates(settingsFile, args)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			return fmt.Errorf("nothing to set")
		}
		current, err := ET.UnwrapError(services.API.CompanySettings(ctx)())
		if err != nil {
			return fmt.Errorf("get settings: %w", err)
		}
		merged := models.CompanySettings{}
		for k, v := range current {
			merged[k] = v
		}
		for k, v := range updates {
			merged[k] = v
		}

		return function.Pipe1(
			services.API.SaveCompanySettings(ctx, merged)(),
			ET.Fold(
				func(e error) error { return fmt.Errorf("save settings: %w", e) },
				func(r models.SettingsResult) error {
					fmt.Fprintln(cmd.OutOrStdout(), r.Message)
					return nil
				},
			),
		)
	},
}

func settingsUpdates(path string, args []string) (models.CompanySettings, error) {
	updates := models.CompanySettings{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, &updates); err != nil {
			return nil, fmt.Errorf("parse settings file: %w", err)
		}
	}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		updates[strings.TrimSpace(key)] = value
	}
	return updates, nil
}

func init() {
	setSettingsCmd.Flags().StringVarP(&settingsFile, "file", "f", "", "YAML or JSON file with settings")
	settingsCmd.AddCommand(getSettingsCmd)
	settingsCmd.AddCommand(setSettingsCmd)
}
