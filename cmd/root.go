package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/config"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/telemetry"
)

var (
	cfgFile    string
	noProgress bool
	cfg        config.Config
	logger     *zap.SugaredLogger
	tracer     trace.Tracer
	meter      metric.Meter
	shutdown   func(context.Context) error
	services   *internal.Services
	Version    = "dev" // Set at build time: go build -ldflags "-X github.com/Qubut/invoice-generator/packages/invoice_client/cmd.Version=v1.0.0"
)

var RootCmd = &cobra.Command{
	Use:           "invoice-client",
	Short:         "Build, preview and generate invoices against the invoice service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logDir := cfg.Log.LogDir
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}

		logFile := filepath.Join(logDir,
			fmt.Sprintf("invoice-client[%s].log", time.Now().Format("20060102-150405")))

		exporter := cfg.Telemetry.Exporter
		if !cfg.Telemetry.Enabled {
			exporter = "none"
		}
		teleCfg := telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Exporter:    exporter,
			Endpoint:    cfg.Telemetry.Endpoint,
			Protocol:    cfg.Telemetry.Protocol,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     cfg.Telemetry.Headers,
			LogFile:     logFile,
			LogLevel:    cfg.Log.LogLevel,
			Version:     Version,
		}
		tracer, meter, logger, shutdown, err = telemetry.InitOTEL(teleCfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}

		progress := cmd.ErrOrStderr()
		if noProgress {
			progress = nil
		}
		services, err = internal.InitServices(cfg, tracer, logger, meter, progress)
		if err != nil {
			return fmt.Errorf("init services: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdown != nil {
			if err := shutdown(context.Background()); err != nil {
				logger.Errorw("shutdown error", "err", err)
				return err
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of invoice-client",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config operations",
}

var printConfigCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the current loaded configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "Path to config file (yaml/json/toml)")
	RootCmd.PersistentFlags().
		BoolVar(&noProgress, "no-progress", false, "Disable spinner and download progress bar")

	// Dotted flags override the config key of the same name.
	type flagDef struct {
		name, def, usage string
	}
	flags := []flagDef{
		{"log.log-level", "info", "Log level (debug/info/warn/error)"},
		{"log.log-dir", "logs", "Directory for log files"},
		{"telemetry.enabled", "false", "Enable OpenTelemetry"},
		{"telemetry.exporter", "none", "Telemetry exporter (otlp|stdout|none)"},
		{"telemetry.endpoint", "localhost:4317", "OTLP endpoint (host:port)"},
		{"telemetry.protocol", "grpc", "OTLP protocol (grpc|http)"},
		{"telemetry.insecure", "true", "Allow insecure OTLP connection"},
		{"telemetry.service-name", "invoice-client", "Service name for telemetry"},
		{"server.base-url", "http://localhost:5001", "Invoice service base URL"},
		{"server.timeout", "30s", "Request timeout (duration)"},
		{"server.max-retries", "3", "Max retries for downloads and reads"},
		{"download.directory", "invoices", "Directory generated invoices are saved to"},
		{"download.overwrite", "false", "Replace invoices that were already downloaded"},
		{"form.currency", "€", "Default currency"},
		{"form.shipping-service", "Standard", "Default shipping service"},
		{"form.payment-terms", "Net 30", "Default payment terms"},
		{"form.payment-means", "Credit transfer", "Default payment means"},
		{"form.vat-rate-type", "standard", "Default VAT rate type (standard|reduced)"},
	}
	for _, f := range flags {
		RootCmd.PersistentFlags().String(f.name, f.def, f.usage)
	}

	configCmd.AddCommand(printConfigCmd)

	RootCmd.AddCommand(ratesCmd)
	RootCmd.AddCommand(draftCmd)
	RootCmd.AddCommand(previewCmd)
	RootCmd.AddCommand(submitCmd)
	RootCmd.AddCommand(downloadCmd)
	RootCmd.AddCommand(settingsCmd)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(configCmd)
}
