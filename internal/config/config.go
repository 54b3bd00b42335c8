package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Log       Log       `mapstructure:"log"       validate:"required"`
	Telemetry Telemetry `mapstructure:"telemetry" validate:"required"`
	Server    Server    `mapstructure:"server"    validate:"required"`
	Download  Download  `mapstructure:"download"`
	Form      Form      `mapstructure:"form"`
}

type Log struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogDir   string `mapstructure:"log_dir"`
}

type Telemetry struct {
	Enabled     bool              `mapstructure:"enabled"`
	Exporter    string            `mapstructure:"exporter"     validate:"omitempty,oneof=otlp stdout none"`
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"     validate:"omitempty,oneof=grpc http"`
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	ServiceName string            `mapstructure:"service_name"`
}

// Server describes the invoice API. Timeout bounds every request, including
// invoice generation, which is never retried.
type Server struct {
	BaseURL    string        `mapstructure:"base_url"    validate:"required,url"`
	Timeout    time.Duration `mapstructure:"timeout"     validate:"required,gt=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0,max=10"`
}

type Download struct {
	Directory string `mapstructure:"directory" validate:"required"`
	Overwrite bool   `mapstructure:"overwrite"`
}

// Form holds the values a fresh invoice form starts with.
type Form struct {
	Currency        string `mapstructure:"currency"`
	ShippingService string `mapstructure:"shipping_service"`
	PaymentTerms    string `mapstructure:"payment_terms"`
	PaymentMeans    string `mapstructure:"payment_means"`
	VATRateType     string `mapstructure:"vat_rate_type" validate:"omitempty,oneof=standard reduced"`
}

// Load merges defaults, the config file, INVOICE_* environment variables and
// any dotted flags ("server.base-url") that were set on the command line.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvPrefix("INVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.invoice-client")
		v.AddConfigPath("/etc/invoice-client")
		v.SetConfigType("yaml")
	}

	setDefaults(v)
	if err := bindFlags(v, flags); err != nil {
		return Config{}, err
	}

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal error: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.log_level", "info")
	v.SetDefault("log.log_dir", "logs")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "invoice-client")
	v.SetDefault("server.base_url", "http://localhost:5001")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.max_retries", 3)
	v.SetDefault("download.directory", "invoices")
	v.SetDefault("download.overwrite", false)
	v.SetDefault("form.currency", "€")
	v.SetDefault("form.shipping_service", "Standard")
	v.SetDefault("form.payment_terms", "Net 30")
	v.SetDefault("form.payment_means", "Credit transfer")
	v.SetDefault("form.vat_rate_type", "standard")
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || !strings.Contains(f.Name, ".") {
			return
		}
		bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	return bindErr
}

func Validate(cfg Config) error {
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Exporter == "otlp" && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when using otlp exporter")
	}
	return nil
}
