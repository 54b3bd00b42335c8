package internal

import (
	"io"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/api"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/config"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/form"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/submit"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/vat"
)

type Services struct {
	Cfg      config.Config
	Rates    *vat.Table
	API      InvoiceAPIInterface
	logger   *zap.SugaredLogger
	tracer   trace.Tracer
	progress io.Writer
}

// InitServices wires the rate table and API client. progress receives the
// download bar and submission spinner; nil disables both.
func InitServices(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
	progress io.Writer,
) (*Services, error) {
	var opts []api.Option
	if progress != nil {
		opts = append(opts, api.WithProgress(progress))
	}
	client, err := api.NewClient(cfg, tracer, logger, meter, opts...)
	if err != nil {
		return nil, err
	}
	return &Services{
		Cfg:      cfg,
		Rates:    vat.Default().WithLogger(logger),
		API:      client,
		logger:   logger,
		tracer:   tracer,
		progress: progress,
	}, nil
}

// NewForm returns an empty form seeded with the configured defaults.
func (s *Services) NewForm() *form.Form {
	return form.New(s.Rates, form.WithDefaults(form.Defaults{
		Payment: form.Payment{
			Currency:        s.Cfg.Form.Currency,
			ShippingService: s.Cfg.Form.ShippingService,
			Terms:           s.Cfg.Form.PaymentTerms,
			Means:           s.Cfg.Form.PaymentMeans,
		},
		RateType: vat.ParseRateType(s.Cfg.Form.VATRateType),
	}))
}

// NewController wraps f for submission. extra options are applied last.
func (s *Services) NewController(
	f *form.Form,
	notify func(submit.Notice),
	extra ...submit.Option,
) *submit.Controller {
	opts := []submit.Option{
		submit.WithTimeout(s.Cfg.Server.Timeout),
		submit.WithLogger(s.logger),
		submit.WithTracer(s.tracer),
	}
	if notify != nil {
		opts = append(opts, submit.WithNotices(notify))
	}
	if s.progress != nil {
		opts = append(opts, submit.WithProgress(s.progress))
	}
	return submit.New(f, s.API, append(opts, extra...)...)
}
