package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	Http "github.com/IBM/fp-go/v2/ioeither/http"
	"github.com/IBM/fp-go/v2/retry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/config"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/download"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/models"
)

const (
	generatePath = "/api/generate-invoice"
	settingsPath = "/api/company-settings"
	downloadPath = "/download/"

	maxErrorBody = 1 << 20
)

type Client struct {
	Cfg                config.Config
	Logger             *zap.SugaredLogger
	Tracer             trace.Tracer
	Meter              metric.Meter
	client             Http.Client
	httpClient         *http.Client
	submissionsTotal   metric.Int64Counter
	submissionsFailed  metric.Int64Counter
	submissionDuration metric.Int64Histogram
	downloads          *download.Downloader
	downloadOpts       []download.Option
	retryBackoff       time.Duration
}

type Option func(*Client)

// WithProgress renders a byte progress bar for downloads on w.
func WithProgress(w io.Writer) Option {
	return func(c *Client) { c.downloadOpts = append(c.downloadOpts, download.WithProgress(w)) }
}

// WithRetryBackoff sets the first delay between retried reads.
func WithRetryBackoff(delay time.Duration) Option {
	return func(c *Client) {
		c.retryBackoff = delay
		c.downloadOpts = append(c.downloadOpts, download.WithBackoff(delay))
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func NewClient(
	cfg config.Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
	opts ...Option,
) (*Client, error) {
	c := &Client{
		Cfg:          cfg,
		Tracer:       tracer,
		Logger:       logger,
		Meter:        meter,
		retryBackoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		timeout := function.Ternary(
			func(t time.Duration) bool { return t > 0 },
			function.Identity[time.Duration],
			function.Constant1[time.Duration, time.Duration](30*time.Second),
		)(cfg.Server.Timeout)
		c.httpClient = &http.Client{Timeout: timeout}
	}
	c.client = Http.MakeClient(c.httpClient)

	var err error
	c.submissionsTotal, err = meter.Int64Counter(
		"invoice.submissions.total",
		metric.WithDescription("Invoice generation requests sent"),
	)
	if err != nil {
		return nil, err
	}

	c.submissionsFailed, err = meter.Int64Counter(
		"invoice.submissions.failed",
		metric.WithDescription("Invoice generation requests that failed"),
	)
	if err != nil {
		return nil, err
	}

	c.submissionDuration, err = meter.Int64Histogram(
		"invoice.submission.duration",
		metric.WithDescription("Duration of invoice generation requests"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	c.downloads, err = download.NewDownloader(cfg, c.httpClient, tracer, logger, meter, c.downloadOpts...)
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.Cfg.Server.BaseURL, "/") + path
}

// DownloadURL is where the server serves a generated invoice.
func (c *Client) DownloadURL(filename string) string {
	return c.url(downloadPath + url.PathEscape(filename))
}

func (c *Client) newRequest(
	ctx context.Context,
	method, path string,
	body any,
	requestID string,
) IOE.IOEither[error, *http.Request] {
	return IOE.TryCatchError(func() (*http.Request, error) {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("encode request: %w", err)
			}
			reader = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if requestID != "" {
			req.Header.Set("X-Request-ID", requestID)
		}
		return req, nil
	})
}

// exchange sends request and decodes a JSON answer. Non-2xx answers become a
// TransportError carrying the server's {"error": ...} text when present.
func exchange[A any](
	client Http.Client,
	request IOE.IOEither[error, *http.Request],
	fallback string,
) IOE.IOEither[error, A] {
	return IOE.Bracket(
		client.Do(request),
		func(resp *http.Response) IOE.IOEither[error, A] {
			return IOE.TryCatchError(func() (A, error) { return decode[A](resp, fallback) })
		},
		func(resp *http.Response, _ ET.Either[error, A]) IOE.IOEither[error, any] {
			return IOE.TryCatchError(func() (any, error) { return nil, resp.Body.Close() })
		},
	)
}

func decode[A any](resp *http.Response, fallback string) (A, error) {
	var out A
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return out, statusError(resp, fallback)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, &TransportError{
			StatusCode: resp.StatusCode,
			Fallback:   fallback,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return out, nil
}

func statusError(resp *http.Response, fallback string) error {
	terr := &TransportError{
		StatusCode: resp.StatusCode,
		Fallback:   fallback,
		Err:        fmt.Errorf("bad status: %d", resp.StatusCode),
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return terr
	}
	var apiErr models.ErrorResponse
	if json.Unmarshal(body, &apiErr) == nil {
		terr.Message = strings.TrimSpace(apiErr.Error)
	}
	return terr
}

// GenerateInvoice posts the invoice once; it is not retried because the
// server creates a new invoice for every call.
func (c *Client) GenerateInvoice(
	ctx context.Context,
	invoice models.InvoiceRequest,
) IOE.IOEither[error, models.InvoiceResult] {
	return func() ET.Either[error, models.InvoiceResult] {
		requestID := uuid.NewString()
		ctx, span := c.Tracer.Start(ctx, "invoice.generate", trace.WithAttributes(
			attribute.String("request_id", requestID),
			attribute.String("buyer.country", invoice.BuyerCountry),
			attribute.String("vat.rate_type", invoice.VATRateType),
			attribute.Int("items", len(invoice.Items)),
		))
		defer span.End()
		startTime := time.Now()
		c.submissionsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("buyer.country", invoice.BuyerCountry),
		))
		c.Logger.Infow("Submitting invoice",
			"request_id", requestID,
			"country", invoice.BuyerCountry,
			"items", len(invoice.Items))

		result := function.Pipe1(
			exchange[models.InvoiceResult](
				c.client,
				c.newRequest(ctx, http.MethodPost, generatePath, invoice, requestID),
				GenerateFailedMessage,
			),
			IOE.Chain(func(r models.InvoiceResult) IOE.IOEither[error, models.InvoiceResult] {
				if strings.TrimSpace(r.Filename) == "" {
					var err error = &TransportError{
						StatusCode: http.StatusOK,
						Fallback:   GenerateFailedMessage,
						Err:        errors.New("response has no filename"),
					}
					return IOE.Left[models.InvoiceResult](err)
				}
				return IOE.Of[error](r)
			}),
		)()

		durationMs := time.Since(startTime).Milliseconds()
		return function.Pipe1(
			result,
			ET.Fold(
				func(err error) ET.Either[error, models.InvoiceResult] {
					terr := asTransportError(err, GenerateFailedMessage)
					span.RecordError(terr)
					span.SetStatus(codes.Error, terr.Detail())
					c.submissionsFailed.Add(ctx, 1, metric.WithAttributes(
						attribute.Int("http.status", terr.StatusCode),
					))
					c.submissionDuration.Record(ctx, durationMs, metric.WithAttributes(
						attribute.String("status", "failed"),
					))
					c.Logger.Warnw("Invoice generation failed",
						"request_id", requestID,
						"status", terr.StatusCode,
						"error", terr.Detail())
					var out error = terr
					return ET.Left[models.InvoiceResult](out)
				},
				func(r models.InvoiceResult) ET.Either[error, models.InvoiceResult] {
					span.SetAttributes(attribute.String("invoice.filename", r.Filename))
					c.submissionDuration.Record(ctx, durationMs, metric.WithAttributes(
						attribute.String("status", "success"),
					))
					c.Logger.Infow("Invoice generated",
						"request_id", requestID,
						"invoice_id", r.InvoiceID,
						"filename", r.Filename,
						"duration_ms", durationMs)
					return ET.Right[error](r)
				},
			),
		)
	}
}

// Download fetches a generated invoice into the download directory and
// yields the local path.
func (c *Client) Download(ctx context.Context, filename string) IOE.IOEither[error, string] {
	name, err := download.SafeName(filename)
	if err != nil {
		return IOE.Left[string](err)
	}
	fetch := c.downloads.Fetch(ctx, c.DownloadURL(name), name)
	return func() ET.Either[error, string] {
		path, err := ET.UnwrapError(fetch())
		var serr *download.StatusError
		if errors.As(err, &serr) {
			return ET.Left[string](error(&TransportError{
				StatusCode: serr.StatusCode,
				Fallback:   DownloadFailedMessage,
				Err:        err,
			}))
		}
		if err != nil {
			return ET.Left[string](err)
		}
		return ET.Right[error](path)
	}
}

// CompanySettings reads the stored seller details. Reads are retried.
func (c *Client) CompanySettings(ctx context.Context) IOE.IOEither[error, models.CompanySettings] {
	policy := retry.Monoid.Concat(
		retry.LimitRetries(uint(c.Cfg.Server.MaxRetries)),
		retry.ExponentialBackoff(c.retryBackoff),
	)
	action := func(_ retry.RetryStatus) IOE.IOEither[error, models.CompanySettings] {
		return exchange[models.CompanySettings](
			c.client,
			c.newRequest(ctx, http.MethodGet, settingsPath, nil, ""),
			SettingsFailedMessage,
		)
	}
	return IOE.Retrying(policy, action, ET.Fold(
		retryable,
		function.Constant1[models.CompanySettings](false),
	))
}

// SaveCompanySettings refuses locally when a key the server requires is empty.
func (c *Client) SaveCompanySettings(
	ctx context.Context,
	settings models.CompanySettings,
) IOE.IOEither[error, models.SettingsResult] {
	if missing := settings.Missing(); len(missing) > 0 {
		return IOE.Left[models.SettingsResult](
			fmt.Errorf("%w: missing %s", ErrIncompleteSettings, strings.Join(missing, ", ")),
		)
	}
	return function.Pipe1(
		exchange[models.SettingsResult](
			c.client,
			c.newRequest(ctx, http.MethodPost, settingsPath, settings, uuid.NewString()),
			SettingsFailedMessage,
		),
		IOE.Tap(func(r models.SettingsResult) IOE.IOEither[error, models.SettingsResult] {
			c.Logger.Infow("Company settings saved", "message", r.Message)
			return IOE.Of[error](r)
		}),
	)
}
