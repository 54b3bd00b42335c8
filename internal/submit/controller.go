package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/form"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/models"
)

const (
	SuccessMessage = "Invoice generated successfully!"

	defaultTimeout = 30 * time.Second
)

var (
	ErrSubmissionInFlight = errors.New("an invoice is already being generated")
	ErrNotEditing         = errors.New("invoice already generated, start another one first")
	ErrNoFilename         = errors.New("server returned no invoice filename")
)

type State int

const (
	Editing State = iota
	Submitting
	AwaitingDownload
)

func (s State) String() string {
	switch s {
	case Editing:
		return "editing"
	case Submitting:
		return "submitting"
	case AwaitingDownload:
		return "awaiting download"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Generator is the network side of a submission.
type Generator interface {
	GenerateInvoice(ctx context.Context, req models.InvoiceRequest) IOE.IOEither[error, models.InvoiceResult]
	DownloadURL(filename string) string
	Download(ctx context.Context, filename string) IOE.IOEither[error, string]
}

type NoticeKind int

const (
	NoticeSuccess NoticeKind = iota
	NoticeError
	NoticeWarning
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeSuccess:
		return "success"
	case NoticeWarning:
		return "warning"
	default:
		return "error"
	}
}

// Notice is a message for the user about the outcome of an action.
type Notice struct {
	Kind    NoticeKind
	Message string
}

type Option func(*Controller)

func WithNotices(fn func(Notice)) Option {
	return func(c *Controller) { c.notify = fn }
}

// WithTimeout bounds each submission. Zero or negative keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithProgress shows a "Generating..." spinner on w while a submission runs.
func WithProgress(w io.Writer) Option {
	return func(c *Controller) { c.progressOut = w }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Controller) { c.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Controller) { c.tracer = tracer }
}

// Controller drives one form from editing through generation to download.
type Controller struct {
	form        *form.Form
	api         Generator
	logger      *zap.SugaredLogger
	tracer      trace.Tracer
	timeout     time.Duration
	notify      func(Notice)
	progressOut io.Writer
	inflight    *semaphore.Weighted

	mu       sync.Mutex
	state    State
	filename string
}

func New(f *form.Form, api Generator, opts ...Option) *Controller {
	c := &Controller{
		form:     f,
		api:      api,
		logger:   zap.NewNop().Sugar(),
		tracer:   tracenoop.NewTracerProvider().Tracer("submit"),
		timeout:  defaultTimeout,
		notify:   func(Notice) {},
		inflight: semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Form() *form.Form { return c.form }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Filename is the generated invoice's handle; empty unless awaiting download.
func (c *Controller) Filename() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filename
}

// RemoveItem removes a line item, warning instead when it is the last one.
func (c *Controller) RemoveItem(id form.ItemID) error {
	err := c.form.RemoveItem(id)
	if errors.Is(err, form.ErrLastItem) {
		c.notify(Notice{Kind: NoticeWarning, Message: capitalize(err.Error())})
	}
	return err
}

// Submit builds the request from the form and sends it.
func (c *Controller) Submit(ctx context.Context) (models.InvoiceResult, error) {
	return c.run(ctx, c.form.BuildRequest)
}

// SubmitRequest sends an already assembled request, validating it first.
func (c *Controller) SubmitRequest(ctx context.Context, req models.InvoiceRequest) (models.InvoiceResult, error) {
	return c.run(ctx, func() (models.InvoiceRequest, error) {
		return req, form.Validate(req)
	})
}

func (c *Controller) run(
	ctx context.Context,
	assemble func() (models.InvoiceRequest, error),
) (models.InvoiceResult, error) {
	if !c.inflight.TryAcquire(1) {
		return models.InvoiceResult{}, ErrSubmissionInFlight
	}
	defer c.inflight.Release(1)

	if state := c.State(); state != Editing {
		return models.InvoiceResult{}, fmt.Errorf("submit while %s: %w", state, ErrNotEditing)
	}

	req, err := assemble()
	if err != nil {
		c.logger.Infow("Invoice rejected before submission", "error", err)
		c.notify(Notice{Kind: NoticeError, Message: capitalize(err.Error())})
		return models.InvoiceResult{}, err
	}

	ctx, span := c.tracer.Start(ctx, "invoice.submit", trace.WithAttributes(
		attribute.String("buyer.country", req.BuyerCountry),
		attribute.Int("items", len(req.Items)),
		attribute.String("timeout", c.timeout.String()),
	))
	defer span.End()

	c.setState(Submitting, "")
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stop := c.spin()
	result, err := ET.UnwrapError(c.api.GenerateInvoice(ctx, req)())
	stop()
	if err == nil && strings.TrimSpace(result.Filename) == "" {
		err = ErrNoFilename
	}
	if err != nil {
		c.setState(Editing, "")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warnw("Invoice submission failed", "error", err)
		c.notify(Notice{Kind: NoticeError, Message: err.Error()})
		return models.InvoiceResult{}, err
	}

	c.setState(AwaitingDownload, result.Filename)
	span.SetAttributes(attribute.String("invoice.filename", result.Filename))
	c.logger.Infow("Invoice ready for download", "filename", result.Filename)
	c.notify(Notice{Kind: NoticeSuccess, Message: SuccessMessage})
	return result, nil
}

// DownloadURL addresses the retained invoice. It reports false while editing.
func (c *Controller) DownloadURL() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != AwaitingDownload || c.filename == "" {
		return "", false
	}
	return c.api.DownloadURL(c.filename), true
}

// Download saves the retained invoice and returns its local path. Outside
// AwaitingDownload it does nothing and returns "".
func (c *Controller) Download(ctx context.Context) (string, error) {
	c.mu.Lock()
	filename, state := c.filename, c.state
	c.mu.Unlock()
	if state != AwaitingDownload || filename == "" {
		return "", nil
	}
	path, err := ET.UnwrapError(c.api.Download(ctx, filename)())
	if err != nil {
		c.notify(Notice{Kind: NoticeError, Message: err.Error()})
		return "", err
	}
	return path, nil
}

// StartAnother discards the generated invoice and resets the form. It does
// nothing unless an invoice is awaiting download.
func (c *Controller) StartAnother() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != AwaitingDownload {
		return
	}
	c.form.Reset()
	c.state = Editing
	c.filename = ""
}

func (c *Controller) setState(s State, filename string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	c.filename = filename
}

func (c *Controller) spin() func() {
	if c.progressOut == nil {
		return func() {}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(c.progressOut),
		progressbar.OptionSetDescription("Generating..."),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
		_ = bar.Finish()
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
