package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/IBM/fp-go/v2/ioeither/file"
	Http "github.com/IBM/fp-go/v2/ioeither/http"
	"github.com/IBM/fp-go/v2/retry"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/config"
	T "github.com/Qubut/invoice-generator/packages/invoice_client/internal/typing"
)

var ErrInvalidFilename = errors.New("invalid invoice filename")

var pdfMagic = []byte("%PDF-")

// StatusError is a non-200 answer from the download endpoint.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string { return fmt.Sprintf("bad status: %d", e.StatusCode) }

// Downloader saves generated invoices into the configured directory.
type Downloader struct {
	Cfg                  config.Config
	Logger               *zap.SugaredLogger
	Tracer               trace.Tracer
	Meter                metric.Meter
	client               Http.Client
	progressOut          io.Writer
	backoff              time.Duration
	downloadFilesSuccess metric.Int64Counter
	downloadFilesFailed  metric.Int64Counter
	downloadBytesTotal   metric.Int64Counter
	downloadFileDuration metric.Int64Histogram
}

type Option func(*Downloader)

// WithProgress draws a byte progress bar on w while a file is fetched.
func WithProgress(w io.Writer) Option {
	return func(d *Downloader) { d.progressOut = w }
}

func WithBackoff(delay time.Duration) Option {
	return func(d *Downloader) { d.backoff = delay }
}

func NewDownloader(
	cfg config.Config,
	client *http.Client,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
	opts ...Option,
) (*Downloader, error) {
	d := &Downloader{
		Cfg:     cfg,
		Tracer:  tracer,
		Logger:  logger,
		Meter:   meter,
		client:  Http.MakeClient(client),
		backoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}

	var err error
	d.downloadFilesSuccess, err = d.Meter.Int64Counter(
		"download.files.success",
		metric.WithDescription("Invoices downloaded or already present"),
	)
	if err != nil {
		return nil, err
	}

	d.downloadFilesFailed, err = d.Meter.Int64Counter(
		"download.files.failed",
		metric.WithDescription("Invoice downloads that failed after retries"),
	)
	if err != nil {
		return nil, err
	}

	d.downloadBytesTotal, err = d.Meter.Int64Counter(
		"download.bytes.total",
		metric.WithDescription("Total bytes actually downloaded"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	d.downloadFileDuration, err = d.Meter.Int64Histogram(
		"download.file.duration",
		metric.WithDescription("Duration of individual invoice download"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return d, nil
}

// SafeName reduces a server supplied filename to a single path element.
func SafeName(filename string) (string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "." || name == ".." || name == string(filepath.Separator) || name == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	return name, nil
}

// Retryable is false for answers a retry cannot change and once the caller's
// context is done.
func Retryable(err error) bool {
	var serr *StatusError
	if errors.As(err, &serr) && serr.StatusCode >= http.StatusBadRequest &&
		serr.StatusCode < http.StatusInternalServerError {
		return false
	}
	return !errors.Is(err, ErrInvalidFilename) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Fetch stores the document at url under filename in the download directory
// and yields the local path. An existing PDF is kept unless Overwrite is set.
func (d *Downloader) Fetch(ctx context.Context, url, filename string) IOE.IOEither[error, string] {
	return func() ET.Either[error, string] {
		name, err := SafeName(filename)
		if err != nil {
			return ET.Left[string](err)
		}
		target := filepath.Join(d.Cfg.Download.Directory, name)

		startTime := time.Now()
		ctx, span := d.Tracer.Start(ctx, "download.file", trace.WithAttributes(
			attribute.String("file.name", name),
			attribute.String("file.url", url),
		))
		defer span.End()

		if !d.Cfg.Download.Overwrite && ET.IsRight(verifyPDF(target)()) {
			span.SetAttributes(attribute.Bool("skipped", true))
			span.AddEvent("file_already_exists_and_valid")
			d.downloadFilesSuccess.Add(ctx, 1, metric.WithAttributes(
				attribute.String("method", "skip"),
				attribute.Bool("skipped", true),
			))
			d.Logger.Infow("Invoice already downloaded", "path", target)
			return ET.Right[error](target)
		}
		if err := os.MkdirAll(d.Cfg.Download.Directory, 0o755); err != nil {
			return ET.Left[string](fmt.Errorf("create download directory: %w", err))
		}

		policy := retry.Monoid.Concat(
			retry.LimitRetries(uint(d.Cfg.Server.MaxRetries)),
			retry.ExponentialBackoff(d.backoff),
		)
		action := func(status retry.RetryStatus) IOE.IOEither[error, int64] {
			select {
			case <-ctx.Done():
				return IOE.Left[int64](ctx.Err())
			default:
			}
			if status.IterNumber > 0 {
				d.Logger.Debugw("Retrying invoice download", "file", name, "attempt", status.IterNumber+1)
			}
			return d.fetchOnce(ctx, url, target)
		}
		result := function.Pipe2(
			IOE.Retrying(policy, action, ET.Fold(
				Retryable,
				function.Constant1[int64](false),
			)),
			IOE.Tap(func(size int64) IOE.IOEither[error, T.Unit] {
				durationMs := time.Since(startTime).Milliseconds()
				attrs := []attribute.KeyValue{attribute.String("file.name", name)}
				d.downloadFilesSuccess.Add(ctx, 1, metric.WithAttributes(attrs...))
				d.downloadBytesTotal.Add(ctx, size, metric.WithAttributes(attrs...))
				d.downloadFileDuration.Record(ctx, durationMs, metric.WithAttributes(
					attribute.String("status", "success"),
					attribute.Bool("skipped", false),
				))
				d.Logger.Infow("Invoice downloaded", "path", target, "bytes", size, "duration_ms", durationMs)
				return IOE.Of[error](T.Unit{})
			}),
			IOE.TapLeft[int64](func(err error) IOE.IOEither[error, T.Unit] {
				durationMs := time.Since(startTime).Milliseconds()
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				d.downloadFilesFailed.Add(ctx, 1, metric.WithAttributes(
					attribute.String("error", err.Error()),
				))
				d.downloadFileDuration.Record(ctx, durationMs, metric.WithAttributes(
					attribute.String("status", "failed"),
				))
				d.Logger.Warnw("Invoice download failed", "file", name, "error", err)
				return IOE.Of[error](T.Unit{})
			}),
		)()
		return ET.Map[error](function.Constant1[int64](target))(result)
	}
}

func (d *Downloader) fetchOnce(ctx context.Context, url, target string) IOE.IOEither[error, int64] {
	request := IOE.TryCatchError(func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	return IOE.Bracket(
		d.client.Do(request),
		func(resp *http.Response) IOE.IOEither[error, int64] {
			if resp.StatusCode != http.StatusOK {
				var err error = &StatusError{StatusCode: resp.StatusCode}
				return IOE.Left[int64](err)
			}
			bar := d.newProgressBar(resp.ContentLength, filepath.Base(target))
			return IOE.Bracket(
				createPartial(target),
				func(f *os.File) IOE.IOEither[error, int64] {
					var writer io.Writer = f
					if bar != nil {
						writer = io.MultiWriter(f, bar)
					}
					return IOE.TryCatchError(func() (int64, error) {
						return io.Copy(writer, resp.Body)
					})
				},
				func(f *os.File, res ET.Either[error, int64]) IOE.IOEither[error, any] {
					return IOE.TryCatchError(func() (any, error) {
						if bar != nil {
							_ = bar.Finish()
						}
						return nil, commitPartial(f, target, ET.IsRight(res))
					})
				},
			)
		},
		func(resp *http.Response, _ ET.Either[error, int64]) IOE.IOEither[error, any] {
			return IOE.TryCatchError(func() (any, error) { return nil, resp.Body.Close() })
		},
	)
}

// createPartial opens a temporary file next to target. The target itself is
// only replaced by commitPartial once the whole body has been written.
func createPartial(target string) IOE.IOEither[error, *os.File] {
	return IOE.TryCatchError(func() (*os.File, error) {
		return os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.part")
	})
}

func commitPartial(f *os.File, target string, ok bool) error {
	closeErr := f.Close()
	if !ok || closeErr != nil {
		_ = os.Remove(f.Name())
		return closeErr
	}
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		_ = os.Remove(f.Name())
		return err
	}
	if err := os.Rename(f.Name(), target); err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("move download into place: %w", err)
	}
	return nil
}

func (d *Downloader) newProgressBar(size int64, name string) *progressbar.ProgressBar {
	if d.progressOut == nil {
		return nil
	}
	return progressbar.NewOptions64(
		size,
		progressbar.OptionSetWriter(d.progressOut),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Downloading "+name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// verifyPDF succeeds when path exists and starts like a PDF document.
func verifyPDF(path string) IOE.IOEither[error, string] {
	use := func(f *os.File) IOE.IOEither[error, string] {
		head := make([]byte, len(pdfMagic))
		if _, err := io.ReadFull(f, head); err != nil {
			return IOE.Left[string](err)
		}
		if !bytes.Equal(head, pdfMagic) {
			return IOE.Left[string](fmt.Errorf("%s is not a PDF", path))
		}
		return IOE.Right[error](path)
	}
	release := func(f *os.File, _ ET.Either[error, string]) IOE.IOEither[error, any] {
		return IOE.TryCatchError(func() (any, error) { return nil, f.Close() })
	}
	return IOE.Bracket(file.Open(path), use, release)
}
