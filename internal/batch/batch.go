// Package batch submits several invoice drafts with bounded concurrency and
// reports the outcome of each.
package batch

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Result is the outcome of one draft. Err is nil on success.
type Result struct {
	Draft    string
	Filename string
	Path     string
	Total    string
	Err      error
}

func (r Result) Status() string {
	if r.Err != nil {
		return "failed"
	}
	return "generated"
}

// Submitter turns one draft into an invoice.
type Submitter func(ctx context.Context, draft string) Result

type Runner struct {
	Logger          *zap.SugaredLogger
	Tracer          trace.Tracer
	Meter           metric.Meter
	workers         int64
	progressOut     io.Writer
	sessionDuration metric.Int64Histogram
	draftsSuccess   metric.Int64Counter
	draftsFailed    metric.Int64Counter
}

func NewRunner(
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
	workers int64,
	progressOut io.Writer,
) (*Runner, error) {
	if workers < 1 {
		workers = 1
	}
	r := &Runner{
		Logger:      logger,
		Tracer:      tracer,
		Meter:       meter,
		workers:     workers,
		progressOut: progressOut,
	}

	var err error
	r.sessionDuration, err = meter.Int64Histogram(
		"batch.session.duration",
		metric.WithDescription("Duration of a batch submission"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	r.draftsSuccess, err = meter.Int64Counter(
		"batch.drafts.success",
		metric.WithDescription("Drafts turned into invoices"),
	)
	if err != nil {
		return nil, err
	}

	r.draftsFailed, err = meter.Int64Counter(
		"batch.drafts.failed",
		metric.WithDescription("Drafts that could not be submitted"),
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Run submits every draft and returns the results in input order. Drafts not
// started before ctx is cancelled report ctx's error.
func (r *Runner) Run(ctx context.Context, drafts []string, submit Submitter) []Result {
	ctx, span := r.Tracer.Start(ctx, "batch.session", trace.WithAttributes(
		attribute.Int("drafts", len(drafts)),
		attribute.Int64("workers", r.workers),
	))
	defer span.End()
	startTime := time.Now()

	var bar *progressbar.ProgressBar
	if r.progressOut != nil {
		bar = progressbar.NewOptions(len(drafts),
			progressbar.OptionSetWriter(r.progressOut),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Submitting drafts..."),
			progressbar.OptionShowCount(),
			progressbar.OptionSetElapsedTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}

	results := make([]Result, len(drafts))
	sem := semaphore.NewWeighted(r.workers)
	var wg sync.WaitGroup
	var failed atomic.Int64

	for i, path := range drafts {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(drafts); j++ {
				results[j] = Result{Draft: drafts[j], Err: err}
			}
			failed.Add(int64(len(drafts) - i))
			r.Logger.Warn("Batch submission cancelled")
			break
		}
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			defer sem.Release(1)

			res := submit(ctx, path)
			res.Draft = path
			results[i] = res
			if res.Err != nil {
				failed.Add(1)
				r.draftsFailed.Add(ctx, 1)
				r.Logger.Warnw("Draft failed", "draft", path, "error", res.Err)
			} else {
				r.draftsSuccess.Add(ctx, 1)
			}
			if bar != nil {
				_ = bar.Add(1)
			}
		}(i, path)
	}
	wg.Wait()
	if bar != nil {
		_ = bar.Finish()
	}

	status := "success"
	if failed.Load() > 0 {
		status = "partial"
	}
	r.sessionDuration.Record(ctx, time.Since(startTime).Milliseconds(),
		metric.WithAttributes(attribute.String("status", status)))
	r.Logger.Infow("Batch finished", "drafts", len(drafts), "failed", failed.Load())
	return results
}

// Failed counts results that carry an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// WriteReport writes one CSV row per result.
func WriteReport(path string, results []Result) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer file.Close()

	buf := bufio.NewWriter(file)
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"draft", "status", "filename", "path", "total", "error"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		if err := writer.Write([]string{r.Draft, r.Status(), r.Filename, r.Path, r.Total, errText}); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	return file.Close()
}

// Summary is a one-line description of a batch.
func Summary(results []Result) string {
	failed := Failed(results)
	return strconv.Itoa(len(results)-failed) + " generated, " + strconv.Itoa(failed) + " failed"
}
