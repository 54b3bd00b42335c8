package download

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/apitest"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/config"
)

func newDownloader(t *testing.T, overwrite bool) *Downloader {
	t.Helper()
	cfg := config.Config{
		Server:   config.Server{Timeout: 5 * time.Second, MaxRetries: 2},
		Download: config.Download{Directory: t.TempDir(), Overwrite: overwrite},
	}
	d, err := NewDownloader(
		cfg,
		&http.Client{Timeout: cfg.Server.Timeout},
		tracenoop.NewTracerProvider().Tracer("test"),
		zap.NewNop().Sugar(),
		metricnoop.NewMeterProvider().Meter("test"),
		WithBackoff(time.Millisecond),
	)
	require.NoError(t, err)
	return d
}

func partialFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".*.part"))
	require.NoError(t, err)
	return matches
}

func TestFetchFailureKeepsExistingFile(t *testing.T) {
	srv := apitest.NewServer(t)
	d := newDownloader(t, true)
	target := filepath.Join(d.Cfg.Download.Directory, "inv-1.pdf")
	require.NoError(t, os.WriteFile(target, []byte("%PDF-1.4 existing"), 0o644))

	_, err := ET.UnwrapError(d.Fetch(context.Background(), srv.URL+"/download/inv-1.pdf", "inv-1.pdf")())
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 existing", string(content))
	assert.Empty(t, partialFiles(t, d.Cfg.Download.Directory))
}

func TestFetchFailureKeepsUnrelatedFile(t *testing.T) {
	srv := apitest.NewServer(t)
	d := newDownloader(t, false)
	target := filepath.Join(d.Cfg.Download.Directory, "notes.pdf")
	require.NoError(t, os.WriteFile(target, []byte("not a pdf"), 0o644))

	_, err := ET.UnwrapError(d.Fetch(context.Background(), srv.URL+"/download/notes.pdf", "notes.pdf")())
	require.Error(t, err)
	assert.FileExists(t, target)
}

func TestFetchOverwriteReplacesFile(t *testing.T) {
	srv := apitest.NewServer(t)
	srv.PutFile("inv-2.pdf", []byte("%PDF-1.7 fresh"))
	srv.FailDownloads(1)
	d := newDownloader(t, true)
	target := filepath.Join(d.Cfg.Download.Directory, "inv-2.pdf")
	require.NoError(t, os.WriteFile(target, []byte("%PDF-1.4 stale"), 0o644))

	path, err := ET.UnwrapError(d.Fetch(context.Background(), srv.URL+"/download/inv-2.pdf", "inv-2.pdf")())
	require.NoError(t, err)
	assert.Equal(t, target, path)
	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fresh", string(content))
	assert.Equal(t, 2, srv.DownloadCalls())
	assert.Empty(t, partialFiles(t, d.Cfg.Download.Directory))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &StatusError{StatusCode: http.StatusServiceUnavailable}, true},
		{"not found", &StatusError{StatusCode: http.StatusNotFound}, false},
		{"invalid name", fmt.Errorf("%w: %q", ErrInvalidFilename, ".."), false},
		{"cancelled", fmt.Errorf("get: %w", context.Canceled), false},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestFetchStopsAfterDeadline(t *testing.T) {
	srv := apitest.NewServer(t)
	srv.PutFile("inv-3.pdf", []byte("%PDF-1.7"))
	d := newDownloader(t, false)
	d.backoff = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	start := time.Now()
	_, err := ET.UnwrapError(d.Fetch(ctx, srv.URL+"/download/inv-3.pdf", "inv-3.pdf")())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Zero(t, srv.DownloadCalls())
}
