package submit

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/api"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/apitest"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/config"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/form"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/models"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/vat"
)

func newAPI(t *testing.T, srv *apitest.Server) *api.Client {
	t.Helper()
	cfg := config.Config{
		Server:   config.Server{BaseURL: srv.URL, Timeout: 5 * time.Second, MaxRetries: 1},
		Download: config.Download{Directory: t.TempDir()},
	}
	c, err := api.NewClient(
		cfg,
		tracenoop.NewTracerProvider().Tracer("test"),
		zap.NewNop().Sugar(),
		metricnoop.NewMeterProvider().Meter("test"),
		api.WithRetryBackoff(time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func filledForm(t *testing.T) *form.Form {
	t.Helper()
	f := form.New(vat.Default())
	f.SetBuyer(form.Buyer{
		Name:    "Erika Mustermann",
		Street:  "Hauptstr. 1",
		City:    "Berlin",
		Postal:  "10115",
		Country: "DE",
	})
	require.NoError(t, f.UpdateItem(f.Items()[0].ID, func(in *form.ItemInput) {
		in.ProductName = "Consulting"
		in.Quantity = "2"
		in.UnitPrice = "10.00"
	}))
	return f
}

type recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recorder) add(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) last() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}
	}
	return r.notices[len(r.notices)-1]
}

type stubGenerator struct {
	calls  int
	result models.InvoiceResult
}

func (s *stubGenerator) GenerateInvoice(context.Context, models.InvoiceRequest) IOE.IOEither[error, models.InvoiceResult] {
	s.calls++
	return IOE.Of[error](s.result)
}

func (s *stubGenerator) DownloadURL(filename string) string { return "/download/" + filename }

func (s *stubGenerator) Download(context.Context, string) IOE.IOEither[error, string] {
	return IOE.Of[error]("")
}

func TestSubmitSuccess(t *testing.T) {
	srv := apitest.NewServer(t)
	rec := &recorder{}
	c := New(filledForm(t), newAPI(t, srv), WithNotices(rec.add))

	url, ok := c.DownloadURL()
	assert.False(t, ok)
	assert.Empty(t, url)

	res, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "inv-1.pdf", res.Filename)
	assert.Equal(t, AwaitingDownload, c.State())
	assert.Equal(t, "inv-1.pdf", c.Filename())
	assert.Equal(t, Notice{Kind: NoticeSuccess, Message: SuccessMessage}, rec.last())

	url, ok = c.DownloadURL()
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/download/inv-1.pdf", url)

	_, err = c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotEditing)
	assert.Len(t, srv.Invoices(), 1)
}

func TestDownloadURLAddressesFilename(t *testing.T) {
	gen := &stubGenerator{result: models.InvoiceResult{Success: true, Filename: "inv-123.pdf"}}
	c := New(filledForm(t), gen)

	_, err := c.Submit(context.Background())
	require.NoError(t, err)
	url, ok := c.DownloadURL()
	require.True(t, ok)
	assert.Equal(t, "/download/inv-123.pdf", url)
}

func TestSubmitWithoutItemsMakesNoCall(t *testing.T) {
	gen := &stubGenerator{result: models.InvoiceResult{Filename: "x.pdf"}}
	rec := &recorder{}
	c := New(form.New(nil), gen, WithNotices(rec.add))

	_, err := c.SubmitRequest(context.Background(), models.InvoiceRequest{
		BuyerName:    "A",
		BuyerStreet:  "B",
		BuyerCity:    "C",
		BuyerPostal:  "D",
		BuyerCountry: "DE",
		VATRateType:  "standard",
	})
	assert.ErrorIs(t, err, form.ErrNoItems)
	assert.Zero(t, gen.calls)
	assert.Equal(t, Editing, c.State())
	assert.Equal(t, NoticeError, rec.last().Kind)
	assert.Equal(t, "Please add at least one item", rec.last().Message)
}

func TestSubmitInvalidFormMakesNoCall(t *testing.T) {
	gen := &stubGenerator{result: models.InvoiceResult{Filename: "x.pdf"}}
	c := New(form.New(nil), gen)

	_, err := c.Submit(context.Background())
	var verr *form.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, gen.calls)
	assert.Equal(t, Editing, c.State())
}

func TestSubmitServerErrorKeepsForm(t *testing.T) {
	srv := apitest.NewServer(t)
	srv.FailGenerate(http.StatusInternalServerError, models.ErrorResponse{Error: "PDF engine down"})
	rec := &recorder{}
	f := filledForm(t)
	before, err := f.BuildRequest()
	require.NoError(t, err)
	c := New(f, newAPI(t, srv), WithNotices(rec.add))

	_, err = c.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, Editing, c.State())
	assert.Empty(t, c.Filename())
	assert.Equal(t, Notice{Kind: NoticeError, Message: "PDF engine down"}, rec.last())

	after, err := f.BuildRequest()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	path, err := c.Download(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, path)
}

func TestSubmitEmptyFilenameFails(t *testing.T) {
	gen := &stubGenerator{result: models.InvoiceResult{Success: true}}
	c := New(filledForm(t), gen)

	_, err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNoFilename)
	assert.Equal(t, Editing, c.State())
}

func TestSubmitTimesOut(t *testing.T) {
	srv := apitest.NewServer(t)
	release := srv.Gate()
	defer release()
	c := New(filledForm(t), newAPI(t, srv), WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := c.Submit(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, Editing, c.State())
}

func TestConcurrentSubmitsReachAPIOnce(t *testing.T) {
	srv := apitest.NewServer(t)
	release := srv.Gate()
	c := New(filledForm(t), newAPI(t, srv))

	first := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		first <- err
	}()
	require.Eventually(t, func() bool { return len(srv.Invoices()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, Submitting, c.State())

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Submit(context.Background())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSubmissionInFlight)
	}

	release()
	require.NoError(t, <-first)
	assert.Len(t, srv.Invoices(), 1)
	assert.Equal(t, AwaitingDownload, c.State())
}

func TestDownloadAndStartAnother(t *testing.T) {
	srv := apitest.NewServer(t)
	client := newAPI(t, srv)
	c := New(filledForm(t), client)
	f := c.Form()
	added := f.AddItem()

	_, err := c.Submit(context.Background())
	require.Error(t, err, "second item has no product name")
	require.NoError(t, c.RemoveItem(added.ID))

	_, err = c.Submit(context.Background())
	require.NoError(t, err)

	path, err := c.Download(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	c.StartAnother()
	assert.Equal(t, Editing, c.State())
	assert.Empty(t, c.Filename())
	items := f.Items()
	require.Len(t, items, 1)
	assert.Greater(t, items[0].ID, added.ID)
	assert.Empty(t, f.Buyer().Name)
	_, ok := c.DownloadURL()
	assert.False(t, ok)
}

func TestStartAnotherWhileEditingKeepsForm(t *testing.T) {
	c := New(filledForm(t), &stubGenerator{})
	before, err := c.Form().BuildRequest()
	require.NoError(t, err)
	ids := c.Form().Items()

	c.StartAnother()
	assert.Equal(t, Editing, c.State())
	after, err := c.Form().BuildRequest()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, ids, c.Form().Items())
}

func TestRemoveLastItemWarns(t *testing.T) {
	rec := &recorder{}
	c := New(form.New(nil), &stubGenerator{}, WithNotices(rec.add))

	err := c.RemoveItem(c.Form().Items()[0].ID)
	assert.ErrorIs(t, err, form.ErrLastItem)
	assert.Equal(t, Notice{Kind: NoticeWarning, Message: "You must have at least one item in the invoice"}, rec.last())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "editing", Editing.String())
	assert.Equal(t, "submitting", Submitting.String())
	assert.Equal(t, "awaiting download", AwaitingDownload.String())
}
