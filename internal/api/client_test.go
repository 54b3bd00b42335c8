package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/apitest"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/config"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/models"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := config.Config{
		Server: config.Server{
			BaseURL:    baseURL,
			Timeout:    5 * time.Second,
			MaxRetries: 2,
		},
		Download: config.Download{Directory: t.TempDir()},
	}
	c, err := NewClient(
		cfg,
		tracenoop.NewTracerProvider().Tracer("test"),
		zap.NewNop().Sugar(),
		metricnoop.NewMeterProvider().Meter("test"),
		WithRetryBackoff(time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func sampleInvoice() models.InvoiceRequest {
	return models.InvoiceRequest{
		BuyerName:     "Erika Mustermann",
		BuyerStreet:   "Hauptstr. 1",
		BuyerCity:     "Berlin",
		BuyerPostal:   "10115",
		BuyerCountry:  "DE",
		VATRateType:   "standard",
		VATRate:       decimal.RequireFromString("0.19"),
		ShippingTotal: decimal.NewFromInt(5),
		Currency:      "€",
		PaymentTerms:  "Net 30",
		Items: []models.LineItem{{
			ProductName: "Consulting",
			SKU:         "SKU-1",
			Quantity:    2,
			UnitPrice:   decimal.RequireFromString("10.00"),
			UnitCode:    models.UnitPieces,
		}},
	}
}

func TestGenerateInvoice(t *testing.T) {
	srv := apitest.NewServer(t)
	c := newTestClient(t, srv.URL)

	res, err := ET.UnwrapError(c.GenerateInvoice(context.Background(), sampleInvoice())())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "inv-1.pdf", res.Filename)

	sent := srv.Invoices()
	require.Len(t, sent, 1)
	assert.Equal(t, "DE", sent[0].BuyerCountry)
	assert.True(t, sent[0].Items[0].UnitPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, sent[0].VATRate.Equal(decimal.RequireFromString("0.19")))
	ids := srv.RequestIDs()
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])
}

func TestGenerateInvoiceIsLazy(t *testing.T) {
	srv := apitest.NewServer(t)
	c := newTestClient(t, srv.URL)

	_ = c.GenerateInvoice(context.Background(), sampleInvoice())
	assert.Empty(t, srv.Invoices())
}

func TestGenerateInvoiceServerError(t *testing.T) {
	srv := apitest.NewServer(t)
	srv.FailGenerate(http.StatusInternalServerError, models.ErrorResponse{Error: "Company settings missing"})
	c := newTestClient(t, srv.URL)

	_, err := ET.UnwrapError(c.GenerateInvoice(context.Background(), sampleInvoice())())
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusInternalServerError, terr.StatusCode)
	assert.Equal(t, "Company settings missing", err.Error())
	assert.Len(t, srv.Invoices(), 1, "generation must not be retried")
}

func TestGenerateInvoiceServerErrorWithoutMessage(t *testing.T) {
	srv := apitest.NewServer(t)
	srv.FailGenerate(http.StatusBadGateway, "<html>bad gateway</html>")
	c := newTestClient(t, srv.URL)

	_, err := ET.UnwrapError(c.GenerateInvoice(context.Background(), sampleInvoice())())
	require.Error(t, err)
	assert.Equal(t, GenerateFailedMessage, err.Error())
}

func TestGenerateInvoiceUnreachable(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")

	_, err := ET.UnwrapError(c.GenerateInvoice(context.Background(), sampleInvoice())())
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Zero(t, terr.StatusCode)
	assert.Equal(t, GenerateFailedMessage, err.Error())
}

func TestGenerateInvoiceCancelled(t *testing.T) {
	srv := apitest.NewServer(t)
	release := srv.Gate()
	defer release()
	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := ET.UnwrapError(c.GenerateInvoice(ctx, sampleInvoice())())
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Zero(t, terr.StatusCode)
	assert.Equal(t, GenerateFailedMessage, err.Error())
	assert.Error(t, ctx.Err())
}

func TestDownloadURL(t *testing.T) {
	c := newTestClient(t, "http://localhost:5001/")
	assert.Equal(t, "http://localhost:5001/download/inv-123.pdf", c.DownloadURL("inv-123.pdf"))
}

func TestDownload(t *testing.T) {
	srv := apitest.NewServer(t)
	srv.PutFile("inv-7.pdf", []byte("%PDF-1.7 seven"))
	srv.FailDownloads(1)
	c := newTestClient(t, srv.URL)

	path, err := ET.UnwrapError(c.Download(context.Background(), "inv-7.pdf")())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Cfg.Download.Directory, "inv-7.pdf"), path)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 seven", string(content))
	assert.Equal(t, 2, srv.DownloadCalls())

	_, err = ET.UnwrapError(c.Download(context.Background(), "inv-7.pdf")())
	require.NoError(t, err)
	assert.Equal(t, 2, srv.DownloadCalls(), "existing PDF is kept")
}

func TestDownloadNotFoundIsNotRetried(t *testing.T) {
	srv := apitest.NewServer(t)
	c := newTestClient(t, srv.URL)

	_, err := ET.UnwrapError(c.Download(context.Background(), "missing.pdf")())
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusNotFound, terr.StatusCode)
	assert.Equal(t, 1, srv.DownloadCalls())
	assert.NoFileExists(t, filepath.Join(c.Cfg.Download.Directory, "missing.pdf"))
}

func TestDownloadStripsDirectories(t *testing.T) {
	srv := apitest.NewServer(t)
	srv.PutFile("inv-1.pdf", []byte("%PDF-1.7"))
	c := newTestClient(t, srv.URL)

	path, err := ET.UnwrapError(c.Download(context.Background(), "../../inv-1.pdf")())
	require.NoError(t, err)
	assert.Equal(t, c.Cfg.Download.Directory, filepath.Dir(path))

	_, err = ET.UnwrapError(c.Download(context.Background(), "..")())
	assert.Error(t, err)
}

func TestCompanySettingsRoundTrip(t *testing.T) {
	srv := apitest.NewServer(t)
	c := newTestClient(t, srv.URL)

	settings := models.CompanySettings{
		"name":         "Acme GmbH",
		"address_line": "Hauptstr. 1, 10115 Berlin",
		"uid":          "DE123456789",
		"court":        "AG Berlin",
		"bank":         "Sparkasse",
		"iban":         "DE02120300000000202051",
	}
	res, err := ET.UnwrapError(c.SaveCompanySettings(context.Background(), settings)())
	require.NoError(t, err)
	assert.True(t, res.Success)

	got, err := ET.UnwrapError(c.CompanySettings(context.Background())())
	require.NoError(t, err)
	assert.Equal(t, settings, got)
}

func TestSaveIncompleteSettingsSendsNothing(t *testing.T) {
	srv := apitest.NewServer(t)
	c := newTestClient(t, srv.URL)

	_, err := ET.UnwrapError(c.SaveCompanySettings(context.Background(), models.CompanySettings{"name": "Acme"})())
	assert.ErrorIs(t, err, ErrIncompleteSettings)
	assert.Contains(t, err.Error(), "iban")
	assert.Zero(t, srv.SettingsCalls())
}
