// Package apitest runs an in-process invoice API for tests.
package apitest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/models"
)

// Server records what it receives and answers like the invoice service.
// Zero-value behavior is a successful generation of "inv-<n>.pdf".
type Server struct {
	URL string

	mu               sync.Mutex
	invoices         []models.InvoiceRequest
	requestIDs       []string
	settings         models.CompanySettings
	files            map[string][]byte
	generateStatus   int
	generateBody     any
	generateGate     chan struct{}
	downloadFailures int
	downloadCalls    int
	settingsCalls    int
}

func NewServer(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &Server{
		settings: models.CompanySettings{},
		files:    map[string][]byte{},
	}
	r := gin.New()
	r.POST("/api/generate-invoice", s.generate)
	r.GET("/api/company-settings", s.getSettings)
	r.POST("/api/company-settings", s.saveSettings)
	r.GET("/download/:filename", s.download)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	s.URL = ts.URL
	return s
}

// FailGenerate makes generation answer status with body as JSON.
func (s *Server) FailGenerate(status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generateStatus = status
	s.generateBody = body
}

// Gate holds generation requests until the returned func is called.
func (s *Server) Gate() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	s.generateGate = gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// FailDownloads makes the next n downloads answer 503.
func (s *Server) FailDownloads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadFailures = n
}

func (s *Server) PutFile(name string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = content
}

func (s *Server) Invoices() []models.InvoiceRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.InvoiceRequest(nil), s.invoices...)
}

func (s *Server) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requestIDs...)
}

func (s *Server) Settings() models.CompanySettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := models.CompanySettings{}
	for k, v := range s.settings {
		out[k] = v
	}
	return out
}

func (s *Server) SettingsCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settingsCalls
}

func (s *Server) DownloadCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloadCalls
}

func (s *Server) generate(c *gin.Context) {
	var req models.InvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	s.mu.Lock()
	s.invoices = append(s.invoices, req)
	s.requestIDs = append(s.requestIDs, c.GetHeader("X-Request-ID"))
	n := len(s.invoices)
	gate, status, body := s.generateGate, s.generateStatus, s.generateBody
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-c.Request.Context().Done():
			return
		}
	}
	if status != 0 {
		if raw, ok := body.(string); ok {
			c.String(status, raw)
			return
		}
		c.JSON(status, body)
		return
	}

	name := fmt.Sprintf("inv-%d.pdf", n)
	s.PutFile(name, []byte("%PDF-1.7 "+name))
	c.JSON(http.StatusOK, models.InvoiceResult{
		Success:     true,
		InvoiceID:   uuid.NewString(),
		Filename:    name,
		DownloadURL: "/download/" + name,
	})
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.Settings())
}

func (s *Server) saveSettings(c *gin.Context) {
	var settings models.CompanySettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	s.mu.Lock()
	s.settingsCalls++
	for k, v := range settings {
		s.settings[k] = v
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, models.SettingsResult{Success: true, Message: "Settings saved successfully"})
}

func (s *Server) download(c *gin.Context) {
	name := c.Param("filename")
	s.mu.Lock()
	s.downloadCalls++
	failing := s.downloadFailures > 0
	if failing {
		s.downloadFailures--
	}
	content, ok := s.files[name]
	s.mu.Unlock()

	switch {
	case failing:
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "try again"})
	case !ok:
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not found"})
	default:
		c.Data(http.StatusOK, "application/pdf", content)
	}
}
