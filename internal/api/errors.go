package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/download"
)

const (
	GenerateFailedMessage = "Failed to generate invoice. Please try again."
	SettingsFailedMessage = "Failed to save settings"
	DownloadFailedMessage = "Failed to download invoice"
)

var ErrIncompleteSettings = errors.New("company settings incomplete")

// TransportError is a failed exchange with the invoice API: a network error
// or a non-2xx answer. Message is the server's own error text when it sent one.
type TransportError struct {
	StatusCode int
	Message    string
	Fallback   string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Fallback
}

func (e *TransportError) Unwrap() error { return e.Err }

// Detail includes the status and cause, for logs.
func (e *TransportError) Detail() string {
	msg := e.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// retryable is false for answers a retry cannot change.
func retryable(err error) bool {
	var terr *TransportError
	if errors.As(err, &terr) && terr.StatusCode >= http.StatusBadRequest && terr.StatusCode < http.StatusInternalServerError {
		return false
	}
	return download.Retryable(err)
}

func asTransportError(err error, fallback string) *TransportError {
	var terr *TransportError
	if errors.As(err, &terr) {
		return terr
	}
	return &TransportError{Fallback: fallback, Err: err}
}
