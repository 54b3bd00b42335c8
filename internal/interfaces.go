package internal

import (
	"context"

	"github.com/IBM/fp-go/v2/ioeither"

	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/models"
	"github.com/Qubut/invoice-generator/packages/invoice_client/internal/submit"
)

type InvoiceAPIInterface interface {
	submit.Generator
	CompanySettings(ctx context.Context) ioeither.IOEither[error, models.CompanySettings]
	SaveCompanySettings(
		ctx context.Context,
		settings models.CompanySettings,
	) ioeither.IOEither[error, models.SettingsResult]
}
