// Package invoice builds invoices for case purchases: case lookup,
// PaymentPayload construction, and the platform createInvoiceLink call.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wisbric/paygate/internal/telemetry"
	"github.com/wisbric/paygate/pkg/cryptoutil"
	"github.com/wisbric/paygate/pkg/economy"
	"github.com/wisbric/paygate/pkg/platformclient"
)

const nonceLength = 16

// ErrCaseNotFound is returned when the requested case is not in the catalog.
var ErrCaseNotFound = errors.New("invoice: case not found")

// Platform is the subset of platformclient.Client the invoice service calls.
type Platform interface {
	CreateInvoiceLink(ctx context.Context, title, description, payload, currency string, priceStars int64, providerToken string) (string, error)
}

// Result is what CreateInvoice hands back to the mini-app caller.
type Result struct {
	InvoiceLink string
	Payload     PaymentPayload
}

// Service builds invoices for case purchases.
type Service struct {
	catalog       economy.Catalog
	platform      Platform
	currency      string
	titlePrefix   string
	providerToken string
	now           func() time.Time
}

// New creates an invoice Service. currency must be "XTR" (Telegram Stars),
// enforced at startup by internal/app, not re-checked here.
func New(catalog economy.Catalog, platform Platform, currency, titlePrefix, providerToken string) *Service {
	return &Service{
		catalog:       catalog,
		platform:      platform,
		currency:      currency,
		titlePrefix:   titlePrefix,
		providerToken: providerToken,
		now:           time.Now,
	}
}

// CreateInvoice looks up caseID, builds a PaymentPayload binding it to
// userID, and requests an invoice link from the platform.
func (s *Service) CreateInvoice(ctx context.Context, caseID string, userID int64) (Result, error) {
	cfg, ok := s.catalog.Lookup(caseID)
	if !ok {
		telemetry.InvoiceFailedTotal.WithLabelValues("case_not_found").Inc()
		return Result{}, ErrCaseNotFound
	}

	nonce, err := cryptoutil.Base62Nonce(nonceLength)
	if err != nil {
		telemetry.InvoiceFailedTotal.WithLabelValues("nonce").Inc()
		return Result{}, fmt.Errorf("invoice: generating nonce: %w", err)
	}

	payload := PaymentPayload{
		CaseID: cfg.ID,
		UserID: userID,
		Nonce:  nonce,
		Ts:     s.now().Unix(),
	}

	encoded, err := Encode(payload)
	if err != nil {
		telemetry.InvoiceFailedTotal.WithLabelValues("payload_too_large").Inc()
		return Result{}, err
	}

	title := cfg.Title
	if s.titlePrefix != "" {
		title = strings.TrimSpace(s.titlePrefix) + " " + title
	}

	link, err := s.platform.CreateInvoiceLink(ctx, title, title, encoded, s.currency, cfg.PriceStars, s.providerToken)
	if err != nil {
		telemetry.InvoiceFailedTotal.WithLabelValues("platform").Inc()
		return Result{}, fmt.Errorf("invoice: createInvoiceLink: %w", err)
	}

	telemetry.InvoiceCreatedTotal.Inc()
	return Result{InvoiceLink: link, Payload: payload}, nil
}

var _ Platform = (*platformclient.Client)(nil)
