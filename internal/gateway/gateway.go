package gateway

import (
	"context"
	"net/http"

	"github.com/sunupay/subscription-service/internal/domain"
)

// Charge describes a payment to initiate with a provider
type Charge struct {
	ReferenceID string
	UserID      string
	Tier        domain.Tier
	Amount      int64
	Currency    string
	Description string
}

// ChargeResult is the provider's answer to a charge request
type ChargeResult struct {
	// TransactionID is the provider's identifier for this payment,
	// echoed back later in the webhook.
	TransactionID string
	// RedirectURL is where the user completes the payment.
	RedirectURL string
}

// Client initiates charges with a payment provider
type Client interface {
	Name() string
	CreateCharge(ctx context.Context, charge Charge) (*ChargeResult, error)
}

// Verifier authenticates a provider webhook and extracts its outcome.
// A malformed payload is reported the same way as a bad signature.
type Verifier interface {
	Name() string
	Verify(r *http.Request, body []byte) (*domain.GatewayEvent, error)
}
