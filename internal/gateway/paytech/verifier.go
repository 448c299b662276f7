package paytech

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sunupay/subscription-service/internal/domain"
	"github.com/sunupay/subscription-service/pkg/logger"
)

// Verifier authenticates PayTech IPN callbacks. PayTech does not sign
// the payload; instead it echoes SHA256 digests of the merchant's API
// key and secret, which must match the configured credentials.
type Verifier struct {
	keyDigest    string
	secretDigest string
	log          *logger.Logger
}

// NewVerifier creates an IPN verifier for the given credentials
func NewVerifier(apiKey, apiSecret string, log *logger.Logger) *Verifier {
	return &Verifier{
		keyDigest:    sha256Hex(apiKey),
		secretDigest: sha256Hex(apiSecret),
		log:          log,
	}
}

// Name returns the provider identifier
func (v *Verifier) Name() string {
	return providerName
}

// Verify checks the IPN form fields against the configured credentials
// and extracts the payment outcome. Malformed payloads are rejected the
// same way as forged ones.
func (v *Verifier) Verify(r *http.Request, body []byte) (*domain.GatewayEvent, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		v.log.Warnw("PayTech IPN payload is not valid form data", "error", err)
		return nil, domain.ErrInvalidSignature
	}

	keyOK := subtle.ConstantTimeCompare([]byte(form.Get("api_key_sha256")), []byte(v.keyDigest)) == 1
	secretOK := subtle.ConstantTimeCompare([]byte(form.Get("api_secret_sha256")), []byte(v.secretDigest)) == 1
	if !keyOK || !secretOK {
		v.log.Warnw("PayTech IPN credential digests do not match")
		return nil, domain.ErrInvalidSignature
	}

	token := form.Get("token")
	if token == "" {
		return nil, domain.ErrInvalidSignature
	}

	outcome := domain.GatewayOutcomeFailure
	if form.Get("type_event") == "sale_complete" {
		outcome = domain.GatewayOutcomeSuccess
	}

	amount, _ := strconv.ParseInt(form.Get("item_price"), 10, 64)

	return &domain.GatewayEvent{
		TransactionID: token,
		Outcome:       outcome,
		Amount:        amount,
		Provider:      providerName,
		RawPayload:    body,
	}, nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
