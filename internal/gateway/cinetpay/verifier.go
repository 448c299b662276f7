package cinetpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sunupay/subscription-service/internal/domain"
	"github.com/sunupay/subscription-service/pkg/logger"
)

// hmacFields lists the cpm_* form fields, in order, that CinetPay
// concatenates when computing the x-token HMAC.
var hmacFields = []string{
	"cpm_site_id",
	"cpm_trans_id",
	"cpm_trans_date",
	"cpm_amount",
	"cpm_currency",
	"signature",
	"payment_method",
	"cel_phone_num",
	"cpm_phone_prefixe",
	"cpm_language",
	"cpm_version",
	"cpm_payment_config",
	"cpm_page_action",
	"cpm_custom",
	"cpm_designation",
	"cpm_error_message",
}

// Verifier authenticates CinetPay notification callbacks using the
// x-token HMAC header.
type Verifier struct {
	secretKey []byte
	log       *logger.Logger
}

// NewVerifier creates a notification verifier for the given secret key
func NewVerifier(secretKey string, log *logger.Logger) *Verifier {
	return &Verifier{
		secretKey: []byte(secretKey),
		log:       log,
	}
}

// Name returns the provider identifier
func (v *Verifier) Name() string {
	return providerName
}

// Verify recomputes the HMAC over the concatenated cpm_* fields and
// compares it with the x-token header. Malformed payloads are rejected
// the same way as forged ones.
func (v *Verifier) Verify(r *http.Request, body []byte) (*domain.GatewayEvent, error) {
	token := r.Header.Get("x-token")
	if token == "" {
		v.log.Warnw("CinetPay notification missing x-token header")
		return nil, domain.ErrInvalidSignature
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		v.log.Warnw("CinetPay notification payload is not valid form data", "error", err)
		return nil, domain.ErrInvalidSignature
	}

	var sb strings.Builder
	for _, field := range hmacFields {
		sb.WriteString(form.Get(field))
	}

	mac := hmac.New(sha256.New, v.secretKey)
	mac.Write([]byte(sb.String()))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(token)) {
		v.log.Warnw("CinetPay notification token mismatch")
		return nil, domain.ErrInvalidSignature
	}

	transID := form.Get("cpm_trans_id")
	if transID == "" {
		return nil, domain.ErrInvalidSignature
	}

	// Only cpm_error_message is covered by the HMAC, so the outcome is
	// decided from it alone. cpm_result is unsigned and must not be
	// trusted.
	outcome := domain.GatewayOutcomeFailure
	if form.Get("cpm_error_message") == "SUCCES" {
		outcome = domain.GatewayOutcomeSuccess
	}

	amount, _ := strconv.ParseInt(form.Get("cpm_amount"), 10, 64)

	return &domain.GatewayEvent{
		TransactionID: transID,
		Outcome:       outcome,
		Amount:        amount,
		Provider:      providerName,
		RawPayload:    body,
	}, nil
}
