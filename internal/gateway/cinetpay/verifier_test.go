package cinetpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/sunupay/subscription-service/internal/domain"
	"github.com/sunupay/subscription-service/pkg/logger"
)

func newTestLogger() *logger.Logger {
	log := logger.New(logger.ERROR)
	log.SetOutput(io.Discard)
	return log
}

func notificationForm(errorMessage string) url.Values {
	form := url.Values{}
	form.Set("cpm_site_id", "site-1")
	form.Set("cpm_trans_id", "tx-1")
	form.Set("cpm_trans_date", "2026-08-31 10:00:00")
	form.Set("cpm_amount", "5000")
	form.Set("cpm_currency", "XOF")
	form.Set("signature", "sig")
	form.Set("payment_method", "OM")
	form.Set("cpm_error_message", errorMessage)
	return form
}

func signForm(form url.Values, secret string) string {
	var sb strings.Builder
	for _, field := range hmacFields {
		sb.WriteString(form.Get(field))
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sb.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

func notificationRequest(token string) *http.Request {
	req, _ := http.NewRequest(http.MethodPost, "/webhooks/cinetpay", nil)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.Header.Set("x-token", token)
	}
	return req
}

func TestVerifyAcceptsValidNotification(t *testing.T) {
	v := NewVerifier("secret-1", newTestLogger())
	form := notificationForm("SUCCES")
	body := []byte(form.Encode())

	event, err := v.Verify(notificationRequest(signForm(form, "secret-1")), body)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if event.TransactionID != "tx-1" {
		t.Fatalf("unexpected transaction id: %s", event.TransactionID)
	}
	if event.Outcome != domain.GatewayOutcomeSuccess {
		t.Fatalf("expected success outcome, got %s", event.Outcome)
	}
	if event.Amount != 5000 || event.Provider != "cinetpay" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestVerifyMapsFailedResult(t *testing.T) {
	v := NewVerifier("secret-1", newTestLogger())
	form := notificationForm("ECHEC")
	body := []byte(form.Encode())

	event, err := v.Verify(notificationRequest(signForm(form, "secret-1")), body)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if event.Outcome != domain.GatewayOutcomeFailure {
		t.Fatalf("expected failure outcome, got %s", event.Outcome)
	}
}

func TestVerifyIgnoresUnsignedResultField(t *testing.T) {
	v := NewVerifier("secret-1", newTestLogger())
	form := notificationForm("ECHEC")
	token := signForm(form, "secret-1")

	// cpm_result is not part of the HMAC, so appending it does not
	// invalidate the token. It must not change the outcome either.
	form.Set("cpm_result", "00")
	body := []byte(form.Encode())

	event, err := v.Verify(notificationRequest(token), body)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if event.Outcome != domain.GatewayOutcomeFailure {
		t.Fatalf("unsigned cpm_result flipped outcome to %s", event.Outcome)
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("secret-1", newTestLogger())
	form := notificationForm("SUCCES")
	body := []byte(form.Encode())

	tests := []struct {
		name string
		req  *http.Request
		body []byte
	}{
		{"missing token", notificationRequest(""), body},
		{"wrong secret", notificationRequest(signForm(form, "secret-forged")), body},
		{"tampered body", notificationRequest(signForm(form, "secret-1")), []byte("cpm_trans_id=tx-2")},
		{"malformed body", notificationRequest(signForm(form, "secret-1")), []byte("%zz")},
	}

	for _, tt := range tests {
		if _, err := v.Verify(tt.req, tt.body); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Fatalf("%s: expected ErrInvalidSignature, got %v", tt.name, err)
		}
	}
}
