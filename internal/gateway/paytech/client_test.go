package paytech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sunupay/subscription-service/internal/domain"
	"github.com/sunupay/subscription-service/internal/gateway"
)

func testCharge() gateway.Charge {
	return gateway.Charge{
		ReferenceID: "ref-1",
		UserID:      "user-1",
		Tier:        domain.TierStudent,
		Amount:      2000,
		Currency:    "XOF",
		Description: "student subscription",
	}
}

func TestCreateCharge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payment/request-payment" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("API_KEY") != "key-1" || r.Header.Get("API_SECRET") != "secret-1" {
			t.Error("credentials not forwarded")
		}

		var body requestPaymentBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if body.RefCommand != "ref-1" || body.ItemPrice != 2000 || body.Currency != "XOF" {
			t.Errorf("unexpected request body: %+v", body)
		}

		json.NewEncoder(w).Encode(requestPaymentResponse{
			Success:     1,
			Token:       "tok-1",
			RedirectURL: "https://paytech.sn/payment/tok-1",
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "key-1", APISecret: "secret-1", Env: "test"}, newTestLogger())

	result, err := client.CreateCharge(context.Background(), testCharge())
	if err != nil {
		t.Fatalf("CreateCharge returned error: %v", err)
	}
	if result.TransactionID != "tok-1" {
		t.Fatalf("unexpected transaction id: %s", result.TransactionID)
	}
	if result.RedirectURL != "https://paytech.sn/payment/tok-1" {
		t.Fatalf("unexpected redirect URL: %s", result.RedirectURL)
	}
}

func TestCreateChargeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(requestPaymentResponse{Success: 0})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, newTestLogger())

	if _, err := client.CreateCharge(context.Background(), testCharge()); !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestCreateChargeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, newTestLogger())

	if _, err := client.CreateCharge(context.Background(), testCharge()); !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestCreateChargeConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, newTestLogger())

	if _, err := client.CreateCharge(context.Background(), testCharge()); !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}
