package cinetpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sunupay/subscription-service/internal/domain"
	"github.com/sunupay/subscription-service/internal/gateway"
	"github.com/sunupay/subscription-service/pkg/logger"
)

const providerName = "cinetpay"

// Config holds CinetPay API credentials and endpoints
type Config struct {
	BaseURL   string
	APIKey    string
	SiteID    string
	SecretKey string
	NotifyURL string
	ReturnURL string
}

// Client initiates payments through the CinetPay API
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new CinetPay client
func NewClient(cfg Config, log *logger.Logger) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// Name returns the provider identifier
func (c *Client) Name() string {
	return providerName
}

type initPaymentBody struct {
	APIKey        string `json:"apikey"`
	SiteID        string `json:"site_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Description   string `json:"description"`
	NotifyURL     string `json:"notify_url"`
	ReturnURL     string `json:"return_url"`
	Channels      string `json:"channels"`
}

type initPaymentResponse struct {
	Code string `json:"code"`
	Data struct {
		PaymentURL string `json:"payment_url"`
	} `json:"data"`
}

// CreateCharge asks CinetPay for a payment session. CinetPay echoes the
// transaction id we supply, so the charge reference doubles as the
// gateway transaction id.
func (c *Client) CreateCharge(ctx context.Context, charge gateway.Charge) (*gateway.ChargeResult, error) {
	body := initPaymentBody{
		APIKey:        c.cfg.APIKey,
		SiteID:        c.cfg.SiteID,
		TransactionID: charge.ReferenceID,
		Amount:        charge.Amount,
		Currency:      charge.Currency,
		Description:   charge.Description,
		NotifyURL:     c.cfg.NotifyURL,
		ReturnURL:     c.cfg.ReturnURL,
		Channels:      "ALL",
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/payment", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Errorw("CinetPay request failed", "error", err, "ref", charge.ReferenceID)
		return nil, domain.NewExternalServiceError(providerName, "REQUEST_FAILED", "payment request failed", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.log.Errorw("CinetPay returned non-OK status", "status", resp.StatusCode, "ref", charge.ReferenceID)
		return nil, domain.NewExternalServiceError(providerName, "BAD_STATUS",
			fmt.Sprintf("payment request returned status %d", resp.StatusCode), resp.StatusCode, nil)
	}

	var result initPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, domain.NewExternalServiceError(providerName, "BAD_RESPONSE", "failed to decode payment response", resp.StatusCode, err)
	}

	// CinetPay uses "201" for a successfully created payment session
	if result.Code != "201" || result.Data.PaymentURL == "" {
		c.log.Errorw("CinetPay rejected payment request", "code", result.Code, "ref", charge.ReferenceID)
		return nil, domain.NewExternalServiceError(providerName, "REJECTED", "payment request rejected", resp.StatusCode, nil)
	}

	c.log.Infow("CinetPay payment session created", "ref", charge.ReferenceID)
	return &gateway.ChargeResult{
		TransactionID: charge.ReferenceID,
		RedirectURL:   result.Data.PaymentURL,
	}, nil
}
