package paytech

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

const providerName = "paytech"

// Config holds PayTech API credentials and endpoints
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	IPNURL     string
	SuccessURL string
	CancelURL  string
	Env        string
}

// Client initiates payments through the PayTech API
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new PayTech client
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

type requestPaymentBody struct {
	ItemName    string `json:"item_name"`
	ItemPrice   int64  `json:"item_price"`
	Currency    string `json:"currency"`
	RefCommand  string `json:"ref_command"`
	CommandName string `json:"command_name"`
	Env         string `json:"env"`
	IPNURL      string `json:"ipn_url"`
	SuccessURL  string `json:"success_url"`
	CancelURL   string `json:"cancel_url"`
}

type requestPaymentResponse struct {
	Success     int    `json:"success"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// CreateCharge asks PayTech for a payment session and returns the
// redirect URL along with the PayTech token identifying the session.
func (c *Client) CreateCharge(ctx context.Context, charge gateway.Charge) (*gateway.ChargeResult, error) {
	body := requestPaymentBody{
		ItemName:    string(charge.Tier),
		ItemPrice:   charge.Amount,
		Currency:    charge.Currency,
		RefCommand:  charge.ReferenceID,
		CommandName: charge.Description,
		Env:         c.cfg.Env,
		IPNURL:      c.cfg.IPNURL,
		SuccessURL:  c.cfg.SuccessURL,
		CancelURL:   c.cfg.CancelURL,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/payment/request-payment", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("API_KEY", c.cfg.APIKey)
	req.Header.Set("API_SECRET", c.cfg.APISecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Errorw("PayTech request failed", "error", err, "ref", charge.ReferenceID)
		return nil, domain.NewExternalServiceError(providerName, "REQUEST_FAILED", "payment request failed", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Errorw("PayTech returned non-OK status", "status", resp.StatusCode, "ref", charge.ReferenceID)
		return nil, domain.NewExternalServiceError(providerName, "BAD_STATUS",
			fmt.Sprintf("payment request returned status %d", resp.StatusCode), resp.StatusCode, nil)
	}

	var result requestPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, domain.NewExternalServiceError(providerName, "BAD_RESPONSE", "failed to decode payment response", resp.StatusCode, err)
	}

	if result.Success != 1 || result.Token == "" || result.RedirectURL == "" {
		c.log.Errorw("PayTech rejected payment request", "ref", charge.ReferenceID)
		return nil, domain.NewExternalServiceError(providerName, "REJECTED", "payment request rejected", resp.StatusCode, nil)
	}

	c.log.Infow("PayTech payment session created", "ref", charge.ReferenceID, "token", result.Token)
	return &gateway.ChargeResult{
		TransactionID: result.Token,
		RedirectURL:   result.RedirectURL,
	}, nil
}
