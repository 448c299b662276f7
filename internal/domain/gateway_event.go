package domain

// GatewayOutcome is the normalized result a gateway reports for a charge
type GatewayOutcome string

const (
	GatewayOutcomeSuccess GatewayOutcome = "success"
	GatewayOutcomeFailure GatewayOutcome = "failure"
)

// GatewayEvent is a verified, normalized gateway callback. Instances are
// only produced by a webhook verifier after the signature check passed;
// the state machine trusts them without further cryptographic checks.
type GatewayEvent struct {
	TransactionID string         `json:"transaction_id"`
	Outcome       GatewayOutcome `json:"outcome"`
	Amount        int64          `json:"amount"`
	Provider      string         `json:"provider"`
	RawPayload    []byte         `json:"-"`
}
