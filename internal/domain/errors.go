package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound record not found
	ErrNotFound = errors.New("record not found")

	// ErrAlreadySubscribed the user already holds a current active subscription
	ErrAlreadySubscribed = errors.New("already subscribed")

	// ErrInvalidTier the requested plan is not in the tier catalog
	ErrInvalidTier = errors.New("invalid tier")

	// ErrGatewayUnavailable the payment gateway could not be reached or answered badly
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrInvalidSignature the callback signature or payload failed verification
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrUnknownTransaction no subscription matches the callback's transaction id
	ErrUnknownTransaction = errors.New("unknown gateway transaction")

	// ErrForbidden the caller does not own the record
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState the record's status does not permit the operation
	ErrInvalidState = errors.New("invalid subscription state")

	// ErrInternal internal error
	ErrInternal = errors.New("internal error")
)

// SubscriptionError carries the subscription id alongside a lifecycle error
type SubscriptionError struct {
	Code           string
	Message        string
	SubscriptionID string
	OriginalErr    error
}

// Error implements the error interface
func (e *SubscriptionError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("subscription error [%s]: %s: %v (subscription_id: %s)", e.Code, e.Message, e.OriginalErr, e.SubscriptionID)
	}
	return fmt.Sprintf("subscription error [%s]: %s (subscription_id: %s)", e.Code, e.Message, e.SubscriptionID)
}

// Unwrap returns the original error
func (e *SubscriptionError) Unwrap() error {
	return e.OriginalErr
}

// NewSubscriptionError creates a new subscription error
func NewSubscriptionError(code, message, subscriptionID string, err error) *SubscriptionError {
	return &SubscriptionError{
		Code:           code,
		Message:        message,
		SubscriptionID: subscriptionID,
		OriginalErr:    err,
	}
}

// ExternalServiceError represents a failure of an external collaborator
type ExternalServiceError struct {
	Service     string
	Code        string
	Message     string
	StatusCode  int
	OriginalErr error
}

// Error implements the error interface
func (e *ExternalServiceError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s service error [%s]: %s: %v", e.Service, e.Code, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("%s service error [%s]: %s", e.Service, e.Code, e.Message)
}

// Unwrap returns the original error
func (e *ExternalServiceError) Unwrap() error {
	return e.OriginalErr
}

// Is lets gateway failures match ErrGatewayUnavailable in errors.Is checks
func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrGatewayUnavailable
}

// NewExternalServiceError creates a new external service error
func NewExternalServiceError(service, code, message string, statusCode int, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:     service,
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		OriginalErr: err,
	}
}
