package x402

import "fmt"

// PaymentError represents a payment-specific error
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	// Client-input errors, surfaced as 4xx and never retried server-side.
	ErrCodeMalformedProof      = "malformed_proof"
	ErrCodeUnsupportedProtocol = "unsupported_protocol"

	// Payment rejections, surfaced as 402. Never cached: a fresh proof gets
	// a fresh verification attempt.
	ErrCodeTxNotFound         = "tx_not_found"
	ErrCodeRecipientMismatch  = "recipient_mismatch"
	ErrCodeInsufficientAmount = "insufficient_amount"
	ErrCodeAmountMismatch     = "amount_mismatch"

	// Transient infrastructure error, surfaced as 503. Callers should retry
	// with backoff.
	ErrCodeVerificationUnavailable = "verification_unavailable"
)

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Retriable reports whether the error is a transient infrastructure failure
// rather than a verdict on the proof itself.
func (e *PaymentError) Retriable() bool {
	return e.Code == ErrCodeVerificationUnavailable
}

// ClientInput reports whether the error was caused by a malformed or
// unsupported request rather than by the payment it references.
func (e *PaymentError) ClientInput() bool {
	return e.Code == ErrCodeMalformedProof || e.Code == ErrCodeUnsupportedProtocol
}
