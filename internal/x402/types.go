// Package x402 holds the wire types and validation for the x402 payment
// protocol surface of the gateway: the X-PAYMENT proof header, the 402
// challenge body, and the X-PAYMENT-RESPONSE receipt header.
package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Protocol constants. The gateway accepts a single protocol version and a
// single scheme; the network is fixed by configuration.
const (
	ProtocolVersion = 1
	SchemeExact     = "exact"

	// PaymentHeader carries the base64-encoded payment proof on requests.
	PaymentHeader = "X-PAYMENT"
	// PaymentResponseHeader carries the base64-encoded receipt on responses.
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"
)

// PaymentProof is the decoded X-PAYMENT header payload.
// Immutable once decoded; identity is Payload.Signature.
type PaymentProof struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     ProofPayload `json:"payload"`
}

// ProofPayload references a settled ledger transaction. Signature is the
// base58 transaction signature and doubles as the proof identifier. Amount
// is the claimed transfer amount in lamports, as a decimal string.
type ProofPayload struct {
	Signature string `json:"signature"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Memo      string `json:"memo,omitempty"`
}

// ProofID returns the ledger-unique identifier of the proof.
func (p *PaymentProof) ProofID() string {
	return p.Payload.Signature
}

// PaymentRequirements describes one way to pay for a resource. Returned in
// the accepts list of a 402 challenge so a client can construct a valid
// proof without out-of-band documentation.
type PaymentRequirements struct {
	Scheme            string            `json:"scheme"`
	Network           string            `json:"network"`
	MaxAmountRequired string            `json:"maxAmountRequired"`
	Resource          string            `json:"resource"`
	PayTo             string            `json:"payTo"`
	Asset             string            `json:"asset"`
	MaxTimeoutSeconds int               `json:"maxTimeoutSeconds"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// PaymentRequired is the 402 challenge body sent to unpaid clients.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error,omitempty"`
	Message     string                `json:"message,omitempty"`
}

// Receipt echoes an accepted payment back to the caller. It is attached to
// the response as a base64-encoded X-PAYMENT-RESPONSE header.
type Receipt struct {
	TxHash         string         `json:"txHash"`
	NetworkID      string         `json:"networkId"`
	Success        bool           `json:"success"`
	Amount         string         `json:"amount"`
	Timestamp      int64          `json:"timestamp"`
	ResourceAccess ResourceAccess `json:"resourceAccess"`
}

// ResourceAccess describes the remaining paid access window for the proof.
type ResourceAccess struct {
	ExpiresAt         string `json:"expiresAt"`
	RequestsRemaining int    `json:"requestsRemaining"`
}

// EncodeToBase64String serializes the receipt for the response header.
func (r *Receipt) EncodeToBase64String() (string, error) {
	jsonBytes, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode receipt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

// DecodeReceiptFromBase64 decodes a receipt header. Used by clients and tests.
func DecodeReceiptFromBase64(encoded string) (*Receipt, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode receipt header: %w", err)
	}
	var receipt Receipt
	if err := json.Unmarshal(decoded, &receipt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt: %w", err)
	}
	return &receipt, nil
}
