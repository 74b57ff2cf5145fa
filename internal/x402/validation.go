package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// Base64 regex pattern - requires at least one character
var base64Regex = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// DecodeProofHeader validates and decodes an X-PAYMENT header string.
// It performs comprehensive validation of:
// - Base64 format
// - JSON structure
// - Required fields and their types
// - Protocol version, scheme, and network against the supported constants
//
// Returns the decoded PaymentProof if valid, or a PaymentError with code
// malformed_proof (undecodable or structurally invalid input) or
// unsupported_protocol (wrong version, scheme, or network).
func DecodeProofHeader(paymentHeader, supportedNetwork string) (*PaymentProof, *PaymentError) {
	if paymentHeader == "" {
		return nil, NewPaymentError(ErrCodeMalformedProof, "payment header is empty", nil)
	}

	if !base64Regex.MatchString(paymentHeader) {
		return nil, NewPaymentError(ErrCodeMalformedProof, "payment header is not valid base64", nil)
	}

	decoded, err := base64.StdEncoding.DecodeString(paymentHeader)
	if err != nil {
		return nil, NewPaymentError(ErrCodeMalformedProof,
			fmt.Sprintf("base64 decoding failed: %v", err), nil)
	}

	// Parse JSON into a map first for structural validation
	var raw map[string]interface{}
	if err := json.Unmarshal(decoded, &raw); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedProof,
			fmt.Sprintf("payment header is not valid JSON: %v", err), nil)
	}

	if err := validateProofShape(raw); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedProof, err.Error(), nil)
	}

	var proof PaymentProof
	if err := json.Unmarshal(decoded, &proof); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedProof,
			fmt.Sprintf("failed to parse payment proof: %v", err), nil)
	}

	if perr := validateProofSupport(&proof, supportedNetwork); perr != nil {
		return nil, perr
	}

	return &proof, nil
}

// validateProofShape checks required fields and their types before the typed
// unmarshal, so error messages name the offending field.
func validateProofShape(raw map[string]interface{}) error {
	if _, exists := raw["x402Version"]; !exists {
		return fmt.Errorf("missing required field: x402Version")
	}
	if _, ok := raw["x402Version"].(float64); !ok {
		return fmt.Errorf("invalid field type: x402Version must be a number")
	}

	for _, field := range []string{"scheme", "network"} {
		if _, exists := raw[field]; !exists {
			return fmt.Errorf("missing required field: %s", field)
		}
		if _, ok := raw[field].(string); !ok {
			return fmt.Errorf("invalid field type: %s must be a string", field)
		}
	}

	if _, exists := raw["payload"]; !exists {
		return fmt.Errorf("missing required field: payload")
	}
	payload, ok := raw["payload"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("invalid field type: payload must be an object")
	}

	for _, field := range []string{"signature", "amount", "recipient"} {
		if _, exists := payload[field]; !exists {
			return fmt.Errorf("missing required field: payload.%s", field)
		}
		value, ok := payload[field].(string)
		if !ok {
			return fmt.Errorf("invalid field type: payload.%s must be a string", field)
		}
		if value == "" {
			return fmt.Errorf("invalid value: payload.%s must not be empty", field)
		}
	}

	amount := payload["amount"].(string)
	if parsed, err := strconv.ParseUint(amount, 10, 64); err != nil || parsed == 0 {
		return fmt.Errorf("invalid value: payload.amount must be a positive integer string")
	}

	return nil
}

// validateProofSupport checks the proof against the single supported
// protocol version, scheme, and network.
func validateProofSupport(proof *PaymentProof, supportedNetwork string) *PaymentError {
	if proof.X402Version != ProtocolVersion {
		return NewPaymentError(ErrCodeUnsupportedProtocol,
			fmt.Sprintf("unsupported x402 version: %d", proof.X402Version),
			map[string]interface{}{"supportedVersion": ProtocolVersion})
	}
	if proof.Scheme != SchemeExact {
		return NewPaymentError(ErrCodeUnsupportedProtocol,
			fmt.Sprintf("unsupported scheme: %s", proof.Scheme),
			map[string]interface{}{"supportedScheme": SchemeExact})
	}
	if proof.Network != supportedNetwork {
		return NewPaymentError(ErrCodeUnsupportedProtocol,
			fmt.Sprintf("unsupported network: %s", proof.Network),
			map[string]interface{}{"supportedNetwork": supportedNetwork})
	}
	return nil
}
