package x402

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNetwork = "solana"

func validProofMap() map[string]interface{} {
	return map[string]interface{}{
		"x402Version": 1,
		"scheme":      "exact",
		"network":     testNetwork,
		"payload": map[string]interface{}{
			"signature": "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7",
			"amount":    "1000000",
			"recipient": "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
		},
	}
}

func encodeProofMap(t *testing.T, m map[string]interface{}) string {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestDecodeProofHeader_Valid(t *testing.T) {
	proof, perr := DecodeProofHeader(encodeProofMap(t, validProofMap()), testNetwork)
	require.Nil(t, perr)

	assert.Equal(t, ProtocolVersion, proof.X402Version)
	assert.Equal(t, SchemeExact, proof.Scheme)
	assert.Equal(t, testNetwork, proof.Network)
	assert.Equal(t, "1000000", proof.Payload.Amount)
	assert.Equal(t, proof.Payload.Signature, proof.ProofID())
}

func TestDecodeProofHeader_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"empty header", ""},
		{"not base64", "not-valid-base64!!!"},
		{"not json", base64.StdEncoding.EncodeToString([]byte("hello"))},
		{"json array", base64.StdEncoding.EncodeToString([]byte(`[1,2,3]`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proof, perr := DecodeProofHeader(tt.header, testNetwork)
			assert.Nil(t, proof)
			require.NotNil(t, perr)
			assert.Equal(t, ErrCodeMalformedProof, perr.Code)
		})
	}
}

func TestDecodeProofHeader_MissingAndInvalidFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]interface{})
	}{
		{"missing version", func(m map[string]interface{}) { delete(m, "x402Version") }},
		{"version not a number", func(m map[string]interface{}) { m["x402Version"] = "1" }},
		{"missing scheme", func(m map[string]interface{}) { delete(m, "scheme") }},
		{"missing network", func(m map[string]interface{}) { delete(m, "network") }},
		{"missing payload", func(m map[string]interface{}) { delete(m, "payload") }},
		{"payload not an object", func(m map[string]interface{}) { m["payload"] = "x" }},
		{"missing signature", func(m map[string]interface{}) {
			delete(m["payload"].(map[string]interface{}), "signature")
		}},
		{"empty signature", func(m map[string]interface{}) {
			m["payload"].(map[string]interface{})["signature"] = ""
		}},
		{"missing recipient", func(m map[string]interface{}) {
			delete(m["payload"].(map[string]interface{}), "recipient")
		}},
		{"amount not a string", func(m map[string]interface{}) {
			m["payload"].(map[string]interface{})["amount"] = 1000000
		}},
		{"amount zero", func(m map[string]interface{}) {
			m["payload"].(map[string]interface{})["amount"] = "0"
		}},
		{"amount negative", func(m map[string]interface{}) {
			m["payload"].(map[string]interface{})["amount"] = "-5"
		}},
		{"amount not numeric", func(m map[string]interface{}) {
			m["payload"].(map[string]interface{})["amount"] = "a lot"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validProofMap()
			tt.mutate(m)
			proof, perr := DecodeProofHeader(encodeProofMap(t, m), testNetwork)
			assert.Nil(t, proof)
			require.NotNil(t, perr)
			assert.Equal(t, ErrCodeMalformedProof, perr.Code)
		})
	}
}

func TestDecodeProofHeader_UnsupportedProtocol(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]interface{})
	}{
		{"wrong version", func(m map[string]interface{}) { m["x402Version"] = 2 }},
		{"wrong scheme", func(m map[string]interface{}) { m["scheme"] = "upto" }},
		{"wrong network", func(m map[string]interface{}) { m["network"] = "base" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validProofMap()
			tt.mutate(m)
			proof, perr := DecodeProofHeader(encodeProofMap(t, m), testNetwork)
			assert.Nil(t, proof)
			require.NotNil(t, perr)
			assert.Equal(t, ErrCodeUnsupportedProtocol, perr.Code)
		})
	}
}

func TestPaymentErrorClassification(t *testing.T) {
	assert.True(t, NewPaymentError(ErrCodeMalformedProof, "m", nil).ClientInput())
	assert.True(t, NewPaymentError(ErrCodeUnsupportedProtocol, "m", nil).ClientInput())
	assert.False(t, NewPaymentError(ErrCodeTxNotFound, "m", nil).ClientInput())

	assert.True(t, NewPaymentError(ErrCodeVerificationUnavailable, "m", nil).Retriable())
	assert.False(t, NewPaymentError(ErrCodeInsufficientAmount, "m", nil).Retriable())
}
