package gate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamiyo-ai/risk-auditor/internal/x402"
)

const (
	testNetwork   = "solana"
	testPayTo     = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	testSignature = "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"
)

// stubVerifier counts ledger calls and returns a scripted verdict.
type stubVerifier struct {
	calls  int
	amount uint64
	perr   *x402.PaymentError
}

func (s *stubVerifier) Verify(_ context.Context, _ *x402.PaymentProof) (uint64, *x402.PaymentError) {
	s.calls++
	return s.amount, s.perr
}

func testConfig() Config {
	return Config{
		Network:           testNetwork,
		PayTo:             testPayTo,
		Asset:             "lamports",
		MinAmount:         1_000_000,
		AccessWindow:      10 * time.Minute,
		RequestAllowance:  100,
		MaxTimeoutSeconds: 60,
	}
}

func proofHeader(t *testing.T) string {
	t.Helper()
	raw, err := json.Marshal(x402.PaymentProof{
		X402Version: x402.ProtocolVersion,
		Scheme:      x402.SchemeExact,
		Network:     testNetwork,
		Payload: x402.ProofPayload{
			Signature: testSignature,
			Amount:    "1000000",
			Recipient: testPayTo,
		},
	})
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestGate_ReplayVerifiesOnce(t *testing.T) {
	verifier := &stubVerifier{amount: 1_000_000}
	gate := New(testConfig(), NewProofCache(10*time.Minute), verifier, nil, nil)

	header := proofHeader(t)
	for i := 0; i < 5; i++ {
		receipt, perr := gate.Admit(context.Background(), header)
		require.Nil(t, perr)
		assert.True(t, receipt.Success)
	}

	assert.Equal(t, 1, verifier.calls,
		"replays within the access window must not reach the ledger")
}

func TestGate_ReceiptStableAcrossReuse(t *testing.T) {
	verifier := &stubVerifier{amount: 1_000_000}
	gate := New(testConfig(), NewProofCache(10*time.Minute), verifier, nil, nil)

	header := proofHeader(t)
	first, perr := gate.Admit(context.Background(), header)
	require.Nil(t, perr)

	second, perr := gate.Admit(context.Background(), header)
	require.Nil(t, perr)

	assert.Equal(t, testSignature, first.TxHash)
	assert.Equal(t, "1000000", first.Amount)
	assert.Equal(t, first.ResourceAccess.ExpiresAt, second.ResourceAccess.ExpiresAt,
		"reuse must report the same expiry as the cold admit")
	assert.Equal(t, first.ResourceAccess.RequestsRemaining-1,
		second.ResourceAccess.RequestsRemaining)
}

func TestGate_ExpiredProofReverifies(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	current := base

	cache := NewProofCache(10 * time.Minute)
	cache.now = func() time.Time { return current }
	verifier := &stubVerifier{amount: 1_000_000}
	gate := New(testConfig(), cache, verifier, nil, nil)
	gate.now = func() time.Time { return current }

	header := proofHeader(t)
	_, perr := gate.Admit(context.Background(), header)
	require.Nil(t, perr)
	require.Equal(t, 1, verifier.calls)

	current = base.Add(10 * time.Minute)
	_, perr = gate.Admit(context.Background(), header)
	require.Nil(t, perr)
	assert.Equal(t, 2, verifier.calls,
		"an expired proof must be verified cold again")
}

func TestGate_RejectionNeverCached(t *testing.T) {
	verifier := &stubVerifier{perr: x402.NewPaymentError(
		x402.ErrCodeRecipientMismatch, "wrong recipient", nil)}
	cache := NewProofCache(10 * time.Minute)
	gate := New(testConfig(), cache, verifier, nil, nil)

	header := proofHeader(t)
	for i := 0; i < 3; i++ {
		receipt, perr := gate.Admit(context.Background(), header)
		assert.Nil(t, receipt)
		require.NotNil(t, perr)
		assert.Equal(t, x402.ErrCodeRecipientMismatch, perr.Code)
	}

	assert.Equal(t, 3, verifier.calls, "every retry must re-verify")
	assert.Equal(t, 0, cache.Len(), "rejected proofs must never be cached")
}

func TestGate_MalformedHeaderSkipsVerifier(t *testing.T) {
	verifier := &stubVerifier{amount: 1_000_000}
	gate := New(testConfig(), NewProofCache(10*time.Minute), verifier, nil, nil)

	receipt, perr := gate.Admit(context.Background(), "@@not-base64@@")
	assert.Nil(t, receipt)
	require.NotNil(t, perr)
	assert.Equal(t, x402.ErrCodeMalformedProof, perr.Code)
	assert.Equal(t, 0, verifier.calls)
}

func TestGate_Challenge(t *testing.T) {
	gate := New(testConfig(), NewProofCache(10*time.Minute), &stubVerifier{}, nil, nil)

	challenge := gate.Challenge("/approval-audit", "payment_required", "X-PAYMENT header is required")
	assert.Equal(t, x402.ProtocolVersion, challenge.X402Version)
	require.Len(t, challenge.Accepts, 1)

	accepts := challenge.Accepts[0]
	assert.Equal(t, x402.SchemeExact, accepts.Scheme)
	assert.Equal(t, testNetwork, accepts.Network)
	assert.Equal(t, "1000000", accepts.MaxAmountRequired)
	assert.Equal(t, "/approval-audit", accepts.Resource)
	assert.Equal(t, testPayTo, accepts.PayTo)
	assert.Equal(t, "lamports", accepts.Asset)
	assert.Equal(t, 60, accepts.MaxTimeoutSeconds)
}
