package gate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamiyo-ai/risk-auditor/internal/x402"
)

func newTestRouter(gate *Gate) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/approval-audit", gate.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestMiddleware_MissingHeaderChallenges(t *testing.T) {
	gate := New(testConfig(), NewProofCache(10*time.Minute), &stubVerifier{}, nil, nil)
	router := newTestRouter(gate)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/approval-audit", nil))

	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var challenge x402.PaymentRequired
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &challenge))
	require.Len(t, challenge.Accepts, 1)
	assert.Equal(t, testPayTo, challenge.Accepts[0].PayTo)
	assert.Equal(t, "1000000", challenge.Accepts[0].MaxAmountRequired)
	assert.Equal(t, "/approval-audit", challenge.Accepts[0].Resource)
	assert.Equal(t, "payment_required", challenge.Error)
}

func TestMiddleware_ValidProofAdmitted(t *testing.T) {
	gate := New(testConfig(), NewProofCache(10*time.Minute), &stubVerifier{amount: 1_000_000}, nil, nil)
	router := newTestRouter(gate)

	req := httptest.NewRequest(http.MethodGet, "/approval-audit", nil)
	req.Header.Set(x402.PaymentHeader, proofHeader(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	encoded := rec.Header().Get(x402.PaymentResponseHeader)
	require.NotEmpty(t, encoded)
	receipt, err := x402.DecodeReceiptFromBase64(encoded)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, testSignature, receipt.TxHash)
	assert.Equal(t, "1000000", receipt.Amount)
	assert.Equal(t, testNetwork, receipt.NetworkID)

	_, err = time.Parse(time.RFC3339, receipt.ResourceAccess.ExpiresAt)
	assert.NoError(t, err)
}

func TestMiddleware_MalformedHeaderIsBadRequest(t *testing.T) {
	gate := New(testConfig(), NewProofCache(10*time.Minute), &stubVerifier{}, nil, nil)
	router := newTestRouter(gate)

	req := httptest.NewRequest(http.MethodGet, "/approval-audit", nil)
	req.Header.Set(x402.PaymentHeader, "@@not-base64@@")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, x402.ErrCodeMalformedProof, body["code"])
}

func TestMiddleware_RejectedProofRechallenges(t *testing.T) {
	verifier := &stubVerifier{perr: x402.NewPaymentError(
		x402.ErrCodeInsufficientAmount, "too little", nil)}
	gate := New(testConfig(), NewProofCache(10*time.Minute), verifier, nil, nil)
	router := newTestRouter(gate)

	req := httptest.NewRequest(http.MethodGet, "/approval-audit", nil)
	req.Header.Set(x402.PaymentHeader, proofHeader(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var challenge x402.PaymentRequired
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &challenge))
	assert.Equal(t, x402.ErrCodeInsufficientAmount, challenge.Error)
	require.Len(t, challenge.Accepts, 1, "a rejection must still explain how to pay")
}

func TestMiddleware_LedgerOutageIsServiceUnavailable(t *testing.T) {
	verifier := &stubVerifier{perr: x402.NewPaymentError(
		x402.ErrCodeVerificationUnavailable, "rpc down", nil)}
	gate := New(testConfig(), NewProofCache(10*time.Minute), verifier, nil, nil)
	router := newTestRouter(gate)

	req := httptest.NewRequest(http.MethodGet, "/approval-audit", nil)
	req.Header.Set(x402.PaymentHeader, proofHeader(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
