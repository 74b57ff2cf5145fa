package gate

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kamiyo-ai/risk-auditor/internal/x402"
)

// Middleware returns the Gin middleware guarding paid endpoints. Requests
// without a valid payment proof receive a 402 challenge describing exactly
// how to pay; admitted requests carry an X-PAYMENT-RESPONSE receipt header.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		resource := c.Request.URL.Path

		header := c.GetHeader(x402.PaymentHeader)
		if header == "" {
			c.AbortWithStatusJSON(http.StatusPaymentRequired,
				g.Challenge(resource, "payment_required",
					"X-PAYMENT header is required"))
			return
		}

		receipt, perr := g.Admit(c.Request.Context(), header)
		if perr != nil {
			g.abortWithPaymentError(c, resource, perr)
			return
		}

		encoded, err := receipt.EncodeToBase64String()
		if err != nil {
			g.log.Error("failed to encode receipt header", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"x402Version": x402.ProtocolVersion,
				"error":       "failed to encode payment receipt",
			})
			return
		}

		c.Header(x402.PaymentResponseHeader, encoded)
		c.Next()
	}
}

func (g *Gate) abortWithPaymentError(c *gin.Context, resource string, perr *x402.PaymentError) {
	switch {
	case perr.ClientInput():
		// Malformed or unsupported input: a plain 4xx, not a challenge.
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"x402Version": x402.ProtocolVersion,
			"error":       perr.Message,
			"code":        perr.Code,
			"details":     perr.Details,
		})
	case perr.Retriable():
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"x402Version": x402.ProtocolVersion,
			"error":       perr.Message,
			"code":        perr.Code,
		})
	default:
		// Payment rejection: re-challenge so the client can pay correctly.
		c.AbortWithStatusJSON(http.StatusPaymentRequired,
			g.Challenge(resource, perr.Code, perr.Message))
	}
}
