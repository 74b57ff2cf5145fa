package audit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kamiyo-ai/risk-auditor/internal/upstream"
)

// Handler exposes the audit service over HTTP.
type Handler struct {
	svc *Service
	log *zap.Logger
}

// NewHandler creates the HTTP handler for the audit endpoints.
func NewHandler(svc *Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// Register mounts the paid audit routes.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/approval-audit", h.approvalAudit)
}

func (h *Handler) approvalAudit(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address query parameter is required"})
		return
	}

	chainID, err := strconv.ParseInt(c.DefaultQuery("chainId", "1"), 10, 64)
	if err != nil || chainID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chainId must be a positive integer"})
		return
	}

	report, err := h.svc.Audit(c.Request.Context(), address, chainID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, report)
	case errors.Is(err, ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, upstream.ErrAllSourcesExhausted):
		h.log.Error("all upstream sources exhausted", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream data providers are unavailable"})
	default:
		h.log.Error("approval audit failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
