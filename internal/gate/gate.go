package gate

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kamiyo-ai/risk-auditor/internal/metrics"
	"github.com/kamiyo-ai/risk-auditor/internal/x402"
)

// Verifier is the ledger-side proof check the gate drives on cache misses.
// A nil PaymentError means the proof settled and credited the returned
// amount.
type Verifier interface {
	Verify(ctx context.Context, proof *x402.PaymentProof) (uint64, *x402.PaymentError)
}

// Config is the payment policy presented to clients and enforced by the gate.
type Config struct {
	// Network is the single accepted network identifier (e.g. "solana").
	Network string
	// PayTo is the base58 payment destination advertised in challenges.
	PayTo string
	// Asset names the settlement asset advertised in challenges.
	Asset string
	// MinAmount is the minimum price in lamports.
	MinAmount uint64
	// AccessWindow is how long a verified proof keeps authorizing requests.
	AccessWindow time.Duration
	// RequestAllowance seeds the informational requestsRemaining receipt
	// field; admission itself is bounded by AccessWindow only.
	RequestAllowance int
	// MaxTimeoutSeconds is advertised in challenges.
	MaxTimeoutSeconds int
}

// Gate is the access gate for paid endpoints. It exclusively owns the proof
// cache and drives the verifier; no other component mutates either.
type Gate struct {
	cfg      Config
	cache    *ProofCache
	verifier Verifier
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates an access gate.
func New(cfg Config, cache *ProofCache, verifier Verifier, log *zap.Logger, m *metrics.Metrics) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		cfg:      cfg,
		cache:    cache,
		verifier: verifier,
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

// Admit decides admit/reject for a single request. A live cached proof is
// admitted without contacting the ledger; otherwise the proof is verified
// cold and cached on success. Failed verifications are never cached, so
// every retry re-verifies.
func (g *Gate) Admit(ctx context.Context, rawHeader string) (*x402.Receipt, *x402.PaymentError) {
	proof, perr := x402.DecodeProofHeader(rawHeader, g.cfg.Network)
	if perr != nil {
		g.metrics.IncAdmission(perr.Code)
		return nil, perr
	}
	proofID := proof.ProofID()

	if entry, ok := g.cache.Reuse(proofID); ok {
		g.metrics.IncProofCacheHit()
		g.metrics.IncAdmission("granted")
		g.log.Debug("proof admitted from cache",
			zap.String("proofId", proofID),
			zap.Int("reuseCount", entry.ReuseCount))
		return g.receipt(entry), nil
	}

	amount, perr := g.verifier.Verify(ctx, proof)
	if perr != nil {
		g.metrics.IncVerification(perr.Code)
		g.metrics.IncAdmission(perr.Code)
		g.log.Info("proof rejected",
			zap.String("proofId", proofID),
			zap.String("code", perr.Code),
			zap.String("reason", perr.Message))
		return nil, perr
	}
	g.metrics.IncVerification("ok")

	entry := g.cache.Put(proofID, amount)
	g.metrics.IncAdmission("granted")
	g.log.Info("proof verified and admitted",
		zap.String("proofId", proofID),
		zap.Uint64("amount", amount),
		zap.Time("expiresAt", entry.ExpiresAt))
	return g.receipt(entry), nil
}

// Challenge builds the 402 body for the given resource. It must always be
// informative enough for a well-behaved client to construct a valid proof.
func (g *Gate) Challenge(resource, errCode, message string) x402.PaymentRequired {
	return x402.PaymentRequired{
		X402Version: x402.ProtocolVersion,
		Accepts: []x402.PaymentRequirements{
			{
				Scheme:            x402.SchemeExact,
				Network:           g.cfg.Network,
				MaxAmountRequired: strconv.FormatUint(g.cfg.MinAmount, 10),
				Resource:          resource,
				PayTo:             g.cfg.PayTo,
				Asset:             g.cfg.Asset,
				MaxTimeoutSeconds: g.cfg.MaxTimeoutSeconds,
			},
		},
		Error:   errCode,
		Message: message,
	}
}

func (g *Gate) receipt(entry Entry) *x402.Receipt {
	remaining := g.cfg.RequestAllowance - entry.ReuseCount
	if remaining < 0 {
		remaining = 0
	}
	return &x402.Receipt{
		TxHash:    entry.ProofID,
		NetworkID: g.cfg.Network,
		Success:   true,
		Amount:    strconv.FormatUint(entry.VerifiedAmount, 10),
		Timestamp: g.now().Unix(),
		ResourceAccess: x402.ResourceAccess{
			ExpiresAt:         entry.ExpiresAt.UTC().Format(time.RFC3339),
			RequestsRemaining: remaining,
		},
	}
}
