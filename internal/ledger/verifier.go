package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	solana "github.com/gagliardetto/solana-go"

	"github.com/kamiyo-ai/risk-auditor/internal/x402"
)

// Config holds the verification policy: the only acceptable payment
// destination, the minimum price in lamports, and the tolerance between the
// credited amount and the proof's claimed amount (fee and rounding noise,
// not a discount on the minimum).
type Config struct {
	PayTo           solana.PublicKey
	MinAmount       uint64
	AmountTolerance uint64
}

// Verifier checks payment proofs against the ledger. Verification is
// read-only and idempotent; concurrent verifications of the same proof are
// safe.
type Verifier struct {
	reader TransactionReader
	cfg    Config
}

// NewVerifier creates a verifier over the given transaction reader.
func NewVerifier(reader TransactionReader, cfg Config) *Verifier {
	return &Verifier{reader: reader, cfg: cfg}
}

// Verify confirms that the referenced transaction is finalized, credits the
// configured destination, and transfers at least the configured minimum.
// On success it returns the amount actually credited. On failure it returns
// a PaymentError; transport failures map to verification_unavailable and
// must not be treated as proof invalidity.
func (v *Verifier) Verify(ctx context.Context, proof *x402.PaymentProof) (uint64, *x402.PaymentError) {
	// A proof naming a different recipient is rejected before touching the
	// ledger, even if that recipient received funds in the same transaction.
	if proof.Payload.Recipient != v.cfg.PayTo.String() {
		return 0, x402.NewPaymentError(x402.ErrCodeRecipientMismatch,
			"proof recipient does not match the payment destination",
			map[string]interface{}{"expected": v.cfg.PayTo.String()})
	}

	sig, err := solana.SignatureFromBase58(proof.Payload.Signature)
	if err != nil {
		// Not a valid signature, so it cannot exist on the ledger.
		return 0, x402.NewPaymentError(x402.ErrCodeTxNotFound,
			fmt.Sprintf("invalid transaction signature: %v", err), nil)
	}

	tx, err := v.reader.GetTransaction(ctx, sig)
	if err != nil {
		if errors.Is(err, ErrTxNotFound) {
			return 0, x402.NewPaymentError(x402.ErrCodeTxNotFound,
				"transaction not found or not finalized", nil)
		}
		return 0, x402.NewPaymentError(x402.ErrCodeVerificationUnavailable,
			fmt.Sprintf("ledger lookup failed: %v", err), nil)
	}
	if tx.Failed {
		return 0, x402.NewPaymentError(x402.ErrCodeTxNotFound,
			"transaction failed on chain", nil)
	}

	credited, perr := v.creditedAmount(tx)
	if perr != nil {
		return 0, perr
	}

	if credited < v.cfg.MinAmount {
		return 0, x402.NewPaymentError(x402.ErrCodeInsufficientAmount,
			"transferred amount is below the minimum price",
			map[string]interface{}{
				"required": strconv.FormatUint(v.cfg.MinAmount, 10),
				"actual":   strconv.FormatUint(credited, 10),
			})
	}

	claimed, err := strconv.ParseUint(proof.Payload.Amount, 10, 64)
	if err != nil {
		// Structural validation already checked this; a parse failure here
		// means the proof did not pass through DecodeProofHeader.
		return 0, x402.NewPaymentError(x402.ErrCodeAmountMismatch,
			"claimed amount is not a valid integer", nil)
	}
	if absDiff(credited, claimed) > v.cfg.AmountTolerance {
		return 0, x402.NewPaymentError(x402.ErrCodeAmountMismatch,
			"claimed amount does not match the transferred amount",
			map[string]interface{}{
				"claimed":   strconv.FormatUint(claimed, 10),
				"credited":  strconv.FormatUint(credited, 10),
				"tolerance": strconv.FormatUint(v.cfg.AmountTolerance, 10),
			})
	}

	return credited, nil
}

// creditedAmount locates the payment destination among the transaction's
// accounts and computes its positive lamport balance delta.
func (v *Verifier) creditedAmount(tx *Tx) (uint64, *x402.PaymentError) {
	for i, account := range tx.Accounts {
		if !account.Equals(v.cfg.PayTo) {
			continue
		}
		if i >= len(tx.PreBalances) || i >= len(tx.PostBalances) {
			return 0, x402.NewPaymentError(x402.ErrCodeVerificationUnavailable,
				"transaction metadata is missing balance information", nil)
		}
		pre, post := tx.PreBalances[i], tx.PostBalances[i]
		if post <= pre {
			return 0, x402.NewPaymentError(x402.ErrCodeRecipientMismatch,
				"payment destination was not credited in this transaction", nil)
		}
		return post - pre, nil
	}
	return 0, x402.NewPaymentError(x402.ErrCodeRecipientMismatch,
		"payment destination does not appear in this transaction", nil)
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
