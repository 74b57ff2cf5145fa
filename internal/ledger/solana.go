// Package ledger verifies payment proofs against the Solana ledger.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrTxNotFound is returned when a transaction is absent from the ledger or
// not yet finalized at the required commitment.
var ErrTxNotFound = errors.New("ledger: transaction not found")

// Tx is the verifier's view of a finalized transaction: the accounts it
// touched and their lamport balances before and after execution.
type Tx struct {
	Slot         uint64
	BlockTime    time.Time
	Accounts     []solana.PublicKey
	PreBalances  []uint64
	PostBalances []uint64
	Failed       bool
}

// TransactionReader looks up finalized transactions by signature.
// Implementations return ErrTxNotFound when the transaction is absent or not
// yet finalized; any other error is treated as a transient infrastructure
// failure.
type TransactionReader interface {
	GetTransaction(ctx context.Context, sig solana.Signature) (*Tx, error)
}

// SolanaReader adapts a solana-go RPC client to the TransactionReader
// interface, querying at finalized commitment.
type SolanaReader struct {
	client *rpc.Client
}

// NewSolanaReader creates a reader against the given RPC endpoint.
func NewSolanaReader(endpoint string) *SolanaReader {
	return &SolanaReader{client: rpc.New(endpoint)}
}

// GetTransaction fetches the transaction by signature and flattens the RPC
// response into a Tx.
func (r *SolanaReader) GetTransaction(ctx context.Context, sig solana.Signature) (*Tx, error) {
	maxVersion := uint64(0)
	out, err := r.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrTxNotFound
		}
		return nil, fmt.Errorf("rpc getTransaction: %w", err)
	}
	if out == nil || out.Meta == nil || out.Transaction == nil {
		return nil, ErrTxNotFound
	}

	parsed, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", sig, err)
	}

	tx := &Tx{
		Slot:         out.Slot,
		Accounts:     parsed.Message.AccountKeys,
		PreBalances:  out.Meta.PreBalances,
		PostBalances: out.Meta.PostBalances,
		Failed:       out.Meta.Err != nil,
	}
	if out.BlockTime != nil {
		tx.BlockTime = out.BlockTime.Time()
	}
	return tx, nil
}

var _ TransactionReader = (*SolanaReader)(nil)
