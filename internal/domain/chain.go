package domain

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

// TxRequest is an abstract transaction to be signed and submitted. The
// pipeline never deals with a specific chain's wire format; adapters in
// internal/chain translate this to their protocol.
type TxRequest struct {
	To          string
	Data        []byte
	ValueWei    *big.Int
	GasLimit    uint64
	GasPriceWei *big.Int
	Nonce       uint64
}

// SignedTx is an opaque signed transaction ready for submission.
type SignedTx struct {
	Raw  []byte
	Hash string
}

// RepaymentEvent is the flash-loan repayment log emitted on a successful
// execution. Amounts are normalized to asset units by the chain client.
type RepaymentEvent struct {
	Asset     string
	Principal float64
	Fee       float64
	Profit    float64 // actual balance delta after repayment, quote terms
}

// ConfirmationResult describes the on-chain outcome of a submitted
// transaction once included (or once the wait timed out).
type ConfirmationResult struct {
	Included             bool
	Reverted             bool
	GasUsed              uint64
	EffectiveGasPriceWei *big.Int
	Repayment            *RepaymentEvent // nil when absent or reverted
}

// SubmissionError wraps a transaction submission failure and classifies it
// for the retry policy. Transient errors (nonce conflicts, underpriced gas,
// flaky RPC) are retried with backoff; the rest fail immediately.
type SubmissionError struct {
	Transient bool
	Reason    string
	Err       error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submission failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("submission failed (%s)", e.Reason)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ChainClient is the narrow capability the pipeline needs from a
// blockchain: submit, wait, estimate, and read.
type ChainClient interface {
	Submit(ctx context.Context, tx SignedTx) (string, error)
	WaitForConfirmation(ctx context.Context, txRef string, timeout time.Duration) (ConfirmationResult, error)
	EstimateGas(ctx context.Context, tx TxRequest) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, to string, data []byte) ([]byte, error)
	PendingNonce(ctx context.Context, address string) (uint64, error)
}

// TxSigner signs transactions. The pipeline never sees raw key material,
// only this capability.
type TxSigner interface {
	Address() string
	Sign(tx TxRequest) (SignedTx, error)
}
