// Package chain implements domain.ChainClient over a JSON-RPC Ethereum
// endpoint. Everything go-ethereum specific lives here; the rest of the
// pipeline speaks the domain abstractions only.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"flasharb/internal/domain"
)

// flashRepaidTopic is the keccak hash of the flash-loan contract's
// repayment event signature. The confirmation path decodes it to surface
// realized profit without a second RPC round trip.
var flashRepaidTopic = common.BytesToHash(crypto.Keccak256([]byte("FlashArbRepaid(address,uint256,uint256,uint256)")))

// Client talks to one Ethereum-compatible RPC endpoint.
type Client struct {
	ec            *ethclient.Client
	chainID       *big.Int
	pollInterval  time.Duration
	assetDecimals map[common.Address]int
	logger        *slog.Logger
}

// Dial connects to rpcURL and verifies the chain ID matches wantChainID.
// assetDecimals maps token contract addresses to their decimals so
// repayment amounts can be normalized.
func Dial(ctx context.Context, rpcURL string, wantChainID int64, assetDecimals map[string]int, logger *slog.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", redactURL(rpcURL), err)
	}

	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("chain: query chain id: %w", err)
	}
	if wantChainID != 0 && chainID.Int64() != wantChainID {
		ec.Close()
		return nil, fmt.Errorf("chain: endpoint serves chain %d, expected %d", chainID.Int64(), wantChainID)
	}

	decimals := make(map[common.Address]int, len(assetDecimals))
	for addr, d := range assetDecimals {
		decimals[common.HexToAddress(addr)] = d
	}

	return &Client{
		ec:            ec,
		chainID:       chainID,
		pollInterval:  2 * time.Second,
		assetDecimals: decimals,
		logger:        logger.With(slog.String("component", "chain")),
	}, nil
}

// ChainID returns the connected chain's ID.
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.ec.Close() }

// Submit broadcasts a signed transaction and returns its hash. Failures
// come back as *domain.SubmissionError so the retry policy can classify
// them.
func (c *Client) Submit(ctx context.Context, tx domain.SignedTx) (string, error) {
	var parsed types.Transaction
	if err := parsed.UnmarshalBinary(tx.Raw); err != nil {
		return "", &domain.SubmissionError{Reason: "malformed transaction", Err: err}
	}
	if err := c.ec.SendTransaction(ctx, &parsed); err != nil {
		return "", classifySubmissionError(err)
	}
	return parsed.Hash().Hex(), nil
}

// WaitForConfirmation polls for the receipt of txRef until inclusion or
// timeout. A timeout returns an un-included result with a nil error; the
// caller decides how to treat an unresolved transaction.
func (c *Client) WaitForConfirmation(ctx context.Context, txRef string, timeout time.Duration) (domain.ConfirmationResult, error) {
	hash := common.HexToHash(txRef)
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.ec.TransactionReceipt(ctx, hash)
		if err == nil {
			return c.resultFromReceipt(receipt), nil
		}
		if err != ethereum.NotFound {
			return domain.ConfirmationResult{}, fmt.Errorf("chain: query receipt %s: %w", txRef, err)
		}
		if time.Now().After(deadline) {
			return domain.ConfirmationResult{Included: false}, nil
		}
		select {
		case <-ctx.Done():
			return domain.ConfirmationResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) resultFromReceipt(receipt *types.Receipt) domain.ConfirmationResult {
	res := domain.ConfirmationResult{
		Included: true,
		Reverted: receipt.Status == types.ReceiptStatusFailed,
		GasUsed:  receipt.GasUsed,
	}
	if receipt.EffectiveGasPrice != nil {
		res.EffectiveGasPriceWei = new(big.Int).Set(receipt.EffectiveGasPrice)
	}
	if !res.Reverted {
		res.Repayment = c.findRepayment(receipt.Logs)
	}
	return res
}

// findRepayment scans receipt logs for the flash-loan repayment event.
func (c *Client) findRepayment(logs []*types.Log) *domain.RepaymentEvent {
	for _, lg := range logs {
		if len(lg.Topics) < 2 || lg.Topics[0] != flashRepaidTopic || len(lg.Data) < 96 {
			continue
		}
		asset := common.BytesToAddress(lg.Topics[1].Bytes())
		decimals, ok := c.assetDecimals[asset]
		if !ok {
			c.logger.Warn("repayment event for unknown asset", slog.String("asset", asset.Hex()))
			decimals = 18
		}
		principal := new(big.Int).SetBytes(lg.Data[0:32])
		fee := new(big.Int).SetBytes(lg.Data[32:64])
		profit := new(big.Int).SetBytes(lg.Data[64:96])
		return &domain.RepaymentEvent{
			Asset:     asset.Hex(),
			Principal: fromUnits(principal, decimals),
			Fee:       fromUnits(fee, decimals),
			Profit:    fromUnits(profit, decimals),
		}
	}
	return nil
}

// EstimateGas simulates the transaction against the pending state.
func (c *Client) EstimateGas(ctx context.Context, tx domain.TxRequest) (uint64, error) {
	to := common.HexToAddress(tx.To)
	msg := ethereum.CallMsg{
		To:       &to,
		Data:     tx.Data,
		Value:    tx.ValueWei,
		GasPrice: tx.GasPriceWei,
	}
	gas, err := c.ec.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("chain: estimate gas: %w", err)
	}
	return gas, nil
}

// SuggestGasPrice returns the endpoint's current gas price suggestion.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.ec.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: suggest gas price: %w", err)
	}
	return price, nil
}

// CallContract performs a read-only eth_call against the latest block.
func (c *Client) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	addr := common.HexToAddress(to)
	out, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", to, err)
	}
	return out, nil
}

// PendingNonce returns the next nonce for address including pending txs.
func (c *Client) PendingNonce(ctx context.Context, address string) (uint64, error) {
	nonce, err := c.ec.PendingNonceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return 0, fmt.Errorf("chain: pending nonce for %s: %w", address, err)
	}
	return nonce, nil
}

// classifySubmissionError sorts node rejections into transient (worth a
// retry with fresh nonce and gas) and permanent.
func classifySubmissionError(err error) *domain.SubmissionError {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"nonce too low",
		"replacement transaction underpriced",
		"transaction underpriced",
		"already known",
		"connection refused",
		"timeout",
		"502",
		"503",
	} {
		if strings.Contains(msg, marker) {
			return &domain.SubmissionError{Transient: true, Reason: marker, Err: err}
		}
	}
	return &domain.SubmissionError{Reason: "rejected by node", Err: err}
}

// fromUnits converts a raw token amount to a float in asset units.
func fromUnits(raw *big.Int, decimals int) float64 {
	f := new(big.Float).SetInt(raw)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(f, scale).Float64()
	return out
}

func redactURL(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		if j := strings.IndexByte(u[i+3:], '/'); j >= 0 {
			return u[:i+3+j] + "/..."
		}
	}
	return u
}
