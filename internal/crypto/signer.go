package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"flasharb/internal/domain"
)

// Signer signs raw transactions with a local secp256k1 key. It implements
// domain.TxSigner; the private key never leaves this package.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	signer     types.Signer
}

// NewSigner creates a Signer from a hex-encoded private key bound to one
// chain ID. Signatures are never valid on another chain.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		signer:     types.LatestSignerForChainID(big.NewInt(chainID)),
	}, nil
}

// Address returns the hex address derived from the signing key.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// Sign produces a signed, serialized transaction for the request. Gas
// price and nonce must already be resolved by the caller.
func (s *Signer) Sign(req domain.TxRequest) (domain.SignedTx, error) {
	if req.GasPriceWei == nil {
		return domain.SignedTx{}, fmt.Errorf("crypto: gas price not set: %w", domain.ErrSigningFailed)
	}
	to := common.HexToAddress(req.To)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    req.Nonce,
		To:       &to,
		Value:    req.ValueWei,
		Gas:      req.GasLimit,
		GasPrice: req.GasPriceWei,
		Data:     req.Data,
	})

	signed, err := types.SignTx(tx, s.signer, s.privateKey)
	if err != nil {
		return domain.SignedTx{}, fmt.Errorf("crypto: sign transaction: %w", domain.ErrSigningFailed)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return domain.SignedTx{}, fmt.Errorf("crypto: serialize transaction: %w", err)
	}

	return domain.SignedTx{Raw: raw, Hash: signed.Hash().Hex()}, nil
}
