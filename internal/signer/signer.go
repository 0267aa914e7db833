// Package signer implements the wallet-signer abstraction of spec §4.5:
// given a wallet index and chain, produce a signature over a typed
// transaction, an EIP-191 personal message, or an EIP-712 typed data
// payload. Built on github.com/ethereum/go-ethereum/{accounts,crypto,
// signer/core/apitypes} the way the teacher's crypto/ package and
// ethclient_rollup.go lean on the same module for every cryptographic
// primitive instead of reimplementing curve math.
package signer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/rrelayer/rrelayer/internal/chain"
)

// WalletIndex identifies a signing key within a backend. Indices in
// [PrivateKeyRangeStart, math.MaxUint32] select a raw-private-key wallet;
// all others select an HD/KMS-derived child key (§4.5, §9).
type WalletIndex uint32

// PrivateKeyRangeStart is the sentinel: the last 1024 values of uint32
// denote raw private-key storage (§4.5, §9 "composite signer wallet-index
// encoding").
const PrivateKeyRangeStart WalletIndex = ^uint32(0) - 1023

func (w WalletIndex) IsPrivateKey() bool { return w >= PrivateKeyRangeStart }

// TypedTx is the minimal transaction envelope a Signer needs to produce a
// signature; callers (the queue) build it from a pending intent plus the
// gas parameters chosen for this broadcast.
type TypedTx struct {
	ChainID   chain.ID
	Nonce     uint64
	To        *chain.Address
	Value     *big.Int
	Data      []byte
	GasLimit  uint64

	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Legacy               bool
	GasPrice             *big.Int

	BlobFeeCap *big.Int
	BlobHashes []chain.Hash
	Sidecar    *types.BlobTxSidecar
}

// Backend is one signing implementation: mnemonic-derived HD, raw private
// key, or remote KMS. The composite Router dispatches among backends by
// wallet-index range.
type Backend interface {
	// Address returns the address a wallet index derives to.
	Address(ctx context.Context, index WalletIndex) (chain.Address, error)
	SignTransaction(ctx context.Context, index WalletIndex, tx TypedTx) (*types.Transaction, error)
	SignMessage(ctx context.Context, index WalletIndex, text []byte) ([]byte, error)
	SignTypedData(ctx context.Context, index WalletIndex, data apitypes.TypedData) ([]byte, error)
	SupportsBlobs() bool
	// Owns reports whether this backend is responsible for the given
	// index, used by Router to dispatch.
	Owns(index WalletIndex) bool
}

// Router is the composite signer described in §4.5: it dispatches by
// wallet-index range and reports SupportsBlobs as the OR of every backend
// it holds.
type Router struct {
	backends []Backend
}

func NewRouter(backends ...Backend) *Router {
	return &Router{backends: backends}
}

func (r *Router) resolve(index WalletIndex) (Backend, error) {
	for _, b := range r.backends {
		if b.Owns(index) {
			return b, nil
		}
	}
	return nil, ErrNoBackendForIndex
}

func (r *Router) Address(ctx context.Context, index WalletIndex) (chain.Address, error) {
	b, err := r.resolve(index)
	if err != nil {
		return chain.Address{}, err
	}
	return b.Address(ctx, index)
}

func (r *Router) SignTransaction(ctx context.Context, index WalletIndex, tx TypedTx) (*types.Transaction, error) {
	b, err := r.resolve(index)
	if err != nil {
		return nil, err
	}
	return b.SignTransaction(ctx, index, tx)
}

func (r *Router) SignMessage(ctx context.Context, index WalletIndex, text []byte) ([]byte, error) {
	b, err := r.resolve(index)
	if err != nil {
		return nil, err
	}
	return b.SignMessage(ctx, index, text)
}

func (r *Router) SignTypedData(ctx context.Context, index WalletIndex, data apitypes.TypedData) ([]byte, error) {
	b, err := r.resolve(index)
	if err != nil {
		return nil, err
	}
	return b.SignTypedData(ctx, index, data)
}

func (r *Router) SupportsBlobs() bool {
	for _, b := range r.backends {
		if b.SupportsBlobs() {
			return true
		}
	}
	return false
}

// ErrNoBackendForIndex is returned when no registered backend owns a
// wallet index; a misconfigured deployment, not a client-facing error.
var ErrNoBackendForIndex = errNoBackendForIndex{}

type errNoBackendForIndex struct{}

func (errNoBackendForIndex) Error() string { return "signer: no backend owns this wallet index" }
