package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/rrelayer/rrelayer/internal/chain"
)

// RawKey is the backend for wallet indices in the private-key sentinel
// range: each index is a directly-imported ECDSA key rather than a
// derivation path. Used for migrating an existing EOA into a relayer
// without re-keying it (§4.5, §9).
type RawKey struct {
	mu   sync.RWMutex
	keys map[WalletIndex]*ecdsa.PrivateKey
}

func NewRawKey() *RawKey {
	return &RawKey{keys: make(map[WalletIndex]*ecdsa.PrivateKey)}
}

// Import registers a hex-encoded private key under a wallet index in
// PrivateKeyRangeStart..math.MaxUint32. Returns an error if index falls
// outside that range, since Owns would never route to it anyway.
func (r *RawKey) Import(index WalletIndex, hexKey string) error {
	if !index.IsPrivateKey() {
		return fmt.Errorf("signer: wallet index %d is outside the private-key range", index)
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return fmt.Errorf("signer: parse private key for index %d: %w", index, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[index] = key
	return nil
}

func (r *RawKey) Owns(index WalletIndex) bool { return index.IsPrivateKey() }

func (r *RawKey) SupportsBlobs() bool { return true }

func (r *RawKey) get(index WalletIndex) (*ecdsa.PrivateKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keys[index]
	if !ok {
		return nil, fmt.Errorf("signer: no private key imported for wallet index %d", index)
	}
	return key, nil
}

func (r *RawKey) Address(ctx context.Context, index WalletIndex) (chain.Address, error) {
	key, err := r.get(index)
	if err != nil {
		return chain.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func (r *RawKey) SignTransaction(ctx context.Context, index WalletIndex, tx TypedTx) (*types.Transaction, error) {
	key, err := r.get(index)
	if err != nil {
		return nil, err
	}
	unsigned := buildTransaction(tx)
	signed, err := types.SignTx(unsigned, types.LatestSignerForChainID(chainIDBig(tx.ChainID)), key)
	if err != nil {
		return nil, fmt.Errorf("signer: sign transaction: %w", err)
	}
	return signed, nil
}

func (r *RawKey) SignMessage(ctx context.Context, index WalletIndex, text []byte) ([]byte, error) {
	key, err := r.get(index)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(accounts.TextHash(text), key)
	if err != nil {
		return nil, fmt.Errorf("signer: sign message: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

func (r *RawKey) SignTypedData(ctx context.Context, index WalletIndex, data apitypes.TypedData) ([]byte, error) {
	key, err := r.get(index)
	if err != nil {
		return nil, err
	}
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("signer: hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("signer: sign typed data: %w", err)
	}
	sig[64] += 27
	return sig, nil
}
