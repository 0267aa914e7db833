package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/tyler-smith/go-bip39"

	"github.com/rrelayer/rrelayer/internal/chain"
)

// HD is the mnemonic-derived backend: wallet_index selects a deterministic
// HD child key below the private-key sentinel range (§3, §4.5).
type HD struct {
	mu      sync.Mutex
	seed    []byte
	cache   map[WalletIndex]*ecdsa.PrivateKey
	chainID chain.ID
}

// NewHD derives the BIP-39 seed from a mnemonic. It never persists the
// mnemonic itself; only the derived seed lives in memory for the process
// lifetime, the same exposure boundary a raw-key backend has.
func NewHD(mnemonic string, chainID chain.ID) (*HD, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("signer: invalid mnemonic")
	}
	return &HD{
		seed:    bip39.NewSeed(mnemonic, ""),
		cache:   make(map[WalletIndex]*ecdsa.PrivateKey),
		chainID: chainID,
	}, nil
}

func (h *HD) Owns(index WalletIndex) bool { return !index.IsPrivateKey() }

func (h *HD) SupportsBlobs() bool { return false }

// derive maps a wallet index to a child key deterministically: HMAC-SHA256
// keyed by the BIP-39 seed over the index, retried with a counter suffix on
// the vanishingly rare occasion the digest doesn't land on the curve order
// (mirrors the "try next counter" step of RFC 6979-style derivation). Every
// persisted index always resolves to the same key (§9).
func (h *HD) derive(index WalletIndex) (*ecdsa.PrivateKey, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if k, ok := h.cache[index]; ok {
		return k, nil
	}
	for attempt := 0; attempt < 8; attempt++ {
		mac := hmac.New(sha256.New, h.seed)
		fmt.Fprintf(mac, "rrelayer/hd/%d/%d", index, attempt)
		key, err := crypto.ToECDSA(mac.Sum(nil))
		if err != nil {
			continue
		}
		h.cache[index] = key
		return key, nil
	}
	return nil, fmt.Errorf("signer: derive wallet index %d: exhausted retries", index)
}

func (h *HD) Address(ctx context.Context, index WalletIndex) (chain.Address, error) {
	key, err := h.derive(index)
	if err != nil {
		return chain.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func (h *HD) SignTransaction(ctx context.Context, index WalletIndex, tx TypedTx) (*types.Transaction, error) {
	key, err := h.derive(index)
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

func (h *HD) SignMessage(ctx context.Context, index WalletIndex, text []byte) ([]byte, error) {
	key, err := h.derive(index)
	if err != nil {
		return nil, err
	}
	hash := accounts.TextHash(text)
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("signer: sign message: %w", err)
	}
	sig[64] += 27 // EIP-191 recovery id convention
	return sig, nil
}

func (h *HD) SignTypedData(ctx context.Context, index WalletIndex, data apitypes.TypedData) ([]byte, error) {
	key, err := h.derive(index)
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

// TransactOpts builds a bind.TransactOpts wired to this backend's signer
// function, for callers that want to drive contract bindings instead of
// the raw TypedTx path (bind's own convention, matching the teacher's
// reliance on accounts/abi/bind for anything that sends a transaction).
func (h *HD) TransactOpts(ctx context.Context, index WalletIndex) (*bind.TransactOpts, error) {
	addr, err := h.Address(ctx, index)
	if err != nil {
		return nil, err
	}
	key, err := h.derive(index)
	if err != nil {
		return nil, err
	}
	chainIDBig := chainIDBig(h.chainID)
	return &bind.TransactOpts{
		From: addr,
		Signer: func(a chain.Address, t *types.Transaction) (*types.Transaction, error) {
			return types.SignTx(t, types.LatestSignerForChainID(chainIDBig), key)
		},
		Context: ctx,
	}, nil
}

func chainIDBig(id chain.ID) *big.Int {
	return new(big.Int).SetUint64(uint64(id))
}
