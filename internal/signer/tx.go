package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/rrelayer/rrelayer/internal/chain"
)

// buildTransaction turns a TypedTx into the unsigned go-ethereum transaction
// envelope: legacy, dynamic-fee (EIP-1559), or blob (EIP-4844) depending on
// which fields are populated, matching the three broadcast shapes §4.2
// requires the queue to be able to produce.
// BuildTransaction is the exported form of buildTransaction, for backends
// that live outside this package (e.g. the remote KMS backend).
func BuildTransaction(tx TypedTx) *types.Transaction { return buildTransaction(tx) }

// EIP155Signer returns the signer object for a chain ID, exported for
// backends outside this package that still need to call types.SignTx
// themselves against freshly-fetched key material.
func EIP155Signer(id chain.ID) types.Signer {
	return types.LatestSignerForChainID(chainIDBig(id))
}

func buildTransaction(tx TypedTx) *types.Transaction {
	if tx.Legacy {
		return types.NewTx(&types.LegacyTx{
			Nonce:    tx.Nonce,
			To:       tx.To,
			Value:    zeroIfNil(tx.Value),
			Gas:      tx.GasLimit,
			GasPrice: zeroIfNil(tx.GasPrice),
			Data:     tx.Data,
		})
	}
	if tx.Sidecar != nil || tx.BlobFeeCap != nil {
		var to chain.Address
		if tx.To != nil {
			to = *tx.To
		}
		blobHashes := make([]chain.Hash, len(tx.BlobHashes))
		copy(blobHashes, tx.BlobHashes)
		return types.NewTx(&types.BlobTx{
			ChainID:    uint256FromBig(chainIDBig(tx.ChainID)),
			Nonce:      tx.Nonce,
			GasTipCap:  uint256FromBig(zeroIfNil(tx.MaxPriorityFeePerGas)),
			GasFeeCap:  uint256FromBig(zeroIfNil(tx.MaxFeePerGas)),
			Gas:        tx.GasLimit,
			To:         to,
			Value:      uint256FromBig(zeroIfNil(tx.Value)),
			Data:       tx.Data,
			BlobFeeCap: uint256FromBig(zeroIfNil(tx.BlobFeeCap)),
			BlobHashes: blobHashes,
			Sidecar:    tx.Sidecar,
		})
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainIDBig(tx.ChainID),
		Nonce:     tx.Nonce,
		To:        tx.To,
		Value:     zeroIfNil(tx.Value),
		Gas:       tx.GasLimit,
		GasTipCap: zeroIfNil(tx.MaxPriorityFeePerGas),
		GasFeeCap: zeroIfNil(tx.MaxFeePerGas),
		Data:      tx.Data,
	})
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func uint256FromBig(v *big.Int) *uint256.Int {
	u, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return u
}
