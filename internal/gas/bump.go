package gas

import (
	"github.com/holiman/uint256"

	"github.com/rrelayer/rrelayer/internal/chain"
)

// Broadcast is the gas portion of a transaction that has already been
// signed and sent once; Bump computes the next sibling's parameters
// against it.
type Broadcast struct {
	MaxFee         *uint256.Int
	MaxPriorityFee *uint256.Int
	BlobGasPrice   *uint256.Int // nil for non-blob transactions
}

// Cap is the relayer-level ceiling from §4.2.3: max_gas_price ×
// max_gas_price_multiplier. A nil Cap.MaxFee means no cap is configured.
type Cap struct {
	MaxFee *uint256.Int
}

// Bump computes the next broadcast's gas parameters per §4.2.3:
//
//	max_fee'      = max(oracle.max_fee,      prev.max_fee × 1.125 rounded up)
//	max_priority' = max(oracle.max_priority, prev.max_priority × 1.125 rounded up)
//
// capped by the relayer's configured ceiling. ok is false when the bump
// would be capped below the floor required to beat the previous broadcast
// under the minimum replacement rule, meaning the caller must skip this
// tick and retry next tick (§4.2.3: "the bump is skipped for that tick").
func Bump(oracle SpeedParams, prev Broadcast, cap Cap) (Broadcast, bool) {
	minMaxFee := chain.BumpByMinReplacement(prev.MaxFee)
	minMaxPriority := chain.BumpByMinReplacement(prev.MaxPriorityFee)

	nextMaxFee := chain.MaxUint256(oracle.MaxFee, minMaxFee)
	nextMaxPriority := chain.MaxUint256(oracle.MaxPriorityFee, minMaxPriority)

	if cap.MaxFee != nil && cap.MaxFee.Sign() > 0 {
		if nextMaxFee.Cmp(cap.MaxFee) > 0 {
			// Both the oracle and the minimum bump exceed the cap: there is
			// no legal value to broadcast with this tick.
			if minMaxFee.Cmp(cap.MaxFee) > 0 {
				return Broadcast{}, false
			}
			nextMaxFee = new(uint256.Int).Set(cap.MaxFee)
		}
		if nextMaxPriority.Cmp(nextMaxFee) > 0 {
			nextMaxPriority = new(uint256.Int).Set(nextMaxFee)
		}
	}

	return Broadcast{MaxFee: nextMaxFee, MaxPriorityFee: nextMaxPriority}, true
}

// BumpBlob applies the same 12.5% floor rule to the blob gas price
// (§4.2.3: "blob_gas_price follows the same 12.5% floor against the blob
// oracle").
func BumpBlob(oracleBlobPrice *uint256.Int, prevBlobPrice *uint256.Int, cap Cap) (*uint256.Int, bool) {
	minBlobPrice := chain.BumpByMinReplacement(prevBlobPrice)
	next := chain.MaxUint256(oracleBlobPrice, minBlobPrice)
	if cap.MaxFee != nil && cap.MaxFee.Sign() > 0 && next.Cmp(cap.MaxFee) > 0 {
		if minBlobPrice.Cmp(cap.MaxFee) > 0 {
			return nil, false
		}
		next = new(uint256.Int).Set(cap.MaxFee)
	}
	return next, true
}
