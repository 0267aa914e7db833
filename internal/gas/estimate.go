package gas

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/rrelayer/rrelayer/internal/chain"
)

// BlobGasPerBlob is the fixed blob-carrying capacity of a single blob, per
// EIP-4844 (§3 Data model).
const BlobGasPerBlob = 131072

// FloorWei is the minimum fee the native estimator will ever report for a
// bucket, per §4.3 ("clamped to a floor of 1 gwei").
var FloorWei = uint256.NewInt(1_000_000_000)

// SpeedParams is the concrete fee quartet for one speed bucket.
type SpeedParams struct {
	MaxFee         *uint256.Int
	MaxPriorityFee *uint256.Int
	MinWait        time.Duration
	MaxWait        time.Duration
}

// Estimate is one observation of the main-fee market for a chain.
type Estimate struct {
	ChainID   chain.ID
	Timestamp time.Time
	PerSpeed  map[chain.Speed]SpeedParams
}

func (e Estimate) For(speed chain.Speed) (SpeedParams, bool) {
	p, ok := e.PerSpeed[speed]
	return p, ok
}

// BlobSpeedParams is the blob-fee analogue of SpeedParams.
type BlobSpeedParams struct {
	BlobGasPrice  *uint256.Int
	TotalFeePerBlob *uint256.Int
}

// BlobEstimate is the blob-market observation, kept in its own cache
// because it is refreshed on a different cadence (§4.3: 20s vs 10s).
type BlobEstimate struct {
	ChainID            chain.ID
	Timestamp          time.Time
	BaseFeePerBlobGas  *uint256.Int
	PerSpeed           map[chain.Speed]BlobSpeedParams
}

func (e BlobEstimate) For(speed chain.Speed) (BlobSpeedParams, bool) {
	p, ok := e.PerSpeed[speed]
	return p, ok
}
