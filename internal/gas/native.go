package gas

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/provider"
)

// percentiles are the reward percentiles requested from eth_feeHistory for
// each speed bucket, per §4.3 ("25/50/75/95 of base_fee + priority").
var percentiles = map[chain.Speed]float64{
	chain.SpeedSlow:   25,
	chain.SpeedMedium: 50,
	chain.SpeedFast:   75,
	chain.SpeedSuper:  95,
}

var waitHints = map[chain.Speed][2]time.Duration{
	chain.SpeedSlow:   {5 * time.Minute, 30 * time.Minute},
	chain.SpeedMedium: {1 * time.Minute, 10 * time.Minute},
	chain.SpeedFast:   {15 * time.Second, 3 * time.Minute},
	chain.SpeedSuper:  {1 * time.Second, 30 * time.Second},
}

// NativeEstimator derives speed buckets from eth_feeHistory historical
// percentile fees, the RPC-native alternative to a pluggable HTTP gas
// provider (§4.3).
type NativeEstimator struct {
	provider provider.Provider
}

func NewNativeEstimator(p provider.Provider) *NativeEstimator {
	return &NativeEstimator{provider: p}
}

const feeHistoryBlockCount = 20

func (n *NativeEstimator) Estimate(ctx context.Context, chainID chain.ID) (Estimate, error) {
	rewardPercentiles := make([]float64, 0, len(percentiles))
	order := []chain.Speed{chain.SpeedSlow, chain.SpeedMedium, chain.SpeedFast, chain.SpeedSuper}
	for _, s := range order {
		rewardPercentiles = append(rewardPercentiles, percentiles[s])
	}

	history, err := n.provider.FeeHistory(ctx, feeHistoryBlockCount, rewardPercentiles)
	if err != nil {
		return Estimate{}, fmt.Errorf("eth_feeHistory: %w", err)
	}
	if len(history.Reward) == 0 || len(history.BaseFee) == 0 {
		return Estimate{}, fmt.Errorf("eth_feeHistory: empty response")
	}

	latestBaseFee := history.BaseFee[len(history.BaseFee)-1]

	perSpeed := make(map[chain.Speed]SpeedParams, len(order))
	for i, speed := range order {
		priority := medianRewardAt(history.Reward, i)
		maxPriority := chain.WeiFromBig(priority)
		maxFee := clampFloor(new(big.Int).Add(latestBaseFee, priority))
		wait := waitHints[speed]
		perSpeed[speed] = SpeedParams{
			MaxFee:         maxFee,
			MaxPriorityFee: maxPriority,
			MinWait:        wait[0],
			MaxWait:        wait[1],
		}
	}

	return Estimate{ChainID: chainID, Timestamp: time.Now(), PerSpeed: perSpeed}, nil
}

// medianRewardAt picks the median observed reward for the percentile column
// i across the sampled block range, skipping blocks with no reported
// reward at that column (can happen on nearly-empty blocks).
func medianRewardAt(rewards [][]*big.Int, i int) *big.Int {
	var samples []*big.Int
	for _, row := range rewards {
		if i < len(row) && row[i] != nil && row[i].Sign() > 0 {
			samples = append(samples, row[i])
		}
	}
	if len(samples) == 0 {
		return big.NewInt(0)
	}
	// simple selection of the middle element after insertion sort; sample
	// counts here are at most feeHistoryBlockCount.
	sorted := append([]*big.Int(nil), samples...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Cmp(sorted[j]) > 0; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted[len(sorted)/2]
}

func clampFloor(v *big.Int) *uint256.Int {
	u, overflow := uint256.FromBig(v)
	if overflow || u.Cmp(FloorWei) < 0 {
		return new(uint256.Int).Set(FloorWei)
	}
	return u
}
