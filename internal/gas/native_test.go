package gas

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/provider"
)

// fakeFeeProvider embeds the (nil) Provider interface so only FeeHistory,
// the single method NativeEstimator calls, needs a real implementation.
type fakeFeeProvider struct {
	provider.Provider
	history *provider.FeeHistoryResult
	err     error
}

func (f *fakeFeeProvider) FeeHistory(ctx context.Context, blocks uint64, rewardPercentiles []float64) (*provider.FeeHistoryResult, error) {
	return f.history, f.err
}

func TestNativeEstimatorClampsToFloor(t *testing.T) {
	p := &fakeFeeProvider{history: &provider.FeeHistoryResult{
		BaseFee: []*big.Int{big.NewInt(1)},
		Reward:  [][]*big.Int{{big.NewInt(1), big.NewInt(1), big.NewInt(1), big.NewInt(1)}},
	}}
	e := NewNativeEstimator(p)
	est, err := e.Estimate(context.Background(), chain.ID(1))
	require.NoError(t, err)
	params, ok := est.For(chain.SpeedSlow)
	require.True(t, ok)
	require.Equal(t, FloorWei.String(), params.MaxFee.String(), "below-floor fees must clamp up to FloorWei")
}

func TestNativeEstimatorAboveFloorUsesBaseFeePlusPriority(t *testing.T) {
	p := &fakeFeeProvider{history: &provider.FeeHistoryResult{
		BaseFee: []*big.Int{big.NewInt(2_000_000_000)},
		Reward:  [][]*big.Int{{big.NewInt(500_000_000), big.NewInt(500_000_000), big.NewInt(500_000_000), big.NewInt(500_000_000)}},
	}}
	e := NewNativeEstimator(p)
	est, err := e.Estimate(context.Background(), chain.ID(1))
	require.NoError(t, err)
	params, ok := est.For(chain.SpeedMedium)
	require.True(t, ok)
	require.Equal(t, "2500000000", params.MaxFee.String())
	require.Equal(t, "500000000", params.MaxPriorityFee.String())
}

func TestNativeEstimatorErrorsOnEmptyHistory(t *testing.T) {
	p := &fakeFeeProvider{history: &provider.FeeHistoryResult{}}
	e := NewNativeEstimator(p)
	_, err := e.Estimate(context.Background(), chain.ID(1))
	require.Error(t, err)
}

func TestMedianRewardAtSkipsZeroAndMissingSamples(t *testing.T) {
	rewards := [][]*big.Int{
		{big.NewInt(0)},
		{big.NewInt(30)},
		{},
		{big.NewInt(10)},
		{big.NewInt(20)},
	}
	got := medianRewardAt(rewards, 0)
	require.Equal(t, big.NewInt(20).String(), got.String())
}

func TestMedianRewardAtAllZeroReturnsZero(t *testing.T) {
	rewards := [][]*big.Int{{big.NewInt(0)}, {big.NewInt(0)}}
	got := medianRewardAt(rewards, 0)
	require.Equal(t, int64(0), got.Int64())
}
