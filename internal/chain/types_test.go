package chain

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestSpeedValid(t *testing.T) {
	require.True(t, SpeedSlow.Valid())
	require.True(t, SpeedMedium.Valid())
	require.True(t, SpeedFast.Valid())
	require.True(t, SpeedSuper.Valid())
	require.False(t, Speed("turbo").Valid())
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusConfirmed, StatusFailed, StatusExpired, StatusCancelled}
	for _, s := range terminal {
		require.True(t, s.Terminal(), "%s should be terminal", s)
	}
	nonTerminal := []Status{StatusPending, StatusInMempool, StatusMined}
	for _, s := range nonTerminal {
		require.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestWeiFromBig(t *testing.T) {
	require.Equal(t, uint256.NewInt(0).String(), WeiFromBig(nil).String())
	require.Equal(t, "12345", WeiFromBig(big.NewInt(12345)).String())
}

func TestWeiFromBigOverflowPanics(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 257)
	require.Panics(t, func() { WeiFromBig(huge) })
}

func TestBumpByMinReplacement(t *testing.T) {
	require.Equal(t, "1125", BumpByMinReplacement(uint256.NewInt(1000)).String())
	// 101 * 1.125 = 113.625, must round up to 114.
	require.Equal(t, "114", BumpByMinReplacement(uint256.NewInt(101)).String())
}

func TestMaxUint256(t *testing.T) {
	a, b := uint256.NewInt(5), uint256.NewInt(9)
	require.Equal(t, b, MaxUint256(a, b))
	require.Equal(t, a, MaxUint256(b, a))
}
