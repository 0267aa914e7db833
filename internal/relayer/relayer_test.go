package relayer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultQueueConfig(t *testing.T) {
	cfg := DefaultQueueConfig()
	require.False(t, cfg.IsPaused)
	require.False(t, cfg.IsAllowlistedOnly)
	require.Equal(t, 1.0, cfg.MaxGasPriceMultiplier)
	require.Equal(t, uint64(3), cfg.GasBumpBlocksEvery)
	require.Nil(t, cfg.MaxGasPrice)
}
