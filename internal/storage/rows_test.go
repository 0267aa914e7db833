package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/rrelayer/rrelayer/internal/chain"
)

func TestNumericArgRoundTrip(t *testing.T) {
	require.Nil(t, numericArg(nil))
	v := uint256.NewInt(12345)
	got := numericArg(v)
	require.Equal(t, "12345", got)
	require.Equal(t, v.String(), mustUint256(got.(string)).String())
}

func TestMustUint256MalformedValueTreatedAsZero(t *testing.T) {
	got := mustUint256("not-a-number")
	require.True(t, got.IsZero())
}

func TestRelayerRowToDomain(t *testing.T) {
	addr := chain.Address{1, 2, 3, 4}
	id := uuid.New()
	row := relayerRow{
		ID:              id,
		Name:            "r1",
		ChainID:         11155111,
		Address:         addr.Bytes(),
		WalletIndex:     7,
		MaxGasPriceMult: 1.2,
		Paused:          true,
		EIP1559Enabled:  true,
		CreatedAt:       time.Now(),
	}
	got := row.toDomain()
	require.Equal(t, id, got.ID)
	require.Equal(t, "r1", got.Name)
	require.Equal(t, chain.ID(11155111), got.ChainID)
	require.Equal(t, addr, got.Address)
	require.True(t, got.Paused)
	require.Nil(t, got.MaxGasPrice)
}

func TestRelayerRowToDomainWithMaxGasPrice(t *testing.T) {
	maxGas := "5000000000"
	row := relayerRow{MaxGasPrice: &maxGas}
	got := row.toDomain()
	require.Equal(t, maxGas, got.MaxGasPrice.Dec())
}

func TestTxRowToDomainDefaultsZeroValue(t *testing.T) {
	row := txRow{
		ID:      uuid.New(),
		ChainID: 1,
		Speed:   "medium",
		Status:  "pending",
		Value:   "",
	}
	got := row.toDomain()
	require.True(t, got.Value.IsZero())
	require.Equal(t, chain.SpeedMedium, got.Speed)
	require.Equal(t, chain.StatusPending, got.Status)
}

func TestTxRowToDomainKnownHashRequiresFullWidth(t *testing.T) {
	row := txRow{KnownHash: []byte{1, 2, 3}}
	got := row.toDomain()
	require.Nil(t, got.KnownHash, "a short known_hash column must never be interpreted as a valid hash")
}

func TestTxArgsUsesDecimalStringsForUint256Columns(t *testing.T) {
	tx := Transaction{
		ID:        uuid.New(),
		Value:     uint256.NewInt(999),
		ChainID:   1,
		GasLimit:  21000,
		Speed:     chain.SpeedFast,
		Status:    chain.StatusPending,
		QueuedAt:  time.Now(),
	}
	args := txArgs(tx)
	require.Equal(t, "999", args[5])
}
