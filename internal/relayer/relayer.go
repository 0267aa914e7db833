// Package relayer holds the Relayer record (§3) and its setup and queue
// configuration types; the operations that mutate a relayer live in the
// orchestrator and storage packages. The queue orchestrator owns the relayer's runtime state;
// this package owns the identity and policy fields that are persisted and
// administered over HTTP.
package relayer

import (
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/signer"
)

// Relayer is the identity and policy record of §3's data model.
type Relayer struct {
	ID                 uuid.UUID
	Name               string
	ChainID            chain.ID
	Address            chain.Address
	WalletIndex        signer.WalletIndex
	ClonedFromChainID  *chain.ID
	MaxGasPrice        *uint256.Int
	MaxGasPriceMultiplier float64
	Paused             bool
	EIP1559Enabled     bool
	IsPrivateKey       bool
	CreatedAt          time.Time
	DeletedAt          *time.Time
}

// QueueConfig is §4.2.5's lock-protected, mutable queue configuration. It
// is stored alongside the relayer record but read by the queue on every
// tick rather than by reference to a Relayer value, so it is modelled
// separately and kept current via Store.
type QueueConfig struct {
	IsPaused              bool
	IsAllowlistedOnly     bool
	IsLegacyTransactions  bool
	MaxGasPrice           *uint256.Int
	MaxGasPriceMultiplier float64
	GasBumpBlocksEvery    uint64
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxGasPriceMultiplier: 1.0,
		GasBumpBlocksEvery:    3,
	}
}

// NewSetup is the input to Queue Orchestrator add_new_relayer (§4.1): the
// fields needed to provision a new relayer before its queue can start.
type NewSetup struct {
	Name        string
	ChainID     chain.ID
	WalletIndex signer.WalletIndex
	IsPrivateKey bool
}

// CloneSetup clones an existing relayer's signing key onto a different
// chain (§3 "cloned relayers share a wallet across chains"); the queue is
// still independent per (relayer_id, chain_id) per §9's design note.
type CloneSetup struct {
	SourceRelayerID uuid.UUID
	NewName         string
	ChainID         chain.ID
}
