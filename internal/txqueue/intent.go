// Package txqueue implements the Per-Relayer Queue of §4.2: the
// three-stage state machine (pending / in-mempool / mined), the nonce
// manager, the gas-bump loop, and the cancel/replace protocol. Grounded on
// the teacher's miner/worker.go cooperative tick loop, generalized from
// "build one block" to "advance one relayer's transactions by one tick".
package txqueue

import (
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/rrelayer/rrelayer/internal/chain"
)

// Intent is a caller-supplied transaction request, before a nonce or gas
// parameters are attached (§3, §6 send/replace bodies).
type Intent struct {
	To         chain.Address
	Value      *uint256.Int
	Data       []byte
	Speed      chain.Speed
	BlobData   [][]byte
	ExternalID *string
}

// pendingEntry is one queued, not-yet-broadcast intent.
type pendingEntry struct {
	id         uuid.UUID
	intent     Intent
	queuedAt   time.Time
	expiresAt  *time.Time
}

// NoopIntent builds the zero-value, empty-data, relayer-to-self intent
// used by cancel (§3, §4.2.4, glossary "No-op").
func NoopIntent(relayerAddr chain.Address, speed chain.Speed) Intent {
	return Intent{
		To:    relayerAddr,
		Value: uint256.NewInt(0),
		Speed: speed,
	}
}
