// Package chain holds the value types shared by every relayer package:
// chain identifiers, speed buckets, transaction status, and the wei/gas
// helpers built on uint256 the way the teacher's miner package uses them.
package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ID is an EVM chain id. A distinct Provider, Signer set and per-relayer
// queue exist per ID.
type ID uint64

// Speed is the coarse fee preference a caller attaches to a transaction
// intent; the gas oracle maps it to concrete fee parameters.
type Speed string

const (
	SpeedSlow   Speed = "slow"
	SpeedMedium Speed = "medium"
	SpeedFast   Speed = "fast"
	SpeedSuper  Speed = "super"
)

func (s Speed) Valid() bool {
	switch s {
	case SpeedSlow, SpeedMedium, SpeedFast, SpeedSuper:
		return true
	default:
		return false
	}
}

// Status is a transaction's position in the pending -> in-mempool -> mined
// -> confirmed state machine, or one of its terminal alternatives.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInMempool  Status = "in-mempool"
	StatusMined      Status = "mined"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are legal from this
// status (§3 invariant: terminal stickiness).
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusFailed, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// WeiFromBig converts a *big.Int into a uint256, clamping is never silent:
// callers must only pass non-negative values that fit in 256 bits, which
// holds for every wei/gas quantity this system ever computes.
func WeiFromBig(v *big.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		panic("chain: value overflows uint256")
	}
	return u
}

// BumpByMinReplacement returns v scaled by the network's minimum
// replacement-transaction bump (12.5%), rounded up as required by
// §4.2.3 ("rounded up").
func BumpByMinReplacement(v *uint256.Int) *uint256.Int {
	// v * 1125 / 1000, rounded up.
	scaled := new(uint256.Int).Mul(v, uint256.NewInt(1125))
	q, r := new(uint256.Int).DivMod(scaled, uint256.NewInt(1000), new(uint256.Int))
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}

// MaxUint256 returns whichever of a, b is larger.
func MaxUint256(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Address is a thin alias kept distinct from common.Address so relayer
// packages never need to import go-ethereum's common package directly
// just to name a value.
type Address = common.Address

// Hash is a thin alias, see Address.
type Hash = common.Hash
