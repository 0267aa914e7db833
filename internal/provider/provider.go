// Package provider wraps a list of per-chain RPC endpoints behind the
// retrying, circuit-breaking client described in spec §4.4. It is built
// directly on the teacher's own dependency, github.com/ethereum/go-ethereum,
// the way node/node_rollup.go and eth/backend_rollup.go dial an
// ethclient.Client and hand it to the rest of the node.
package provider

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rrelayer/rrelayer/internal/chain"
)

// Provider is the contract every queue and gas estimator depends on; it
// never exposes which endpoint answered a given call.
type Provider interface {
	ChainID(ctx context.Context) (chain.ID, error)
	GetNonce(ctx context.Context, addr chain.Address, pending bool) (uint64, error)
	GetBalance(ctx context.Context, addr chain.Address) (*big.Int, error)
	SendRawTransaction(ctx context.Context, raw []byte) (chain.Hash, error)
	GetReceipt(ctx context.Context, hash chain.Hash) (*types.Receipt, error)
	EstimateGas(ctx context.Context, msg Call) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FeeHistory(ctx context.Context, blocks uint64, rewardPercentiles []float64) (*FeeHistoryResult, error)
	SupportsBlobTransactions() bool
}

// Call mirrors ethereum.CallMsg without forcing callers to import
// go-ethereum directly for the four fields this system ever sets.
type Call struct {
	From  chain.Address
	To    *chain.Address
	Value *big.Int
	Data  []byte
}

// FeeHistoryResult mirrors go-ethereum's eth.FeeHistoryResult so callers of
// Provider never need to import go-ethereum's rpc package themselves.
type FeeHistoryResult struct {
	OldestBlock  *big.Int
	Reward       [][]*big.Int
	BaseFee      []*big.Int
	GasUsedRatio []float64
}

// Multi fans a chain's calls out across N RPC endpoints with exponential
// backoff across endpoints on transport errors and a per-endpoint circuit
// on persistent 5xx, per §4.4.
type Multi struct {
	chainID   chain.ID
	endpoints []*endpoint
	blobCap   bool
}

type endpoint struct {
	url     string
	client  *ethclient.Client
	circuit *circuitBreaker
}

// Dial connects to every endpoint for a chain, verifying eth_chainId
// against the configured value (§4.4: "mismatch is a fatal startup
// error"). Grounded on node.RegisterEthClient's ethclient.Dial +
// log.Error/log.Info pairing.
func Dial(ctx context.Context, chainID chain.ID, urls []string, supportsBlobs bool) (*Multi, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("provider: no RPC endpoints configured for chain %d", chainID)
	}
	m := &Multi{chainID: chainID, blobCap: supportsBlobs}
	for _, url := range urls {
		c, err := ethclient.DialContext(ctx, url)
		if err != nil {
			log.Error("Unable to connect to RPC endpoint", "chain", chainID, "url", url, "error", err)
			continue
		}
		got, err := c.ChainID(ctx)
		if err != nil {
			log.Error("eth_chainId failed", "chain", chainID, "url", url, "error", err)
			c.Close()
			continue
		}
		if got.Uint64() != uint64(chainID) {
			return nil, fmt.Errorf("provider: chain id mismatch at %s: configured %d, node reports %d", url, chainID, got.Uint64())
		}
		log.Info("Initialized RPC endpoint", "chain", chainID, "url", url)
		m.endpoints = append(m.endpoints, &endpoint{url: url, client: c, circuit: newCircuitBreaker()})
	}
	if len(m.endpoints) == 0 {
		return nil, fmt.Errorf("%w: chain %d", ErrProviderUnavailable, chainID)
	}
	return m, nil
}

// ErrProviderUnavailable is returned by add_new_relayer per §4.1 when no
// configured endpoint for the chain is reachable.
var ErrProviderUnavailable = fmt.Errorf("provider unavailable")

func (m *Multi) ChainID(ctx context.Context) (chain.ID, error) {
	return m.chainID, nil
}

func (m *Multi) SupportsBlobTransactions() bool { return m.blobCap }

func (m *Multi) GetNonce(ctx context.Context, addr chain.Address, pending bool) (uint64, error) {
	var out uint64
	err := m.call(ctx, func(ctx context.Context, c *ethclient.Client) error {
		var e error
		if pending {
			out, e = c.PendingNonceAt(ctx, addr)
		} else {
			out, e = c.NonceAt(ctx, addr, nil)
		}
		return e
	})
	return out, err
}

func (m *Multi) GetBalance(ctx context.Context, addr chain.Address) (*big.Int, error) {
	var out *big.Int
	err := m.call(ctx, func(ctx context.Context, c *ethclient.Client) error {
		var e error
		out, e = c.BalanceAt(ctx, addr, nil)
		return e
	})
	return out, err
}

func (m *Multi) SendRawTransaction(ctx context.Context, raw []byte) (chain.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return chain.Hash{}, fmt.Errorf("provider: decode signed transaction: %w", err)
	}
	err := m.call(ctx, func(ctx context.Context, c *ethclient.Client) error {
		return c.SendTransaction(ctx, tx)
	})
	return tx.Hash(), err
}

func (m *Multi) GetReceipt(ctx context.Context, hash chain.Hash) (*types.Receipt, error) {
	var out *types.Receipt
	err := m.call(ctx, func(ctx context.Context, c *ethclient.Client) error {
		var e error
		out, e = c.TransactionReceipt(ctx, hash)
		return e
	})
	return out, err
}

func (m *Multi) EstimateGas(ctx context.Context, call Call) (uint64, error) {
	var out uint64
	err := m.call(ctx, func(ctx context.Context, c *ethclient.Client) error {
		var e error
		out, e = c.EstimateGas(ctx, callToEthereum(call))
		return e
	})
	return out, err
}

func (m *Multi) BlockNumber(ctx context.Context) (uint64, error) {
	var out uint64
	err := m.call(ctx, func(ctx context.Context, c *ethclient.Client) error {
		var e error
		out, e = c.BlockNumber(ctx)
		return e
	})
	return out, err
}

func (m *Multi) FeeHistory(ctx context.Context, blocks uint64, rewardPercentiles []float64) (*FeeHistoryResult, error) {
	var out *FeeHistoryResult
	err := m.call(ctx, func(ctx context.Context, c *ethclient.Client) error {
		fh, e := c.FeeHistory(ctx, blocks, nil, rewardPercentiles)
		if e != nil {
			return e
		}
		out = &FeeHistoryResult{
			OldestBlock:  fh.OldestBlock,
			Reward:       fh.Reward,
			BaseFee:      fh.BaseFee,
			GasUsedRatio: fh.GasUsedRatio,
		}
		return nil
	})
	return out, err
}

// Client exposes the first healthy endpoint's raw client (the first
// configured one when every circuit is open) for callers that need full
// go-ethereum surface area beyond the Provider contract.
func (m *Multi) Client() *ethclient.Client {
	for _, ep := range m.endpoints {
		if ep.circuit.allow() {
			return ep.client
		}
	}
	return m.endpoints[0].client
}
