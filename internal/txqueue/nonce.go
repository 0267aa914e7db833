package txqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/provider"
)

// nonceManager is §4.2.2: one counter per queue, initialised from
// eth_getTransactionCount(address, "pending"), handed out under its own
// lock, monotonic, never decremented. holes records reserved gaps opened
// by a node-reported nonce jump ahead of the counter; reserve hands them
// out before the counter, to whichever transactions are broadcast next.
// No no-op transactions are generated to fill them.
type nonceManager struct {
	mu      sync.Mutex
	next    uint64
	holes   []uint64
}

func newNonceManager(ctx context.Context, p provider.Provider, addr chain.Address) (*nonceManager, error) {
	n, err := p.GetNonce(ctx, addr, true)
	if err != nil {
		return nil, fmt.Errorf("txqueue: initial nonce query: %w", err)
	}
	return &nonceManager{next: n}, nil
}

// reserve hands out the next nonce: a hole if one is open, otherwise the
// counter, which it then advances. Acquired, read, incremented, released
// synchronously without awaiting, per §5's suspension-point rule.
func (m *nonceManager) reserve() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.holes) > 0 {
		n := m.holes[0]
		m.holes = m.holes[1:]
		return n
	}
	n := m.next
	m.next++
	return n
}

// refresh re-synchronises the counter from the node on a nonce-too-low
// broadcast error (§4.2.2). If the node reports a higher value than the
// counter, the gap is opened as reserved holes so it can't stall pending
// broadcasts forever; reserve gives those holes to the next pending
// transactions drained.
func (m *nonceManager) refresh(ctx context.Context, p provider.Provider, addr chain.Address) error {
	onChain, err := p.GetNonce(ctx, addr, true)
	if err != nil {
		return fmt.Errorf("txqueue: refresh nonce: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if onChain > m.next {
		for n := m.next; n < onChain; n++ {
			m.holes = append(m.holes, n)
		}
		m.next = onChain
	}
	return nil
}

func (m *nonceManager) current() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next
}
