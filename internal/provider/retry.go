package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// circuitBreaker trips an endpoint out of rotation after consecutive
// transport/5xx failures, the way a persistent-5xx circuit is described in
// §4.4. It resets after a cooldown so a recovered endpoint rejoins
// rotation without an operator restart.
type circuitBreaker struct {
	mu        sync.Mutex
	failures  int
	openUntil time.Time
	threshold int
	cooldown  time.Duration
}

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{threshold: 5, cooldown: 30 * time.Second}
}

func (c *circuitBreaker) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().After(c.openUntil)
}

func (c *circuitBreaker) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.openUntil = time.Time{}
}

func (c *circuitBreaker) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures >= c.threshold {
		c.openUntil = time.Now().Add(c.cooldown)
	}
}

const (
	maxCallPasses  = 3
	perCallTimeout = 10 * time.Second
)

// call executes fn against each endpoint in rotation, skipping any whose
// circuit is open, with exponential backoff between passes over the
// endpoint list on transport errors (§4.4). Application-level errors
// (reverts, nonce-too-low, underpriced replacement) are returned
// immediately without rotating endpoints, so the caller's recoverable/
// deterministic classification (§7) applies to the real error.
func (m *Multi) call(ctx context.Context, fn func(ctx context.Context, c *ethclient.Client) error) error {
	var lastErr error
	for pass := 0; pass < maxCallPasses; pass++ {
		triedAny := false
		for _, ep := range m.endpoints {
			if !ep.circuit.allow() {
				continue
			}
			triedAny = true
			callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
			err := fn(callCtx, ep.client)
			cancel()
			if err == nil {
				ep.circuit.recordSuccess()
				return nil
			}
			lastErr = err
			if !isTransportOrServerError(err) {
				return err
			}
			ep.circuit.recordFailure()
			log.Warn("provider call failed, trying next endpoint", "chain", m.chainID, "url", ep.url, "err", err)
		}
		if !triedAny {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		backoff := (250 * time.Millisecond) << pass
		if backoff > 2*time.Second {
			backoff = 2 * time.Second
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if lastErr == nil {
		return fmt.Errorf("%w: chain %d", ErrProviderUnavailable, m.chainID)
	}
	return fmt.Errorf("provider: all endpoints exhausted: %w", lastErr)
}

// isTransportOrServerError decides whether an error is an endpoint-health
// signal (triggers rotation/circuit) versus an application-level error
// that must be surfaced to the caller unchanged.
func isTransportOrServerError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	var jsonErr rpc.Error
	if errors.As(err, &jsonErr) {
		// A node returned a well-formed JSON-RPC error (revert, nonce-too-
		// low, etc): this is an application error, not a transport fault.
		return false
	}
	// Unrecognized errors (dial failures, connection resets, timeouts not
	// wrapped as context errors) are treated as transport faults.
	return true
}
