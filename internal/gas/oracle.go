package gas

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/singleflight"

	"github.com/rrelayer/rrelayer/internal/chain"
)

// mainFeeInterval and blobFeeInterval are the background refresh cadences
// from §4.3.
const (
	mainFeeInterval = 10 * time.Second
	blobFeeInterval = 20 * time.Second
)

// Estimator is the pluggable fee-market source: the native RPC estimator
// (eth_feeHistory percentiles) or an HTTP provider returning speed
// quartets directly. Both satisfy the same contract so the Cache never
// cares which one is configured for a chain.
type Estimator interface {
	Estimate(ctx context.Context, chainID chain.ID) (Estimate, error)
}

// BlobEstimator is the blob-market analogue of Estimator.
type BlobEstimator interface {
	EstimateBlob(ctx context.Context, chainID chain.ID) (BlobEstimate, error)
}

// Cache holds the most recent main-fee and blob-fee observation per chain
// behind a mutex that protects only the map swap (§5: "the gas-oracle
// mutex protects only the hashmap swap"). A background loop per configured
// chain refreshes it; failures leave the previous estimate in place.
type Cache struct {
	mu    sync.RWMutex
	main  map[chain.ID]Estimate
	blob  map[chain.ID]BlobEstimate

	estimators     map[chain.ID]Estimator
	blobEstimators map[chain.ID]BlobEstimator

	group singleflight.Group

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewCache() *Cache {
	return &Cache{
		main:           make(map[chain.ID]Estimate),
		blob:           make(map[chain.ID]BlobEstimate),
		estimators:     make(map[chain.ID]Estimator),
		blobEstimators: make(map[chain.ID]BlobEstimator),
		stop:           make(chan struct{}),
	}
}

// Register wires an estimator (and optional blob estimator) for a chain and
// starts its background refresh loops right away; Cache has no separate
// Start step, so Register also hot-adds a chain to a running cache.
func (c *Cache) Register(chainID chain.ID, est Estimator, blobEst BlobEstimator) {
	c.mu.Lock()
	c.estimators[chainID] = est
	if blobEst != nil {
		c.blobEstimators[chainID] = blobEst
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runMainLoop(chainID, est)
	if blobEst != nil {
		c.wg.Add(1)
		go c.runBlobLoop(chainID, blobEst)
	}
}

func (c *Cache) Close() {
	close(c.stop)
	c.wg.Wait()
}

func (c *Cache) runMainLoop(chainID chain.ID, est Estimator) {
	defer c.wg.Done()
	c.refreshMain(chainID, est)
	t := time.NewTicker(mainFeeInterval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.refreshMain(chainID, est)
		}
	}
}

func (c *Cache) refreshMain(chainID chain.ID, est Estimator) {
	// singleflight collapses concurrent hot-add + ticker races into one
	// RPC call per chain.
	key := fmt.Sprintf("main:%d", chainID)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return est.Estimate(ctx, chainID)
	})
	if err != nil {
		log.Warn("gas oracle refresh failed, keeping previous estimate", "chain", chainID, "err", err)
		return
	}
	estimate := v.(Estimate)
	c.mu.Lock()
	c.main[chainID] = estimate
	c.mu.Unlock()
}

func (c *Cache) runBlobLoop(chainID chain.ID, est BlobEstimator) {
	defer c.wg.Done()
	c.refreshBlob(chainID, est)
	t := time.NewTicker(blobFeeInterval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.refreshBlob(chainID, est)
		}
	}
}

func (c *Cache) refreshBlob(chainID chain.ID, est BlobEstimator) {
	key := fmt.Sprintf("blob:%d", chainID)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return est.EstimateBlob(ctx, chainID)
	})
	if err != nil {
		log.Warn("blob gas oracle refresh failed, keeping previous estimate", "chain", chainID, "err", err)
		return
	}
	estimate := v.(BlobEstimate)
	c.mu.Lock()
	c.blob[chainID] = estimate
	c.mu.Unlock()
}

// Main returns the most recent main-fee observation for a chain.
func (c *Cache) Main(chainID chain.ID) (Estimate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.main[chainID]
	return e, ok
}

// Blob returns the most recent blob-fee observation for a chain.
func (c *Cache) Blob(chainID chain.ID) (BlobEstimate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.blob[chainID]
	return e, ok
}
