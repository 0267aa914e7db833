package gas

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/holiman/uint256"

	"github.com/rrelayer/rrelayer/internal/chain"
)

// Quartet is the wire shape a pluggable HTTP gas provider must return: one
// fee pair per speed bucket (§4.3).
type Quartet struct {
	Slow   Pair `json:"slow"`
	Medium Pair `json:"medium"`
	Fast   Pair `json:"fast"`
	Super  Pair `json:"super"`
}

type Pair struct {
	MaxFeeWei         string `json:"max_fee_wei"`
	MaxPriorityFeeWei string `json:"max_priority_fee_wei"`
}

// HTTPEstimator calls a configured gas-provider endpoint (e.g. a
// block-explorer or third-party gas API) instead of deriving fees from
// fee history itself.
type HTTPEstimator struct {
	URL    string
	Client *http.Client
}

func NewHTTPEstimator(url string) *HTTPEstimator {
	return &HTTPEstimator{URL: url, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (h *HTTPEstimator) Estimate(ctx context.Context, chainID chain.ID) (Estimate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return Estimate{}, err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return Estimate{}, fmt.Errorf("gas provider request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Estimate{}, fmt.Errorf("gas provider returned status %d", resp.StatusCode)
	}

	var q Quartet
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return Estimate{}, fmt.Errorf("decode gas provider response: %w", err)
	}

	perSpeed := map[chain.Speed]Pair{
		chain.SpeedSlow:   q.Slow,
		chain.SpeedMedium: q.Medium,
		chain.SpeedFast:   q.Fast,
		chain.SpeedSuper:  q.Super,
	}
	out := make(map[chain.Speed]SpeedParams, len(perSpeed))
	for speed, pair := range perSpeed {
		maxFee, ok := new(big.Int).SetString(pair.MaxFeeWei, 10)
		if !ok {
			return Estimate{}, fmt.Errorf("gas provider: invalid max_fee_wei %q for %s", pair.MaxFeeWei, speed)
		}
		maxPriorityBig, ok := new(big.Int).SetString(pair.MaxPriorityFeeWei, 10)
		if !ok || maxPriorityBig.Sign() < 0 {
			return Estimate{}, fmt.Errorf("gas provider: invalid max_priority_fee_wei %q for %s", pair.MaxPriorityFeeWei, speed)
		}
		maxPriority, overflow := uint256.FromBig(maxPriorityBig)
		if overflow {
			return Estimate{}, fmt.Errorf("gas provider: invalid max_priority_fee_wei %q for %s", pair.MaxPriorityFeeWei, speed)
		}
		wait := waitHints[speed]
		out[speed] = SpeedParams{
			MaxFee:         clampFloor(maxFee),
			MaxPriorityFee: maxPriority,
			MinWait:        wait[0],
			MaxWait:        wait[1],
		}
	}
	return Estimate{ChainID: chainID, Timestamp: time.Now(), PerSpeed: out}, nil
}
