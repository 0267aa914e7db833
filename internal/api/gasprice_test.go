package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rrelayer/rrelayer/internal/chain"
	"github.com/rrelayer/rrelayer/internal/gas"
)

type fakeGasEstimator struct {
	estimate gas.Estimate
}

func (f *fakeGasEstimator) Estimate(ctx context.Context, chainID chain.ID) (gas.Estimate, error) {
	return f.estimate, nil
}

func TestHandleGasPriceReturnsCachedEstimate(t *testing.T) {
	est := &fakeGasEstimator{estimate: gas.Estimate{
		ChainID: 5,
		PerSpeed: map[chain.Speed]gas.SpeedParams{
			chain.SpeedMedium: {MaxFee: gas.FloorWei},
		},
	}}
	cache := gas.NewCache()
	cache.Register(chain.ID(5), est, nil)
	defer cache.Close()

	require.Eventually(t, func() bool {
		_, ok := cache.Main(chain.ID(5))
		return ok
	}, time.Second, 5*time.Millisecond)

	cfg := testConfig(&fakeAPIStore{})
	cfg.GasCache = cache
	handler := Router(cfg)

	req := httptest.NewRequest(http.MethodGet, "/gas/price/5", nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleGasPriceUnknownChainIs404(t *testing.T) {
	cache := gas.NewCache()
	defer cache.Close()

	cfg := testConfig(&fakeAPIStore{})
	cfg.GasCache = cache
	handler := Router(cfg)

	req := httptest.NewRequest(http.MethodGet, "/gas/price/999", nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
