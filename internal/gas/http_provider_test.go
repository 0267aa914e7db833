package gas

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rrelayer/rrelayer/internal/chain"
)

func TestHTTPEstimatorParsesQuartet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"slow":   {"max_fee_wei": "1000000000",  "max_priority_fee_wei": "100000000"},
			"medium": {"max_fee_wei": "2000000000",  "max_priority_fee_wei": "200000000"},
			"fast":   {"max_fee_wei": "3000000000",  "max_priority_fee_wei": "300000000"},
			"super":  {"max_fee_wei": "4000000000",  "max_priority_fee_wei": "400000000"}
		}`))
	}))
	defer srv.Close()

	e := NewHTTPEstimator(srv.URL)
	est, err := e.Estimate(context.Background(), chain.ID(7))
	require.NoError(t, err)
	require.Equal(t, chain.ID(7), est.ChainID)

	params, ok := est.For(chain.SpeedFast)
	require.True(t, ok)
	require.Equal(t, "3000000000", params.MaxFee.String())
	require.Equal(t, "300000000", params.MaxPriorityFee.String())
}

func TestHTTPEstimatorRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewHTTPEstimator(srv.URL)
	_, err := e.Estimate(context.Background(), chain.ID(1))
	require.Error(t, err)
}

func TestHTTPEstimatorRejectsInvalidFeeValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"slow": {"max_fee_wei": "not-a-number", "max_priority_fee_wei": "1"}}`))
	}))
	defer srv.Close()

	e := NewHTTPEstimator(srv.URL)
	_, err := e.Estimate(context.Background(), chain.ID(1))
	require.Error(t, err)
}
