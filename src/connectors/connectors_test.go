package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"agentengine/src/apperrors"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type assertError struct{}

func (assertError) Error() string { return "err" }

func fakeResponse(status int) *resty.Response {
	return &resty.Response{RawResponse: &http.Response{StatusCode: status}}
}

func testConfig(url string) Config {
	return Config{
		PriceOracleURL:   url,
		TokenMetricsURL:  url,
		TradeExecutorURL: url,
		ExecutorAPIKey:   "secret",
		Timeout:          2 * time.Second,
		TradeTimeout:     2 * time.Second,
		PriceBatchSize:   2,
	}
}

func TestIsRetryableResp(t *testing.T) {
	cases := []struct {
		name string
		resp *resty.Response
		err  error
		want bool
	}{
		{name: "error present", err: assertError{}, want: true},
		{name: "server error", resp: fakeResponse(500), want: true},
		{name: "too many requests", resp: fakeResponse(429), want: true},
		{name: "timeout", resp: fakeResponse(408), want: true},
		{name: "ok response", resp: fakeResponse(200), want: false},
		{name: "bad request", resp: fakeResponse(400), want: false},
		{name: "nil resp", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isRetryableResp(tc.resp, tc.err))
		})
	}
}

func TestPriceOracle_BatchesAndSkipsUnknown(t *testing.T) {
	var batches []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prices", r.URL.Path)
		ids := r.URL.Query().Get("ids")
		batches = append(batches, ids)
		data := map[string]interface{}{}
		for _, id := range strings.Split(ids, ",") {
			switch id {
			case "A":
				data[id] = map[string]string{"priceSol": "0.5", "priceUsd": "75"}
			case "B":
				data[id] = map[string]string{"priceSol": "0", "priceUsd": "0"}
			case "C":
				data[id] = map[string]interface{}{"priceSol": nil}
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
	defer srv.Close()

	oracle := NewHTTPPriceOracle(testConfig(srv.URL))
	prices, err := oracle.GetTokenPrices(context.Background(), []string{"A", "B", "C", "D"})
	require.NoError(t, err)

	assert.Equal(t, []string{"A,B", "C,D"}, batches)
	require.Len(t, prices, 2)
	assert.True(t, prices["A"].PriceSol.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, prices["B"].PriceSol.IsZero(), "a zero price is still a price")
	_, ok := prices["C"]
	assert.False(t, ok)
}

func TestPriceOracle_SingleUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPPriceOracle(testConfig(srv.URL)).GetTokenPrice(context.Background(), "A")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPriceUnavailable))
	assert.Equal(t, apperrors.CodePriceUnavailable, apperrors.CodeOf(err))
}

func TestPriceOracle_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"A":{"priceSol":"1.25"}}}`))
	}))
	defer srv.Close()

	p, err := NewHTTPPriceOracle(testConfig(srv.URL)).GetTokenPrice(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "1.25", p.PriceSol.String())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPriceOracle_ClientErrorIsDependencyFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewHTTPPriceOracle(testConfig(srv.URL)).GetTokenPrices(context.Background(), []string{"A"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindDependencyUnavailable, apperrors.KindOf(err))
}

func TestTokenMetrics_NullableFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/Mint1/metrics", r.URL.Path)
		_, _ = w.Write([]byte(`{"marketCapUsd":125000.5,"liquidityUsd":null,"holders":321}`))
	}))
	defer srv.Close()

	m, err := NewHTTPTokenMetricsProvider(testConfig(srv.URL)).GetTokenMetrics(context.Background(), "Mint1")
	require.NoError(t, err)
	require.NotNil(t, m.MarketCapUSD)
	assert.Equal(t, 125000.5, *m.MarketCapUSD)
	assert.Nil(t, m.LiquidityUSD)
	require.NotNil(t, m.Holders)
	assert.Equal(t, int64(321), *m.Holders)
	assert.Equal(t, "Mint1", m.TokenAddress)
}

func TestTradeExecutor_Purchase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/swaps/buy", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))

		var req PurchaseRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, uint(3), req.AgentID)
		assert.Equal(t, "0.75", req.AmountSol.String())

		_, _ = w.Write([]byte(`{"transactionId":"5sig","tokenAmount":"1500","solAmount":"0.75","priceSol":"0.0005"}`))
	}))
	defer srv.Close()

	res, err := NewHTTPTradeExecutor(testConfig(srv.URL)).ExecutePurchase(context.Background(), PurchaseRequest{
		AgentID:       3,
		WalletAddress: "W",
		TokenAddress:  "T",
		AmountSol:     decimal.RequireFromString("0.75"),
	})
	require.NoError(t, err)
	assert.Equal(t, "5sig", res.TransactionID)
	assert.Equal(t, "1500", res.TokenAmount.String())
}

func TestTradeExecutor_RetriesKeepIdempotencyKey(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		if len(keys) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"transactionId":"sig","tokenAmount":"1","solAmount":"1","priceSol":"1"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPTradeExecutor(testConfig(srv.URL)).ExecuteSale(context.Background(), SaleRequest{
		TokenAddress: "T",
		TokenAmount:  decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1])
}

func TestTradeExecutor_ErrorCodes(t *testing.T) {
	cases := []struct {
		body string
		code string
		kind apperrors.Kind
	}{
		{`{"error":{"code":"INSUFFICIENT_BALANCE","message":"need 1.2 SOL"}}`, apperrors.CodeInsufficientBalance, apperrors.KindInsufficientResource},
		{`{"error":{"code":"SLIPPAGE_EXCEEDED","message":"moved"}}`, ExecCodeSlippageExceeded, apperrors.KindDependencyUnavailable},
		{`{"error":{"code":"BRAND_NEW","message":"?"}}`, "BRAND_NEW", apperrors.KindDependencyUnavailable},
		{`{}`, ExecCodeUnknown, apperrors.KindDependencyUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewHTTPTradeExecutor(testConfig(srv.URL)).ExecutePurchase(context.Background(), PurchaseRequest{AmountSol: decimal.NewFromInt(1)})
			require.Error(t, err)
			assert.Equal(t, tc.code, apperrors.CodeOf(err))
			assert.Equal(t, tc.kind, apperrors.KindOf(err))
		})
	}
}

func TestTradeExecutor_RejectsNonPositiveAmounts(t *testing.T) {
	e := NewHTTPTradeExecutor(testConfig("http://127.0.0.1:1"))
	_, err := e.ExecutePurchase(context.Background(), PurchaseRequest{})
	assert.Equal(t, ExecCodeInvalidAmount, apperrors.CodeOf(err))
	_, err = e.ExecuteSale(context.Background(), SaleRequest{TokenAmount: decimal.NewFromInt(-1)})
	assert.Equal(t, ExecCodeInvalidAmount, apperrors.CodeOf(err))
}
