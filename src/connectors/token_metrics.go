package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agentengine/src/apperrors"
	"agentengine/src/model"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

type TokenMetricsProvider interface {
	GetTokenMetrics(ctx context.Context, tokenAddress string) (*model.TokenMetrics, error)
}

type metricsResponse struct {
	MarketCapUSD *float64 `json:"marketCapUsd"`
	LiquidityUSD *float64 `json:"liquidityUsd"`
	Holders      *int64   `json:"holders"`
}

// HTTPTokenMetricsProvider reads market metrics from the token data service.
type HTTPTokenMetricsProvider struct {
	http    *resty.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func NewHTTPTokenMetricsProvider(config Config) *HTTPTokenMetricsProvider {
	return &HTTPTokenMetricsProvider{
		http:    newRestClient(config.TokenMetricsURL, config.Timeout, defaultRetryAttempts-1),
		limiter: newLimiter(config.RateLimit, config.RateBurst),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (p *HTTPTokenMetricsProvider) GetTokenMetrics(ctx context.Context, tokenAddress string) (*model.TokenMetrics, error) {
	if err := wait(ctx, p.limiter); err != nil {
		return nil, err
	}

	resp, err := p.http.R().
		SetContext(ctx).
		SetPathParam("address", tokenAddress).
		Get("/tokens/{address}/metrics")
	if err != nil {
		return nil, apperrors.DependencyUnavailable(err, "token metrics unreachable")
	}
	if resp.IsError() {
		return nil, apperrors.DependencyUnavailable(fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body())), "token metrics failed")
	}

	var body metricsResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, apperrors.DependencyUnavailable(err, "token metrics returned malformed data")
	}
	return &model.TokenMetrics{
		TokenAddress: tokenAddress,
		MarketCapUSD: body.MarketCapUSD,
		LiquidityUSD: body.LiquidityUSD,
		Holders:      body.Holders,
		FetchedAt:    p.now(),
	}, nil
}
