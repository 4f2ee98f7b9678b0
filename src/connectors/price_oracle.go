package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"agentengine/src/apperrors"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrPriceUnavailable means the oracle has no price for a token. It is never reported
// as a zero price.
var ErrPriceUnavailable = errors.New("price unavailable")

// Price is the quote of one token.
type Price struct {
	TokenAddress string
	PriceSol     decimal.Decimal
	PriceUsd     decimal.Decimal
	UpdatedAt    time.Time
}

type PriceOracle interface {
	GetTokenPrice(ctx context.Context, tokenAddress string) (Price, error)
	// GetTokenPrices omits tokens without a price from the result.
	GetTokenPrices(ctx context.Context, tokenAddresses []string) (map[string]Price, error)
}

type priceEntry struct {
	PriceSol  *decimal.Decimal `json:"priceSol"`
	PriceUsd  *decimal.Decimal `json:"priceUsd"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type pricesResponse struct {
	Data map[string]*priceEntry `json:"data"`
}

// HTTPPriceOracle reads prices from the oracle REST service.
type HTTPPriceOracle struct {
	http      *resty.Client
	limiter   *rate.Limiter
	batchSize int
}

func NewHTTPPriceOracle(config Config) *HTTPPriceOracle {
	batch := config.PriceBatchSize
	if batch <= 0 {
		batch = 50
	}
	return &HTTPPriceOracle{
		http:      newRestClient(config.PriceOracleURL, config.Timeout, defaultRetryAttempts-1),
		limiter:   newLimiter(config.RateLimit, config.RateBurst),
		batchSize: batch,
	}
}

func (o *HTTPPriceOracle) GetTokenPrice(ctx context.Context, tokenAddress string) (Price, error) {
	prices, err := o.GetTokenPrices(ctx, []string{tokenAddress})
	if err != nil {
		return Price{}, err
	}
	p, ok := prices[tokenAddress]
	if !ok {
		return Price{}, unavailable(tokenAddress)
	}
	return p, nil
}

func (o *HTTPPriceOracle) GetTokenPrices(ctx context.Context, tokenAddresses []string) (map[string]Price, error) {
	out := make(map[string]Price, len(tokenAddresses))
	for start := 0; start < len(tokenAddresses); start += o.batchSize {
		end := start + o.batchSize
		if end > len(tokenAddresses) {
			end = len(tokenAddresses)
		}
		if err := o.fetch(ctx, tokenAddresses[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (o *HTTPPriceOracle) fetch(ctx context.Context, batch []string, out map[string]Price) error {
	if err := wait(ctx, o.limiter); err != nil {
		return err
	}

	resp, err := o.http.R().
		SetContext(ctx).
		SetQueryParam("ids", strings.Join(batch, ",")).
		Get("/prices")
	if err != nil {
		return apperrors.DependencyUnavailable(err, "price oracle unreachable")
	}
	if resp.IsError() {
		logger.WithFields(map[string]interface{}{
			"connector": "PriceOracle",
			"status":    resp.StatusCode(),
			"tokens":    len(batch),
		}).Warn("Price oracle returned an error")
		return apperrors.DependencyUnavailable(fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body())), "price oracle failed")
	}

	var body pricesResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return apperrors.DependencyUnavailable(err, "price oracle returned malformed data")
	}
	for _, addr := range batch {
		e := body.Data[addr]
		if e == nil || e.PriceSol == nil {
			continue
		}
		p := Price{TokenAddress: addr, PriceSol: *e.PriceSol, UpdatedAt: e.UpdatedAt}
		if e.PriceUsd != nil {
			p.PriceUsd = *e.PriceUsd
		}
		out[addr] = p
	}
	return nil
}

func unavailable(tokenAddress string) error {
	return apperrors.Wrap(ErrPriceUnavailable, apperrors.KindDependencyUnavailable, apperrors.CodePriceUnavailable,
		"no price for "+tokenAddress)
}
