package connectors

import (
	"context"
	"encoding/json"

	"agentengine/src/apperrors"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

type PurchaseRequest struct {
	AgentID       uint            `json:"agentId"`
	WalletAddress string          `json:"walletAddress"`
	TokenAddress  string          `json:"tokenAddress"`
	AmountSol     decimal.Decimal `json:"amountSol"`
	SignalID      *uint           `json:"signalId,omitempty"`
}

type SaleRequest struct {
	AgentID       uint            `json:"agentId"`
	WalletAddress string          `json:"walletAddress"`
	TokenAddress  string          `json:"tokenAddress"`
	TokenAmount   decimal.Decimal `json:"tokenAmount"`
	Reason        string          `json:"reason"`
	SignalID      *uint           `json:"signalId,omitempty"`
}

// TradeResult is what landed on chain.
type TradeResult struct {
	TransactionID string          `json:"transactionId"`
	TokenAmount   decimal.Decimal `json:"tokenAmount"`
	SolAmount     decimal.Decimal `json:"solAmount"`
	PriceSol      decimal.Decimal `json:"priceSol"`
}

// TradeExecutor performs swaps. Failures carry a machine readable code.
type TradeExecutor interface {
	ExecutePurchase(ctx context.Context, req PurchaseRequest) (TradeResult, error)
	ExecuteSale(ctx context.Context, req SaleRequest) (TradeResult, error)
}

// HTTPTradeExecutor calls the swap service. Every request carries an idempotency key so
// the transport retries can never land a swap twice.
type HTTPTradeExecutor struct {
	http   *resty.Client
	apiKey string
}

func NewHTTPTradeExecutor(config Config) *HTTPTradeExecutor {
	return &HTTPTradeExecutor{
		http:   newRestClient(config.TradeExecutorURL, config.TradeTimeout, defaultRetryAttempts-1),
		apiKey: config.ExecutorAPIKey,
	}
}

func (e *HTTPTradeExecutor) ExecutePurchase(ctx context.Context, req PurchaseRequest) (TradeResult, error) {
	if !req.AmountSol.IsPositive() {
		return TradeResult{}, apperrors.New(apperrors.KindValidation, ExecCodeInvalidAmount, "purchase amount must be positive")
	}
	return e.post(ctx, "/swaps/buy", req)
}

func (e *HTTPTradeExecutor) ExecuteSale(ctx context.Context, req SaleRequest) (TradeResult, error) {
	if !req.TokenAmount.IsPositive() {
		return TradeResult{}, apperrors.New(apperrors.KindValidation, ExecCodeInvalidAmount, "sale amount must be positive")
	}
	return e.post(ctx, "/swaps/sell", req)
}

func (e *HTTPTradeExecutor) post(ctx context.Context, path string, body interface{}) (TradeResult, error) {
	r := e.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetBody(body)
	if e.apiKey != "" {
		r = r.SetHeader("X-API-Key", e.apiKey)
	}

	resp, err := r.Post(path)
	if err != nil {
		return TradeResult{}, apperrors.DependencyUnavailable(err, "trade executor unreachable")
	}
	if resp.IsError() {
		var failure apiError
		_ = json.Unmarshal(resp.Body(), &failure)
		logger.WithFields(map[string]interface{}{
			"connector": "TradeExecutor",
			"path":      path,
			"status":    resp.StatusCode(),
			"code":      failure.Error.Code,
		}).Warn("Trade executor rejected request")
		return TradeResult{}, executorError(resp.StatusCode(), failure.Error.Code, failure.Error.Message)
	}
	var result TradeResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return TradeResult{}, apperrors.DependencyUnavailable(err, "trade executor returned malformed data")
	}
	return result, nil
}
