package coordinator

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"agentengine/src/apperrors"
	"agentengine/src/connectors"
	"agentengine/src/controller"
	"agentengine/src/eligibility"
	"agentengine/src/externalmodel"
	"agentengine/src/ledger"
	"agentengine/src/model"
	"agentengine/src/risk"
	"agentengine/src/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
)

type AgentSource interface {
	ActiveAgentIDs(ctx context.Context) ([]uint, error)
	AgentByID(ctx context.Context, id uint) (*model.Agent, error)
}

type Eligibility interface {
	GetEligibleAgents(ctx context.Context, signal externalmodel.TradingSignal, activeAgentIDs []uint, metrics *model.TokenMetrics, metricsErr error) (eligibility.Result, error)
}

type Tracker interface {
	Begin(ctx context.Context, signalID, agentID uint) (*model.ExecutionRecord, bool, error)
	Complete(ctx context.Context, id uint, transactionID string) error
	Fail(ctx context.Context, id uint, cause error) error
}

type ConfigSource interface {
	Get(ctx context.Context, agentID uint) (*model.AgentTradingConfig, error)
}

type Balances interface {
	Amount(ctx context.Context, walletAddress, tokenAddress string) (decimal.Decimal, error)
}

type Positions interface {
	FindOpen(ctx context.Context, agentID uint, tokenAddress string) (*model.Position, error)
}

type Ledger interface {
	RecordPurchase(ctx context.Context, in ledger.Purchase) (*model.Position, error)
	RecordSale(ctx context.Context, in ledger.Sale) (ledger.SaleResult, error)
}

// Deps are the collaborators of a Coordinator. Exceptions is optional.
type Deps struct {
	Agents      AgentSource
	Eligibility Eligibility
	Tracker     Tracker
	Configs     ConfigSource
	Balances    Balances
	Positions   Positions
	Metrics     connectors.TokenMetricsProvider
	Executor    connectors.TradeExecutor
	Ledger      Ledger
	Presets     risk.Presets
	Exceptions  controller.ExceptionSink
}

// Outcome is the result of one agent acting on a signal.
type Outcome struct {
	Status        string
	Code          string
	Error         string
	TransactionID string
	PositionID    uint
}

// Summary aggregates what happened to a signal.
type Summary struct {
	SignalID   uint
	Rejections map[uint][]string
	Outcomes   map[uint]Outcome
	Duration   time.Duration
}

func (s Summary) Count(status string) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Coordinator turns a signal into per-agent trades.
type Coordinator struct {
	deps   Deps
	config Config
	rand   risk.RandFunc
	log    *logrus.Entry
}

func New(deps Deps, config Config, log *logrus.Entry) *Coordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if deps.Presets.DCA == nil && deps.Presets.TakeProfit == nil {
		deps.Presets = risk.DefaultPresets()
	}
	return &Coordinator{
		deps:   deps,
		config: config,
		rand:   rand.Float64,
		log:    log.WithField("component", "SignalCoordinator"),
	}
}

// ProcessSignal validates the signal, fetches token metrics once, selects eligible agents
// and runs each agent's trade in parallel. Every started execution record reaches a
// terminal state before ProcessSignal returns.
func (c *Coordinator) ProcessSignal(ctx context.Context, signal externalmodel.TradingSignal) (summary Summary, err error) {
	started := time.Now()
	summary = Summary{SignalID: signal.ID, Rejections: map[uint][]string{}, Outcomes: map[uint]Outcome{}}
	if err = validate(signal); err != nil {
		return summary, err
	}
	side := strings.ToUpper(signal.SignalType)
	defer func() {
		summary.Duration = time.Since(started)
		SignalLatency.WithLabelValues(side).Observe(summary.Duration.Seconds())
	}()

	log := c.log.WithFields(logrus.Fields{
		"signal_id": signal.ID,
		"token":     signal.TokenAddress,
		"type":      side,
	})

	active, err := c.deps.Agents.ActiveAgentIDs(ctx)
	if err != nil {
		return summary, err
	}

	metrics, metricsErr := c.deps.Metrics.GetTokenMetrics(ctx, signal.TokenAddress)
	if metricsErr != nil {
		MetricsUnavailable.Inc()
		log.WithError(metricsErr).Warn("Token metrics unavailable, agents with metric bounds will be rejected")
	}

	result, err := c.deps.Eligibility.GetEligibleAgents(ctx, signal, active, metrics, metricsErr)
	if err != nil {
		return summary, err
	}
	summary.Rejections = result.Rejections
	Rejections.Add(float64(len(result.Rejections)))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Workers)
	for _, agentID := range result.Eligible {
		agentID := agentID
		g.Go(func() error {
			out := c.execute(gctx, signal, side, agentID)
			Executions.WithLabelValues(side, out.Status).Inc()
			mu.Lock()
			summary.Outcomes[agentID] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	log.WithFields(logrus.Fields{
		"eligible":  len(result.Eligible),
		"rejected":  len(result.Rejections),
		"succeeded": summary.Count(OutcomeSuccess),
		"failed":    summary.Count(OutcomeFailed),
		"duplicate": summary.Count(OutcomeDuplicate),
	}).Info("Signal processed")
	return summary, nil
}

// execute claims the (signal, agent) pair and drives it to SUCCESS or FAILED.
func (c *Coordinator) execute(ctx context.Context, signal externalmodel.TradingSignal, side string, agentID uint) Outcome {
	log := c.log.WithFields(logrus.Fields{"signal_id": signal.ID, "agent_id": agentID})

	rec, started, err := c.deps.Tracker.Begin(ctx, signal.ID, agentID)
	if err != nil {
		log.WithError(err).Error("Failed to claim execution")
		return Outcome{Status: OutcomeFailed, Code: codeOf(err), Error: err.Error()}
	}
	if !started {
		log.Info("Signal already handled for agent")
		return Outcome{Status: OutcomeDuplicate, Code: apperrors.CodeDuplicateExecution}
	}

	tradeStart := time.Now()
	out, err := c.safeTrade(ctx, signal, side, agentID)
	TradeLatency.WithLabelValues(side).Observe(time.Since(tradeStart).Seconds())

	// the record is terminated even when the signal context is already done
	finishCtx := context.WithoutCancel(ctx)
	if err != nil {
		if ferr := c.deps.Tracker.Fail(finishCtx, rec.ID, err); ferr != nil {
			log.WithError(ferr).Error("Failed to mark execution failed")
		}
		return Outcome{Status: OutcomeFailed, Code: codeOf(err), Error: err.Error()}
	}
	if cerr := c.deps.Tracker.Complete(finishCtx, rec.ID, out.TransactionID); cerr != nil {
		log.WithError(cerr).Error("Failed to mark execution succeeded")
	}
	out.Status = OutcomeSuccess
	return out
}

func (c *Coordinator) safeTrade(ctx context.Context, signal externalmodel.TradingSignal, side string, agentID uint) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.New(apperrors.KindInternal, apperrors.CodeInternal, fmt.Sprintf("trade panicked: %v", r))
			controller.Capture(ctx, c.deps.Exceptions, controller.ServiceName(), "coordinator", "Trade", controller.LevelFatal, err,
				map[string]interface{}{"signal_id": signal.ID, "agent_id": agentID, "side": side})
		}
	}()

	if c.config.TradeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.TradeTimeout)
		defer cancel()
	}
	if side == externalmodel.SignalTypeSell {
		return c.sell(ctx, signal, agentID)
	}
	return c.buy(ctx, signal, agentID)
}

func (c *Coordinator) agentAndConfig(ctx context.Context, agentID uint) (*model.Agent, *model.AgentTradingConfig, error) {
	agent, err := c.deps.Agents.AgentByID(ctx, agentID)
	if err != nil {
		return nil, nil, err
	}
	if agent == nil {
		return nil, nil, apperrors.NotFound(apperrors.CodeAgentNotFound, fmt.Sprintf("agent %d not found", agentID))
	}
	cfg, err := c.deps.Configs.Get(ctx, agentID)
	if err != nil {
		return nil, nil, err
	}
	if cfg == nil {
		return nil, nil, apperrors.NotFound(apperrors.CodeConfigNotFound, fmt.Sprintf("agent %d has no trading configuration", agentID))
	}
	if err := c.deps.Presets.Resolve(cfg); err != nil {
		return nil, nil, err
	}
	return agent, cfg, nil
}

func (c *Coordinator) buy(ctx context.Context, signal externalmodel.TradingSignal, agentID uint) (Outcome, error) {
	agent, cfg, err := c.agentAndConfig(ctx, agentID)
	if err != nil {
		return Outcome{}, err
	}

	open, err := c.deps.Positions.FindOpen(ctx, agentID, signal.TokenAddress)
	if err != nil {
		return Outcome{}, err
	}
	if open != nil {
		return Outcome{}, apperrors.Conflict(apperrors.CodePositionExists,
			fmt.Sprintf("agent %d already holds position %d in %s", agentID, open.ID, signal.TokenAddress))
	}

	balance, err := c.deps.Balances.Amount(ctx, agent.WalletAddress, model.NativeSOLMint)
	if err != nil {
		return Outcome{}, err
	}
	var rnd risk.RandFunc
	if cfg.PositionCalculator.Randomization {
		rnd = c.rand
	}
	size, err := risk.CalculatePositionSize(balance, *cfg, rnd)
	if err != nil {
		return Outcome{}, err
	}

	signalID := signal.ID
	trade, err := c.deps.Executor.ExecutePurchase(ctx, connectors.PurchaseRequest{
		AgentID:       agentID,
		WalletAddress: agent.WalletAddress,
		TokenAddress:  signal.TokenAddress,
		AmountSol:     size,
		SignalID:      &signalID,
	})
	if err != nil {
		return Outcome{}, err
	}

	tpLevels := 0
	if cfg.TakeProfit.Enabled {
		tpLevels = len(cfg.TakeProfit.Levels)
	}
	position, err := c.deps.Ledger.RecordPurchase(ctx, ledger.Purchase{
		AgentID:            agentID,
		WalletAddress:      agent.WalletAddress,
		TokenAddress:       signal.TokenAddress,
		TokenSymbol:        signal.TokenSymbol,
		SignalID:           &signalID,
		Fill:               fillOf(trade),
		StopLossPercentage: cfg.StopLoss.DefaultPercentage,
		TakeProfitLevels:   tpLevels,
	})
	if err != nil {
		c.unrecorded(ctx, err, agentID, signal, trade)
		return Outcome{}, err
	}
	return Outcome{TransactionID: trade.TransactionID, PositionID: position.ID}, nil
}

// sell exits the agent's whole open position in the token.
func (c *Coordinator) sell(ctx context.Context, signal externalmodel.TradingSignal, agentID uint) (Outcome, error) {
	agent, _, err := c.agentAndConfig(ctx, agentID)
	if err != nil {
		return Outcome{}, err
	}
	position, err := c.deps.Positions.FindOpen(ctx, agentID, signal.TokenAddress)
	if err != nil {
		return Outcome{}, err
	}
	if position == nil {
		return Outcome{}, apperrors.NotFound(apperrors.CodePositionNotFound,
			fmt.Sprintf("agent %d holds no position in %s", agentID, signal.TokenAddress))
	}

	signalID := signal.ID
	trade, err := c.deps.Executor.ExecuteSale(ctx, connectors.SaleRequest{
		AgentID:       agentID,
		WalletAddress: agent.WalletAddress,
		TokenAddress:  signal.TokenAddress,
		TokenAmount:   position.Remaining(),
		Reason:        "sell_signal",
		SignalID:      &signalID,
	})
	if err != nil {
		return Outcome{}, err
	}

	if _, err := c.deps.Ledger.RecordSale(ctx, ledger.Sale{
		PositionID: position.ID,
		SignalID:   &signalID,
		Fill:       fillOf(trade),
		Reason:     "sell_signal",
	}); err != nil {
		c.unrecorded(ctx, err, agentID, signal, trade)
		return Outcome{}, err
	}
	return Outcome{TransactionID: trade.TransactionID, PositionID: position.ID}, nil
}

// unrecorded reports a swap that landed on chain but could not be booked.
func (c *Coordinator) unrecorded(ctx context.Context, err error, agentID uint, signal externalmodel.TradingSignal, trade connectors.TradeResult) {
	fields := logrus.Fields{
		"signal_id":      signal.ID,
		"agent_id":       agentID,
		"token":          signal.TokenAddress,
		"transaction_id": trade.TransactionID,
		"tokens":         trade.TokenAmount.String(),
		"sol":            trade.SolAmount.String(),
	}
	c.log.WithError(err).WithFields(fields).Error("Swap executed but not recorded, ledger needs reconciliation")
	controller.Capture(ctx, c.deps.Exceptions, controller.ServiceName(), "coordinator", "RecordTrade", controller.LevelError, err, fields)
}

func fillOf(t connectors.TradeResult) ledger.Fill {
	return ledger.Fill{
		Signature:   t.TransactionID,
		TokenAmount: t.TokenAmount,
		SolAmount:   t.SolAmount,
		PriceSol:    t.PriceSol,
	}
}

func validate(signal externalmodel.TradingSignal) error {
	if signal.ID == 0 {
		return apperrors.Validation("signal id is required")
	}
	switch strings.ToUpper(signal.SignalType) {
	case externalmodel.SignalTypeBuy, externalmodel.SignalTypeSell:
	default:
		return apperrors.Validation(fmt.Sprintf("unsupported signal type %q", signal.SignalType))
	}
	return utils.ValidateAddress(signal.TokenAddress)
}

func codeOf(err error) string {
	if code := apperrors.CodeOf(err); code != "" {
		return code
	}
	return apperrors.CodeInternal
}
