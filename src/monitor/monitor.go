package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"agentengine/src/apperrors"
	"agentengine/src/connectors"
	"agentengine/src/controller"
	"agentengine/src/ledger"
	"agentengine/src/model"
	"agentengine/src/risk"
	"agentengine/src/tp_sl"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Exit reasons recorded on sales started by the monitor.
const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
	ReasonStaleTrade = "stale_trade"
)

// Action is what one evaluation did to a position.
type Action string

const (
	ActionNone       Action = "none"
	ActionTracked    Action = "tracked"
	ActionStopLoss   Action = "stop_loss"
	ActionTakeProfit Action = "take_profit"
	ActionStaleTrade Action = "stale_trade"
	ActionDCA        Action = "dca"
	ActionFailed     Action = "failed"
)

type PositionSource interface {
	FindAll(ctx context.Context) ([]model.Position, error)
}

type Positions interface {
	ListByToken(ctx context.Context, tokenAddress string) ([]model.Position, error)
}

type ConfigSource interface {
	Get(ctx context.Context, agentID uint) (*model.AgentTradingConfig, error)
}

type Balances interface {
	Amount(ctx context.Context, walletAddress, tokenAddress string) (decimal.Decimal, error)
}

type Ledger interface {
	RecordSale(ctx context.Context, in ledger.Sale) (ledger.SaleResult, error)
	RecordDCA(ctx context.Context, positionID uint, signalID *uint, fill ledger.Fill, tpLevels int) (*model.Position, error)
	UpdateTracking(ctx context.Context, positionID uint, fn func(p *model.Position) bool) (*model.Position, error)
}

// Deps are the collaborators of a PositionMonitor. Exceptions is optional.
type Deps struct {
	Seed       PositionSource
	Positions  Positions
	Configs    ConfigSource
	Balances   Balances
	Oracle     connectors.PriceOracle
	Executor   connectors.TradeExecutor
	Ledger     Ledger
	Presets    risk.Presets
	Exceptions controller.ExceptionSink
}

// TickSummary counts what one tick did.
type TickSummary struct {
	Tokens    int
	Unpriced  int
	Untracked int
	Actions   map[Action]int
}

// PositionMonitor watches the price of every token with an open position and applies
// the exit and averaging rules of each holder's configuration.
type PositionMonitor struct {
	deps   Deps
	config Config
	log    *logrus.Entry
	now    func() time.Time

	mu     sync.Mutex
	tokens map[string]struct{}
	ticks  atomic.Int64
}

func New(deps Deps, config Config, log *logrus.Entry) *PositionMonitor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Presets.DCA == nil && deps.Presets.TakeProfit == nil {
		deps.Presets = risk.DefaultPresets()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &PositionMonitor{
		deps:   deps,
		config: config,
		log:    log.WithField("component", "PositionMonitor"),
		now:    func() time.Time { return time.Now().UTC() },
		tokens: map[string]struct{}{},
	}
}

func (m *PositionMonitor) Track(tokenAddress string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenAddress] = struct{}{}
}

func (m *PositionMonitor) Untrack(tokenAddress string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, tokenAddress)
}

// Tokens returns the tracked tokens in sorted order.
func (m *PositionMonitor) Tokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tokens))
	for t := range m.tokens {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Seed tracks the token of every stored position.
func (m *PositionMonitor) Seed(ctx context.Context) error {
	positions, err := m.deps.Seed.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, p := range positions {
		m.Track(p.TokenAddress)
	}
	m.log.WithField("tokens", len(m.Tokens())).Info("Seeded tracked tokens")
	return nil
}

// Consume tracks tokens of created and updated positions until ch closes or ctx ends.
// Closed positions are untracked by the next tick once no holder is left.
func (m *PositionMonitor) Consume(ctx context.Context, ch <-chan model.PositionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Type {
			case model.PositionCreated, model.PositionUpdated:
				m.Track(ev.TokenAddress)
			}
		}
	}
}

// Run seeds the tracked tokens and ticks every interval until ctx ends.
func (m *PositionMonitor) Run(ctx context.Context) error {
	if err := m.Seed(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("monitor stopped")
			return nil
		case <-ticker.C:
			if _, err := m.Tick(ctx); err != nil {
				m.log.WithError(err).Warn("Monitor tick failed")
			}
		}
	}
}

// Tick prices every tracked token in one batch and evaluates each open position. Tokens
// without a price are skipped for this tick. A failing position never stops the others.
func (m *PositionMonitor) Tick(ctx context.Context) (TickSummary, error) {
	summary := TickSummary{Actions: map[Action]int{}}
	tokens := m.Tokens()
	summary.Tokens = len(tokens)
	if len(tokens) == 0 {
		return summary, nil
	}
	tick := m.ticks.Add(1)

	prices, err := m.deps.Oracle.GetTokenPrices(ctx, tokens)
	if err != nil {
		return summary, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.Workers)
	for _, token := range tokens {
		price, ok := prices[token]
		if !ok || !price.PriceSol.IsPositive() {
			summary.Unpriced++
			m.log.WithFields(logrus.Fields{"token": token, "tick": tick}).Debug("No price, skipping token")
			continue
		}
		positions, err := m.deps.Positions.ListByToken(ctx, token)
		if err != nil {
			m.log.WithError(err).WithField("token", token).Warn("Failed to list positions")
			continue
		}
		if len(positions) == 0 {
			m.Untrack(token)
			summary.Untracked++
			continue
		}
		for _, p := range positions {
			p := p
			g.Go(func() error {
				action, err := m.Evaluate(gctx, p, price.PriceSol)
				if err != nil {
					action = ActionFailed
					m.log.WithError(err).WithFields(logrus.Fields{
						"position_id": p.ID,
						"agent_id":    p.AgentID,
						"token":       p.TokenAddress,
						"code":        apperrors.CodeOf(err),
					}).Warn("Position evaluation failed")
				}
				mu.Lock()
				summary.Actions[action]++
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()
	return summary, nil
}

// Evaluate applies the holder's rules to p at price. The trailing stop is checked first,
// then take profit, stale trade and DCA. When nothing fires, a raised peak or a moved
// stop is persisted.
func (m *PositionMonitor) Evaluate(ctx context.Context, p model.Position, price decimal.Decimal) (Action, error) {
	cfg, err := m.deps.Configs.Get(ctx, p.AgentID)
	if err != nil {
		return ActionNone, err
	}
	if cfg == nil {
		return ActionNone, apperrors.NotFound(apperrors.CodeConfigNotFound, fmt.Sprintf("agent %d has no trading configuration", p.AgentID))
	}
	if err := m.deps.Presets.Resolve(cfg); err != nil {
		return ActionNone, err
	}
	now := m.now()

	stop := tp_sl.EvaluateTrailingStop(p.PurchasePrice, p.PeakPrice, price, cfg.StopLoss)
	track := func(q *model.Position) {
		q.PeakPrice = stop.PeakPrice
		q.CurrentStopLossPercentage = stop.StopLossPercent
	}

	if stop.Triggered {
		m.log.WithFields(logrus.Fields{
			"position_id": p.ID,
			"gain":        stop.CurrentGainPercent,
			"stop":        stop.StopLossPercent,
		}).Info("Trailing stop triggered")
		return ActionStopLoss, m.sell(ctx, p, p.Remaining(), ReasonStopLoss, track)
	}

	tp, err := tp_sl.CalculateTakeProfit(tp_sl.TakeProfitInputFor(&p, price, cfg.TakeProfit))
	if err != nil {
		return ActionNone, err
	}
	applyTP := func(q *model.Position) {
		track(q)
		q.TakeProfitLevelsHit = tp.NewLevelsHit
		q.MoonBagActivated = tp.MoonBagActivated
		q.MoonBagAmount = tp.MoonBagAmount
	}
	if !tp.NoOp && tp.SellAmount.IsPositive() {
		m.log.WithFields(logrus.Fields{
			"position_id": p.ID,
			"gain":        tp.GainPercent,
			"levels":      len(tp.TriggeredLevels),
			"sell":        tp.SellAmount.String(),
		}).Info("Take profit triggered")
		return ActionTakeProfit, m.sell(ctx, p, tp.SellAmount, ReasonTakeProfit, applyTP)
	}

	stale := risk.EvaluateStaleTrade(&p, stop.CurrentGainPercent, now, cfg.StaleTrade)
	if stale.Stale {
		m.log.WithFields(logrus.Fields{
			"position_id": p.ID,
			"held_for":    stale.HeldFor.String(),
			"gain":        stale.GainPercent,
		}).Info("Stale trade exit")
		return ActionStaleTrade, m.sell(ctx, p, p.Remaining(), ReasonStaleTrade, track)
	}

	dca := risk.EvaluateDCA(risk.DCAInputFor(&p, price, now, cfg.DCA))
	if dca.Trigger {
		done, err := m.averageDown(ctx, p, dca, cfg)
		if err != nil || done {
			return ActionDCA, err
		}
	}

	if !tp.Changed() && stop.PeakPrice.Equal(p.PeakPrice) && stop.StopLossPercent == p.CurrentStopLossPercentage {
		return ActionNone, nil
	}
	_, err = m.deps.Ledger.UpdateTracking(ctx, p.ID, func(q *model.Position) bool {
		before := *q
		if tp.Changed() {
			applyTP(q)
		} else {
			track(q)
		}
		if q.PeakPrice.LessThan(before.PeakPrice) {
			q.PeakPrice = before.PeakPrice
		}
		return !q.PeakPrice.Equal(before.PeakPrice) ||
			q.CurrentStopLossPercentage != before.CurrentStopLossPercentage ||
			q.TakeProfitLevelsHit != before.TakeProfitLevelsHit ||
			q.MoonBagActivated != before.MoonBagActivated
	})
	if err != nil {
		return ActionNone, ignoreClosed(err)
	}
	return ActionTracked, nil
}

// sell executes a sale of amount and books it. prepare runs on the locked position.
func (m *PositionMonitor) sell(ctx context.Context, p model.Position, amount decimal.Decimal, reason string, prepare func(*model.Position)) error {
	trade, err := m.deps.Executor.ExecuteSale(ctx, connectors.SaleRequest{
		AgentID:       p.AgentID,
		WalletAddress: p.WalletAddress,
		TokenAddress:  p.TokenAddress,
		TokenAmount:   amount,
		Reason:        reason,
	})
	if err != nil {
		return err
	}
	_, err = m.deps.Ledger.RecordSale(ctx, ledger.Sale{
		PositionID: p.ID,
		Fill:       fillOf(trade),
		Reason:     reason,
		Prepare:    prepare,
	})
	if err != nil {
		m.unrecorded(ctx, err, p, trade)
	}
	return err
}

// averageDown buys the DCA amount when the wallet holds enough SOL. It reports false
// when the buy was skipped.
func (m *PositionMonitor) averageDown(ctx context.Context, p model.Position, dca risk.DCADecision, cfg *model.AgentTradingConfig) (bool, error) {
	log := m.log.WithFields(logrus.Fields{
		"position_id": p.ID,
		"level":       dca.LevelIndex,
		"drop":        dca.DropPercent,
		"buy_sol":     dca.BuySol.String(),
	})
	balance, err := m.deps.Balances.Amount(ctx, p.WalletAddress, model.NativeSOLMint)
	if err != nil && apperrors.KindOf(err) != apperrors.KindNotFound {
		return false, err
	}
	if balance.LessThan(dca.BuySol) {
		log.WithField("balance", balance.String()).Info("DCA skipped, insufficient SOL")
		return false, nil
	}

	trade, err := m.deps.Executor.ExecutePurchase(ctx, connectors.PurchaseRequest{
		AgentID:       p.AgentID,
		WalletAddress: p.WalletAddress,
		TokenAddress:  p.TokenAddress,
		AmountSol:     dca.BuySol,
	})
	if err != nil {
		return false, err
	}
	tpLevels := 0
	if cfg.TakeProfit.Enabled {
		tpLevels = len(cfg.TakeProfit.Levels)
	}
	if _, err := m.deps.Ledger.RecordDCA(ctx, p.ID, nil, fillOf(trade), tpLevels); err != nil {
		m.unrecorded(ctx, err, p, trade)
		return false, err
	}
	log.Info("DCA executed")
	return true, nil
}

func (m *PositionMonitor) unrecorded(ctx context.Context, err error, p model.Position, trade connectors.TradeResult) {
	fields := logrus.Fields{
		"position_id":    p.ID,
		"agent_id":       p.AgentID,
		"token":          p.TokenAddress,
		"transaction_id": trade.TransactionID,
		"tokens":         trade.TokenAmount.String(),
		"sol":            trade.SolAmount.String(),
	}
	m.log.WithError(err).WithFields(fields).Error("Swap executed but not recorded, ledger needs reconciliation")
	controller.Capture(ctx, m.deps.Exceptions, controller.ServiceName(), "monitor", "RecordTrade", controller.LevelError, err, fields)
}

func fillOf(t connectors.TradeResult) ledger.Fill {
	return ledger.Fill{
		Signature:   t.TransactionID,
		TokenAmount: t.TokenAmount,
		SolAmount:   t.SolAmount,
		PriceSol:    t.PriceSol,
	}
}

// ignoreClosed drops the error of a position closed by a concurrent sale.
func ignoreClosed(err error) error {
	if apperrors.CodeOf(err) == apperrors.CodePositionNotFound {
		return nil
	}
	return err
}
