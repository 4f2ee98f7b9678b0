package ledger

import (
	"context"
	"errors"
	"time"

	"agentengine/src/apperrors"
	"agentengine/src/events"
	"agentengine/src/model"
	"agentengine/src/risk"
	"agentengine/src/store"
	"agentengine/src/tp_sl"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const solSymbol = "SOL"

// Repository stores the ledger rows written next to each balance mutation.
type Repository interface {
	CreateTransaction(ctx context.Context, tx *model.Transaction) error
	CreateSwap(ctx context.Context, s *model.Swap) error
}

// Fill is a swap as it landed on chain.
type Fill struct {
	Signature   string
	TokenAmount decimal.Decimal
	SolAmount   decimal.Decimal
	PriceSol    decimal.Decimal
}

// Price returns the reported fill price, or SOL per token when none was reported.
func (f Fill) Price() decimal.Decimal {
	if f.PriceSol.IsPositive() || !f.TokenAmount.IsPositive() {
		return f.PriceSol
	}
	return f.SolAmount.Div(f.TokenAmount)
}

func (f Fill) validate() error {
	if !f.TokenAmount.IsPositive() || !f.SolAmount.IsPositive() {
		return apperrors.Validation("fill amounts must be positive")
	}
	return nil
}

// Purchase opens a new position.
type Purchase struct {
	AgentID            uint
	WalletAddress      string
	TokenAddress       string
	TokenSymbol        string
	SignalID           *uint
	Fill               Fill
	StopLossPercentage float64
	TakeProfitLevels   int
}

// Sale reduces or closes a position. Prepare, when set, runs on the locked position
// before the sold amount is deducted.
type Sale struct {
	PositionID uint
	SignalID   *uint
	Fill       Fill
	Reason     string
	Prepare    func(p *model.Position)
}

type SaleResult struct {
	Position *model.Position
	Closed   bool
}

// Recorder books executed trades: balances, ledger rows and position state change in one
// bounded transaction, caches and events follow the commit.
type Recorder struct {
	tx        *store.Transactor
	positions *store.PositionStore
	balances  *store.BalanceStore
	repo      Repository
	events    events.Publisher
	timeout   time.Duration
	log       *logrus.Entry
	now       func() time.Time
}

func NewRecorder(tx *store.Transactor, positions *store.PositionStore, balances *store.BalanceStore, repo Repository, publisher events.Publisher, config Config, log *logrus.Entry) *Recorder {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Recorder{
		tx:        tx,
		positions: positions,
		balances:  balances,
		repo:      repo,
		events:    publisher,
		timeout:   config.TxTimeout,
		log:       log.WithField("component", "LedgerRecorder"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordPurchase debits SOL, credits the token and opens the position. An agent holds at
// most one open position per token.
func (r *Recorder) RecordPurchase(ctx context.Context, in Purchase) (*model.Position, error) {
	if err := in.Fill.validate(); err != nil {
		return nil, err
	}

	var position *model.Position
	err := r.balances.Guard(ctx, in.WalletAddress, []string{model.NativeSOLMint, in.TokenAddress}, func(ctx context.Context) error {
		return r.tx.WithinTx(ctx, r.timeout, func(ctx context.Context) error {
			if _, err := r.balances.LockRow(ctx, in.WalletAddress, in.TokenAddress); err != nil {
				return err
			}
			open, err := r.positions.FindOpen(ctx, in.AgentID, in.TokenAddress)
			if err != nil {
				return err
			}
			if open != nil {
				return positionExists(in.TokenAddress)
			}

			if err := r.move(ctx, in.AgentID, in.WalletAddress, in.TokenAddress, in.TokenSymbol, in.Fill.SolAmount.Neg(), in.Fill.TokenAmount); err != nil {
				return err
			}
			txn, err := r.book(ctx, model.TransactionTypeBuy, in.AgentID, in.WalletAddress, in.TokenAddress, in.TokenSymbol, in.SignalID, in.Fill)
			if err != nil {
				return err
			}

			price := in.Fill.Price()
			p := &model.Position{
				AgentID:                   in.AgentID,
				WalletAddress:             in.WalletAddress,
				TokenAddress:              in.TokenAddress,
				TokenSymbol:               in.TokenSymbol,
				PurchasePrice:             price,
				PurchaseAmount:            in.Fill.TokenAmount,
				CurrentStopLossPercentage: in.StopLossPercentage,
				PeakPrice:                 price,
				TotalInvestedSol:          in.Fill.SolAmount,
				PurchaseTransactionID:     &txn.ID,
			}
			p.SetRemaining(in.Fill.TokenAmount)
			tp_sl.NewLevelBatch(in.TakeProfitLevels).Apply(p)

			if err := r.positions.Create(ctx, p); err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return positionExists(in.TokenAddress)
				}
				return err
			}
			r.publish(ctx, model.PositionCreated, p, "purchase")
			position = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"agent_id":    in.AgentID,
		"token":       in.TokenAddress,
		"position_id": position.ID,
		"tokens":      in.Fill.TokenAmount.String(),
		"sol":         in.Fill.SolAmount.String(),
	}).Info("Purchase recorded")
	return position, nil
}

// RecordDCA adds a filled averaging buy to an open position and starts a fresh
// take-profit batch of tpLevels.
func (r *Recorder) RecordDCA(ctx context.Context, positionID uint, signalID *uint, fill Fill, tpLevels int) (*model.Position, error) {
	if err := fill.validate(); err != nil {
		return nil, err
	}
	current, err := r.positions.Get(ctx, positionID)
	if err != nil {
		return nil, err
	}

	var position *model.Position
	err = r.balances.Guard(ctx, current.WalletAddress, []string{model.NativeSOLMint, current.TokenAddress}, func(ctx context.Context) error {
		return r.tx.WithinTx(ctx, r.timeout, func(ctx context.Context) error {
			if _, err := r.balances.LockRow(ctx, current.WalletAddress, current.TokenAddress); err != nil {
				return err
			}
			p, err := r.positions.Get(ctx, positionID)
			if err != nil {
				return err
			}
			if err := r.move(ctx, p.AgentID, p.WalletAddress, p.TokenAddress, p.TokenSymbol, fill.SolAmount.Neg(), fill.TokenAmount); err != nil {
				return err
			}
			if _, err := r.book(ctx, model.TransactionTypeBuy, p.AgentID, p.WalletAddress, p.TokenAddress, p.TokenSymbol, signalID, fill); err != nil {
				return err
			}

			risk.ApplyDCA(p, fill.TokenAmount, fill.SolAmount, tpLevels, r.now())
			if err := r.positions.Update(ctx, p); err != nil {
				return err
			}
			r.publish(ctx, model.PositionUpdated, p, "dca")
			position = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"position_id": position.ID,
		"dca_count":   position.DCACount,
		"tokens":      fill.TokenAmount.String(),
		"sol":         fill.SolAmount.String(),
	}).Info("DCA buy recorded")
	return position, nil
}

// RecordSale debits the sold tokens, credits SOL and reduces the position, deleting it
// once nothing remains.
func (r *Recorder) RecordSale(ctx context.Context, in Sale) (SaleResult, error) {
	if err := in.Fill.validate(); err != nil {
		return SaleResult{}, err
	}
	current, err := r.positions.Get(ctx, in.PositionID)
	if err != nil {
		return SaleResult{}, err
	}

	var result SaleResult
	err = r.balances.Guard(ctx, current.WalletAddress, []string{model.NativeSOLMint, current.TokenAddress}, func(ctx context.Context) error {
		return r.tx.WithinTx(ctx, r.timeout, func(ctx context.Context) error {
			if _, err := r.balances.LockRow(ctx, current.WalletAddress, current.TokenAddress); err != nil {
				return err
			}
			p, err := r.positions.Get(ctx, in.PositionID)
			if err != nil {
				return err
			}
			remaining := p.Remaining()
			if in.Fill.TokenAmount.GreaterThan(remaining) {
				return apperrors.Validation("sale of " + in.Fill.TokenAmount.String() + " exceeds remaining " + remaining.String())
			}
			if in.Prepare != nil {
				in.Prepare(p)
			}

			if err := r.move(ctx, p.AgentID, p.WalletAddress, p.TokenAddress, p.TokenSymbol, in.Fill.SolAmount, in.Fill.TokenAmount.Neg()); err != nil {
				return err
			}
			if _, err := r.book(ctx, model.TransactionTypeSell, p.AgentID, p.WalletAddress, p.TokenAddress, p.TokenSymbol, in.SignalID, in.Fill); err != nil {
				return err
			}

			left := remaining.Sub(in.Fill.TokenAmount)
			if !left.IsPositive() {
				if err := r.positions.Delete(ctx, p); err != nil {
					return err
				}
				p.SetRemaining(decimal.Zero)
				r.publish(ctx, model.PositionClosed, p, in.Reason)
				result = SaleResult{Position: p, Closed: true}
				return nil
			}

			p.SetRemaining(left)
			if err := r.positions.Update(ctx, p); err != nil {
				return err
			}
			r.publish(ctx, model.PositionUpdated, p, in.Reason)
			result = SaleResult{Position: p}
			return nil
		})
	})
	if err != nil {
		return SaleResult{}, err
	}

	r.log.WithFields(logrus.Fields{
		"position_id": in.PositionID,
		"reason":      in.Reason,
		"tokens":      in.Fill.TokenAmount.String(),
		"sol":         in.Fill.SolAmount.String(),
		"closed":      result.Closed,
	}).Info("Sale recorded")
	return result, nil
}

// UpdateTracking applies fn to the locked position and writes it when fn reports a change.
// It holds the same guard as the trades on the position, and the write only invalidates
// the cached copy, so it can never bring back a position a sale closed.
func (r *Recorder) UpdateTracking(ctx context.Context, positionID uint, fn func(p *model.Position) bool) (*model.Position, error) {
	current, err := r.positions.Get(ctx, positionID)
	if err != nil {
		return nil, err
	}

	var position *model.Position
	err = r.balances.Guard(ctx, current.WalletAddress, []string{model.NativeSOLMint, current.TokenAddress}, func(ctx context.Context) error {
		return r.tx.WithinTx(ctx, r.timeout, func(ctx context.Context) error {
			if _, err := r.balances.LockRow(ctx, current.WalletAddress, current.TokenAddress); err != nil {
				return err
			}
			p, err := r.positions.Get(ctx, positionID)
			if err != nil {
				return err
			}
			position = p
			if !fn(p) {
				return nil
			}
			return r.positions.Rewrite(ctx, p)
		})
	})
	if err != nil {
		return nil, err
	}
	return position, nil
}

// RecordDeposit credits amount of token to the wallet.
func (r *Recorder) RecordDeposit(ctx context.Context, agentID uint, walletAddress, tokenAddress, tokenSymbol string, amount decimal.Decimal) (*model.Balance, error) {
	if !amount.IsPositive() {
		return nil, apperrors.Validation("deposit amount must be positive")
	}

	var balance *model.Balance
	err := r.balances.Guard(ctx, walletAddress, []string{tokenAddress}, func(ctx context.Context) error {
		return r.tx.WithinTx(ctx, r.timeout, func(ctx context.Context) error {
			b, err := r.balances.ApplyDelta(ctx, agentID, walletAddress, tokenAddress, tokenSymbol, amount)
			if err != nil {
				return err
			}
			txn := &model.Transaction{
				AgentID:       agentID,
				WalletAddress: walletAddress,
				Type:          model.TransactionTypeDeposit,
				TokenAddress:  tokenAddress,
				TokenSymbol:   tokenSymbol,
				TokenAmount:   amount,
				SolAmount:     decimal.Zero,
				PriceSol:      decimal.Zero,
				CreatedAt:     r.now(),
			}
			if tokenAddress == model.NativeSOLMint {
				txn.SolAmount = amount
			}
			if err := r.repo.CreateTransaction(ctx, txn); err != nil {
				return err
			}
			balance = b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// move applies the SOL and token deltas of one trade.
func (r *Recorder) move(ctx context.Context, agentID uint, walletAddress, tokenAddress, tokenSymbol string, solDelta, tokenDelta decimal.Decimal) error {
	if _, err := r.balances.ApplyDelta(ctx, agentID, walletAddress, model.NativeSOLMint, solSymbol, solDelta); err != nil {
		return err
	}
	_, err := r.balances.ApplyDelta(ctx, agentID, walletAddress, tokenAddress, tokenSymbol, tokenDelta)
	return err
}

// book writes the transaction row and the swap it came from.
func (r *Recorder) book(ctx context.Context, kind string, agentID uint, walletAddress, tokenAddress, tokenSymbol string, signalID *uint, fill Fill) (*model.Transaction, error) {
	txn := &model.Transaction{
		AgentID:       agentID,
		WalletAddress: walletAddress,
		Type:          kind,
		TokenAddress:  tokenAddress,
		TokenSymbol:   tokenSymbol,
		TokenAmount:   fill.TokenAmount,
		SolAmount:     fill.SolAmount,
		PriceSol:      fill.Price(),
		Signature:     fill.Signature,
		SignalID:      signalID,
		CreatedAt:     r.now(),
	}
	if err := r.repo.CreateTransaction(ctx, txn); err != nil {
		return nil, err
	}

	swap := &model.Swap{
		TransactionID: txn.ID,
		WalletAddress: walletAddress,
		InputMint:     model.NativeSOLMint,
		OutputMint:    tokenAddress,
		InputAmount:   fill.SolAmount,
		OutputAmount:  fill.TokenAmount,
		Signature:     fill.Signature,
		CreatedAt:     txn.CreatedAt,
	}
	if kind == model.TransactionTypeSell {
		swap.InputMint, swap.OutputMint = tokenAddress, model.NativeSOLMint
		swap.InputAmount, swap.OutputAmount = fill.TokenAmount, fill.SolAmount
	}
	if err := r.repo.CreateSwap(ctx, swap); err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *Recorder) publish(ctx context.Context, t model.PositionEventType, p *model.Position, reason string) {
	ev := model.NewPositionEvent(t, p, reason)
	store.AfterCommit(ctx, r.log, "position.event", func(context.Context) error {
		r.events.Publish(ev)
		return nil
	})
}

func positionExists(tokenAddress string) error {
	return apperrors.Conflict(apperrors.CodePositionExists, "agent already holds an open position in "+tokenAddress)
}
