package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one open (or partially sold) holding of a token by an agent wallet.
// Rows are removed on full close, never soft deleted.
type Position struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	AgentID       uint   `gorm:"not null;index;uniqueIndex:ux_positions_agent_token,priority:1" json:"agent_id"`
	WalletAddress string `gorm:"size:64;not null;index" json:"wallet_address"`
	TokenAddress  string `gorm:"size:64;not null;index;uniqueIndex:ux_positions_agent_token,priority:2" json:"token_address"`
	TokenSymbol   string `gorm:"size:32" json:"token_symbol"`

	// PurchasePrice is the SOL price per token; after a DCA buy it holds the weighted average entry.
	PurchasePrice decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"purchase_price"`
	// PurchaseAmount is every token bought into the position. A DCA buy adds its tokens, so
	// take-profit sell percentages and the moon bag reserve are sized on the grown amount
	// from then on.
	PurchaseAmount  decimal.Decimal  `gorm:"type:numeric(38,18);not null" json:"purchase_amount"`
	RemainingAmount *decimal.Decimal `gorm:"type:numeric(38,18)" json:"remaining_amount,omitempty"`

	CurrentStopLossPercentage float64         `gorm:"not null;default:0" json:"current_stop_loss_percentage"`
	PeakPrice                 decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"peak_price"`

	TakeProfitLevelsHit   int `gorm:"not null;default:0" json:"take_profit_levels_hit"`
	TotalTakeProfitLevels int `gorm:"not null;default:0" json:"total_take_profit_levels"`
	TPBatchStartLevel     int `gorm:"column:tp_batch_start_level;not null;default:0" json:"tp_batch_start_level"`

	MoonBagActivated bool            `gorm:"not null;default:false" json:"moon_bag_activated"`
	MoonBagAmount    decimal.Decimal `gorm:"type:numeric(38,18);not null;default:0" json:"moon_bag_amount"`

	DCACount         int             `gorm:"column:dca_count;not null;default:0" json:"dca_count"`
	TotalInvestedSol decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"total_invested_sol"`
	LastDCATime      *time.Time      `gorm:"column:last_dca_time" json:"last_dca_time,omitempty"`

	PurchaseTransactionID *uint `gorm:"index" json:"purchase_transaction_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// Remaining returns the unsold token amount, treating a nil column as never sold.
func (p *Position) Remaining() decimal.Decimal {
	if p.RemainingAmount == nil {
		return p.PurchaseAmount
	}
	return *p.RemainingAmount
}

// SetRemaining stores amount as the remaining token quantity.
func (p *Position) SetRemaining(amount decimal.Decimal) {
	a := amount
	p.RemainingAmount = &a
}

// GainPercent returns the percentage change of price against the purchase price.
func (p *Position) GainPercent(price decimal.Decimal) float64 {
	if p.PurchasePrice.IsZero() {
		return 0
	}
	pct, _ := price.Sub(p.PurchasePrice).Div(p.PurchasePrice).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// PositionEventType enumerates lifecycle notifications for positions.
type PositionEventType string

const (
	PositionCreated PositionEventType = "position_created"
	PositionUpdated PositionEventType = "position_updated"
	PositionClosed  PositionEventType = "position_closed"
)

// PositionEvent is published after a durable position change committed.
type PositionEvent struct {
	Type          PositionEventType `json:"type"`
	PositionID    uint              `json:"position_id"`
	AgentID       uint              `json:"agent_id"`
	WalletAddress string            `json:"wallet_address"`
	TokenAddress  string            `json:"token_address"`
	TokenSymbol   string            `json:"token_symbol"`
	Reason        string            `json:"reason,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// NewPositionEvent builds an event snapshot of p.
func NewPositionEvent(t PositionEventType, p *Position, reason string) PositionEvent {
	return PositionEvent{
		Type:          t,
		PositionID:    p.ID,
		AgentID:       p.AgentID,
		WalletAddress: p.WalletAddress,
		TokenAddress:  p.TokenAddress,
		TokenSymbol:   p.TokenSymbol,
		Reason:        reason,
		OccurredAt:    time.Now().UTC(),
	}
}
