package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeBuy      = "buy"
	TransactionTypeSell     = "sell"
	TransactionTypeDeposit  = "deposit"
	TransactionTypeWithdraw = "withdraw"
)

// Transaction is the ledger row written together with every balance mutation.
type Transaction struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	AgentID       uint            `gorm:"not null;index" json:"agent_id"`
	WalletAddress string          `gorm:"size:64;not null;index" json:"wallet_address"`
	Type          string          `gorm:"size:20;not null" json:"type"`
	TokenAddress  string          `gorm:"size:64;not null;index" json:"token_address"`
	TokenSymbol   string          `gorm:"size:32" json:"token_symbol"`
	TokenAmount   decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"token_amount"`
	SolAmount     decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"sol_amount"`
	PriceSol      decimal.Decimal `gorm:"type:numeric(38,18);not null;default:0" json:"price_sol"`
	Signature     string          `gorm:"size:128;index" json:"signature"`
	SignalID      *uint           `gorm:"index" json:"signal_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// Swap is the historical record of an on-chain swap reported by the executor.
type Swap struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	TransactionID uint            `gorm:"not null;index" json:"transaction_id"`
	WalletAddress string          `gorm:"size:64;not null;index" json:"wallet_address"`
	InputMint     string          `gorm:"size:64;not null" json:"input_mint"`
	OutputMint    string          `gorm:"size:64;not null" json:"output_mint"`
	InputAmount   decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"input_amount"`
	OutputAmount  decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"output_amount"`
	Signature     string          `gorm:"size:128" json:"signature"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (Swap) TableName() string {
	return "swaps"
}
