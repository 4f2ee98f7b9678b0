package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// NativeSOLMint is the token address used for the wallet's SOL balance row.
const NativeSOLMint = "So11111111111111111111111111111111111111112"

// Balance is the authoritative token holding of a wallet. It is mutated only
// inside the durable transaction that also records the matching Transaction.
type Balance struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	AgentID       uint            `gorm:"not null;index" json:"agent_id"`
	WalletAddress string          `gorm:"size:64;not null;uniqueIndex:ux_balances_wallet_token,priority:1" json:"wallet_address"`
	TokenAddress  string          `gorm:"size:64;not null;uniqueIndex:ux_balances_wallet_token,priority:2" json:"token_address"`
	TokenSymbol   string          `gorm:"size:32" json:"token_symbol"`
	Balance       decimal.Decimal `gorm:"type:numeric(38,18);not null;default:0" json:"balance"`
	LastUpdated   time.Time       `gorm:"not null" json:"last_updated"`
}

func (Balance) TableName() string {
	return "balances"
}

// BalanceSnapshot is a point-in-time copy of a balance row, written by the snapshot job.
type BalanceSnapshot struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	AgentID       uint            `gorm:"not null;index" json:"agent_id"`
	WalletAddress string          `gorm:"size:64;not null;index;uniqueIndex:ux_snapshot_bucket,priority:1" json:"wallet_address"`
	TokenAddress  string          `gorm:"size:64;not null;uniqueIndex:ux_snapshot_bucket,priority:2" json:"token_address"`
	TokenSymbol   string          `gorm:"size:32" json:"token_symbol"`
	Balance       decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"balance"`
	SnapshotAt    time.Time       `gorm:"not null;uniqueIndex:ux_snapshot_bucket,priority:3" json:"snapshot_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (BalanceSnapshot) TableName() string {
	return "balance_snapshots"
}
