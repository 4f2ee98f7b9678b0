package externalmodel

import "time"

const (
	SignalTypeBuy  = "BUY"
	SignalTypeSell = "SELL"
)

// TradingSignal is a buy/sell signal produced upstream and read from the read-only database.
type TradingSignal struct {
	ID           uint      `gorm:"primaryKey;column:id" json:"id"`
	UserID       *uint     `gorm:"column:user_id" json:"user_id,omitempty"`
	TokenAddress string    `gorm:"column:token_address" json:"token_address"`
	TokenSymbol  string    `gorm:"column:token_symbol" json:"token_symbol"`
	SignalType   string    `gorm:"column:signal_type" json:"signal_type"`
	Strength     float64   `gorm:"column:strength" json:"strength"`
	Source       string    `gorm:"column:source" json:"source"`
	Comment      string    `gorm:"column:comment" json:"comment"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName Ensures that GORM uses the exact table name from the database.
func (TradingSignal) TableName() string {
	return "trading_signals"
}
