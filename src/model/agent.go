package model

import "time"

const (
	TradingModePaper = "paper"
	TradingModeLive  = "live"
)

// User owns agents and wallets and can pause automated trading per mode.
type User struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	UserName           string    `gorm:"size:120;uniqueIndex;not null" json:"user_name"`
	PaperTradingPaused bool      `gorm:"not null;default:false" json:"paper_trading_paused"`
	LiveTradingPaused  bool      `gorm:"not null;default:false" json:"live_trading_paused"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// TradingPaused reports whether automated trading is paused for mode.
func (u *User) TradingPaused(mode string) bool {
	if mode == TradingModeLive {
		return u.LiveTradingPaused
	}
	return u.PaperTradingPaused
}

// Agent is an automated trader bound to one wallet.
type Agent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	Name          string    `gorm:"size:120;not null" json:"name"`
	WalletAddress string    `gorm:"size:64;not null;index" json:"wallet_address"`
	TradingMode   string    `gorm:"size:16;not null;default:paper" json:"trading_mode"`
	Active        bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	User *User `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

func (Agent) TableName() string {
	return "agents"
}

// Wallet ties a wallet address to the user that controls it.
type Wallet struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index;uniqueIndex:ux_wallet_user_address,priority:1" json:"user_id"`
	Address   string    `gorm:"size:64;not null;uniqueIndex:ux_wallet_user_address,priority:2" json:"address"`
	Live      bool      `gorm:"not null;default:false" json:"live"`
	CreatedAt time.Time `json:"created_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}
