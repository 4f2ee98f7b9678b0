package model

import (
	"time"

	"gorm.io/datatypes"
)

// Stop-loss modes.
const (
	StopLossModeFixed       = "fixed"
	StopLossModeExponential = "exponential"
	StopLossModeZones       = "zones"
	StopLossModeCustom      = "custom"
)

// Token filter modes for signal eligibility.
const (
	TokenFilterNone      = "none"
	TokenFilterBlacklist = "blacklist"
	TokenFilterWhitelist = "whitelist"
)

// PresetCustom selects explicitly configured levels instead of a named preset.
const PresetCustom = "custom"

// AgentTradingConfig is the full trading configuration of one agent.
type AgentTradingConfig struct {
	PurchaseLimits     PurchaseLimits           `json:"purchaseLimits" yaml:"purchaseLimits"`
	Signals            SignalFilterConfig       `json:"signals" yaml:"signals"`
	StopLoss           StopLossConfig           `json:"stopLoss" yaml:"stopLoss"`
	PositionCalculator PositionCalculatorConfig `json:"positionCalculator" yaml:"positionCalculator"`
	StaleTrade         StaleTradeConfig         `json:"staleTrade" yaml:"staleTrade"`
	DCA                DCAConfig                `json:"dca" yaml:"dca"`
	TakeProfit         TakeProfitConfig         `json:"takeProfit" yaml:"takeProfit"`
}

type PurchaseLimits struct {
	MaxPurchasePerToken float64 `json:"maxPurchasePerToken" yaml:"maxPurchasePerToken"`
	MinimumAgentBalance float64 `json:"minimumAgentBalance" yaml:"minimumAgentBalance"`
}

// SignalFilterConfig holds eligibility parameters. Nil bounds are not configured.
type SignalFilterConfig struct {
	MinScore           float64  `json:"minScore" yaml:"minScore"`
	AllowedSignalTypes []string `json:"allowedSignalTypes,omitempty" yaml:"allowedSignalTypes"`
	TokenFilterMode    string   `json:"tokenFilterMode" yaml:"tokenFilterMode"`
	Blacklist          []string `json:"blacklist,omitempty" yaml:"blacklist"`
	Whitelist          []string `json:"whitelist,omitempty" yaml:"whitelist"`
	MinMarketCap       *float64 `json:"minMarketCap,omitempty" yaml:"minMarketCap"`
	MaxMarketCap       *float64 `json:"maxMarketCap,omitempty" yaml:"maxMarketCap"`
	MinLiquidity       *float64 `json:"minLiquidity,omitempty" yaml:"minLiquidity"`
	MinHolders         *int64   `json:"minHolders,omitempty" yaml:"minHolders"`
}

// HasMetricBounds reports whether any market-metric bound is configured.
func (s SignalFilterConfig) HasMetricBounds() bool {
	return s.MinMarketCap != nil || s.MaxMarketCap != nil || s.MinLiquidity != nil || s.MinHolders != nil
}

type TrailingLevel struct {
	Change   float64 `json:"change" yaml:"change"`
	StopLoss float64 `json:"stopLoss" yaml:"stopLoss"`
}

type StopLossConfig struct {
	Enabled           bool            `json:"enabled" yaml:"enabled"`
	Mode              string          `json:"mode" yaml:"mode"`
	DefaultPercentage float64         `json:"defaultPercentage" yaml:"defaultPercentage"`
	TrailingLevels    []TrailingLevel `json:"trailingLevels,omitempty" yaml:"trailingLevels"`
}

type SizeRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

type BalanceThresholds struct {
	Minimum float64 `json:"minimum" yaml:"minimum"`
	Medium  float64 `json:"medium" yaml:"medium"`
	Large   float64 `json:"large" yaml:"large"`
}

type PositionSizes struct {
	Small  SizeRange `json:"small" yaml:"small"`
	Medium SizeRange `json:"medium" yaml:"medium"`
	Large  SizeRange `json:"large" yaml:"large"`
}

type PositionCalculatorConfig struct {
	Thresholds    BalanceThresholds `json:"thresholds" yaml:"thresholds"`
	Sizes         PositionSizes     `json:"sizes" yaml:"sizes"`
	Randomization bool              `json:"randomization" yaml:"randomization"`
}

type StaleTradeConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	MaxHoldMinutes int     `json:"maxHoldMinutes" yaml:"maxHoldMinutes"`
	MinGainPercent float64 `json:"minGainPercent" yaml:"minGainPercent"`
}

type DCALevel struct {
	DropPercent float64 `json:"dropPercent" yaml:"dropPercent"`
	BuyPercent  float64 `json:"buyPercent" yaml:"buyPercent"`
}

type DCAConfig struct {
	Enabled         bool       `json:"enabled" yaml:"enabled"`
	Mode            string     `json:"mode" yaml:"mode"`
	Levels          []DCALevel `json:"levels,omitempty" yaml:"levels"`
	MaxDCACount     int        `json:"maxDCACount" yaml:"maxDCACount"`
	CooldownSeconds int        `json:"cooldownSeconds" yaml:"cooldownSeconds"`
}

type TakeProfitLevel struct {
	TargetPercent float64 `json:"targetPercent" yaml:"targetPercent"`
	SellPercent   float64 `json:"sellPercent" yaml:"sellPercent"`
}

type MoonBagConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	TriggerPercent float64 `json:"triggerPercent" yaml:"triggerPercent"`
	RetainPercent  float64 `json:"retainPercent" yaml:"retainPercent"`
}

type TakeProfitConfig struct {
	Enabled bool              `json:"enabled" yaml:"enabled"`
	Mode    string            `json:"mode" yaml:"mode"`
	Levels  []TakeProfitLevel `json:"levels,omitempty" yaml:"levels"`
	MoonBag MoonBagConfig     `json:"moonBag" yaml:"moonBag"`
}

// AgentTradingConfigRow is the durable row holding an agent's configuration as JSON.
type AgentTradingConfigRow struct {
	AgentID   uint           `gorm:"primaryKey;autoIncrement:false" json:"agent_id"`
	Config    datatypes.JSON `gorm:"type:jsonb;not null" json:"config"`
	Version   int            `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (AgentTradingConfigRow) TableName() string {
	return "agent_trading_configs"
}
