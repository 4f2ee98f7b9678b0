package risk

import (
	"fmt"
	"os"

	"agentengine/src/apperrors"
	"agentengine/src/model"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	PresetConservative = "conservative"
	PresetModerate     = "moderate"
	PresetAggressive   = "aggressive"
)

// Presets maps named DCA and take-profit modes to their ladders.
type Presets struct {
	DCA        map[string][]model.DCALevel        `yaml:"dca"`
	TakeProfit map[string][]model.TakeProfitLevel `yaml:"takeProfit"`
}

func DefaultPresets() Presets {
	return Presets{
		DCA: map[string][]model.DCALevel{
			PresetConservative: {
				{DropPercent: -15, BuyPercent: 25},
				{DropPercent: -30, BuyPercent: 25},
			},
			PresetModerate: {
				{DropPercent: -10, BuyPercent: 50},
				{DropPercent: -20, BuyPercent: 50},
				{DropPercent: -35, BuyPercent: 50},
			},
			PresetAggressive: {
				{DropPercent: -5, BuyPercent: 50},
				{DropPercent: -10, BuyPercent: 75},
				{DropPercent: -20, BuyPercent: 100},
				{DropPercent: -30, BuyPercent: 100},
			},
		},
		TakeProfit: map[string][]model.TakeProfitLevel{
			PresetConservative: {
				{TargetPercent: 20, SellPercent: 30},
				{TargetPercent: 40, SellPercent: 30},
				{TargetPercent: 75, SellPercent: 30},
			},
			PresetModerate: {
				{TargetPercent: 50, SellPercent: 25},
				{TargetPercent: 100, SellPercent: 25},
				{TargetPercent: 200, SellPercent: 25},
			},
			PresetAggressive: {
				{TargetPercent: 100, SellPercent: 20},
				{TargetPercent: 250, SellPercent: 20},
				{TargetPercent: 500, SellPercent: 20},
				{TargetPercent: 1000, SellPercent: 20},
			},
		},
	}
}

// LoadPresets reads preset overrides from a YAML file on top of the defaults.
// An empty path returns the defaults.
func LoadPresets(path string) (Presets, error) {
	presets := DefaultPresets()
	if path == "" {
		return presets, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return presets, errors.Wrapf(err, "read presets file %s", path)
	}
	var override Presets
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return presets, errors.Wrapf(err, "parse presets file %s", path)
	}
	for name, levels := range override.DCA {
		presets.DCA[name] = levels
	}
	for name, levels := range override.TakeProfit {
		presets.TakeProfit[name] = levels
	}
	return presets, nil
}

// Resolve replaces the levels of named DCA and take-profit modes with the preset ladder.
// Custom modes keep their configured levels. An empty mode counts as custom.
func (p Presets) Resolve(cfg *model.AgentTradingConfig) error {
	if mode := cfg.DCA.Mode; mode != "" && mode != model.PresetCustom {
		levels, ok := p.DCA[mode]
		if !ok {
			return apperrors.Validation(fmt.Sprintf("unknown dca mode %q", mode))
		}
		cfg.DCA.Levels = append([]model.DCALevel(nil), levels...)
	}
	if mode := cfg.TakeProfit.Mode; mode != "" && mode != model.PresetCustom {
		levels, ok := p.TakeProfit[mode]
		if !ok {
			return apperrors.Validation(fmt.Sprintf("unknown take profit mode %q", mode))
		}
		cfg.TakeProfit.Levels = append([]model.TakeProfitLevel(nil), levels...)
	}
	return nil
}
