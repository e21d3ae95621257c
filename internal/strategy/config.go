package strategy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is returned by Init when an explicitly supplied option is out of range.
var ErrInvalidConfig = errors.New("invalid strategy config")

const (
	DefaultLookbackPeriod = 20
	DefaultThreshold      = 0.015
	DefaultOrderQuantity  = 10.0
)

// Config holds the recognized strategy options. Zero values mean "not set" and are filled from defaults at Init.
type Config struct {
	LookbackPeriod int     `yaml:"lookback_period" json:"lookback_period"`
	Threshold      float64 `yaml:"threshold" json:"threshold"`
	OrderQuantity  float64 `yaml:"order_quantity" json:"order_quantity"`
	WindowSecs     int     `yaml:"window_secs" json:"window_secs"`
	MinVolume      float64 `yaml:"min_volume" json:"min_volume"`
}

// DefaultConfig returns the momentum defaults.
func DefaultConfig() Config {
	return Config{
		LookbackPeriod: DefaultLookbackPeriod,
		Threshold:      DefaultThreshold,
		OrderQuantity:  DefaultOrderQuantity,
	}
}

// WithDefaults fills every unset field from defaults.
func (c Config) WithDefaults(defaults Config) Config {
	if c.LookbackPeriod == 0 {
		c.LookbackPeriod = defaults.LookbackPeriod
	}
	if c.Threshold == 0 {
		c.Threshold = defaults.Threshold
	}
	if c.OrderQuantity == 0 {
		c.OrderQuantity = defaults.OrderQuantity
	}
	if c.WindowSecs == 0 {
		c.WindowSecs = defaults.WindowSecs
	}
	if c.MinVolume == 0 {
		c.MinVolume = defaults.MinVolume
	}
	return c
}

// Validate rejects negative or non-finite values.
func (c Config) Validate() error {
	if c.LookbackPeriod < 1 {
		return fmt.Errorf("%w: lookback_period %d must be a positive integer", ErrInvalidConfig, c.LookbackPeriod)
	}
	if c.Threshold <= 0 || math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return fmt.Errorf("%w: threshold %v must be a positive fraction", ErrInvalidConfig, c.Threshold)
	}
	if c.OrderQuantity <= 0 || math.IsNaN(c.OrderQuantity) || math.IsInf(c.OrderQuantity, 0) {
		return fmt.Errorf("%w: order_quantity %v must be positive", ErrInvalidConfig, c.OrderQuantity)
	}
	if c.WindowSecs < 0 {
		return fmt.Errorf("%w: window_secs %d is negative", ErrInvalidConfig, c.WindowSecs)
	}
	if c.MinVolume < 0 {
		return fmt.Errorf("%w: min_volume %v is negative", ErrInvalidConfig, c.MinVolume)
	}
	return nil
}

// ConfigFromMap reads a loosely typed option mapping (decoded JSON or YAML). Unknown keys are ignored and
// missing keys stay unset.
func ConfigFromMap(raw map[string]any) (Config, error) {
	var cfg Config
	var err error
	if cfg.LookbackPeriod, err = intOption(raw, "lookback_period"); err != nil {
		return Config{}, err
	}
	if cfg.Threshold, err = floatOption(raw, "threshold"); err != nil {
		return Config{}, err
	}
	if cfg.OrderQuantity, err = floatOption(raw, "order_quantity"); err != nil {
		return Config{}, err
	}
	if cfg.WindowSecs, err = intOption(raw, "window_secs"); err != nil {
		return Config{}, err
	}
	if cfg.MinVolume, err = floatOption(raw, "min_volume"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func floatOption(raw map[string]any, key string) (float64, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrInvalidConfig, key, v)
	}
}

func intOption(raw map[string]any, key string) (int, error) {
	f, err := floatOption(raw, key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidConfig, key, f)
	}
	return int(f), nil
}
