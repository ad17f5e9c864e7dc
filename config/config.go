// Package config loads bot configuration from a YAML file or CLI flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/penny/internal/domain"
	"gopkg.in/yaml.v3"
)

// Defaults applied for omitted config keys.
var (
	defaultMaxPrice          = decimal.NewFromInt(1)
	defaultMinVolume24h      = decimal.NewFromInt(100000)
	defaultPositionSize      = decimal.NewFromInt(100)
	defaultProfitTarget      = decimal.NewFromInt(3)
	defaultStopLoss          = decimal.NewFromInt(-5)
	defaultTrailingStop      = decimal.NewFromInt(2)
	defaultMinMomentumToRide = decimal.RequireFromString("0.5")
	defaultMomentumThreshold = decimal.RequireFromString("1.5")
	defaultMakerFee          = decimal.RequireFromString("0.25")
	defaultTakerFee          = decimal.RequireFromString("0.4")
	defaultFadeDropFraction  = decimal.RequireFromString("0.5")
)

// Config holds all runtime parameters of the bot. The core treats it as
// read-only within one evaluation cycle.
type Config struct {
	Platform      string
	QuoteCurrency string
	Mode          domain.ExecutionMode

	// Scanner eligibility and ranking.
	MaxPrice          decimal.Decimal
	MinVolume24h      decimal.Decimal
	MomentumThreshold decimal.Decimal
	MomentumWindow    time.Duration
	CandleGranularity time.Duration
	TopCandidates     int
	ScanWorkers       int

	// Position sizing and exits.
	PositionSize          decimal.Decimal
	MaxPositions          int
	ProfitTargetPercent   decimal.Decimal
	StopLossPercent       decimal.Decimal // negative
	TrailingProfitEnabled bool
	TrailingStopPercent   decimal.Decimal
	MinMomentumToRide     decimal.Decimal
	// FadeDropFraction is the share of the trailing stop distance that must
	// already be lost before the momentum-fade early exit may fire.
	FadeDropFraction decimal.Decimal
	MaxHoldDuration  time.Duration

	// Fees, percent of the leg's notional.
	MakerFeePercent decimal.Decimal
	TakerFeePercent decimal.Decimal

	ScanInterval time.Duration
	DataDir      string
	WebAddr      string
	FeedEnabled  bool
}

// ConfigTmp mirrors Config with YAML tags and string-typed decimals; the
// setup wizard marshals it when generating a config file.
type ConfigTmp struct {
	Platform              string        `yaml:"platform"`
	QuoteCurrency         string        `yaml:"quote_currency"`
	Mode                  string        `yaml:"mode,omitempty"`
	MaxPrice              string        `yaml:"max_price,omitempty"`
	MinVolume24h          string        `yaml:"min_volume_24h,omitempty"`
	MomentumThreshold     string        `yaml:"momentum_threshold,omitempty"`
	MomentumWindowMinutes int           `yaml:"momentum_window_minutes,omitempty"`
	CandleGranularity     time.Duration `yaml:"candle_granularity,omitempty"`
	TopCandidates         int           `yaml:"top_candidates,omitempty"`
	ScanWorkers           int           `yaml:"scan_workers,omitempty"`
	PositionSize          string        `yaml:"position_size,omitempty"`
	MaxPositions          int           `yaml:"max_positions,omitempty"`
	ProfitTargetPercent   string        `yaml:"profit_target_percent,omitempty"`
	StopLossPercent       string        `yaml:"stop_loss_percent,omitempty"`
	TrailingProfitEnabled *bool         `yaml:"trailing_profit_enabled,omitempty"`
	TrailingStopPercent   string        `yaml:"trailing_stop_percent,omitempty"`
	MinMomentumToRide     string        `yaml:"min_momentum_to_ride,omitempty"`
	FadeDropFraction      string        `yaml:"fade_drop_fraction,omitempty"`
	MaxHoldHours          int           `yaml:"max_hold_hours,omitempty"`
	MakerFeePercent       string        `yaml:"maker_fee_percent,omitempty"`
	TakerFeePercent       string        `yaml:"taker_fee_percent,omitempty"`
	ScanInterval          time.Duration `yaml:"scan_interval,omitempty"`
	DataDir               string        `yaml:"data_dir,omitempty"`
	WebAddr               string        `yaml:"web_addr,omitempty"`
	FeedEnabled           *bool         `yaml:"feed_enabled,omitempty"`
}

// Get parses flags and loads configuration. With -config it reads the YAML
// file; otherwise defaults combined with basic CLI flags are used.
func Get() (*Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	platform := flag.String("platform", "binance", "exchange platform: binance or bybit")
	quote := flag.String("quote", "USDT", "quote currency")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	cfg := defaults()
	cfg.Platform = *platform
	cfg.QuoteCurrency = *quote
	return cfg, cfg.validate()
}

// Load reads configuration from the given YAML path.
func Load(path string) (*Config, error) {
	return getYaml(path)
}

func defaults() *Config {
	return &Config{
		Platform:              "binance",
		QuoteCurrency:         "USDT",
		Mode:                  domain.ModePaper,
		MaxPrice:              defaultMaxPrice,
		MinVolume24h:          defaultMinVolume24h,
		MomentumThreshold:     defaultMomentumThreshold,
		MomentumWindow:        10 * time.Minute,
		CandleGranularity:     time.Minute,
		TopCandidates:         3,
		ScanWorkers:           4,
		PositionSize:          defaultPositionSize,
		MaxPositions:          5,
		ProfitTargetPercent:   defaultProfitTarget,
		StopLossPercent:       defaultStopLoss,
		TrailingProfitEnabled: true,
		TrailingStopPercent:   defaultTrailingStop,
		MinMomentumToRide:     defaultMinMomentumToRide,
		FadeDropFraction:      defaultFadeDropFraction,
		MaxHoldDuration:       4 * time.Hour,
		MakerFeePercent:       defaultMakerFee,
		TakerFeePercent:       defaultTakerFee,
		ScanInterval:          time.Minute,
		DataDir:               "./data",
		WebAddr:               ":8080",
		FeedEnabled:           true,
	}
}

func getYaml(path string) (*Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return nil, err
	}

	cfg := defaults()

	if tmp.Platform != "" {
		cfg.Platform = tmp.Platform
	}
	if tmp.QuoteCurrency != "" {
		cfg.QuoteCurrency = tmp.QuoteCurrency
	}
	if tmp.Mode != "" {
		cfg.Mode = domain.ExecutionMode(tmp.Mode)
	}
	if err := setDecimal(&cfg.MaxPrice, tmp.MaxPrice, "max_price"); err != nil {
		return nil, err
	}
	if err := setDecimal(&cfg.MinVolume24h, tmp.MinVolume24h, "min_volume_24h"); err != nil {
		return nil, err
	}
	if err := setDecimal(&cfg.MomentumThreshold, tmp.MomentumThreshold, "momentum_threshold"); err != nil {
		return nil, err
	}
	if tmp.MomentumWindowMinutes > 0 {
		cfg.MomentumWindow = time.Duration(tmp.MomentumWindowMinutes) * time.Minute
	}
	if tmp.CandleGranularity > 0 {
		cfg.CandleGranularity = tmp.CandleGranularity
	}
	if tmp.TopCandidates > 0 {
		cfg.TopCandidates = tmp.TopCandidates
	}
	if tmp.ScanWorkers > 0 {
		cfg.ScanWorkers = tmp.ScanWorkers
	}
	if err := setDecimal(&cfg.PositionSize, tmp.PositionSize, "position_size"); err != nil {
		return nil, err
	}
	if tmp.MaxPositions > 0 {
		cfg.MaxPositions = tmp.MaxPositions
	}
	if err := setDecimal(&cfg.ProfitTargetPercent, tmp.ProfitTargetPercent, "profit_target_percent"); err != nil {
		return nil, err
	}
	if err := setDecimal(&cfg.StopLossPercent, tmp.StopLossPercent, "stop_loss_percent"); err != nil {
		return nil, err
	}
	if tmp.TrailingProfitEnabled != nil {
		cfg.TrailingProfitEnabled = *tmp.TrailingProfitEnabled
	}
	if err := setDecimal(&cfg.TrailingStopPercent, tmp.TrailingStopPercent, "trailing_stop_percent"); err != nil {
		return nil, err
	}
	if err := setDecimal(&cfg.MinMomentumToRide, tmp.MinMomentumToRide, "min_momentum_to_ride"); err != nil {
		return nil, err
	}
	if err := setDecimal(&cfg.FadeDropFraction, tmp.FadeDropFraction, "fade_drop_fraction"); err != nil {
		return nil, err
	}
	if tmp.MaxHoldHours > 0 {
		cfg.MaxHoldDuration = time.Duration(tmp.MaxHoldHours) * time.Hour
	}
	if err := setDecimal(&cfg.MakerFeePercent, tmp.MakerFeePercent, "maker_fee_percent"); err != nil {
		return nil, err
	}
	if err := setDecimal(&cfg.TakerFeePercent, tmp.TakerFeePercent, "taker_fee_percent"); err != nil {
		return nil, err
	}
	if tmp.ScanInterval > 0 {
		cfg.ScanInterval = tmp.ScanInterval
	}
	if tmp.DataDir != "" {
		cfg.DataDir = tmp.DataDir
	}
	if tmp.WebAddr != "" {
		cfg.WebAddr = tmp.WebAddr
	}
	if tmp.FeedEnabled != nil {
		cfg.FeedEnabled = *tmp.FeedEnabled
	}

	return cfg, cfg.validate()
}

func setDecimal(dst *decimal.Decimal, raw, name string) error {
	if raw == "" {
		return nil
	}
	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("incorrect '%s' param in yaml config (must be a decimal): %w", name, err)
	}
	*dst = parsed
	return nil
}

func (c *Config) validate() error {
	switch c.Platform {
	case "binance", "bybit":
	default:
		return fmt.Errorf("unsupported platform: %q", c.Platform)
	}
	if err := c.Mode.Validate(); err != nil {
		return err
	}
	if c.PositionSize.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("position_size must be positive, got %s", c.PositionSize)
	}
	if c.MaxPositions < 1 {
		return fmt.Errorf("max_positions must be at least 1, got %d", c.MaxPositions)
	}
	if c.StopLossPercent.GreaterThanOrEqual(decimal.Zero) {
		return fmt.Errorf("stop_loss_percent must be negative, got %s", c.StopLossPercent)
	}
	if c.ProfitTargetPercent.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("profit_target_percent must be positive, got %s", c.ProfitTargetPercent)
	}
	if c.FadeDropFraction.LessThan(decimal.Zero) || c.FadeDropFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("fade_drop_fraction must be within [0,1], got %s", c.FadeDropFraction)
	}
	return nil
}
