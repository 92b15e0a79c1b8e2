// Package config loads the engine configuration from YAML, an optional .env file and TLE_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/trade_lifecycle/internal/domain"
	"github.com/vitos/trade_lifecycle/internal/usecase"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Engine struct {
		Label     string `yaml:"label"`
		Symbol    string `yaml:"symbol"`
		TimeZone  string `yaml:"time_zone"`
		BarWindow int    `yaml:"bar_window"`
		QueueSize int    `yaml:"queue_size"`
	} `yaml:"engine"`
	Risk struct {
		domain.RiskLimits    `yaml:",inline"`
		ProjectOpenPositions bool `yaml:"project_open_positions"`
	} `yaml:"risk"`
	Lifecycle struct {
		TrailingStopScale float64 `yaml:"trailing_stop_scale"`
		EarlyProfitPct    float64 `yaml:"early_profit_pct"`
		EarlyCapturePct   float64 `yaml:"early_capture_pct"`
	} `yaml:"lifecycle"`
	Signal           usecase.TrendPullbackParams       `yaml:"signal"`
	TradingWindow    usecase.TradingWindow             `yaml:"trading_window"`
	QuoteConversions map[string]domain.QuoteConversion `yaml:"quote_conversions"`
	Bridge           struct {
		URL            string        `yaml:"url"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"bridge"`
	Healthcheck struct {
		URL      string        `yaml:"url"`
		Interval time.Duration `yaml:"interval"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"healthcheck"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Paper struct {
		Balance    float64 `yaml:"balance"`
		Currency   string  `yaml:"currency"`
		QuoteAsset string  `yaml:"quote_asset"`
		PipSize    float64 `yaml:"pip_size"`
		// PipValue is per pip per unit in the account currency. Zero derives it from CrossRates.
		PipValue    float64            `yaml:"pip_value"`
		MinVolume   float64            `yaml:"min_volume"`
		Spread      float64            `yaml:"spread"`
		MinStopPips float64            `yaml:"min_stop_pips"`
		MarginRate  float64            `yaml:"margin_rate"`
		CrossRates  map[string]float64 `yaml:"cross_rates"`
	} `yaml:"paper"`
}

// Default mirrors the values the trend strategy was tuned with.
func Default() *Config {
	var c Config
	c.Engine.Symbol = "EURUSD"
	c.Engine.TimeZone = "Europe/Stockholm"
	c.Engine.QueueSize = 256

	c.Risk.MaxRiskPct = 3.5
	c.Risk.MaxDailyLossPct = 8
	c.Risk.MaxUsableBalancePct = 100
	c.Risk.ProjectOpenPositions = true

	c.Lifecycle.TrailingStopScale = 4
	c.Lifecycle.EarlyProfitPct = 5
	c.Lifecycle.EarlyCapturePct = 25

	c.Signal = usecase.DefaultTrendPullbackParams()
	c.TradingWindow = usecase.DefaultTradingWindow()
	c.QuoteConversions = map[string]domain.QuoteConversion{
		"SEK": {Mode: domain.ConversionFloor},
		"USD": {Mode: domain.ConversionCross, Pair: "USDSEK"},
	}

	c.Bridge.RequestTimeout = 10 * time.Second
	c.Healthcheck.Interval = time.Minute
	c.Healthcheck.Timeout = 10 * time.Second
	c.Storage.DBPath = "engine.db"
	c.Logging.Level = "info"
	c.Server.Port = 9090

	c.Paper.Balance = 100000
	c.Paper.Currency = "SEK"
	c.Paper.QuoteAsset = "USD"
	c.Paper.PipSize = 0.0001
	c.Paper.MinVolume = 1000
	c.Paper.MinStopPips = 1
	c.Paper.MarginRate = 0.0333
	c.Paper.CrossRates = map[string]float64{"USDSEK": 10.5}
	return &c
}

// Load reads envFile (if present), then path (if set) on top of Default, then applies environment
// overrides and validates.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("TLE_LABEL"); ok {
		c.Engine.Label = v
	}
	if v, ok := os.LookupEnv("TLE_HEALTHCHECK_URL"); ok {
		c.Healthcheck.URL = v
	}
	if v, ok := os.LookupEnv("TLE_BRIDGE_URL"); ok {
		c.Bridge.URL = v
	}
	if v, ok := os.LookupEnv("TLE_DB_PATH"); ok {
		c.Storage.DBPath = v
	}
	if v, ok := os.LookupEnv("TLE_LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := os.LookupEnv("TLE_SERVER_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TLE_SERVER_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate reports the first invalid field by its YAML path.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Engine.Label) == "":
		return errors.New("engine.label is required")
	case c.Engine.Symbol == "":
		return errors.New("engine.symbol is required")
	case c.Risk.MaxRiskPct <= 0 || c.Risk.MaxRiskPct > 100:
		return fmt.Errorf("risk.max_risk_pct must be in (0, 100], got %v", c.Risk.MaxRiskPct)
	case c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct > 100:
		return fmt.Errorf("risk.max_daily_loss_pct must be in (0, 100], got %v", c.Risk.MaxDailyLossPct)
	case c.Risk.MaxUsableBalancePct <= 0 || c.Risk.MaxUsableBalancePct > 100:
		return fmt.Errorf("risk.max_usable_balance_pct must be in (0, 100], got %v", c.Risk.MaxUsableBalancePct)
	case c.Lifecycle.TrailingStopScale <= 0:
		return fmt.Errorf("lifecycle.trailing_stop_scale must be positive, got %v", c.Lifecycle.TrailingStopScale)
	case c.Lifecycle.EarlyCapturePct < 0 || c.Lifecycle.EarlyCapturePct > 100:
		return fmt.Errorf("lifecycle.early_capture_pct must be in [0, 100], got %v", c.Lifecycle.EarlyCapturePct)
	case c.Lifecycle.EarlyProfitPct <= 0:
		return fmt.Errorf("lifecycle.early_profit_pct must be positive, got %v", c.Lifecycle.EarlyProfitPct)
	case c.Healthcheck.URL != "" && c.Healthcheck.Interval <= 0:
		return fmt.Errorf("healthcheck.interval must be positive, got %s", c.Healthcheck.Interval)
	case c.TradingWindow.StartHour < 0 || c.TradingWindow.StopHour > 23 || c.TradingWindow.StartHour > c.TradingWindow.StopHour:
		return fmt.Errorf("trading_window hours %d-%d are invalid", c.TradingWindow.StartHour, c.TradingWindow.StopHour)
	}
	for quote, rule := range c.QuoteConversions {
		switch rule.Mode {
		case domain.ConversionFloor:
		case domain.ConversionCross:
			if rule.Pair == "" {
				return fmt.Errorf("quote_conversions.%s.pair is required for cross mode", quote)
			}
		default:
			return fmt.Errorf("quote_conversions.%s.mode %q is unknown", quote, rule.Mode)
		}
	}
	if _, err := time.LoadLocation(c.Engine.TimeZone); err != nil {
		return fmt.Errorf("engine.time_zone: %w", err)
	}
	return nil
}

// RiskLimits returns the fixed per-run limits.
func (c *Config) RiskLimits() domain.RiskLimits {
	return c.Risk.RiskLimits
}

func (c *Config) LifecycleParams() usecase.LifecycleParams {
	return usecase.LifecycleParams{
		TrailingStopScale: c.Lifecycle.TrailingStopScale,
		EarlyProfitPct:    c.Lifecycle.EarlyProfitPct,
		EarlyCapturePct:   c.Lifecycle.EarlyCapturePct,
	}
}

// PaperSymbol describes the simulated instrument.
func (c *Config) PaperSymbol() domain.SymbolInfo {
	return domain.SymbolInfo{
		Name:       c.Engine.Symbol,
		QuoteAsset: c.Paper.QuoteAsset,
		PipSize:    c.Paper.PipSize,
		PipValue:   c.Paper.PipValue,
		MinVolume:  c.Paper.MinVolume,
		Spread:     c.Paper.Spread,
	}
}
