package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Krish-B-Shah/order-book-trading-bot"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Rounds     int           `mapstructure:"rounds"`
	Seed       int64         `mapstructure:"seed"`
	OrderType  string        `mapstructure:"order_type"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	Hold       bool          `mapstructure:"hold"`

	Market      MarketConfig      `mapstructure:"market"`
	Strategy    StrategyConfig    `mapstructure:"strategy"`
	Flow        FlowConfig        `mapstructure:"flow"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Log         LogConfig         `mapstructure:"log"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Export      ExportConfig      `mapstructure:"export"`
}

type MarketConfig struct {
	Symbol     string  `mapstructure:"symbol"`
	StartPrice float64 `mapstructure:"start_price"`
	Drift      float64 `mapstructure:"drift"`
	Volatility float64 `mapstructure:"volatility"`
	Spread     float64 `mapstructure:"spread"`
}

type StrategyConfig struct {
	StartingCash         float64 `mapstructure:"starting_cash"`
	MaxInventory         int64   `mapstructure:"max_inventory"`
	OrderSize            int64   `mapstructure:"order_size"`
	HalfSpread           float64 `mapstructure:"half_spread"`
	SpreadMultiplier     float64 `mapstructure:"spread_multiplier"`
	SkewFactor           float64 `mapstructure:"skew_factor"`
	VolatilityWindow     int     `mapstructure:"volatility_window"`
	VolatilityLow        float64 `mapstructure:"volatility_low"`
	VolatilityHigh       float64 `mapstructure:"volatility_high"`
	MaxLoss              float64 `mapstructure:"max_loss"`
	MaxDrawdownPct       float64 `mapstructure:"max_drawdown_pct"`
	InventoryPenalty     float64 `mapstructure:"inventory_penalty"`
	TransactionCost      float64 `mapstructure:"transaction_cost"`
	SellOnlyWhenLong     bool    `mapstructure:"sell_only_when_long"`
	ShortSkipProbability float64 `mapstructure:"short_skip_probability"`
}

type FlowConfig struct {
	PerRound        int     `mapstructure:"per_round"`
	SkipProbability float64 `mapstructure:"skip_probability"`
	BuyWeight       float64 `mapstructure:"buy_weight"`
	MaxQuantity     int64   `mapstructure:"max_quantity"`
}

type PerformanceConfig struct {
	RiskFreeRate   float64 `mapstructure:"risk_free_rate"`
	PeriodsPerYear int     `mapstructure:"periods_per_year"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rounds", 1000)
	v.SetDefault("seed", 1)
	v.SetDefault("order_type", "limit")
	v.SetDefault("stale_after", "5m")
	v.SetDefault("hold", false)

	v.SetDefault("market.symbol", match.DefaultMarketID)
	v.SetDefault("market.start_price", 100.0)
	v.SetDefault("market.drift", 0.05)
	v.SetDefault("market.volatility", 0.2)
	v.SetDefault("market.spread", 0.10)

	v.SetDefault("strategy.starting_cash", 10000.0)
	v.SetDefault("strategy.max_inventory", 10)
	v.SetDefault("strategy.order_size", 1)
	v.SetDefault("strategy.half_spread", 0.05)
	v.SetDefault("strategy.spread_multiplier", 0.0)
	v.SetDefault("strategy.skew_factor", 0.02)
	v.SetDefault("strategy.volatility_window", 20)
	v.SetDefault("strategy.volatility_low", 0.0)
	v.SetDefault("strategy.volatility_high", 0.0)
	v.SetDefault("strategy.max_loss", 0.0)
	v.SetDefault("strategy.max_drawdown_pct", 0.05)
	v.SetDefault("strategy.inventory_penalty", 0.0)
	v.SetDefault("strategy.transaction_cost", 0.005)
	v.SetDefault("strategy.sell_only_when_long", false)
	v.SetDefault("strategy.short_skip_probability", 0.0)

	v.SetDefault("flow.per_round", 2)
	v.SetDefault("flow.skip_probability", 0.1)
	v.SetDefault("flow.buy_weight", 0.7)
	v.SetDefault("flow.max_quantity", 10)

	v.SetDefault("performance.risk_free_rate", 0.02)
	v.SetDefault("performance.periods_per_year", 252)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 7)
	v.SetDefault("log.compress", false)

	v.SetDefault("http.addr", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "book-logs")
	v.SetDefault("export.dir", "")
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"rounds":        "rounds",
	"seed":          "seed",
	"order-type":    "order_type",
	"stale-after":   "stale_after",
	"hold":          "hold",
	"symbol":        "market.symbol",
	"volatility":    "market.volatility",
	"max-inventory": "strategy.max_inventory",
	"half-spread":   "strategy.half_spread",
	"log-level":     "log.level",
	"log-file":      "log.file",
	"http-addr":     "http.addr",
	"kafka-brokers": "kafka.brokers",
	"kafka-topic":   "kafka.topic",
	"export-dir":    "export.dir",
}

// loadConfig resolves configuration from defaults, an optional file, MMSIM_
// environment variables and flags, in increasing precedence.
func loadConfig(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("mmsim", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "config file (yaml, toml or json)")
	fs.Int("rounds", 1000, "number of simulation rounds")
	fs.Int64("seed", 1, "random seed for the market feed and order flow")
	fs.String("order-type", "limit", "strategy quote type: limit or market")
	fs.Duration("stale-after", 5*time.Minute, "cancel strategy quotes older than this")
	fs.Bool("hold", false, "keep the HTTP endpoints up after the run until interrupted")
	fs.String("symbol", match.DefaultMarketID, "instrument name")
	fs.Float64("volatility", 0.2, "annualized volatility of the simulated price")
	fs.Int64("max-inventory", 10, "absolute inventory bound")
	fs.Float64("half-spread", 0.05, "quote distance from mid")
	fs.String("log-level", "info", "debug, info, warn or error")
	fs.String("log-file", "", "rotate logs into this file instead of stderr")
	fs.String("http-addr", "", "serve /metrics and /ws/status on this address")
	fs.StringSlice("kafka-brokers", nil, "publish book logs to these brokers")
	fs.String("kafka-topic", "book-logs", "kafka topic for book logs")
	fs.String("export-dir", "", "write orders.csv, trades.csv and rounds.csv here")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("MMSIM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Rounds <= 0 {
		return errors.New("rounds must be positive")
	}
	if t := match.OrderType(c.OrderType); !t.Valid() {
		return fmt.Errorf("unknown order_type %q", c.OrderType)
	}
	if c.Market.StartPrice <= 0 {
		return errors.New("market.start_price must be positive")
	}
	if c.Market.Spread < 0 {
		return errors.New("market.spread must not be negative")
	}
	if c.Strategy.StartingCash <= 0 {
		return errors.New("strategy.starting_cash must be positive")
	}
	if c.Strategy.MaxInventory <= 0 || c.Strategy.OrderSize <= 0 {
		return errors.New("strategy.max_inventory and strategy.order_size must be positive")
	}
	if c.Flow.MaxQuantity <= 0 {
		return errors.New("flow.max_quantity must be positive")
	}
	if c.Performance.PeriodsPerYear <= 0 {
		c.Performance.PeriodsPerYear = 252
	}
	return nil
}
