// Package config loads application configuration from defaults, an optional
// YAML file, an optional .env file and the process environment, in that order.
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
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"solana-trade-tracker/internal/domain"
	"solana-trade-tracker/internal/papertrading"
	"solana-trade-tracker/internal/pricefeed"
	"solana-trade-tracker/internal/pricevalidation"
	"solana-trade-tracker/internal/solana"
	"solana-trade-tracker/internal/storage/dbpool"
	"solana-trade-tracker/internal/tracker"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Sell price sources as written in configuration.
const (
	PriceSourceDex = "dex"
	PriceSourceJup = "jup"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full application configuration.
type Config struct {
	Database        DatabaseConfig        `yaml:"database"`
	Pool            dbpool.Config         `yaml:"pool"`
	PriceValidation PriceValidationConfig `yaml:"price_validation"`
	PaperTrading    papertrading.Config   `yaml:"paper_trading"`
	Sell            SellConfig            `yaml:"sell"`
	Feeds           FeedsConfig           `yaml:"feeds"`
	Solana          SolanaConfig          `yaml:"solana"`
	Tracker         TrackerConfig         `yaml:"tracker"`
	HTTP            HTTPConfig            `yaml:"http"`
	Log             LogConfig             `yaml:"log"`
}

// DatabaseConfig selects the record store backend.
type DatabaseConfig struct {
	Driver        string `yaml:"driver"`         // sqlite | postgres
	Path          string `yaml:"path"`           // sqlite file
	DSN           string `yaml:"dsn"`            // postgres DSN
	ClickhouseDSN string `yaml:"clickhouse_dsn"` // optional price sample archive
}

// PriceValidationConfig configures the validator and source fallback.
type PriceValidationConfig struct {
	Enabled                bool `yaml:"enabled"`
	FallbackToSingleSource bool `yaml:"fallback_to_single_source"`

	pricevalidation.Config `yaml:",inline"`
}

// SellConfig configures auto-sell of tracked holdings.
type SellConfig struct {
	PriceSource       string  `yaml:"price_source"` // dex | jup
	AutoSell          bool    `yaml:"auto_sell"`
	StopLossPercent   float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent float64 `yaml:"take_profit_percent"`
}

// FeedsConfig configures the price feed clients.
type FeedsConfig struct {
	JupiterURL        string        `yaml:"jupiter_url"`
	DexScreenerURL    string        `yaml:"dexscreener_url"`
	DexID             string        `yaml:"dex_id"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// SolanaConfig configures the optional RPC endpoint used for token names
// and the wallet balance. Empty RPCURL disables both.
type SolanaConfig struct {
	RPCURL  string        `yaml:"rpc_url"`
	Wallet  string        `yaml:"wallet"`
	Timeout time.Duration `yaml:"timeout"`
}

// TrackerConfig configures the holdings loop.
type TrackerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// HTTPConfig configures the API / metrics listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// Default returns the built-in configuration.
func Default() *Config {
	paper := papertrading.DefaultConfig()
	paper.Enabled = true
	return &Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "data/holdings.db",
		},
		Pool: dbpool.DefaultConfig(),
		PriceValidation: PriceValidationConfig{
			Enabled:                true,
			FallbackToSingleSource: true,
			Config:                 pricevalidation.DefaultConfig(),
		},
		PaperTrading: paper,
		Sell: SellConfig{
			PriceSource:       PriceSourceDex,
			AutoSell:          true,
			StopLossPercent:   10,
			TakeProfitPercent: 25,
		},
		Feeds: FeedsConfig{
			JupiterURL:        pricefeed.DefaultJupiterURL,
			DexScreenerURL:    pricefeed.DefaultDexScreenerURL,
			DexID:             pricefeed.DefaultDexID,
			Timeout:           10 * time.Second,
			MaxRetries:        pricefeed.DefaultMaxRetries,
			RetryDelay:        pricefeed.DefaultRetryDelay,
			MaxDelay:          pricefeed.DefaultMaxDelay,
			RequestsPerSecond: pricefeed.DefaultRequestsPerSecond,
		},
		Solana:  SolanaConfig{Timeout: solana.DefaultTimeout},
		Tracker: TrackerConfig{Interval: tracker.DefaultInterval},
		HTTP:    HTTPConfig{Addr: ":9090"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. path is an optional YAML file; envFiles are
// optional dotenv files (".env" when none given). Process environment wins over
// dotenv values, which win over YAML, which wins over defaults.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	dotenv, err := readDotenv(envFiles)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func readDotenv(files []string) (map[string]string, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	out := make(map[string]string)
	for _, f := range files {
		values, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", f, err)
		}
		for k, v := range values {
			out[k] = v
		}
	}
	return out, nil
}

type lookupFunc func(string) (string, bool)

// envBinder applies environment overrides, keeping the first parse error.
type envBinder struct {
	lookup lookupFunc
	err    error
}

func (b *envBinder) str(key string, dst *string) {
	if v, ok := b.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (b *envBinder) boolean(key string, dst *bool) {
	b.parse(key, func(v string) error {
		x, err := strconv.ParseBool(v)
		*dst = x
		return err
	})
}

func (b *envBinder) integer(key string, dst *int) {
	b.parse(key, func(v string) error {
		x, err := strconv.Atoi(v)
		*dst = x
		return err
	})
}

func (b *envBinder) integer64(key string, dst *int64) {
	b.parse(key, func(v string) error {
		x, err := strconv.ParseInt(v, 10, 64)
		*dst = x
		return err
	})
}

func (b *envBinder) float(key string, dst *float64) {
	b.parse(key, func(v string) error {
		x, err := strconv.ParseFloat(v, 64)
		*dst = x
		return err
	})
}

func (b *envBinder) duration(key string, dst *time.Duration) {
	b.parse(key, func(v string) error {
		x, err := time.ParseDuration(v)
		*dst = x
		return err
	})
}

func (b *envBinder) parse(key string, set func(string) error) {
	if b.err != nil {
		return
	}
	v, ok := b.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	if err := set(strings.TrimSpace(v)); err != nil {
		b.err = fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, v, err)
	}
}

func (c *Config) applyEnv(lookup lookupFunc) error {
	b := &envBinder{lookup: lookup}

	b.str("DB_DRIVER", &c.Database.Driver)
	b.str("SQLITE_PATH", &c.Database.Path)
	b.str("POSTGRES_DSN", &c.Database.DSN)
	b.str("CLICKHOUSE_DSN", &c.Database.ClickhouseDSN)

	b.integer("POOL_MAX_CONNECTIONS", &c.Pool.MaxConnections)
	b.integer("POOL_MAX_RETRIES", &c.Pool.MaxRetries)
	b.integer("POOL_ACQUIRE_RETRIES", &c.Pool.AcquireRetries)
	b.integer("POOL_OPERATION_RETRIES", &c.Pool.OperationRetries)
	b.duration("POOL_RETRY_DELAY", &c.Pool.RetryDelay)
	b.duration("POOL_MAX_BACKOFF", &c.Pool.MaxBackoff)
	b.float("POOL_BACKOFF_JITTER", &c.Pool.BackoffJitter)
	b.duration("POOL_CONNECTION_TIMEOUT", &c.Pool.ConnectionTimeout)
	b.duration("POOL_BUSY_TIMEOUT", &c.Pool.BusyTimeout)

	b.boolean("PRICE_VALIDATION_ENABLED", &c.PriceValidation.Enabled)
	b.boolean("PRICE_VALIDATION_FALLBACK_TO_SINGLE_SOURCE", &c.PriceValidation.FallbackToSingleSource)
	b.integer("PRICE_VALIDATION_WINDOW_SIZE", &c.PriceValidation.WindowSize)
	b.float("PRICE_VALIDATION_MAX_DEVIATION", &c.PriceValidation.MaxDeviation)
	b.integer("PRICE_VALIDATION_MIN_DATA_POINTS", &c.PriceValidation.MinDataPoints)

	b.boolean("PAPER_TRADING_ENABLED", &c.PaperTrading.Enabled)
	b.float("PAPER_TRADING_INITIAL_BALANCE", &c.PaperTrading.InitialBalanceSOL)
	b.duration("PAPER_TRADING_CHECK_INTERVAL", &c.PaperTrading.CheckInterval)
	b.integer64("PAPER_TRADING_BUY_AMOUNT_LAMPORTS", &c.PaperTrading.BuyAmountLamports)

	b.str("SELL_PRICE_SOURCE", &c.Sell.PriceSource)
	b.boolean("SELL_AUTO_SELL", &c.Sell.AutoSell)
	b.float("SELL_STOP_LOSS_PERCENT", &c.Sell.StopLossPercent)
	b.float("SELL_TAKE_PROFIT_PERCENT", &c.Sell.TakeProfitPercent)

	b.str("JUPITER_PRICE_URL", &c.Feeds.JupiterURL)
	b.str("DEXSCREENER_URL", &c.Feeds.DexScreenerURL)
	b.duration("FEEDS_TIMEOUT", &c.Feeds.Timeout)
	b.float("FEEDS_REQUESTS_PER_SECOND", &c.Feeds.RequestsPerSecond)

	b.str("HELIUS_HTTPS_URI", &c.Solana.RPCURL)
	b.str("SOLANA_RPC_URL", &c.Solana.RPCURL)
	b.str("WALLET_ADDRESS", &c.Solana.Wallet)

	b.duration("TRACKER_INTERVAL", &c.Tracker.Interval)
	b.str("HTTP_ADDR", &c.HTTP.Addr)
	b.str("LOG_LEVEL", &c.Log.Level)
	b.str("LOG_FORMAT", &c.Log.Format)

	return b.err
}

// Validate checks the configuration for values the components cannot work with.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			fail("database.path is required for sqlite")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			fail("database.dsn is required for postgres")
		}
	default:
		fail("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}

	if c.Pool.MaxConnections <= 0 {
		fail("pool.max_connections must be positive")
	}
	if c.Pool.BackoffJitter < 0 || c.Pool.BackoffJitter >= 1 {
		fail("pool.backoff_jitter must be in [0, 1)")
	}

	pv := c.PriceValidation
	if pv.WindowSize <= 0 || pv.MinDataPoints <= 0 || pv.MinDataPoints > pv.WindowSize {
		fail("price_validation requires 0 < min_data_points <= window_size")
	}
	if pv.MaxDeviation <= 0 {
		fail("price_validation.max_deviation must be positive")
	}

	if c.Sell.PriceSource != PriceSourceDex && c.Sell.PriceSource != PriceSourceJup {
		fail("sell.price_source must be %q or %q, got %q", PriceSourceDex, PriceSourceJup, c.Sell.PriceSource)
	}
	if c.Sell.StopLossPercent <= 0 || c.Sell.TakeProfitPercent <= 0 {
		fail("sell stop loss and take profit percentages must be positive")
	}

	pt := c.PaperTrading
	if pt.InitialBalanceSOL < 0 {
		fail("paper_trading.initial_balance_sol must be non-negative")
	}
	if pt.BuyAmountLamports <= 0 || pt.BuyFeeLamports < 0 || pt.SellFeeLamports < 0 {
		fail("paper_trading amounts must be positive and fees non-negative")
	}

	if c.Solana.Wallet != "" {
		if err := solana.ValidateWalletAddress(c.Solana.Wallet); err != nil {
			fail("solana.wallet: %v", err)
		}
	}

	if c.Tracker.Interval <= 0 {
		fail("tracker.interval must be positive")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		fail("log.level: %v", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		fail("log.format must be text or json, got %q", c.Log.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// PreferredSource maps sell.price_source to a feed.
func (c *Config) PreferredSource() domain.PriceSource {
	if c.Sell.PriceSource == PriceSourceJup {
		return domain.PriceSourceJupiter
	}
	return domain.PriceSourceDexScreener
}

// ResolverConfig returns the price resolver settings.
func (c *Config) ResolverConfig() pricefeed.ResolverConfig {
	return pricefeed.ResolverConfig{
		Preferred:              c.PreferredSource(),
		FallbackToSingleSource: c.PriceValidation.FallbackToSingleSource,
	}
}

// TrackerConfig returns the holdings tracker settings.
func (c *Config) TrackerConfig() tracker.Config {
	return tracker.Config{
		Interval:          c.Tracker.Interval,
		AutoSell:          c.Sell.AutoSell,
		TakeProfitPercent: c.Sell.TakeProfitPercent,
		StopLossPercent:   c.Sell.StopLossPercent,
	}
}

// RPCClientOptions returns the Solana RPC client options.
func (c *Config) RPCClientOptions() []solana.ClientOption {
	return []solana.ClientOption{solana.WithTimeout(c.Solana.Timeout)}
}

// FeedClientOptions returns the shared HTTP client options for the feeds.
func (c *Config) FeedClientOptions() []pricefeed.ClientOption {
	return []pricefeed.ClientOption{
		pricefeed.WithTimeout(c.Feeds.Timeout),
		pricefeed.WithMaxRetries(c.Feeds.MaxRetries),
		pricefeed.WithRetryDelay(c.Feeds.RetryDelay),
		pricefeed.WithMaxDelay(c.Feeds.MaxDelay),
		pricefeed.WithRateLimit(c.Feeds.RequestsPerSecond, pricefeed.DefaultBurst),
	}
}
