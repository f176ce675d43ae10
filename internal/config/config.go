// Package config defines the top-level configuration for the arbitrage
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBD_* environment variables.
type Config struct {
	Wallet      WalletConfig      `toml:"wallet"`
	Chain       ChainConfig       `toml:"chain"`
	Venues      []VenueConfig     `toml:"venues"`
	Pairs       []PairConfig      `toml:"pairs"`
	Aggregation AggregationConfig `toml:"aggregation"`
	Scoring     ScoringConfig     `toml:"scoring"`
	Risk        RiskConfig        `toml:"risk"`
	Executor    ExecutorConfig    `toml:"executor"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// WalletConfig holds the signing key source. Exactly one of private_key or
// encrypted_key_path is needed in execute mode.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds chain client parameters and the flash-loan executor
// contract the transaction plan targets.
type ChainConfig struct {
	RPCURL            string  `toml:"rpc_url"`
	ChainID           int64   `toml:"chain_id"`
	FlashLoanContract string  `toml:"flash_loan_contract"`
	NativeTokenUSD    float64 `toml:"native_token_usd"` // gas cost conversion rate
	ConfirmPollMs     int64   `toml:"confirm_poll_ms"`
}

// VenueKind selects the adapter implementation for a venue.
type VenueKind string

const (
	VenueKindUniswapV2  VenueKind = "uniswap_v2"
	VenueKindUniswapV3  VenueKind = "uniswap_v3"
	VenueKindAggregator VenueKind = "aggregator"
)

// VenueConfig describes one liquidity venue.
type VenueConfig struct {
	ID           string    `toml:"id"`
	Kind         VenueKind `toml:"kind"`
	Router       string    `toml:"router"`    // on-chain router/quoter address
	BaseURL      string    `toml:"base_url"`  // aggregator HTTP endpoint
	FeeBps       float64   `toml:"fee_bps"`   // swap fee, e.g. 30 = 0.30%
	FeeTiers     []int64   `toml:"fee_tiers"` // concentrated-liquidity tiers
	QuoteTimeout duration  `toml:"quote_timeout"`
	APIKey       string    `toml:"api_key"`    // aggregator APIs only
	APISecret    string    `toml:"api_secret"` // env override preferred
}

// PairConfig describes a tracked trading pair and its on-chain tokens.
type PairConfig struct {
	Base          string  `toml:"base"`
	Quote         string  `toml:"quote"`
	BaseToken     string  `toml:"base_token"` // contract address
	QuoteToken    string  `toml:"quote_token"`
	BaseDecimals  int     `toml:"base_decimals"`
	QuoteDecimals int     `toml:"quote_decimals"`
	BaseUnit      float64 `toml:"base_unit"` // amount-ladder base, in base asset units
}

// AggregationConfig tunes the polling loop.
type AggregationConfig struct {
	PollInterval      duration `toml:"poll_interval"`
	MaxQuoteStaleness duration `toml:"max_quote_staleness"`
	PersistSnapshots  bool     `toml:"persist_snapshots"`
}

// ScoringConfig tunes the opportunity scorer.
type ScoringConfig struct {
	AmountMultipliers []float64 `toml:"amount_multipliers"`
	FlashLoanFeeBps   float64   `toml:"flash_loan_fee_bps"`
	SlippageBufferPct float64   `toml:"slippage_buffer_pct"` // % of gross reserved for movement
	GasCostUSD        float64   `toml:"gas_cost_usd"`

	// Confidence weights. Normalized at use; must each be >= 0.
	LiquidityWeight   float64 `toml:"liquidity_weight"`
	FreshnessWeight   float64 `toml:"freshness_weight"`
	ReliabilityWeight float64 `toml:"reliability_weight"`

	// Optional sweet-spot bonus: adds confidence for opportunities whose net
	// profit falls inside [min_usd, max_usd]. Off unless explicitly enabled.
	SweetSpotEnabled bool    `toml:"sweet_spot_enabled"`
	SweetSpotMinUSD  float64 `toml:"sweet_spot_min_usd"`
	SweetSpotMaxUSD  float64 `toml:"sweet_spot_max_usd"`
	SweetSpotBonus   float64 `toml:"sweet_spot_bonus"`
}

// RiskConfig holds the gate thresholds and circuit-breaker parameters.
// Every threshold here is a hard startup requirement: the daemon refuses to
// run with undefined risk limits.
type RiskConfig struct {
	ExecutionAuthorized bool     `toml:"execution_authorized"`
	MinNetProfitUSD     float64  `toml:"min_net_profit_usd"`
	MaxPositionSize     float64  `toml:"max_position_size"` // loop-asset units
	MinConfidence       float64  `toml:"min_confidence"`
	BreakerThreshold    int      `toml:"breaker_threshold"`
	BreakerCooldown     duration `toml:"breaker_cooldown"`
	DailyLossLimitUSD   float64  `toml:"daily_loss_limit_usd"`
}

// ExecutorConfig tunes the execution coordinator.
type ExecutorConfig struct {
	MaxAttempts       int      `toml:"max_attempts"`
	RetryBackoff      duration `toml:"retry_backoff"`
	MaxOpportunityAge duration `toml:"max_opportunity_age"` // decision-to-submit cap
	ConfirmTimeout    duration `toml:"confirm_timeout"`
	AssetLockTTL      duration `toml:"asset_lock_ttl"`
	FallbackGasLimit  uint64   `toml:"fallback_gas_limit"`
	MinReturnScale    float64  `toml:"min_return_scale"` // fraction of estimated output enforced on-chain
}

// PostgresConfig holds PostgreSQL connection parameters for the ledger.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds object storage parameters for ledger archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// ServerConfig holds the status HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`    // empty disables auth
	RateLimit       int      `toml:"rate_limit"` // requests per window per client; 0 disables
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so TOML can decode "5s"-style strings.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "250ms" or "1m30s".
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Defaults returns a Config with conservative defaults. Execution is NOT
// authorized by default: a freshly configured daemon is monitor-only until
// the operator explicitly opts in.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID:        1,
			NativeTokenUSD: 3000.0,
			ConfirmPollMs:  1500,
		},
		Aggregation: AggregationConfig{
			PollInterval:      duration{3 * time.Second},
			MaxQuoteStaleness: duration{5 * time.Second},
			PersistSnapshots:  false,
		},
		Scoring: ScoringConfig{
			AmountMultipliers: []float64{1, 3, 7, 12, 18},
			FlashLoanFeeBps:   9, // Aave-style 0.09%
			SlippageBufferPct: 5,
			GasCostUSD:        5,
			LiquidityWeight:   0.4,
			FreshnessWeight:   0.35,
			ReliabilityWeight: 0.25,
		},
		Risk: RiskConfig{
			ExecutionAuthorized: false,
			MinNetProfitUSD:     10,
			MaxPositionSize:     50,
			MinConfidence:       0.5,
			BreakerThreshold:    3,
			BreakerCooldown:     duration{10 * time.Minute},
			DailyLossLimitUSD:   250,
		},
		Executor: ExecutorConfig{
			MaxAttempts:       3,
			RetryBackoff:      duration{500 * time.Millisecond},
			MaxOpportunityAge: duration{10 * time.Second},
			ConfirmTimeout:    duration{90 * time.Second},
			AssetLockTTL:      duration{2 * time.Minute},
			FallbackGasLimit:  900_000,
			MinReturnScale:    0.995,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "flasharb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "flasharb-archive",
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitWindow: duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"execution_confirmed", "execution_failed", "breaker_open"},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"execute": true,
	"server":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found. A failed validation is
// fatal at startup: the daemon never runs with undefined risk limits.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, execute, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	mode := strings.ToLower(c.Mode)

	// Wallet — required only when execution can actually happen.
	if mode == "execute" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for execute mode")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Chain.FlashLoanContract == "" {
			errs = append(errs, "chain: flash_loan_contract must be set for execute mode")
		}
	}

	if mode != "server" {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty")
		}
		if c.Chain.ChainID <= 0 {
			errs = append(errs, fmt.Sprintf("chain: chain_id must be positive, got %d", c.Chain.ChainID))
		}

		if len(c.Venues) < 2 {
			errs = append(errs, fmt.Sprintf("venues: at least 2 venues are required for arbitrage, got %d", len(c.Venues)))
		}
		seenVenues := map[string]bool{}
		for i, v := range c.Venues {
			if v.ID == "" {
				errs = append(errs, fmt.Sprintf("venues[%d]: id must not be empty", i))
				continue
			}
			if seenVenues[v.ID] {
				errs = append(errs, fmt.Sprintf("venues[%d]: duplicate id %q", i, v.ID))
			}
			seenVenues[v.ID] = true
			switch v.Kind {
			case VenueKindUniswapV2, VenueKindUniswapV3:
				if v.Router == "" {
					errs = append(errs, fmt.Sprintf("venues[%s]: router address required for kind %s", v.ID, v.Kind))
				}
			case VenueKindAggregator:
				if v.BaseURL == "" {
					errs = append(errs, fmt.Sprintf("venues[%s]: base_url required for kind aggregator", v.ID))
				}
			default:
				errs = append(errs, fmt.Sprintf("venues[%s]: unknown kind %q", v.ID, v.Kind))
			}
			if v.FeeBps < 0 {
				errs = append(errs, fmt.Sprintf("venues[%s]: fee_bps must be >= 0", v.ID))
			}
		}

		if len(c.Pairs) == 0 {
			errs = append(errs, "pairs: at least one tracked pair is required")
		}
		for i, p := range c.Pairs {
			if p.Base == "" || p.Quote == "" {
				errs = append(errs, fmt.Sprintf("pairs[%d]: base and quote must not be empty", i))
			}
			if p.BaseUnit <= 0 {
				errs = append(errs, fmt.Sprintf("pairs[%d]: base_unit must be > 0", i))
			}
		}

		if c.Aggregation.PollInterval.Duration <= 0 {
			errs = append(errs, "aggregation: poll_interval must be > 0")
		}
		if c.Aggregation.MaxQuoteStaleness.Duration <= 0 {
			errs = append(errs, "aggregation: max_quote_staleness must be > 0")
		}

		// Scoring
		if len(c.Scoring.AmountMultipliers) == 0 {
			errs = append(errs, "scoring: amount_multipliers must not be empty")
		}
		for _, m := range c.Scoring.AmountMultipliers {
			if m <= 0 {
				errs = append(errs, "scoring: amount_multipliers must all be > 0")
				break
			}
		}
		if c.Scoring.FlashLoanFeeBps < 0 {
			errs = append(errs, "scoring: flash_loan_fee_bps must be >= 0")
		}
		if c.Scoring.SlippageBufferPct < 0 || c.Scoring.SlippageBufferPct > 100 {
			errs = append(errs, "scoring: slippage_buffer_pct must be in [0,100]")
		}
		if c.Scoring.LiquidityWeight < 0 || c.Scoring.FreshnessWeight < 0 || c.Scoring.ReliabilityWeight < 0 {
			errs = append(errs, "scoring: confidence weights must be >= 0")
		}
		if c.Scoring.LiquidityWeight+c.Scoring.FreshnessWeight+c.Scoring.ReliabilityWeight <= 0 {
			errs = append(errs, "scoring: confidence weights must not all be zero")
		}
		if c.Scoring.SweetSpotEnabled && c.Scoring.SweetSpotMinUSD >= c.Scoring.SweetSpotMaxUSD {
			errs = append(errs, "scoring: sweet_spot_min_usd must be < sweet_spot_max_usd")
		}

		// Risk — every limit must be explicitly sane.
		if c.Risk.MinNetProfitUSD <= 0 {
			errs = append(errs, "risk: min_net_profit_usd must be > 0")
		}
		if c.Risk.MaxPositionSize <= 0 {
			errs = append(errs, "risk: max_position_size must be > 0")
		}
		if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
			errs = append(errs, "risk: min_confidence must be in [0,1]")
		}
		if c.Risk.BreakerThreshold < 1 {
			errs = append(errs, "risk: breaker_threshold must be >= 1")
		}
		if c.Risk.BreakerCooldown.Duration <= 0 {
			errs = append(errs, "risk: breaker_cooldown must be > 0")
		}
		if c.Risk.DailyLossLimitUSD <= 0 {
			errs = append(errs, "risk: daily_loss_limit_usd must be > 0")
		}

		// Executor
		if c.Executor.MaxAttempts < 1 {
			errs = append(errs, "executor: max_attempts must be >= 1")
		}
		if c.Executor.RetryBackoff.Duration <= 0 {
			errs = append(errs, "executor: retry_backoff must be > 0")
		}
		if c.Executor.MaxOpportunityAge.Duration <= 0 {
			errs = append(errs, "executor: max_opportunity_age must be > 0")
		}
		if c.Executor.ConfirmTimeout.Duration <= 0 {
			errs = append(errs, "executor: confirm_timeout must be > 0")
		}

		// Postgres
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}

		// Redis
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}

		// S3 (only when archival is on)
		if c.S3.Enabled {
			if c.S3.Endpoint == "" {
				errs = append(errs, "s3: endpoint must not be empty when enabled")
			}
			if c.S3.Bucket == "" {
				errs = append(errs, "s3: bucket must not be empty when enabled")
			}
			if c.S3.RetentionDays < 1 {
				errs = append(errs, "s3: retention_days must be >= 1 when enabled")
			}
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Pair returns the domain pair for a PairConfig.
func (p PairConfig) Pair() (base, quote string) {
	return p.Base, p.Quote
}
