package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "ARBD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "ARBD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "ARBD_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "ARBD_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "ARBD_CHAIN_ID")
	setStr(&cfg.Chain.FlashLoanContract, "ARBD_CHAIN_FLASH_LOAN_CONTRACT")
	setFloat64(&cfg.Chain.NativeTokenUSD, "ARBD_CHAIN_NATIVE_TOKEN_USD")

	// ── Risk ──
	setBool(&cfg.Risk.ExecutionAuthorized, "ARBD_RISK_EXECUTION_AUTHORIZED")
	setFloat64(&cfg.Risk.MinNetProfitUSD, "ARBD_RISK_MIN_NET_PROFIT_USD")
	setFloat64(&cfg.Risk.MaxPositionSize, "ARBD_RISK_MAX_POSITION_SIZE")
	setFloat64(&cfg.Risk.MinConfidence, "ARBD_RISK_MIN_CONFIDENCE")
	setInt(&cfg.Risk.BreakerThreshold, "ARBD_RISK_BREAKER_THRESHOLD")
	setDuration(&cfg.Risk.BreakerCooldown, "ARBD_RISK_BREAKER_COOLDOWN")
	setFloat64(&cfg.Risk.DailyLossLimitUSD, "ARBD_RISK_DAILY_LOSS_LIMIT_USD")

	// ── Aggregation ──
	setDuration(&cfg.Aggregation.PollInterval, "ARBD_AGGREGATION_POLL_INTERVAL")
	setDuration(&cfg.Aggregation.MaxQuoteStaleness, "ARBD_AGGREGATION_MAX_QUOTE_STALENESS")
	setBool(&cfg.Aggregation.PersistSnapshots, "ARBD_AGGREGATION_PERSIST_SNAPSHOTS")

	// ── Scoring ──
	setFloat64(&cfg.Scoring.FlashLoanFeeBps, "ARBD_SCORING_FLASH_LOAN_FEE_BPS")
	setFloat64(&cfg.Scoring.SlippageBufferPct, "ARBD_SCORING_SLIPPAGE_BUFFER_PCT")
	setFloat64(&cfg.Scoring.GasCostUSD, "ARBD_SCORING_GAS_COST_USD")

	// ── Executor ──
	setInt(&cfg.Executor.MaxAttempts, "ARBD_EXECUTOR_MAX_ATTEMPTS")
	setDuration(&cfg.Executor.RetryBackoff, "ARBD_EXECUTOR_RETRY_BACKOFF")
	setDuration(&cfg.Executor.MaxOpportunityAge, "ARBD_EXECUTOR_MAX_OPPORTUNITY_AGE")
	setDuration(&cfg.Executor.ConfirmTimeout, "ARBD_EXECUTOR_CONFIRM_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBD_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBD_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "ARBD_S3_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBD_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBD_MODE")
	setStr(&cfg.LogLevel, "ARBD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
