package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validMonitorConfig fills the fields Defaults leaves empty so a monitor
// deployment passes validation.
func validMonitorConfig() Config {
	cfg := Defaults()
	cfg.Chain.RPCURL = "https://rpc.example.com"
	cfg.Venues = []VenueConfig{
		{ID: "alpha", Kind: VenueKindUniswapV2, Router: "0xaaa", FeeBps: 30},
		{ID: "beta", Kind: VenueKindUniswapV3, Router: "0xbbb", FeeBps: 30, FeeTiers: []int64{3000}},
	}
	cfg.Pairs = []PairConfig{
		{Base: "WETH", Quote: "USDC", BaseToken: "0x111", QuoteToken: "0x222", BaseDecimals: 18, QuoteDecimals: 6, BaseUnit: 0.5},
	}
	return cfg
}

func TestValidateMonitorConfig(t *testing.T) {
	cfg := validMonitorConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateServerModeSkipsPipelineChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	// No chain, venues, or pairs configured; server mode does not need them.
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validMonitorConfig()
	cfg.Mode = "backtest"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "backtest"`)
}

func TestValidateExecuteModeRequiresWalletAndContract(t *testing.T) {
	cfg := validMonitorConfig()
	cfg.Mode = "execute"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet: either private_key or encrypted_key_path")
	assert.Contains(t, err.Error(), "chain: flash_loan_contract must be set")

	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Chain.FlashLoanContract = "0xccc"
	assert.NoError(t, cfg.Validate())
}

func TestValidateEncryptedKeyNeedsPassword(t *testing.T) {
	cfg := validMonitorConfig()
	cfg.Mode = "execute"
	cfg.Chain.FlashLoanContract = "0xccc"
	cfg.Wallet.EncryptedKeyPath = "/etc/arbd/key.enc"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet: key_password is required")
}

func TestValidateRequiresTwoVenues(t *testing.T) {
	cfg := validMonitorConfig()
	cfg.Venues = cfg.Venues[:1]

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 2 venues are required")
}

func TestValidateRejectsDuplicateVenueIDs(t *testing.T) {
	cfg := validMonitorConfig()
	cfg.Venues[1].ID = "alpha"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate id "alpha"`)
}

func TestValidateAggregatorVenueNeedsBaseURL(t *testing.T) {
	cfg := validMonitorConfig()
	cfg.Venues[1] = VenueConfig{ID: "agg", Kind: VenueKindAggregator}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url required for kind aggregator")
}

func TestValidateRiskLimitsMustBeSet(t *testing.T) {
	cfg := validMonitorConfig()
	cfg.Risk.MinNetProfitUSD = 0
	cfg.Risk.DailyLossLimitUSD = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_net_profit_usd must be > 0")
	assert.Contains(t, err.Error(), "daily_loss_limit_usd must be > 0")
}

func TestValidateReportsAllProblemsAtOnce(t *testing.T) {
	cfg := validMonitorConfig()
	cfg.Chain.RPCURL = ""
	cfg.Pairs = nil
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain: rpc_url must not be empty")
	assert.Contains(t, err.Error(), "pairs: at least one tracked pair is required")
	assert.Contains(t, err.Error(), "redis: addr must not be empty")
}

func TestDefaultsAreMonitorOnly(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "monitor", cfg.Mode)
	assert.False(t, cfg.Risk.ExecutionAuthorized)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbd.toml")
	data := `
mode = "execute"
log_level = "debug"

[aggregation]
poll_interval = "1s"

[risk]
min_net_profit_usd = 25.0

[[venues]]
id = "alpha"
kind = "uniswap_v2"
router = "0xaaa"
fee_bps = 30.0
quote_timeout = "2s"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "execute", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, time.Second, cfg.Aggregation.PollInterval.Duration)
	assert.InDelta(t, 25.0, cfg.Risk.MinNetProfitUSD, 1e-9)
	require.Len(t, cfg.Venues, 1)
	assert.Equal(t, 2*time.Second, cfg.Venues[0].QuoteTimeout.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Risk.BreakerThreshold)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "monitor"`), 0o600))

	t.Setenv("ARBD_MODE", "execute")
	t.Setenv("ARBD_WALLET_PRIVATE_KEY", "0xsecret")
	t.Setenv("ARBD_RISK_EXECUTION_AUTHORIZED", "true")
	t.Setenv("ARBD_RISK_BREAKER_COOLDOWN", "5m")
	t.Setenv("ARBD_REDIS_DB", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "execute", cfg.Mode)
	assert.Equal(t, "0xsecret", cfg.Wallet.PrivateKey)
	assert.True(t, cfg.Risk.ExecutionAuthorized)
	assert.Equal(t, 5*time.Minute, cfg.Risk.BreakerCooldown.Duration)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestEnvStringSliceSplitsAndTrims(t *testing.T) {
	t.Setenv("ARBD_SERVER_CORS_ORIGINS", " https://a.example , https://b.example ,")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestEmptyEnvDoesNotClobber(t *testing.T) {
	t.Setenv("ARBD_REDIS_ADDR", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}
