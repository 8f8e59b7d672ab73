// Package config loads and validates the bot configuration from the
// environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"solana-copy-trader/internal/domain"
)

// FeeMode selects how the simulated executor estimates fees.
type FeeMode string

const (
	// FeeModeEstimate uses the fixed fee formula.
	FeeModeEstimate FeeMode = "estimate"
	// FeeModeAccurate derives the priority fee from a simulateTransaction
	// run, falling back to the fixed formula on failure.
	FeeModeAccurate FeeMode = "accurate"
)

// Config is the validated runtime configuration.
type Config struct {
	UpstreamWallet   string
	WalletPrivateKey string
	RPCEndpoint      string
	WSEndpoint       string
	AggregatorURL    string
	PostgresDSN      string
	ClickhouseDSN    string
	WebhookAddr      string
	MetricsAddr      string

	CopyRatio          float64
	MaxSOLPerTrade     float64
	MinSOLPerTrade     float64
	MaxSOLPerDay       float64
	MaxOpenPositions   int
	SlippageBps        int
	MaxPriceImpactBps  int
	PriorityFee        int64 // lamports
	CooldownSeconds    int
	MaxFeePct          float64
	MinReserveSOL      float64
	VirtualStartingSOL float64
	CompareAlertPct    float64

	BlockIfMintAuthority   bool
	BlockIfFreezeAuthority bool
	RestrictIntermediates  bool

	// MaxPriceDriftPct is the drift threshold in percent; 0 disables the
	// guard.
	MaxPriceDriftPct           float64
	AllowUnsafeParseTrades     bool
	DisableDriftGuardOnUnsafe  bool
	AllowSellOnSentPosition    bool
	SellOnSentTimeoutSeconds   int
	PendingTimeoutMinutes      int

	CBFailRatePct     float64
	CBFailWindowMin   int
	CBLatencyP99Ms    int64
	CBNoPositionSpike int
	CBAutoResetMin    int

	PauseTrading bool
	DryRun       bool
	DryRunFee    FeeMode

	WebhookRatePerMin  int
	PollIntervalSec    int
	PollSignatureLimit int

	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("WEBHOOK_ADDR", ":8080")
	v.SetDefault("METRICS_ADDR", ":9100")
	v.SetDefault("COPY_RATIO", 0.5)
	v.SetDefault("MAX_SOL_PER_TRADE", 0.5)
	v.SetDefault("MIN_SOL_PER_TRADE", 0.01)
	v.SetDefault("MAX_SOL_PER_DAY", 5.0)
	v.SetDefault("MAX_OPEN_POSITIONS", 10)
	v.SetDefault("SLIPPAGE_BPS", 300)
	v.SetDefault("MAX_PRICE_IMPACT_BPS", 500)
	v.SetDefault("PRIORITY_FEE_LAMPORTS", 100_000)
	v.SetDefault("COOLDOWN_SECONDS", 60)
	v.SetDefault("MAX_FEE_PCT", 1.0)
	v.SetDefault("MIN_RESERVE_SOL", 0.05)
	v.SetDefault("VIRTUAL_STARTING_SOL", 10.0)
	v.SetDefault("COMPARE_ALERT_PCT", 2.0)
	v.SetDefault("BLOCK_IF_MINT_AUTHORITY", true)
	v.SetDefault("BLOCK_IF_FREEZE_AUTHORITY", true)
	v.SetDefault("RESTRICT_INTERMEDIATE_TOKENS", true)
	v.SetDefault("MAX_PRICE_DRIFT_PCT", 20.0)
	v.SetDefault("ALLOW_UNSAFE_PARSE_TRADES", false)
	v.SetDefault("DISABLE_DRIFT_GUARD_ON_UNSAFE_PARSE", true)
	v.SetDefault("ALLOW_SELL_ON_SENT_POSITION", false)
	v.SetDefault("SELL_ON_SENT_TIMEOUT_SECONDS", 10)
	v.SetDefault("PENDING_POSITION_TIMEOUT_MINUTES", 5)
	v.SetDefault("CB_FAIL_RATE_PCT", 50.0)
	v.SetDefault("CB_FAIL_WINDOW_MINUTES", 10)
	v.SetDefault("CB_LATENCY_P99_MS", 15_000)
	v.SetDefault("CB_NO_POSITION_SPIKE", 5)
	v.SetDefault("CB_AUTO_RESET_MINUTES", 0)
	v.SetDefault("PAUSE_TRADING", false)
	v.SetDefault("DRY_RUN", true)
	v.SetDefault("DRY_RUN_FEE_MODE", string(FeeModeEstimate))
	v.SetDefault("WEBHOOK_RATE_PER_MIN", 120)
	v.SetDefault("POLL_INTERVAL_SECONDS", 5)
	v.SetDefault("POLL_SIGNATURE_LIMIT", 20)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		UpstreamWallet:   v.GetString("UPSTREAM_WALLET"),
		WalletPrivateKey: v.GetString("WALLET_PRIVATE_KEY"),
		RPCEndpoint:      v.GetString("RPC_ENDPOINT"),
		WSEndpoint:       v.GetString("WS_ENDPOINT"),
		AggregatorURL:    v.GetString("AGGREGATOR_ENDPOINT"),
		PostgresDSN:      v.GetString("POSTGRES_DSN"),
		ClickhouseDSN:    v.GetString("CLICKHOUSE_DSN"),
		WebhookAddr:      v.GetString("WEBHOOK_ADDR"),
		MetricsAddr:      v.GetString("METRICS_ADDR"),

		CopyRatio:          v.GetFloat64("COPY_RATIO"),
		MaxSOLPerTrade:     v.GetFloat64("MAX_SOL_PER_TRADE"),
		MinSOLPerTrade:     v.GetFloat64("MIN_SOL_PER_TRADE"),
		MaxSOLPerDay:       v.GetFloat64("MAX_SOL_PER_DAY"),
		MaxOpenPositions:   v.GetInt("MAX_OPEN_POSITIONS"),
		SlippageBps:        v.GetInt("SLIPPAGE_BPS"),
		MaxPriceImpactBps:  v.GetInt("MAX_PRICE_IMPACT_BPS"),
		PriorityFee:        v.GetInt64("PRIORITY_FEE_LAMPORTS"),
		CooldownSeconds:    v.GetInt("COOLDOWN_SECONDS"),
		MaxFeePct:          v.GetFloat64("MAX_FEE_PCT"),
		MinReserveSOL:      v.GetFloat64("MIN_RESERVE_SOL"),
		VirtualStartingSOL: v.GetFloat64("VIRTUAL_STARTING_SOL"),
		CompareAlertPct:    v.GetFloat64("COMPARE_ALERT_PCT"),

		BlockIfMintAuthority:   v.GetBool("BLOCK_IF_MINT_AUTHORITY"),
		BlockIfFreezeAuthority: v.GetBool("BLOCK_IF_FREEZE_AUTHORITY"),
		RestrictIntermediates:  v.GetBool("RESTRICT_INTERMEDIATE_TOKENS"),

		MaxPriceDriftPct:          v.GetFloat64("MAX_PRICE_DRIFT_PCT"),
		AllowUnsafeParseTrades:    v.GetBool("ALLOW_UNSAFE_PARSE_TRADES"),
		DisableDriftGuardOnUnsafe: v.GetBool("DISABLE_DRIFT_GUARD_ON_UNSAFE_PARSE"),
		AllowSellOnSentPosition:   v.GetBool("ALLOW_SELL_ON_SENT_POSITION"),
		SellOnSentTimeoutSeconds:  v.GetInt("SELL_ON_SENT_TIMEOUT_SECONDS"),
		PendingTimeoutMinutes:     v.GetInt("PENDING_POSITION_TIMEOUT_MINUTES"),

		CBFailRatePct:     v.GetFloat64("CB_FAIL_RATE_PCT"),
		CBFailWindowMin:   v.GetInt("CB_FAIL_WINDOW_MINUTES"),
		CBLatencyP99Ms:    v.GetInt64("CB_LATENCY_P99_MS"),
		CBNoPositionSpike: v.GetInt("CB_NO_POSITION_SPIKE"),
		CBAutoResetMin:    v.GetInt("CB_AUTO_RESET_MINUTES"),

		PauseTrading: v.GetBool("PAUSE_TRADING"),
		DryRun:       v.GetBool("DRY_RUN"),
		DryRunFee:    FeeMode(v.GetString("DRY_RUN_FEE_MODE")),

		WebhookRatePerMin:  v.GetInt("WEBHOOK_RATE_PER_MIN"),
		PollIntervalSec:    v.GetInt("POLL_INTERVAL_SECONDS"),
		PollSignatureLimit: v.GetInt("POLL_SIGNATURE_LIMIT"),

		LogLevel: v.GetString("LOG_LEVEL"),
		LogFile:  v.GetString("LOG_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements. Any error here must
// abort startup.
func (c *Config) Validate() error {
	if c.UpstreamWallet == "" {
		return fmt.Errorf("UPSTREAM_WALLET is required")
	}
	if c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	if c.RPCEndpoint == "" {
		return fmt.Errorf("RPC_ENDPOINT is required")
	}
	if !c.DryRun && c.WalletPrivateKey == "" {
		return fmt.Errorf("WALLET_PRIVATE_KEY is required in live mode")
	}
	if c.CopyRatio <= 0 || c.CopyRatio > 1 {
		return fmt.Errorf("COPY_RATIO must be in (0,1], got %v", c.CopyRatio)
	}
	if c.MaxSOLPerTrade <= 0 {
		return fmt.Errorf("MAX_SOL_PER_TRADE must be positive, got %v", c.MaxSOLPerTrade)
	}
	if c.MinSOLPerTrade <= 0 || c.MinSOLPerTrade > c.MaxSOLPerTrade {
		return fmt.Errorf("MIN_SOL_PER_TRADE must be in (0,MAX_SOL_PER_TRADE], got %v", c.MinSOLPerTrade)
	}
	if c.MaxSOLPerDay < c.MaxSOLPerTrade {
		return fmt.Errorf("MAX_SOL_PER_DAY must be at least MAX_SOL_PER_TRADE, got %v", c.MaxSOLPerDay)
	}
	if c.MaxOpenPositions <= 0 {
		return fmt.Errorf("MAX_OPEN_POSITIONS must be positive, got %d", c.MaxOpenPositions)
	}
	if c.SlippageBps < 1 || c.SlippageBps > 5000 {
		return fmt.Errorf("SLIPPAGE_BPS must be in [1,5000], got %d", c.SlippageBps)
	}
	if c.MaxPriceImpactBps < 0 {
		return fmt.Errorf("MAX_PRICE_IMPACT_BPS must be nonnegative, got %d", c.MaxPriceImpactBps)
	}
	if c.MaxFeePct < 0 || c.MaxFeePct > 100 {
		return fmt.Errorf("MAX_FEE_PCT must be in [0,100], got %v", c.MaxFeePct)
	}
	if c.MaxPriceDriftPct < 0 {
		return fmt.Errorf("MAX_PRICE_DRIFT_PCT must be nonnegative, got %v", c.MaxPriceDriftPct)
	}
	if c.PendingTimeoutMinutes <= 0 {
		return fmt.Errorf("PENDING_POSITION_TIMEOUT_MINUTES must be positive, got %d", c.PendingTimeoutMinutes)
	}
	if c.SellOnSentTimeoutSeconds < 0 {
		return fmt.Errorf("SELL_ON_SENT_TIMEOUT_SECONDS must be nonnegative, got %d", c.SellOnSentTimeoutSeconds)
	}
	if c.DryRunFee != FeeModeEstimate && c.DryRunFee != FeeModeAccurate {
		return fmt.Errorf("DRY_RUN_FEE_MODE must be %q or %q, got %q", FeeModeEstimate, FeeModeAccurate, c.DryRunFee)
	}
	if c.WebhookRatePerMin <= 0 {
		return fmt.Errorf("WEBHOOK_RATE_PER_MIN must be positive, got %d", c.WebhookRatePerMin)
	}
	if c.PollIntervalSec <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive, got %d", c.PollIntervalSec)
	}
	if c.PollSignatureLimit <= 0 {
		return fmt.Errorf("POLL_SIGNATURE_LIMIT must be positive, got %d", c.PollSignatureLimit)
	}
	if c.DryRun && c.VirtualStartingSOL <= 0 {
		return fmt.Errorf("VIRTUAL_STARTING_SOL must be positive in dry-run mode, got %v", c.VirtualStartingSOL)
	}
	return nil
}

// Lamport conversions for the SOL-denominated knobs.

func solToLamports(sol float64) int64 {
	return int64(sol * domain.LamportsPerSOL)
}

// MaxPerTradeLamports returns MAX_SOL_PER_TRADE in lamports.
func (c *Config) MaxPerTradeLamports() int64 { return solToLamports(c.MaxSOLPerTrade) }

// MinPerTradeLamports returns MIN_SOL_PER_TRADE in lamports.
func (c *Config) MinPerTradeLamports() int64 { return solToLamports(c.MinSOLPerTrade) }

// MaxPerDayLamports returns MAX_SOL_PER_DAY in lamports.
func (c *Config) MaxPerDayLamports() int64 { return solToLamports(c.MaxSOLPerDay) }

// MinReserveLamports returns MIN_RESERVE_SOL in lamports.
func (c *Config) MinReserveLamports() int64 { return solToLamports(c.MinReserveSOL) }

// VirtualStartingLamports returns VIRTUAL_STARTING_SOL in lamports.
func (c *Config) VirtualStartingLamports() int64 { return solToLamports(c.VirtualStartingSOL) }

// Cooldown returns COOLDOWN_SECONDS as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// PendingTimeout returns the stale-SENT threshold as a duration.
func (c *Config) PendingTimeout() time.Duration {
	return time.Duration(c.PendingTimeoutMinutes) * time.Minute
}

// SellOnSentTimeout returns the SENT-wait poll bound as a duration.
func (c *Config) SellOnSentTimeout() time.Duration {
	return time.Duration(c.SellOnSentTimeoutSeconds) * time.Second
}
