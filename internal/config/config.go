package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the bot. It is built once at startup
// and passed explicitly into every component.
type Config struct {
	// Discord feed
	DiscordToken string
	ChannelID    string

	// Bybit
	BybitAPIKey    string
	BybitAPISecret string
	BybitTestnet   bool
	BybitDemo      bool
	RecvWindow     string

	// Trading
	Category string // "linear" for USDT perpetual
	Quote    string
	Parser   string // signal parser implementation name

	// Mode
	DryRun bool
	Debug  bool

	// Risk sizing
	RiskPerTradePct decimal.Decimal // % of equity lost if SL hits
	FixedLeverage   decimal.Decimal // used when a signal has no stop
	FixedRiskPct    decimal.Decimal
	MinLeverage     decimal.Decimal
	MaxLeverage     decimal.Decimal

	// Safety caps
	MaxConcurrentTrades int
	MaxTradesPerDay     int
	MaxSignalAge        time.Duration

	// Entry expiration per timeframe
	EntryExpirationM15     time.Duration
	EntryExpirationH1      time.Duration
	EntryExpirationH4      time.Duration
	EntryExpirationDefault time.Duration

	// TP/SL management
	TPSplits          []decimal.Decimal // pct of size per TP leg
	TPSplitsAuto      bool              // equal splits from TP count
	FallbackTPPcts    []decimal.Decimal // % from entry when signal has no TPs
	InitialSLPct      decimal.Decimal   // SL distance fallback when signal has none
	MoveSLToBEOnTP1   bool
	BEBufferPct       decimal.Decimal
	FollowTPEnabled   bool
	FollowTPBufferPct decimal.Decimal
	MaxSLDistancePct  decimal.Decimal // hard cap: cancel when exceeded (0 = off)
	CapSLDistancePct  decimal.Decimal // soft cap: clamp toward entry (0 = off)
	TrailAfterTPIndex int             // switch to trailing once TP-n fills (0 = off)
	TrailDistancePct  decimal.Decimal
	DCAQtyMults       []decimal.Decimal

	// Trend filter
	MaxAllowedLeg int
	SwingLookback int
	TrendCandles  int

	// Batch selection
	BatchEnabled bool
	MaxPerBatch  int

	// Timing
	PollInterval         time.Duration
	PollJitterMax        time.Duration
	PollQuarterHour      bool
	PollQuarterBuffer    time.Duration
	PendingMonitorEvery  time.Duration
	SignalUpdateInterval time.Duration

	// Alerts
	TelegramToken      string
	TelegramChatID     int64
	PnLAlertThresholds []int // alert at -N% position P&L

	// Persistence
	StateFile  string
	JournalDSN string // sqlite path or postgres:// DSN, empty = no journal
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DiscordToken: os.Getenv("DISCORD_TOKEN"),
		ChannelID:    os.Getenv("CHANNEL_ID"),

		BybitAPIKey:    os.Getenv("BYBIT_API_KEY"),
		BybitAPISecret: os.Getenv("BYBIT_API_SECRET"),
		BybitTestnet:   getEnvBool("BYBIT_TESTNET", false),
		BybitDemo:      getEnvBool("BYBIT_DEMO", false),
		RecvWindow:     getEnv("RECV_WINDOW", "5000"),

		Category: getEnv("CATEGORY", "linear"),
		Quote:    strings.ToUpper(getEnv("QUOTE", "USDT")),
		Parser:   getEnv("SIGNAL_PARSER", "json"),

		DryRun: getEnvBool("DRY_RUN", true),
		Debug:  getEnvBool("DEBUG", false),

		RiskPerTradePct: getEnvDecimal("RISK_PER_TRADE_PCT", decimal.NewFromFloat(2.0)),
		FixedLeverage:   getEnvDecimal("LEVERAGE", decimal.NewFromInt(5)),
		FixedRiskPct:    getEnvDecimal("RISK_PCT", decimal.NewFromInt(5)),
		MinLeverage:     getEnvDecimal("MIN_LEVERAGE", decimal.NewFromInt(5)),
		MaxLeverage:     getEnvDecimal("MAX_LEVERAGE", decimal.NewFromInt(50)),

		MaxConcurrentTrades: getEnvInt("MAX_CONCURRENT_TRADES", 3),
		MaxTradesPerDay:     getEnvInt("MAX_TRADES_PER_DAY", 20),
		MaxSignalAge:        getEnvDurationSec("TC_MAX_LAG_SEC", 300*time.Second),

		EntryExpirationM15:     getEnvDurationMin("ENTRY_EXPIRATION_M15", 30*time.Minute),
		EntryExpirationH1:      getEnvDurationMin("ENTRY_EXPIRATION_H1", 120*time.Minute),
		EntryExpirationH4:      getEnvDurationMin("ENTRY_EXPIRATION_H4", 480*time.Minute),
		EntryExpirationDefault: getEnvDurationMin("ENTRY_EXPIRATION_MIN", 180*time.Minute),

		TPSplits:          getEnvDecimalList("TP_SPLITS", []float64{50, 50}),
		TPSplitsAuto:      getEnvBool("TP_SPLITS_AUTO", false),
		FallbackTPPcts:    getEnvDecimalList("FALLBACK_TP_PCT", []float64{0.85, 1.65, 4.0}),
		InitialSLPct:      getEnvDecimal("INITIAL_SL_PCT", decimal.NewFromFloat(19.0)),
		MoveSLToBEOnTP1:   getEnvBool("MOVE_SL_TO_BE_ON_TP1", true),
		BEBufferPct:       getEnvDecimal("BE_BUFFER_PCT", decimal.NewFromFloat(0.15)),
		FollowTPEnabled:   getEnvBool("FOLLOW_TP_ENABLED", false),
		FollowTPBufferPct: getEnvDecimal("FOLLOW_TP_BUFFER_PCT", decimal.NewFromFloat(0.1)),
		MaxSLDistancePct:  getEnvDecimal("MAX_SL_DISTANCE_PCT", decimal.Zero),
		CapSLDistancePct:  getEnvDecimal("CAP_SL_DISTANCE_PCT", decimal.Zero),
		TrailAfterTPIndex: getEnvInt("TRAIL_AFTER_TP_INDEX", 3),
		TrailDistancePct:  getEnvDecimal("TRAIL_DISTANCE_PCT", decimal.NewFromFloat(2.0)),
		DCAQtyMults:       getEnvDecimalList("DCA_QTY_MULTS", []float64{1.5}),

		MaxAllowedLeg: getEnvInt("MAX_ALLOWED_LEG", 3),
		SwingLookback: getEnvInt("SWING_LOOKBACK", 5),
		TrendCandles:  getEnvInt("TREND_CANDLES", 200),

		BatchEnabled: getEnvBool("SIGNAL_BATCH_ENABLED", true),
		MaxPerBatch:  getEnvInt("MAX_SIGNALS_PER_BATCH", 1),

		PollInterval:         getEnvDurationSec("POLL_SECONDS", 15*time.Second),
		PollJitterMax:        getEnvDurationSec("POLL_JITTER_MAX", 5*time.Second),
		PollQuarterHour:      getEnvBool("POLL_QUARTER_HOUR", true),
		PollQuarterBuffer:    getEnvDurationSec("POLL_QUARTER_BUFFER_SEC", 3*time.Second),
		PendingMonitorEvery:  getEnvDurationSec("PENDING_MONITOR_INTERVAL_SEC", 5*time.Second),
		SignalUpdateInterval: getEnvDurationSec("SIGNAL_UPDATE_INTERVAL_SEC", 15*time.Second),

		TelegramToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		PnLAlertThresholds: getEnvIntList("POSITION_ALERT_THRESHOLDS", []int{25, 35, 50}),

		StateFile:  getEnv("STATE_FILE", "state.json"),
		JournalDSN: os.Getenv("JOURNAL_DSN"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}
	if cfg.ChannelID == "" {
		return nil, fmt.Errorf("CHANNEL_ID is required")
	}
	if !cfg.DryRun && (cfg.BybitAPIKey == "" || cfg.BybitAPISecret == "") {
		return nil, fmt.Errorf("BYBIT_API_KEY and BYBIT_API_SECRET are required for live trading")
	}

	// A zero interval would panic the monitor ticker.
	if cfg.PendingMonitorEvery <= 0 {
		log.Warn().Msg("⚠️ PENDING_MONITOR_INTERVAL_SEC must be positive, using 5s")
		cfg.PendingMonitorEvery = 5 * time.Second
	}

	// Splits over 100% are the one case we renormalize
	cfg.TPSplits = NormalizeSplits(cfg.TPSplits)

	// Follow-TP and TP-index trailing have overlapping stop-move triggers;
	// follow-TP wins when both are on.
	if cfg.FollowTPEnabled && cfg.TrailAfterTPIndex > 0 {
		log.Warn().Msg("⚠️ FOLLOW_TP_ENABLED and TRAIL_AFTER_TP_INDEX both set - follow-TP takes precedence")
	}

	return cfg, nil
}

// NormalizeSplits rescales a TP allocation to sum to 100 only when the raw
// sum exceeds 100. Sums below 100 are intentional (runner positions).
func NormalizeSplits(splits []decimal.Decimal) []decimal.Decimal {
	sum := decimal.Zero
	for _, s := range splits {
		sum = sum.Add(s)
	}
	hundred := decimal.NewFromInt(100)
	if sum.LessThanOrEqual(hundred) || sum.IsZero() {
		return splits
	}
	out := make([]decimal.Decimal, len(splits))
	for i, s := range splits {
		out[i] = s.Mul(hundred).Div(sum)
	}
	return out
}

// EntryExpiration returns how long a pending entry for this timeframe may
// wait for its trigger before being cancelled.
func (c *Config) EntryExpiration(timeframe string) time.Duration {
	switch strings.ToUpper(timeframe) {
	case "M15":
		return c.EntryExpirationM15
	case "H1":
		return c.EntryExpirationH1
	case "H4":
		return c.EntryExpirationH4
	}
	return c.EntryExpirationDefault
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDurationSec(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil && i >= 0 {
			return time.Duration(i) * time.Second
		}
	}
	return defaultValue
}

func getEnvDurationMin(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil && i >= 0 {
			return time.Duration(i) * time.Minute
		}
	}
	return defaultValue
}

func getEnvDecimalList(key string, defaults []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(defaults))
	if value := os.Getenv(key); value != "" {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if d, err := decimal.NewFromString(part); err == nil {
				out = append(out, d)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	for _, f := range defaults {
		out = append(out, decimal.NewFromFloat(f))
	}
	return out
}

func getEnvIntList(key string, defaults []int) []int {
	if value := os.Getenv(key); value != "" {
		var out []int
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if i, err := strconv.Atoi(part); err == nil {
				out = append(out, i)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaults
}
