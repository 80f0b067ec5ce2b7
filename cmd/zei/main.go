// Zei - Discord signal copy-trading bot for Bybit perpetuals
//
// Pipeline:
// 1. Poll a Discord channel for new signal messages
// 2. Parse, deduplicate and trend-score competing signals
// 3. Size the winners by fixed-fractional risk and place conditional entries
// 4. Manage each trade through fills, stop moves and exits
// 5. Persist state so restarts resume mid-trade
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/bot"
	"github.com/candree7-rgb/Zei/engine"
	"github.com/candree7-rgb/Zei/exchange"
	"github.com/candree7-rgb/Zei/feeds"
	"github.com/candree7-rgb/Zei/internal/config"
	"github.com/candree7-rgb/Zei/risk"
	"github.com/candree7-rgb/Zei/scorer"
	"github.com/candree7-rgb/Zei/state"
	"github.com/candree7-rgb/Zei/storage"
	"github.com/candree7-rgb/Zei/types"
)

const version = "1.2.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("quote", cfg.Quote).
		Bool("dry_run", cfg.DryRun).
		Msg("⚡ Zei starting...")

	// ====== CORE COMPONENTS ======

	bybitEnv := ""
	if cfg.BybitTestnet {
		bybitEnv = "testnet"
	} else if cfg.BybitDemo {
		bybitEnv = "demo"
	}

	// 1. Exchange client - paper in dry runs, live Bybit otherwise.
	// The paper client still reads live market data when keys exist.
	var ex exchange.Client
	var stream *exchange.ExecutionStream
	if cfg.DryRun {
		paper := exchange.NewPaperClient(decimal.NewFromInt(10000))
		paper.MarketData = exchange.NewBybitClient(cfg.BybitAPIKey, cfg.BybitAPISecret, bybitEnv, cfg.Category, cfg.RecvWindow)
		ex = paper
	} else {
		ex = exchange.NewBybitClient(cfg.BybitAPIKey, cfg.BybitAPISecret, bybitEnv, cfg.Category, cfg.RecvWindow)
		stream = exchange.NewExecutionStream(cfg.BybitAPIKey, cfg.BybitAPISecret, bybitEnv)
	}

	// 2. Discord signal feed
	feed := feeds.NewDiscordReader(cfg.DiscordToken, cfg.ChannelID)
	parser := feeds.NewParser(cfg.Parser)
	log.Info().Str("channel", cfg.ChannelID).Str("parser", cfg.Parser).Msg("📡 Signal feed ready")

	// 3. Trend scoring and risk sizing
	selector := scorer.NewSelector(ex, cfg.MaxAllowedLeg, cfg.SwingLookback, cfg.TrendCandles)
	sizer := risk.NewSizer(cfg.RiskPerTradePct, cfg.FixedLeverage, cfg.FixedRiskPct,
		cfg.MinLeverage, cfg.MaxLeverage)

	// 4. Persistent state
	store := state.NewStore(cfg.StateFile)

	// 5. Lifecycle engine
	eng := engine.NewEngine(cfg, ex, feed, parser, selector, sizer, store)

	// 6. Trade journal (optional)
	var journal *storage.Journal
	if cfg.JournalDSN != "" {
		journal, err = storage.NewJournal(cfg.JournalDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open trade journal")
		}
		eng.SetJournal(journal)
	}

	// ====== TELEGRAM BOT ======
	var telegramBot *bot.TelegramBot
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		telegramBot, err = bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, cfg.DryRun)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
		}
		telegramBot.SetStatsProvider(&statsProvider{eng: eng, ex: ex, journal: journal})
		eng.SetNotifier(telegramBot)
		telegramBot.Start()
	} else {
		log.Warn().Msg("⚠️ Telegram not configured, notifications disabled")
	}

	// ====== START ======
	if stream != nil {
		stream.OnExecution(eng.OnExecution)
		stream.Start()
	}
	eng.Start()

	log.Info().Msg("✅ All systems online")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 Received shutdown signal")
	log.Info().Msg("Shutting down...")

	if telegramBot != nil {
		telegramBot.Stop()
	}
	eng.Stop()
	if stream != nil {
		stream.Stop()
	}

	log.Info().Msg("👋 Goodbye!")
}

// statsProvider adapts the engine, exchange and journal to the bot's
// reporting interface.
type statsProvider struct {
	eng     *engine.Engine
	ex      exchange.Client
	journal *storage.Journal
}

func (p *statsProvider) ActivePositions() []*types.Trade {
	return p.eng.ActivePositions()
}

func (p *statsProvider) Equity() (decimal.Decimal, error) {
	return p.ex.Equity()
}

func (p *statsProvider) StatsSince(ts int64) (storage.Stats, error) {
	if p.journal == nil {
		return storage.Stats{}, nil
	}
	return p.journal.StatsSince(ts)
}
