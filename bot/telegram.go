package bot

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/storage"
	"github.com/candree7-rgb/Zei/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Trade notifications & control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   💰 Trade notifications (entry/TP/SL/cancel)
//   🔒 Stop-move alerts
//   🚨 Position loss alerts
//   🎛️ Commands (/status, /positions, /stats)
//
// ═══════════════════════════════════════════════════════════════════════════════

// StatsProvider feeds the reporting commands.
type StatsProvider interface {
	ActivePositions() []*types.Trade
	Equity() (decimal.Decimal, error)
	StatsSince(ts int64) (storage.Stats, error)
}

// TelegramBot manages the Telegram interface. It implements the engine's
// Notifier interface.
type TelegramBot struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	chatID  int64
	dryRun  bool
	running bool
	stopCh  chan struct{}

	statsProvider StatsProvider
}

// NewTelegramBot creates a bot for the given token and chat.
func NewTelegramBot(token string, chatID int64, dryRun bool) (*TelegramBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	bot := &TelegramBot{
		api:    api,
		chatID: chatID,
		dryRun: dryRun,
		stopCh: make(chan struct{}),
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")

	return bot, nil
}

// SetStatsProvider attaches the data source for reporting commands.
func (b *TelegramBot) SetStatsProvider(p StatsProvider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statsProvider = p
}

// Start begins listening for commands
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopCh)
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// TradeOpened announces a filled entry.
func (b *TelegramBot) TradeOpened(t *types.Trade) {
	emoji := "🟢"
	if !t.Side.IsBuy() {
		emoji = "🔴"
	}

	tpStr := "—"
	if len(t.TakeProfits) > 0 {
		parts := make([]string, 0, len(t.TakeProfits))
		for _, tp := range t.TakeProfits {
			parts = append(parts, tp.String())
		}
		tpStr = strings.Join(parts, " / ")
	}

	msg := fmt.Sprintf(`%s *TRADE OPENED*

📊 *%s* — %s %s
━━━━━━━━━━━━━━━━
💵 Entry: *%s*
🎯 TP: *%s*
🛑 SL: *%s*
📦 Size: *%s* @ %sx
💸 Risk: *$%s*`,
		emoji,
		t.Symbol, strings.ToUpper(string(t.Side)), t.Timeframe,
		t.EntryPrice.String(),
		tpStr,
		t.StopLoss.String(),
		t.BaseQty.String(), t.Leverage.String(),
		t.RiskAmount.StringFixed(2),
	)

	b.sendMarkdown(msg)
}

// TradeClosed announces a terminal transition.
func (b *TelegramBot) TradeClosed(t *types.Trade, reason string) {
	var emoji, title string
	switch reason {
	case "take_profit":
		emoji, title = "💰", "TAKE PROFIT"
	case "stop_loss":
		emoji, title = "🛑", "STOPPED OUT"
	case "expired":
		emoji, title = "⌛", "ENTRY EXPIRED"
	case "past_tp":
		emoji, title = "🏃", "CANCELLED (RAN PAST TP)"
	case "feed_cancel", "sl_too_far":
		emoji, title = "🚫", "CANCELLED"
	default:
		emoji, title = "🏁", "TRADE CLOSED"
	}

	msg := fmt.Sprintf(`%s *%s*

📊 %s %s
🎯 TPs filled: *%d/%d*
📝 %s`,
		emoji, title,
		t.Symbol, strings.ToUpper(string(t.Side)),
		t.TPFills, len(t.TakeProfits),
		reason,
	)

	b.sendMarkdown(msg)
}

// StopMoved announces a stop change.
func (b *TelegramBot) StopMoved(t *types.Trade, price decimal.Decimal, reason string) {
	msg := fmt.Sprintf(`🔒 *STOP MOVED*

📊 %s
🛑 New stop: *%s*
📝 %s`,
		t.Symbol, price.String(), reason,
	)

	b.sendMarkdown(msg)
}

// PnLAlert warns about a position loss threshold crossing.
func (b *TelegramBot) PnLAlert(t *types.Trade, threshold int, pnlPct decimal.Decimal) {
	msg := fmt.Sprintf(`🚨 *POSITION ALERT*

📊 %s %s
📉 P&L: *%s%%* (threshold -%d%%)
🛑 SL: %s`,
		t.Symbol, strings.ToUpper(string(t.Side)),
		pnlPct.StringFixed(1), threshold,
		t.StopLoss.String(),
	)

	b.sendMarkdown(msg)
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != b.chatID {
				continue
			}

			b.handleCommand(update.Message)
		}
	}
}

func (b *TelegramBot) handleCommand(msg *tgbotapi.Message) {
	cmd := strings.ToLower(msg.Command())

	switch cmd {
	case "start", "help":
		b.cmdHelp()
	case "status":
		b.cmdStatus()
	case "positions":
		b.cmdPositions()
	case "stats":
		b.cmdStats()
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *TelegramBot) cmdHelp() {
	msg := `🤖 *COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Bot status and equity
💼 /positions — Active trades
📈 /stats — 7-day outcome summary
🏓 /ping — Test connection`

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdStatus() {
	mode := "LIVE"
	if b.dryRun {
		mode = "PAPER"
	}

	equityStr := "N/A"
	active := 0
	b.mu.RLock()
	provider := b.statsProvider
	b.mu.RUnlock()
	if provider != nil {
		if eq, err := provider.Equity(); err == nil {
			equityStr = "$" + eq.StringFixed(2)
		}
		active = len(provider.ActivePositions())
	}

	msg := fmt.Sprintf(`📊 *BOT STATUS*
━━━━━━━━━━━━━━━━━━━━

🟢 RUNNING
📊 Mode: *%s*
💰 Equity: *%s*
💼 Active trades: *%d*`, mode, equityStr, active)

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdPositions() {
	b.mu.RLock()
	provider := b.statsProvider
	b.mu.RUnlock()
	if provider == nil {
		b.send("❌ Positions not available")
		return
	}

	trades := provider.ActivePositions()
	if len(trades) == 0 {
		b.send("📭 No active trades")
		return
	}

	msg := "💼 *ACTIVE TRADES*\n━━━━━━━━━━━━━━━━━━━━\n\n"

	for i, t := range trades {
		sideEmoji := "🟢"
		if !t.Side.IsBuy() {
			sideEmoji = "🔴"
		}

		entry := t.EntryPrice
		status := string(t.Status)
		if t.Status == types.StatusPending {
			entry = t.Trigger
			status = "pending @ trigger"
		}

		msg += fmt.Sprintf(`%s *%s* — %s (%s)
💵 Entry: %s | 🛑 SL: %s
🎯 TPs filled: %d/%d

`,
			sideEmoji, t.Symbol, strings.ToUpper(string(t.Side)), status,
			entry.String(), t.StopLoss.String(),
			t.TPFills, len(t.TakeProfits),
		)

		if i >= 9 {
			msg += fmt.Sprintf("_... and %d more_", len(trades)-10)
			break
		}
	}

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdStats() {
	b.mu.RLock()
	provider := b.statsProvider
	b.mu.RUnlock()
	if provider == nil {
		b.send("❌ Stats not available")
		return
	}

	since := time.Now().AddDate(0, 0, -7).Unix()
	stats, err := provider.StatsSince(since)
	if err != nil {
		b.send("❌ Failed to fetch stats")
		return
	}

	winRate := float64(0)
	decided := stats.TakeProfits + stats.Stopped
	if decided > 0 {
		winRate = float64(stats.TakeProfits) / float64(decided) * 100
	}

	msg := fmt.Sprintf(`📈 *7-DAY STATS*
━━━━━━━━━━━━━━━━━━━━

📊 Closed trades: *%d*
💰 Take-profits: *%d*
🛑 Stopped out: *%d*
🚫 Cancelled: *%d*
📈 Win rate: *%.1f%%*`,
		stats.Total,
		stats.TakeProfits,
		stats.Stopped,
		stats.Cancelled,
		winRate,
	)

	b.sendMarkdown(msg)
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
