package engine

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/exchange"
	"github.com/candree7-rgb/Zei/feeds"
	"github.com/candree7-rgb/Zei/internal/config"
	"github.com/candree7-rgb/Zei/risk"
	"github.com/candree7-rgb/Zei/scorer"
	"github.com/candree7-rgb/Zei/state"
	"github.com/candree7-rgb/Zei/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE LIFECYCLE ENGINE
// ═══════════════════════════════════════════════════════════════════════════════
//
// Drives every trade from signal to close:
//   pending -> open -> closed
//   pending -> cancelled (expired, feed cancel, SL too far)
//   pending -> cancelled_past_tp (price ran past TP1 without filling)
//
// One mutex serializes the control loop, the execution stream callback
// and the pending-price monitor. All state mutations go through it.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	heartbeatEvery = 5 * time.Minute
	feedFetchLimit = 50
)

// FeedReader is the message source the engine polls.
type FeedReader interface {
	FetchAfter(cursor string, limit int) ([]feeds.Message, error)
	FetchMessage(id string) (*feeds.Message, error)
}

// Notifier receives trade lifecycle notifications. All methods must be
// non-blocking or fast; the engine calls them under its lock.
type Notifier interface {
	TradeOpened(t *types.Trade)
	TradeClosed(t *types.Trade, reason string)
	StopMoved(t *types.Trade, price decimal.Decimal, reason string)
	PnLAlert(t *types.Trade, threshold int, pnlPct decimal.Decimal)
}

// Journal records finished lifecycle transitions for later analysis.
type Journal interface {
	RecordOpen(t *types.Trade)
	RecordClose(t *types.Trade)
}

// Engine owns the bot state and runs the trade lifecycle.
type Engine struct {
	mu sync.Mutex

	cfg      *config.Config
	ex       exchange.Client
	feed     FeedReader
	parser   feeds.SignalParser
	selector *scorer.Selector
	sizer    *risk.Sizer
	store    *state.Store
	st       *state.BotState

	notifier Notifier
	journal  Journal

	running         bool
	stopCh          chan struct{}
	lastUpdateCheck time.Time
	lastStatsDay    string
}

// NewEngine creates the engine and loads persisted state.
func NewEngine(cfg *config.Config, ex exchange.Client, feed FeedReader, parser feeds.SignalParser,
	selector *scorer.Selector, sizer *risk.Sizer, store *state.Store) *Engine {

	return &Engine{
		cfg:      cfg,
		ex:       ex,
		feed:     feed,
		parser:   parser,
		selector: selector,
		sizer:    sizer,
		store:    store,
		st:       store.Load(),
		stopCh:   make(chan struct{}),
	}
}

// SetNotifier attaches a notifier. Call before Start.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// SetJournal attaches a trade journal. Call before Start.
func (e *Engine) SetJournal(j Journal) { e.journal = j }

// Start reconciles persisted state against the exchange and launches the
// control and pending-monitor loops.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true

	e.startupSync()
	e.persist()
	e.mu.Unlock()

	go e.runLoop()
	go e.pendingMonitorLoop()

	log.Info().Msg("🚀 Lifecycle engine started")
}

// Stop halts the loops and persists state.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	e.running = false
	close(e.stopCh)

	e.persist()
	log.Info().Msg("Lifecycle engine stopped")
}

// runLoop is the main control loop: maintenance, feed ingestion and
// batch selection on every cycle.
func (e *Engine) runLoop() {
	lastHeartbeat := time.Now()

	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		if time.Since(lastHeartbeat) >= heartbeatEvery {
			e.heartbeat()
			lastHeartbeat = time.Now()
		}

		e.runCycle()
		e.sleepUntilNextCycle()
	}
}

// runCycle performs one full pass under the engine lock.
func (e *Engine) runCycle() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelExpiredEntries()
	e.checkTPFillsFallback()
	e.reconcileOrphanedPositions()
	e.cleanupClosedTrades()
	e.checkPositionAlerts()

	if time.Since(e.lastUpdateCheck) >= e.cfg.SignalUpdateInterval {
		e.checkSignalUpdates()
		e.lastUpdateCheck = time.Now()
	}

	if day := state.DayKey(time.Now()); day != e.lastStatsDay {
		e.logDailyStats()
		e.lastStatsDay = day
	}

	e.ingestSignals()
	e.pollEntryFills()
	e.persist()
}

// ingestSignals fetches new feed messages, parses and selects signals
// and opens trades for the winners, respecting the safety caps.
func (e *Engine) ingestSignals() {
	msgs, err := e.feed.FetchAfter(e.st.LastFeedCursor, feedFetchLimit)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Feed fetch failed")
		return
	}
	if len(msgs) == 0 {
		return
	}

	now := time.Now()
	type candidate struct {
		sig   *types.Signal
		msgID string
	}
	var batch []candidate
	var signals []*types.Signal

	for _, msg := range msgs {
		e.st.LastFeedCursor = msg.ID

		if e.cfg.MaxSignalAge > 0 && msg.Timestamp > 0 {
			age := now.Sub(time.Unix(msg.Timestamp, 0))
			if age > e.cfg.MaxSignalAge {
				log.Debug().Str("msg_id", msg.ID).Dur("age", age).Msg("Stale message skipped")
				continue
			}
		}

		for _, sig := range e.parser.ParseAll(msg.Text, e.cfg.Quote) {
			batch = append(batch, candidate{sig: sig, msgID: msg.ID})
			signals = append(signals, sig)
		}
	}

	if len(signals) == 0 {
		return
	}

	maxCount := e.cfg.MaxPerBatch
	if !e.cfg.BatchEnabled {
		maxCount = len(signals)
	}
	selected := e.selector.Select(signals, e.st, maxCount)

	for _, sig := range selected {
		if !e.capsAllow() {
			log.Info().Msg("🛑 Trade caps reached, dropping remaining signals")
			break
		}
		msgID := ""
		for _, c := range batch {
			if c.sig == sig {
				msgID = c.msgID
				break
			}
		}
		if err := e.openTrade(sig, msgID); err != nil {
			log.Error().Err(err).Str("symbol", sig.Symbol).Msg("❌ Failed to open trade")
		}
	}
}

// capsAllow checks the concurrent and per-day trade limits.
func (e *Engine) capsAllow() bool {
	if len(e.st.ActiveTrades()) >= e.cfg.MaxConcurrentTrades {
		return false
	}
	if e.st.TradesToday() >= e.cfg.MaxTradesPerDay {
		return false
	}
	return true
}

// pendingMonitorLoop watches price against pending entries between
// control cycles: tracks the peak and cancels entries price ran past.
func (e *Engine) pendingMonitorLoop() {
	ticker := time.NewTicker(e.cfg.PendingMonitorEvery)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.mu.Lock()
			e.monitorPendingEntries()
			e.mu.Unlock()
		}
	}
}

// heartbeat logs a liveness line with the current book.
func (e *Engine) heartbeat() {
	e.mu.Lock()
	active := e.st.ActiveTrades()
	pending, open := 0, 0
	for _, t := range active {
		if t.Status == types.StatusPending {
			pending++
		} else {
			open++
		}
	}
	e.mu.Unlock()

	log.Info().
		Int("pending", pending).
		Int("open", open).
		Msg("💓 Heartbeat")
}

// sleepUntilNextCycle waits for the next poll; quarter-hour mode aligns
// to :00/:15/:30/:45 plus a small buffer, otherwise a jittered interval.
func (e *Engine) sleepUntilNextCycle() {
	var wait time.Duration
	if e.cfg.PollQuarterHour {
		now := time.Now()
		next := now.Truncate(15 * time.Minute).Add(15 * time.Minute).Add(e.cfg.PollQuarterBuffer)
		wait = next.Sub(now)
	} else {
		wait = e.cfg.PollInterval
		if e.cfg.PollJitterMax > 0 {
			wait += time.Duration(rand.Int63n(int64(e.cfg.PollJitterMax)))
		}
	}

	select {
	case <-e.stopCh:
	case <-time.After(wait):
	}
}

// ActivePositions returns a snapshot of the trades still being managed.
func (e *Engine) ActivePositions() []*types.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.ActiveTrades()
}

// persist writes state to disk. Callers hold the lock.
func (e *Engine) persist() {
	if err := e.store.Save(e.st); err != nil {
		log.Error().Err(err).Msg("❌ State save failed")
	}
}
