package engine

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/exchange"
	"github.com/candree7-rgb/Zei/feeds"
	"github.com/candree7-rgb/Zei/internal/config"
	"github.com/candree7-rgb/Zei/risk"
	"github.com/candree7-rgb/Zei/scorer"
	"github.com/candree7-rgb/Zei/state"
	"github.com/candree7-rgb/Zei/types"
)

type fakeFeed struct {
	msgs []feeds.Message
	byID map[string]*feeds.Message
}

func (f *fakeFeed) FetchAfter(cursor string, limit int) ([]feeds.Message, error) {
	var out []feeds.Message
	for _, m := range f.msgs {
		if cursor == "" || m.ID > cursor {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeFeed) FetchMessage(id string) (*feeds.Message, error) {
	return f.byID[id], nil
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Quote:  "USDT",
		DryRun: true,

		RiskPerTradePct: d(2),
		FixedLeverage:   d(5),
		FixedRiskPct:    d(5),
		MinLeverage:     d(1),
		MaxLeverage:     d(50),

		MaxConcurrentTrades: 3,
		MaxTradesPerDay:     20,

		EntryExpirationM15:     30 * time.Minute,
		EntryExpirationH1:      120 * time.Minute,
		EntryExpirationH4:      480 * time.Minute,
		EntryExpirationDefault: 180 * time.Minute,

		TPSplits:          []decimal.Decimal{d(50), d(50)},
		FallbackTPPcts:    []decimal.Decimal{d(1), d(2), d(4)},
		MoveSLToBEOnTP1:   true,
		BEBufferPct:       d(0.15),
		FollowTPBufferPct: d(0.1),
		TrailAfterTPIndex: 3,
		TrailDistancePct:  d(2),
		DCAQtyMults:       []decimal.Decimal{d(1.5)},

		MaxAllowedLeg: 3,
		SwingLookback: 2,
		TrendCandles:  200,

		BatchEnabled: true,
		MaxPerBatch:  1,

		PendingMonitorEvery:  time.Second,
		SignalUpdateInterval: time.Second,

		StateFile: filepath.Join(t.TempDir(), "state.json"),
	}
}

func newTestEngine(t *testing.T, cfg *config.Config) (*Engine, *exchange.PaperClient, *fakeFeed) {
	paper := exchange.NewPaperClient(decimal.NewFromInt(1000))
	feed := &fakeFeed{byID: make(map[string]*feeds.Message)}
	parser := feeds.NewParser("json")
	selector := scorer.NewSelector(paper, cfg.MaxAllowedLeg, cfg.SwingLookback, cfg.TrendCandles)
	sizer := risk.NewSizer(cfg.RiskPerTradePct, cfg.FixedLeverage, cfg.FixedRiskPct,
		cfg.MinLeverage, cfg.MaxLeverage)
	store := state.NewStore(cfg.StateFile)

	return NewEngine(cfg, paper, feed, parser, selector, sizer, store), paper, feed
}

func testSignal() *types.Signal {
	return &types.Signal{
		Symbol:      "BTCUSDT",
		Side:        types.SideBuy,
		Trigger:     d(100),
		TakeProfits: []decimal.Decimal{d(110), d(120), d(130), d(140)},
		StopLoss:    d(95),
		Timeframe:   "H1",
	}
}

func onlyTrade(t *testing.T, e *Engine) *types.Trade {
	t.Helper()
	if len(e.st.OpenTrades) != 1 {
		t.Fatalf("expected exactly 1 trade, got %d", len(e.st.OpenTrades))
	}
	for _, tr := range e.st.OpenTrades {
		return tr
	}
	return nil
}

// fillEntry opens the trade via a simulated execution event.
func fillEntry(t *testing.T, e *Engine, paper *exchange.PaperClient, tr *types.Trade, price float64) {
	t.Helper()
	ev, ok := paper.Fill(tr.EntryOrderID, d(price), time.Now().UnixMilli())
	if !ok {
		t.Fatal("entry order not live")
	}
	e.OnExecution(ev)
	if tr.Status != types.StatusOpen {
		t.Fatalf("expected open after entry fill, got %s", tr.Status)
	}
}

func TestOpenTrade_RiskSizing(t *testing.T) {
	e, paper, _ := newTestEngine(t, testConfig(t))

	// 1000 equity at 2% risk with a 5% stop: qty 4, risk 20.
	if err := e.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr := onlyTrade(t, e)

	if tr.Status != types.StatusPending {
		t.Errorf("expected pending, got %s", tr.Status)
	}
	if !tr.BaseQty.Equal(d(4)) {
		t.Errorf("expected qty 4, got %s", tr.BaseQty)
	}
	if !tr.RiskAmount.Equal(d(20)) {
		t.Errorf("expected risk 20, got %s", tr.RiskAmount)
	}
	if !paper.HasOrder(tr.EntryOrderID) {
		t.Error("entry order missing on exchange")
	}
	if e.st.TradesToday() != 1 {
		t.Errorf("daily counter not bumped: %d", e.st.TradesToday())
	}
}

func TestEntryFill_PlacesProtectiveOrdersOnce(t *testing.T) {
	e, paper, _ := newTestEngine(t, testConfig(t))
	if err := e.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr := onlyTrade(t, e)

	entryID := tr.EntryOrderID
	fillEntry(t, e, paper, tr, 100)

	if !tr.PostOrdersPlaced {
		t.Fatal("post orders not placed")
	}
	if len(tr.TPOrderIDs) != 4 {
		t.Fatalf("expected 4 TP orders, got %d", len(tr.TPOrderIDs))
	}
	if stop, ok := paper.Stop("BTCUSDT"); !ok || !stop.Equal(d(95)) {
		t.Errorf("stop not set on exchange: %s", stop)
	}

	// A replayed fill event must not double the orders.
	before := len(tr.TPOrderIDs)
	e.OnExecution(exchange.ExecutionEvent{
		Symbol: "BTCUSDT", OrderID: entryID, Side: "Buy", Qty: d(4), Price: d(100),
	})
	if len(tr.TPOrderIDs) != before {
		t.Errorf("duplicate fill doubled TP orders: %d -> %d", before, len(tr.TPOrderIDs))
	}
}

func TestTPLadder_BreakEvenThenTrailingThenClose(t *testing.T) {
	e, paper, _ := newTestEngine(t, testConfig(t))
	if err := e.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr := onlyTrade(t, e)
	fillEntry(t, e, paper, tr, 100)

	// TP1: stop moves to break-even plus buffer, exactly once.
	ev, _ := paper.Fill(tr.TPOrderIDs[0], d(110), time.Now().UnixMilli())
	e.OnExecution(ev)
	if tr.TPFills != 1 || !tr.SLMovedToBE {
		t.Fatalf("TP1 accounting wrong: fills=%d be=%v", tr.TPFills, tr.SLMovedToBE)
	}
	be := d(100).Add(d(100).Mul(d(0.15)).Div(decimal.NewFromInt(100)))
	if !tr.StopLoss.Equal(be) {
		t.Errorf("expected stop at break-even %s, got %s", be, tr.StopLoss)
	}

	// Replaying TP1 changes nothing.
	e.handleTPFill(tr, 0, d(110))
	if tr.TPFills != 1 {
		t.Errorf("replayed TP fill advanced the counter: %d", tr.TPFills)
	}

	// TP2: no follow-TP, index below trailing threshold, stop unchanged.
	ev, _ = paper.Fill(tr.TPOrderIDs[1], d(120), time.Now().UnixMilli())
	e.OnExecution(ev)
	if !tr.StopLoss.Equal(be) || tr.TrailingActive {
		t.Errorf("TP2 should not touch the stop: sl=%s trailing=%v", tr.StopLoss, tr.TrailingActive)
	}

	// TP3 reaches the trailing threshold.
	ev, _ = paper.Fill(tr.TPOrderIDs[2], d(130), time.Now().UnixMilli())
	e.OnExecution(ev)
	if !tr.TrailingActive {
		t.Error("trailing not activated after TP3")
	}

	// Final TP closes the trade.
	ev, _ = paper.Fill(tr.TPOrderIDs[3], d(140), time.Now().UnixMilli())
	e.OnExecution(ev)
	if tr.Status != types.StatusClosed || tr.ExitReason != "take_profit" {
		t.Errorf("expected take_profit close, got %s/%s", tr.Status, tr.ExitReason)
	}
}

func TestFollowTP_LocksPreviousLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.FollowTPEnabled = true
	e, paper, _ := newTestEngine(t, cfg)

	if err := e.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr := onlyTrade(t, e)
	fillEntry(t, e, paper, tr, 100)

	ev, _ := paper.Fill(tr.TPOrderIDs[0], d(110), time.Now().UnixMilli())
	e.OnExecution(ev)
	ev, _ = paper.Fill(tr.TPOrderIDs[1], d(120), time.Now().UnixMilli())
	e.OnExecution(ev)

	// After TP2 the stop sits just under TP1 (110 minus 0.1% buffer).
	want := d(110).Sub(d(110).Mul(d(0.1)).Div(decimal.NewFromInt(100)))
	if !tr.StopLoss.Equal(want) {
		t.Errorf("expected follow-TP stop %s, got %s", want, tr.StopLoss)
	}

	// The stop never retreats.
	e.moveStop(tr, d(100), "test")
	if !tr.StopLoss.Equal(want) {
		t.Errorf("stop retreated to %s", tr.StopLoss)
	}
}

func TestCancelExpiredEntries(t *testing.T) {
	e, paper, _ := newTestEngine(t, testConfig(t))
	sig := testSignal()
	sig.Timeframe = "M15"
	if err := e.openTrade(sig, "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr := onlyTrade(t, e)

	// Within the window nothing happens.
	e.cancelExpiredEntries()
	if tr.Status != types.StatusPending {
		t.Fatalf("trade expired too early: %s", tr.Status)
	}

	tr.PlacedAt = time.Now().Add(-31 * time.Minute).Unix()
	e.cancelExpiredEntries()
	if tr.Status != types.StatusCancelled || tr.ExitReason != "expired" {
		t.Errorf("expected expired cancel, got %s/%s", tr.Status, tr.ExitReason)
	}
	if paper.HasOrder(tr.EntryOrderID) {
		t.Error("entry order still live after expiry")
	}
}

func TestMonitorPending_CancelsPastTP(t *testing.T) {
	e, paper, _ := newTestEngine(t, testConfig(t))
	if err := e.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr := onlyTrade(t, e)

	// Below TP1 the entry stays live and the peak is tracked.
	paper.SetPrice("BTCUSDT", d(108))
	e.monitorPendingEntries()
	if tr.Status != types.StatusPending || !tr.PeakPrice.Equal(d(108)) {
		t.Fatalf("peak tracking wrong: %s peak=%s", tr.Status, tr.PeakPrice)
	}

	// Price touches TP1 without triggering the entry.
	paper.SetPrice("BTCUSDT", d(110))
	e.monitorPendingEntries()
	if tr.Status != types.StatusCancelledPastTP || tr.ExitReason != "past_tp" {
		t.Errorf("expected past-TP cancel, got %s/%s", tr.Status, tr.ExitReason)
	}

	// A peak is remembered even when price later retreats.
	e2, paper2, _ := newTestEngine(t, testConfig(t))
	if err := e2.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr2 := onlyTrade(t, e2)
	paper2.SetPrice("BTCUSDT", d(111))
	e2.monitorPendingEntries()
	if tr2.Status != types.StatusCancelledPastTP {
		t.Errorf("expected cancel at peak above TP1, got %s", tr2.Status)
	}
}

func TestReconcileOrphanedPositions_Idempotent(t *testing.T) {
	e, paper, _ := newTestEngine(t, testConfig(t))
	if err := e.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr := onlyTrade(t, e)
	fillEntry(t, e, paper, tr, 100)

	// Position vanishes outside our control.
	if err := paper.MarketClose("BTCUSDT", types.SideBuy, tr.BaseQty); err != nil {
		t.Fatal(err)
	}

	e.reconcileOrphanedPositions()
	if tr.Status != types.StatusClosed || tr.ExitReason != "orphaned" {
		t.Fatalf("expected orphaned close, got %s/%s", tr.Status, tr.ExitReason)
	}

	// Running it again must change nothing.
	e.reconcileOrphanedPositions()
	if tr.ExitReason != "orphaned" {
		t.Errorf("second pass rewrote the exit reason: %s", tr.ExitReason)
	}

	e.cleanupClosedTrades()
	if len(e.st.OpenTrades) != 0 {
		t.Error("terminal trade not cleaned up")
	}
}

func TestApplyUpdate_Cancel(t *testing.T) {
	e, paper, _ := newTestEngine(t, testConfig(t))
	if err := e.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr := onlyTrade(t, e)

	e.applyUpdate(tr, &types.SignalUpdate{Cancelled: true})
	if tr.Status != types.StatusCancelled || tr.ExitReason != "feed_cancel" {
		t.Errorf("expected feed cancel, got %s/%s", tr.Status, tr.ExitReason)
	}
	if paper.HasOrder(tr.EntryOrderID) {
		t.Error("entry order still live after feed cancel")
	}

	// An already-open trade is flattened and ends cancelled too, not
	// closed: the provider retracted the signal, the trade never ran
	// its course.
	e2, paper2, _ := newTestEngine(t, testConfig(t))
	if err := e2.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr2 := onlyTrade(t, e2)
	fillEntry(t, e2, paper2, tr2, 100)

	e2.applyUpdate(tr2, &types.SignalUpdate{Cancelled: true})
	if tr2.Status != types.StatusCancelled || tr2.ExitReason != "feed_cancel" {
		t.Errorf("expected cancelled/feed_cancel for open trade, got %s/%s", tr2.Status, tr2.ExitReason)
	}
	if pos, _ := paper2.Position("BTCUSDT"); !pos.Size.IsZero() {
		t.Errorf("position not flattened: %s", pos.Size)
	}
	for _, id := range tr2.TPOrderIDs {
		if paper2.HasOrder(id) {
			t.Error("leftover TP order still live after feed cancel")
		}
	}
}

// cancelFailClient simulates an exchange whose cancel endpoint is down.
type cancelFailClient struct {
	*exchange.PaperClient
}

func (c *cancelFailClient) CancelOrder(symbol, orderID string) error {
	return errors.New("exchange unavailable")
}

func TestCancelEntry_AdvancesStatusOnCancelFailure(t *testing.T) {
	cfg := testConfig(t)
	paper := exchange.NewPaperClient(decimal.NewFromInt(1000))
	feed := &fakeFeed{byID: make(map[string]*feeds.Message)}
	parser := feeds.NewParser("json")
	selector := scorer.NewSelector(paper, cfg.MaxAllowedLeg, cfg.SwingLookback, cfg.TrendCandles)
	sizer := risk.NewSizer(cfg.RiskPerTradePct, cfg.FixedLeverage, cfg.FixedRiskPct,
		cfg.MinLeverage, cfg.MaxLeverage)
	store := state.NewStore(cfg.StateFile)
	e := NewEngine(cfg, &cancelFailClient{paper}, feed, parser, selector, sizer, store)

	if err := e.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr := onlyTrade(t, e)

	// The cancel call fails but the trade still reaches its terminal
	// status, otherwise it would sit pending forever.
	e.cancelEntry(tr, types.StatusCancelled, "expired")
	if tr.Status != types.StatusCancelled || tr.ExitReason != "expired" {
		t.Errorf("cancel failure left trade in %s/%s", tr.Status, tr.ExitReason)
	}
}

func TestTPAllocationFixedOncePlaced(t *testing.T) {
	cfg := testConfig(t)
	e, paper, _ := newTestEngine(t, cfg)
	if err := e.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr := onlyTrade(t, e)
	fillEntry(t, e, paper, tr, 100)

	// Four TPs with a two-way configured split fall back to even 25s,
	// snapshotted onto the trade at placement.
	if len(tr.TPSplits) != 4 || !tr.TPSplits[0].Equal(d(25)) {
		t.Fatalf("allocation not snapshotted: %v", tr.TPSplits)
	}

	ev, _ := paper.Fill(tr.TPOrderIDs[0], d(110), time.Now().UnixMilli())
	e.OnExecution(ev)
	want := e.expectedRemaining(tr)

	// A config change after placement must not shift the placed trade's
	// leg accounting.
	cfg.TPSplits = []decimal.Decimal{d(10), d(10), d(10), d(70)}
	cfg.TPSplitsAuto = false
	if got := e.expectedRemaining(tr); !got.Equal(want) {
		t.Errorf("config change shifted remaining: %s -> %s", want, got)
	}
	if !tr.TPSplits[0].Equal(d(25)) {
		t.Errorf("snapshot mutated: %v", tr.TPSplits)
	}
}

func TestApplyUpdate_StopDistanceCaps(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxSLDistancePct = d(10)
	e, _, _ := newTestEngine(t, cfg)
	if err := e.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr := onlyTrade(t, e)

	// 15% away breaches the hard cap: the pending entry is cancelled.
	e.applyUpdate(tr, &types.SignalUpdate{StopLoss: d(85)})
	if tr.Status != types.StatusCancelled || tr.ExitReason != "sl_too_far" {
		t.Fatalf("expected sl_too_far cancel, got %s/%s", tr.Status, tr.ExitReason)
	}

	// An open trade is too risky to keep: flatten and cancel, and never
	// place a stop order at the wider price.
	e2, paper2, _ := newTestEngine(t, cfg)
	if err := e2.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr2 := onlyTrade(t, e2)
	fillEntry(t, e2, paper2, tr2, 100)

	e2.applyUpdate(tr2, &types.SignalUpdate{StopLoss: d(85)})
	if tr2.Status != types.StatusCancelled || tr2.ExitReason != "sl_too_far" {
		t.Errorf("expected sl_too_far cancel for open trade, got %s/%s", tr2.Status, tr2.ExitReason)
	}
	if pos, err := paper2.Position("BTCUSDT"); err != nil || !pos.Size.IsZero() {
		t.Errorf("position not flattened: %s", pos.Size)
	}
	if stop, _ := paper2.Stop("BTCUSDT"); stop.Equal(d(85)) {
		t.Error("stop order placed at the rejected price")
	}

	// The soft cap clamps instead of rejecting.
	cfg3 := testConfig(t)
	cfg3.CapSLDistancePct = d(10)
	e3, paper3, _ := newTestEngine(t, cfg3)
	if err := e3.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr3 := onlyTrade(t, e3)
	fillEntry(t, e3, paper3, tr3, 100)

	e3.applyUpdate(tr3, &types.SignalUpdate{StopLoss: d(85)})
	if !tr3.StopLoss.Equal(d(90)) {
		t.Errorf("expected stop clamped to 90, got %s", tr3.StopLoss)
	}
}

func TestIngestSignals_BatchSelectionAndDedupe(t *testing.T) {
	e, paper, feed := newTestEngine(t, testConfig(t))

	// Seed tradable uptrend structure for the symbol.
	paper.SetCandles("AAAUSDT", zigzagCandles(100, 20, -10, 20, -10, 20, -10, 4))

	msg := feeds.Message{
		ID: "100",
		Text: "```json\n" +
			`{"symbol":"AAA","side":"buy","trigger":"134","tps":["144","154"],"sl":"129","tf":"H1"}` +
			"\n```",
		Timestamp: time.Now().Unix(),
	}
	feed.msgs = []feeds.Message{msg}

	e.ingestSignals()
	tr := onlyTrade(t, e)
	if tr.Symbol != "AAAUSDT" || tr.Status != types.StatusPending {
		t.Fatalf("unexpected trade: %s %s", tr.Symbol, tr.Status)
	}
	if e.st.LastFeedCursor != "100" {
		t.Errorf("cursor not advanced: %q", e.st.LastFeedCursor)
	}

	// The same message replayed with a new ID is deduplicated by hash.
	msg.ID = "101"
	feed.msgs = append(feed.msgs, msg)
	e.ingestSignals()
	if len(e.st.OpenTrades) != 1 {
		t.Errorf("duplicate signal opened a second trade: %d", len(e.st.OpenTrades))
	}
}

func TestCapsAllow(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxConcurrentTrades = 1
	e, _, _ := newTestEngine(t, cfg)

	if !e.capsAllow() {
		t.Fatal("caps should allow with empty book")
	}
	if err := e.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	if e.capsAllow() {
		t.Error("concurrent cap not enforced")
	}

	cfg2 := testConfig(t)
	cfg2.MaxTradesPerDay = 1
	e2, _, _ := newTestEngine(t, cfg2)
	if err := e2.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	e2.st.OpenTrades = map[string]*types.Trade{} // book empty, daily count stands
	if e2.capsAllow() {
		t.Error("daily cap not enforced")
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	e, paper, _ := newTestEngine(t, cfg)
	if err := e.openTrade(testSignal(), "msg-1"); err != nil {
		t.Fatal(err)
	}
	tr := onlyTrade(t, e)
	fillEntry(t, e, paper, tr, 100)
	e.persist()

	// Rebuild the engine from the same state file; the open position
	// still exists on the exchange, so the trade survives the sync.
	store := state.NewStore(cfg.StateFile)
	feed := &fakeFeed{byID: make(map[string]*feeds.Message)}
	parser := feeds.NewParser("json")
	selector := scorer.NewSelector(paper, 3, 2, 200)
	sizer := risk.NewSizer(d(2), d(5), d(5), d(1), d(50))
	e2 := NewEngine(cfg, paper, feed, parser, selector, sizer, store)

	e2.startupSync()
	tr2 := onlyTrade(t, e2)
	if tr2.Status != types.StatusOpen || tr2.TPFills != tr.TPFills {
		t.Errorf("trade not restored: %s", tr2.Status)
	}

	// With the position gone, a restart closes the trade.
	if err := paper.MarketClose("BTCUSDT", types.SideBuy, tr.BaseQty); err != nil {
		t.Fatal(err)
	}
	e3 := NewEngine(cfg, paper, feed, parser, selector, sizer, state.NewStore(cfg.StateFile))
	e3.startupSync()
	tr3 := onlyTrade(t, e3)
	if tr3.Status != types.StatusClosed {
		t.Errorf("expected close on restart without position, got %s", tr3.Status)
	}
}

func TestDailyStatsKeyedByUTCDay(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig(t))

	e.runCycle()
	today := state.DayKey(time.Now())
	if e.lastStatsDay != today {
		t.Fatalf("stats marker = %q, want %q", e.lastStatsDay, today)
	}

	// Within the same UTC day the marker stays put; a stale marker from
	// a previous day rolls forward.
	e.runCycle()
	if e.lastStatsDay != today {
		t.Errorf("marker moved within the same day: %q", e.lastStatsDay)
	}
	e.lastStatsDay = "2000-01-01"
	e.runCycle()
	if e.lastStatsDay != today {
		t.Errorf("stale marker not rolled forward: %q", e.lastStatsDay)
	}
}

func TestSplitsForTPs(t *testing.T) {
	cfg := testConfig(t)

	// Matching count uses the configured allocation.
	got := splitsForTPs(2, cfg)
	if len(got) != 2 || !got[0].Equal(d(50)) {
		t.Errorf("expected configured splits, got %v", got)
	}

	// Mismatched count falls back to even splits.
	got = splitsForTPs(4, cfg)
	if len(got) != 4 || !got[0].Equal(d(25)) {
		t.Errorf("expected even 25%% splits, got %v", got)
	}

	if splitsForTPs(0, cfg) != nil {
		t.Error("expected nil for zero TPs")
	}
}

// zigzagCandles builds a price path stepping 2.0 per candle, newest first.
func zigzagCandles(start float64, moves ...float64) []types.Candle {
	vals := []float64{start}
	cur := start
	for _, m := range moves {
		step := 2.0
		if m < 0 {
			step = -2.0
		}
		for i := 0; i < int(math.Abs(m)/2); i++ {
			cur += step
			vals = append(vals, cur)
		}
	}

	candles := make([]types.Candle, len(vals))
	for i, v := range vals {
		p := decimal.NewFromFloat(v)
		candles[len(vals)-1-i] = types.Candle{
			Open: p, High: p.Add(decimal.NewFromInt(1)), Low: p.Sub(decimal.NewFromInt(1)),
			Close: p, Timestamp: int64(i),
		}
	}
	return candles
}
