package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/candree7-rgb/Zei/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BOT STATE - Durable aggregate, rewritten atomically after every cycle
// ═══════════════════════════════════════════════════════════════════════════════

// maxSeenHashes bounds the dedupe history to the most recent entries.
const maxSeenHashes = 500

// BotState is the root persisted aggregate: the feed cursor, every tracked
// trade, daily counters and the signal dedupe history.
type BotState struct {
	LastFeedCursor   string                  `json:"last_feed_cursor"`
	OpenTrades       map[string]*types.Trade `json:"open_trades"`
	DailyCounts      map[string]int          `json:"daily_counts"`
	SeenSignalHashes []string                `json:"seen_signal_hashes"`
}

// NewBotState returns an empty default aggregate.
func NewBotState() *BotState {
	return &BotState{
		OpenTrades:       make(map[string]*types.Trade),
		DailyCounts:      make(map[string]int),
		SeenSignalHashes: []string{},
	}
}

// Seen reports whether a signal hash was already handled.
func (s *BotState) Seen(hash string) bool {
	for _, h := range s.SeenSignalHashes {
		if h == hash {
			return true
		}
	}
	return false
}

// MarkSeen records a signal hash, dropping the oldest entries beyond the cap.
func (s *BotState) MarkSeen(hash string) {
	s.SeenSignalHashes = append(s.SeenSignalHashes, hash)
	if n := len(s.SeenSignalHashes); n > maxSeenHashes {
		s.SeenSignalHashes = s.SeenSignalHashes[n-maxSeenHashes:]
	}
}

// ActiveTrades returns all pending/open trades.
func (s *BotState) ActiveTrades() []*types.Trade {
	var out []*types.Trade
	for _, tr := range s.OpenTrades {
		if tr.Active() {
			out = append(out, tr)
		}
	}
	return out
}

// TradesToday returns the count of trades opened on the current UTC day.
func (s *BotState) TradesToday() int {
	return s.DailyCounts[DayKey(time.Now())]
}

// IncTradesToday bumps the counter for the current UTC day.
func (s *BotState) IncTradesToday() {
	s.DailyCounts[DayKey(time.Now())]++
}

// DayKey returns the UTC yyyy-mm-dd key for daily counters.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ═══════════════════════════════════════════════════════════════════════════════
// STORE - Atomic whole-document persistence
// ═══════════════════════════════════════════════════════════════════════════════

// Store persists the BotState document to a single JSON file. Saves are
// atomic (write temp, rename) so a crash mid-write never corrupts the
// previous good copy.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted aggregate, returning a fresh default when the
// file is missing or unreadable.
func (st *Store) Load() *BotState {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", st.path).Msg("State unreadable, starting fresh")
		}
		return NewBotState()
	}

	s := NewBotState()
	if err := json.Unmarshal(data, s); err != nil {
		log.Warn().Err(err).Str("path", st.path).Msg("State corrupt, starting fresh")
		return NewBotState()
	}
	if s.OpenTrades == nil {
		s.OpenTrades = make(map[string]*types.Trade)
	}
	if s.DailyCounts == nil {
		s.DailyCounts = make(map[string]int)
	}
	return s
}

// Save writes the whole aggregate atomically.
func (st *Store) Save(s *BotState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	tmp := st.path + ".tmp"
	if dir := filepath.Dir(st.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, st.path)
}
