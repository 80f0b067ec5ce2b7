package feeds

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/candree7-rgb/Zei/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SIGNAL PARSER
// ═══════════════════════════════════════════════════════════════════════════════

// SignalParser turns feed message text into signals. Each feed provider
// formats messages differently, so the concrete grammar is pluggable.
type SignalParser interface {
	// ParseAll extracts every signal in the message, in order.
	ParseAll(text, quote string) []*types.Signal

	// ParseUpdate extracts level changes or a cancel for an existing
	// trade. Returns nil when the message says nothing relevant.
	ParseUpdate(text, symbol string) *types.SignalUpdate
}

var parsers = map[string]func() SignalParser{
	"json": func() SignalParser { return &JSONParser{} },
}

// RegisterParser makes a parser constructor available by name.
func RegisterParser(name string, ctor func() SignalParser) {
	parsers[name] = ctor
}

// NewParser returns the named parser, falling back to the JSON parser.
func NewParser(name string) SignalParser {
	if ctor, ok := parsers[name]; ok {
		return ctor()
	}
	log.Warn().Str("parser", name).Msg("⚠️ Unknown parser, using json")
	return &JSONParser{}
}

// ═══════════════════════════════════════════════════════════════════════════════
// JSON BLOCK PARSER
// ═══════════════════════════════════════════════════════════════════════════════

// JSONParser reads signals published as JSON code blocks, one object per
// block:
//
//	{"symbol":"BTC","side":"buy","trigger":"64000",
//	 "tps":["65000","66000"],"sl":"63000","dcas":["63500"],"tf":"H1"}
//
// Updates reuse the shape with only the changed fields present.
type JSONParser struct{}

type jsonSignal struct {
	Symbol  string   `json:"symbol"`
	Side    string   `json:"side"`
	Trigger string   `json:"trigger"`
	TPs     []string `json:"tps"`
	SL      string   `json:"sl"`
	DCAs    []string `json:"dcas"`
	TF      string   `json:"tf"`
}

func (p *JSONParser) ParseAll(text, quote string) []*types.Signal {
	var signals []*types.Signal

	for _, block := range codeBlocks(text) {
		var raw jsonSignal
		if err := json.Unmarshal([]byte(block), &raw); err != nil {
			continue
		}
		if raw.Symbol == "" || raw.Trigger == "" {
			continue
		}

		side := types.SideBuy
		if strings.EqualFold(raw.Side, "sell") || strings.EqualFold(raw.Side, "short") {
			side = types.SideSell
		}

		trigger, err := decimal.NewFromString(raw.Trigger)
		if err != nil || trigger.LessThanOrEqual(decimal.Zero) {
			continue
		}

		sig := &types.Signal{
			Symbol:    normalizeSymbol(raw.Symbol, quote),
			Side:      side,
			Trigger:   trigger,
			Timeframe: strings.ToUpper(raw.TF),
			Raw:       block,
		}
		if raw.SL != "" {
			sig.StopLoss, _ = decimal.NewFromString(raw.SL)
		}
		sig.TakeProfits = parsePrices(raw.TPs)
		sig.DCAs = parsePrices(raw.DCAs)

		signals = append(signals, sig)
	}
	return signals
}

func (p *JSONParser) ParseUpdate(text, symbol string) *types.SignalUpdate {
	upper := strings.ToUpper(text)
	if strings.Contains(upper, "TRADE CANCELLED") || strings.Contains(upper, "CLOSED WITHOUT ENTRY") {
		return &types.SignalUpdate{Cancelled: true}
	}

	for _, block := range codeBlocks(text) {
		var raw jsonSignal
		if err := json.Unmarshal([]byte(block), &raw); err != nil {
			continue
		}
		if raw.Symbol != "" && !strings.EqualFold(stripQuote(symbol), raw.Symbol) {
			continue
		}

		update := &types.SignalUpdate{}
		changed := false
		if raw.SL != "" {
			if sl, err := decimal.NewFromString(raw.SL); err == nil {
				update.StopLoss = sl
				changed = true
			}
		}
		if len(raw.TPs) > 0 {
			update.TakeProfits = parsePrices(raw.TPs)
			changed = len(update.TakeProfits) > 0 || changed
		}
		if len(raw.DCAs) > 0 {
			update.DCAs = parsePrices(raw.DCAs)
			changed = len(update.DCAs) > 0 || changed
		}
		if changed {
			return update
		}
	}
	return nil
}

// codeBlocks returns the contents of every triple-backtick block, with a
// leading language tag stripped.
func codeBlocks(text string) []string {
	var blocks []string
	parts := strings.Split(text, "```")
	// Odd-indexed parts are inside fences.
	for i := 1; i < len(parts); i += 2 {
		block := parts[i]
		if nl := strings.IndexByte(block, '\n'); nl >= 0 {
			firstLine := strings.TrimSpace(block[:nl])
			if firstLine != "" && !strings.ContainsAny(firstLine, "{}") {
				block = block[nl+1:]
			}
		}
		block = strings.TrimSpace(block)
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

func parsePrices(raw []string) []decimal.Decimal {
	var prices []decimal.Decimal
	for _, s := range raw {
		p, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil || p.LessThanOrEqual(decimal.Zero) {
			continue
		}
		prices = append(prices, p)
	}
	return prices
}

// normalizeSymbol maps "BTC" or "btc/usdt" to an exchange symbol like
// "BTCUSDT".
func normalizeSymbol(symbol, quote string) string {
	s := strings.ToUpper(symbol)
	s = strings.NewReplacer("/", "", "-", "", "_", "", " ", "", "#", "", "$", "").Replace(s)
	if !strings.HasSuffix(s, quote) {
		s += quote
	}
	return s
}

func stripQuote(symbol string) string {
	for _, quote := range []string{"USDT", "USDC", "USD"} {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return strings.TrimSuffix(symbol, quote)
		}
	}
	return symbol
}
