package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BYBIT PRIVATE EXECUTION STREAM
// ═══════════════════════════════════════════════════════════════════════════════
//
// Connects to the Bybit v5 private WebSocket for real-time fill events
// Authenticates with HMAC, subscribes to the execution topic
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	BybitPrivateWS        = "wss://stream.bybit.com/v5/private"
	BybitPrivateWSTestnet = "wss://stream-testnet.bybit.com/v5/private"
	BybitPrivateWSDemo    = "wss://stream-demo.bybit.com/v5/private"

	reconnectDelay = 5 * time.Second
	pingInterval   = 20 * time.Second
	authExpiryMs   = 10000
)

// ExecutionHandler receives fill events from the stream.
type ExecutionHandler func(ExecutionEvent)

// ExecutionStream maintains the private WebSocket and forwards fills.
type ExecutionStream struct {
	mu sync.RWMutex

	wsURL     string
	apiKey    string
	apiSecret string
	conn      *websocket.Conn
	connected bool
	running   bool
	stopCh    chan struct{}

	handler ExecutionHandler
}

// NewExecutionStream creates a stream for the given host environment.
func NewExecutionStream(apiKey, apiSecret, env string) *ExecutionStream {
	wsURL := BybitPrivateWS
	switch env {
	case "testnet":
		wsURL = BybitPrivateWSTestnet
	case "demo":
		wsURL = BybitPrivateWSDemo
	}

	return &ExecutionStream{
		wsURL:     wsURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		stopCh:    make(chan struct{}),
	}
}

// OnExecution registers the fill handler. Must be set before Start.
func (s *ExecutionStream) OnExecution(handler ExecutionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Start connects and begins processing
func (s *ExecutionStream) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.connectionLoop()
	log.Info().Msg("📡 Execution stream started")
}

// Stop closes the connection
func (s *ExecutionStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	close(s.stopCh)

	if s.conn != nil {
		s.conn.Close()
	}

	log.Info().Msg("Execution stream stopped")
}

// connectionLoop maintains the WebSocket connection
func (s *ExecutionStream) connectionLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if err := s.connect(); err != nil {
			log.Error().Err(err).Msg("Stream connection failed, retrying...")
			time.Sleep(reconnectDelay)
			continue
		}

		s.readLoop()
		time.Sleep(reconnectDelay)
	}
}

// connect dials, authenticates and subscribes to executions
func (s *ExecutionStream) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
	if err != nil {
		return err
	}

	expires := time.Now().UnixMilli() + authExpiryMs
	mac := hmac.New(sha256.New, []byte(s.apiSecret))
	mac.Write([]byte(fmt.Sprintf("GET/realtime%d", expires)))
	signature := hex.EncodeToString(mac.Sum(nil))

	auth := map[string]interface{}{
		"op":   "auth",
		"args": []interface{}{s.apiKey, expires, signature},
	}
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return err
	}

	sub := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{"execution"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	log.Info().Msg("🔌 Execution stream connected")

	go s.pingLoop()

	return nil
}

// pingLoop sends periodic pings to keep connection alive
func (s *ExecutionStream) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			connected := s.connected
			s.mu.RUnlock()

			if connected && conn != nil {
				conn.WriteJSON(map[string]string{"op": "ping"})
			}
		}
	}
}

// readLoop reads messages from WebSocket
func (s *ExecutionStream) readLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("Stream read error")
			s.mu.Lock()
			s.connected = false
			s.mu.Unlock()
			return
		}

		s.processMessage(message)
	}
}

// wsExecution is a single fill record from the execution topic
type wsExecution struct {
	Symbol    string `json:"symbol"`
	OrderID   string `json:"orderId"`
	Side      string `json:"side"`
	ExecQty   string `json:"execQty"`
	ExecPrice string `json:"execPrice"`
	ExecTime  string `json:"execTime"`
	ClosedPnl string `json:"closedPnl"`
	ExecType  string `json:"execType"`
}

// processMessage handles incoming WebSocket messages
func (s *ExecutionStream) processMessage(data []byte) {
	var msg struct {
		Op      string        `json:"op"`
		Success *bool         `json:"success"`
		Topic   string        `json:"topic"`
		Data    []wsExecution `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	if msg.Success != nil && !*msg.Success {
		log.Warn().Str("op", msg.Op).RawJSON("msg", data).Msg("⚠️ Stream op rejected")
		return
	}
	if msg.Topic != "execution" {
		return
	}

	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()
	if handler == nil {
		return
	}

	for _, exec := range msg.Data {
		// Only trade fills matter, not funding or settlement records.
		if exec.ExecType != "" && exec.ExecType != "Trade" {
			continue
		}

		qty, _ := decimal.NewFromString(exec.ExecQty)
		price, _ := decimal.NewFromString(exec.ExecPrice)
		ts, _ := strconv.ParseInt(exec.ExecTime, 10, 64)

		handler(ExecutionEvent{
			Symbol:    exec.Symbol,
			OrderID:   exec.OrderID,
			Side:      exec.Side,
			Qty:       qty,
			Price:     price,
			Closed:    exec.ClosedPnl != "" && exec.ClosedPnl != "0",
			Timestamp: ts,
		})
	}
}
