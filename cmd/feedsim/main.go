// cmd/feedsim — Demo WebSocket feed server.
// Broadcasts simulated prints and quotes for testing ingestd's wsfeed adapter
// without a real venue connection.
//
// Frame shape matches the wsfeed envelope:
//
//	{"type":"print","print":{"underlying_id":"AAPL","ts":...,"seq":...,"price":...,"size":...,"exchange":"Q"}}
//	{"type":"quote","quote":{"underlying_id":"AAPL","ts":...,"seq":...,"bid":...,"ask":...,"exchange":"Q"}}
//
// Config (env vars):
//
//	FEED_ADDR         — listen address (default: ":9001")
//	FEED_SYMBOLS      — comma-separated symbols (default: "AAPL,MSFT,SPY")
//	EMIT_INTERVAL_MS  — broadcast interval milliseconds (default: "100")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"equity-pipeline/internal/model"
)

// envelope mirrors the wsfeed adapter's wire frame.
type envelope struct {
	Type  string       `json:"type"`
	Print *model.Print `json:"print,omitempty"`
	Quote *model.Quote `json:"quote,omitempty"`
}

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol string
	Price  float64
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop frame
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[feedsim] upgrade error: %v", err)
			return
		}
		log.Printf("[feedsim] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[feedsim] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump: sends frames to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Event generator ─────────────────────────────────────────────────────────

// venues weighted toward lit exchanges; "D" produces off-exchange prints
// downstream.
var venues = []string{"Q", "Q", "N", "P", "D"}

// walkPrice applies a tiny random walk (±0.1%) to simulate price movement.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	next := price * (1 + pct)
	if next < 0.01 {
		next = 0.01
	}
	return next
}

func runGenerator(h *hub, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	var seq int64
	for range ticker.C {
		now := time.Now().UnixMilli()
		for i := range instruments {
			instruments[i].Price = walkPrice(instruments[i].Price)
			seq++

			broadcastJSON(h, envelope{
				Type: "print",
				Print: &model.Print{
					UnderlyingID: instruments[i].Symbol,
					TS:           now,
					Seq:          seq,
					SourceTS:     now,
					Price:        round2(instruments[i].Price),
					Size:         int64(rand.Intn(500) + 1),
					Exchange:     venues[rand.Intn(len(venues))],
				},
			})

			// A quote roughly every other print keeps the quote path exercised.
			if rand.Intn(2) == 0 {
				seq++
				spread := instruments[i].Price * 0.0005
				broadcastJSON(h, envelope{
					Type: "quote",
					Quote: &model.Quote{
						UnderlyingID: instruments[i].Symbol,
						TS:           now,
						Seq:          seq,
						SourceTS:     now,
						Bid:          round2(instruments[i].Price - spread),
						Ask:          round2(instruments[i].Price + spread),
						Exchange:     "Q",
					},
				})
			}
		}
	}
}

func broadcastJSON(h *hub, env envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.broadcast(b)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedsim] starting demo feed server...")

	addr := envOrDefault("FEED_ADDR", ":9001")
	symbolsEnv := envOrDefault("FEED_SYMBOLS", "AAPL,MSFT,SPY")
	intervalMs := envIntOrDefault("EMIT_INTERVAL_MS", 100)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[feedsim] no symbols configured via FEED_SYMBOLS")
	}
	log.Printf("[feedsim] symbols: %+v", instruments)
	log.Printf("[feedsim] broadcast interval: %dms", intervalMs)

	h := newHub()
	go runGenerator(h, instruments, intervalMs)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})

	log.Printf("[feedsim] listening on %s (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[feedsim] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) []instrument {
	startPrices := map[string]float64{
		"AAPL": 187.50,
		"MSFT": 415.20,
		"SPY":  545.80,
		"TSLA": 242.10,
	}

	var result []instrument
	for _, part := range strings.Split(s, ",") {
		sym := strings.ToUpper(strings.TrimSpace(part))
		if sym == "" {
			continue
		}
		price := startPrices[sym]
		if price == 0 {
			price = 100.00
		}
		result = append(result, instrument{Symbol: sym, Price: price})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
