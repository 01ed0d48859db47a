package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"equity-pipeline/internal/model"
)

// WSFeedConfig configures the WebSocket feed adapter.
type WSFeedConfig struct {
	// URL of the feed server, e.g. "ws://localhost:9001/ws".
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *WSFeedConfig) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// feedEnvelope is the wire frame the feed server sends: one print or quote
// per message, discriminated by Type.
type feedEnvelope struct {
	Type  string       `json:"type"` // "print" or "quote"
	Print *model.Print `json:"print,omitempty"`
	Quote *model.Quote `json:"quote,omitempty"`
}

// WSFeed connects to a JSON WebSocket feed and fires prints/quotes into the
// handler set. Reconnects automatically with exponential backoff.
type WSFeed struct {
	cfg WSFeedConfig

	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// Optional hook — called each time a reconnection happens.
	OnReconnect func()
}

// NewWSFeed creates the adapter. Returns an error if the URL is unparseable.
func NewWSFeed(cfg WSFeedConfig) (*WSFeed, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &WSFeed{cfg: cfg}, nil
}

// Name implements Adapter.
func (f *WSFeed) Name() string { return "wsfeed" }

// Start connects and streams events into the handlers until stopped. The
// returned stop function is idempotent and waits for the read loop to cease
// invoking handlers before returning.
func (f *WSFeed) Start(h Handlers) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.loop(ctx, h)
	}()

	stop := func() {
		f.stopOnce.Do(func() { f.cancel() })
		f.wg.Wait()
	}
	return stop, nil
}

func (f *WSFeed) loop(ctx context.Context, h Handlers) {
	delay := f.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := f.runOnce(ctx, h)
		if err == nil {
			// Context cancelled cleanly.
			return
		}

		slog.Warn("feed disconnected, reconnecting", "err", err, "delay", delay)
		if f.OnReconnect != nil {
			f.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > f.cfg.MaxReconnectDelay {
			delay = f.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// cancellation.
func (f *WSFeed) runOnce(ctx context.Context, h Handlers) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	slog.Info("feed connected", "url", f.cfg.URL)

	// Close the connection when the adapter is stopped so ReadMessage unblocks.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var env feedEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			slog.Warn("feed parse error", "err", err)
			continue
		}

		switch {
		case env.Type == "print" && env.Print != nil && h.OnTrade != nil:
			p := *env.Print
			p.IngestTS = time.Now().UnixMilli()
			h.OnTrade(p)
		case env.Type == "quote" && env.Quote != nil && h.OnQuote != nil:
			q := *env.Quote
			q.IngestTS = time.Now().UnixMilli()
			h.OnQuote(q)
		default:
			slog.Warn("feed skipping frame with unknown type", "type", env.Type)
		}
	}
}
