package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// ErrPublish wraps per-message publish ack failures. The caller decides
// recovery: the ingest publisher logs and moves on, the candle emitter counts
// the failure and continues to the next sink.
var ErrPublish = errors.New("bus publish failed")

// jsAPI is the subset of nats.JetStreamContext the client uses. Narrowing the
// surface keeps the consumer bootstrap protocol testable without a server.
type jsAPI interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	ConsumerInfo(stream, name string, opts ...nats.JSOpt) (*nats.ConsumerInfo, error)
	AddConsumer(stream string, cfg *nats.ConsumerConfig, opts ...nats.JSOpt) (*nats.ConsumerInfo, error)
	DeleteConsumer(stream, consumer string, opts ...nats.JSOpt) error
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	PullSubscribe(subj, durable string, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// Client wraps a NATS connection with JetStream capabilities.
// Safe for concurrent use; the underlying clients are goroutine-safe.
type Client struct {
	nc *nats.Conn
	js jsAPI
}

// Connect dials the bus with bounded retry (attempts x fixed delay) and
// returns a handle with publish and admin capabilities.
func Connect(url, name string, attempts int, retryDelay time.Duration) (*Client, error) {
	if attempts < 1 {
		attempts = 1
	}

	var nc *nats.Conn
	var err error
	for i := 0; i < attempts; i++ {
		nc, err = nats.Connect(url,
			nats.Name(name),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err == nil {
			break
		}
		slog.Warn("bus connect failed", "url", url, "attempt", i+1, "err", err)
		time.Sleep(retryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("bus connect %s after %d attempts: %w", url, attempts, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	slog.Info("bus connected", "url", url, "name", name)
	return &Client{nc: nc, js: js}, nil
}

// EnsureStream idempotently ensures a stream exists with the pipeline's
// standard config: look up by name, create only if absent. All errors other
// than "not found" propagate.
func (c *Client) EnsureStream(name, subject string) error {
	return ensureStream(c.js, name, subject)
}

func ensureStream(js jsAPI, name, subject string) error {
	_, err := js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", name, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{subject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		Discard:   nats.DiscardOld,
		MaxMsgs:   -1,
		MaxBytes:  -1,
		MaxAge:    0,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", name, err)
	}
	slog.Info("stream created", "stream", name, "subject", subject)
	return nil
}

// PublishJSON publishes a JSON-encoded payload and waits for the stream ack.
func (c *Client) PublishJSON(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	if _, err := c.js.Publish(subject, data); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPublish, subject, err)
	}
	return nil
}

// Drain flushes outbound publishes and closes the connection.
func (c *Client) Drain() error {
	return c.nc.Drain()
}

// Close closes the connection without draining.
func (c *Client) Close() {
	c.nc.Close()
}
