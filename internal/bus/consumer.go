package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
)

// DeliverPolicy is a durable consumer's initial cursor position.
type DeliverPolicy string

const (
	DeliverNew            DeliverPolicy = "new"
	DeliverAll            DeliverPolicy = "all"
	DeliverLast           DeliverPolicy = "last"
	DeliverLastPerSubject DeliverPolicy = "last_per_subject"
)

// ParseDeliverPolicy maps a config string to a DeliverPolicy.
// Unknown values fall back to "new".
func ParseDeliverPolicy(s string) DeliverPolicy {
	switch DeliverPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case DeliverAll:
		return DeliverAll
	case DeliverLast:
		return DeliverLast
	case DeliverLastPerSubject:
		return DeliverLastPerSubject
	case DeliverNew:
		return DeliverNew
	default:
		slog.Warn("unknown deliver policy, defaulting to new", "policy", s)
		return DeliverNew
	}
}

func (p DeliverPolicy) nats() nats.DeliverPolicy {
	switch p {
	case DeliverAll:
		return nats.DeliverAllPolicy
	case DeliverLast:
		return nats.DeliverLastPolicy
	case DeliverLastPerSubject:
		return nats.DeliverLastPerSubjectPolicy
	default:
		return nats.DeliverNewPolicy
	}
}

// consumerConflict reports whether a subscribe error indicates a durable whose
// server-side state disagrees with the requested subscription. These trigger
// the one-shot delete-and-retry path.
func consumerConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate subscription") ||
		strings.Contains(msg, "durable requires") ||
		strings.Contains(msg, "subject does not match consumer")
}

// EnsureDurableConsumer reconciles a named durable on a stream with the
// requested delivery policy. The durable is treated as a cache of policy
// state: on reset, or when the observed policy differs from the requested
// one, the consumer is deleted and recreated rather than mutated in place.
func (c *Client) EnsureDurableConsumer(stream, durable string, policy DeliverPolicy, reset bool) error {
	return ensureDurableConsumer(c.js, stream, durable, policy, reset)
}

func ensureDurableConsumer(js jsAPI, stream, durable string, policy DeliverPolicy, reset bool) error {
	if reset {
		if err := js.DeleteConsumer(stream, durable); err != nil && !errors.Is(err, nats.ErrConsumerNotFound) {
			return fmt.Errorf("reset consumer %s on %s: %w", durable, stream, err)
		}
		slog.Info("durable consumer reset", "stream", stream, "durable", durable)
	} else {
		info, err := js.ConsumerInfo(stream, durable)
		switch {
		case err == nil:
			if info.Config.DeliverPolicy == policy.nats() {
				return nil
			}
			slog.Info("durable consumer policy mismatch, recreating",
				"stream", stream, "durable", durable,
				"observed", info.Config.DeliverPolicy, "requested", string(policy))
			if err := js.DeleteConsumer(stream, durable); err != nil && !errors.Is(err, nats.ErrConsumerNotFound) {
				return fmt.Errorf("delete consumer %s on %s: %w", durable, stream, err)
			}
		case errors.Is(err, nats.ErrConsumerNotFound):
			// Absent — fall through and create.
		default:
			return fmt.Errorf("consumer info %s on %s: %w", durable, stream, err)
		}
	}

	_, err := js.AddConsumer(stream, &nats.ConsumerConfig{
		Durable:       durable,
		AckPolicy:     nats.AckExplicitPolicy,
		DeliverPolicy: policy.nats(),
	})
	if err != nil {
		return fmt.Errorf("add consumer %s on %s: %w", durable, stream, err)
	}
	slog.Info("durable consumer ready", "stream", stream, "durable", durable, "policy", string(policy))
	return nil
}

// SubscribeDurable binds a pull subscription to an existing durable. If the
// bus reports a consumer conflict, the durable is deleted, recreated with the
// requested policy, and the subscribe retried exactly once; a second failure
// is fatal to the caller.
func (c *Client) SubscribeDurable(stream, subject, durable string, policy DeliverPolicy) (*Subscription, error) {
	sub, err := pullSubscribe(c.js, stream, subject, durable, policy)
	if err != nil {
		return nil, err
	}
	return &Subscription{sub: sub}, nil
}

func pullSubscribe(js jsAPI, stream, subject, durable string, policy DeliverPolicy) (*nats.Subscription, error) {
	sub, err := js.PullSubscribe(subject, durable, nats.Bind(stream, durable))
	if err == nil {
		return sub, nil
	}
	if !consumerConflict(err) {
		return nil, fmt.Errorf("subscribe %s durable %s: %w", subject, durable, err)
	}

	slog.Warn("consumer conflict on subscribe, recreating durable",
		"stream", stream, "durable", durable, "err", err)
	if derr := js.DeleteConsumer(stream, durable); derr != nil && !errors.Is(derr, nats.ErrConsumerNotFound) {
		return nil, fmt.Errorf("delete conflicting consumer %s: %w", durable, derr)
	}
	// Recreate with the requested policy; a bare re-subscribe would leave the
	// driver to pick its own defaults for the fresh durable.
	if _, aerr := js.AddConsumer(stream, &nats.ConsumerConfig{
		Durable:       durable,
		AckPolicy:     nats.AckExplicitPolicy,
		DeliverPolicy: policy.nats(),
	}); aerr != nil {
		return nil, fmt.Errorf("recreate consumer %s on %s: %w", durable, stream, aerr)
	}
	sub, err = js.PullSubscribe(subject, durable, nats.Bind(stream, durable))
	if err != nil {
		return nil, fmt.Errorf("subscribe %s durable %s after reset: %w", subject, durable, err)
	}
	return sub, nil
}

// Subscription is a pull-style iterator over a durable's messages. The
// iterator only advances once the prior batch has been ack'd or term'd, so a
// slow consumer throttles the bus naturally.
type Subscription struct {
	sub *nats.Subscription
}

// Fetch pulls up to batch messages, waiting until the context expires.
// Returns an empty slice on fetch timeout.
func (s *Subscription) Fetch(ctx context.Context, batch int) ([]*Msg, error) {
	raw, err := s.sub.Fetch(batch, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
			return nil, nil
		}
		return nil, err
	}
	msgs := make([]*Msg, len(raw))
	for i, m := range raw {
		msgs[i] = &Msg{m: m}
	}
	return msgs, nil
}

// Unsubscribe detaches the subscription without touching the durable's
// server-side cursor.
func (s *Subscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

// Msg is one bus message with explicit acknowledgement control.
type Msg struct {
	m *nats.Msg
}

// Data returns the raw payload bytes.
func (m *Msg) Data() []byte { return m.m.Data }

// Ack acknowledges the message; the bus will not redeliver it.
func (m *Msg) Ack() error { return m.m.Ack() }

// Term permanently discards the message (poison pill); no redelivery.
func (m *Msg) Term() error { return m.m.Term() }
