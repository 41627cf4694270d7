// Package bus carries flow messages over Redis pub/sub. Inbound messages on
// a node's input channel are dispatched to the node; a node's outputs are
// published to its output channel.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/logging"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/models"
)

// Dispatcher hands a message to a node.
type Dispatcher interface {
	Dispatch(ctx context.Context, nodeID string, msg models.Message) error
}

// Bus publishes node outputs and routes subscribed channels to nodes.
type Bus struct {
	client *redis.Client
	logger *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// New creates a Bus over client.
func New(client *redis.Client, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{client: client, logger: logger.Named("bus")}
}

// Send publishes each message as JSON to channel, in order.
func (b *Bus) Send(ctx context.Context, channel string, msgs []models.Message) error {
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode message for %s: %w", channel, err)
		}
		if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
			return fmt.Errorf("publish to %s: %w", channel, err)
		}
	}
	return nil
}

// Subscribe listens on every channel in routes and dispatches each message to
// the nodes listed for its channel. It returns once the subscription is
// confirmed; messages are handled until Close.
func (b *Bus) Subscribe(ctx context.Context, routes map[string][]string, d Dispatcher) error {
	if len(routes) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return errors.New("bus is already subscribed")
	}

	channels := make([]string, 0, len(routes))
	for ch := range routes {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	ps := b.client.Subscribe(ctx, channels...)
	// Wait for the confirmation so messages published right after are not lost.
	for range channels {
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return fmt.Errorf("subscribe to %v: %w", channels, err)
		}
	}

	b.pubsub = ps
	b.done = make(chan struct{})
	go b.listen(context.WithoutCancel(ctx), ps.Channel(), routes, d)

	b.logger.Info("subscribed to input channels", zap.Strings("channels", channels))
	return nil
}

func (b *Bus) listen(ctx context.Context, ch <-chan *redis.Message, routes map[string][]string, d Dispatcher) {
	defer close(b.done)
	for m := range ch {
		b.deliver(ctx, m, routes[m.Channel], d)
	}
}

func (b *Bus) deliver(ctx context.Context, m *redis.Message, nodeIDs []string, d Dispatcher) {
	msg, err := models.ParseMessage([]byte(m.Payload))
	if err != nil {
		b.logger.Warn("dropping invalid message",
			zap.String("channel", m.Channel),
			zap.String("payload", logging.TruncateString(m.Payload, logging.MaxQueryLogLength)),
			zap.Error(err))
		return
	}

	for i, id := range nodeIDs {
		out := msg
		if i > 0 {
			out = msg.Clone()
		}
		if err := d.Dispatch(ctx, id, out); err != nil {
			b.logger.Error("failed to dispatch message",
				zap.String("channel", m.Channel),
				zap.String("node", id),
				zap.Error(err))
		}
	}
}

// Close ends the subscription and waits for the listener to stop. The Redis
// client is left open for the caller to close.
func (b *Bus) Close() error {
	b.mu.Lock()
	ps, done := b.pubsub, b.done
	b.pubsub = nil
	b.mu.Unlock()

	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}
