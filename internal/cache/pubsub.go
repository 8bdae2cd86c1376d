package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/token2022-amm/internal/constants"
	"github.com/aman-zulfiqar/token2022-amm/internal/models"
	"github.com/aman-zulfiqar/token2022-amm/internal/storage"
)

// PubSubManager fans pool events out over Redis Pub/Sub.
type PubSubManager struct {
	client *redis.Client
	logger *logrus.Logger
}

var _ storage.EventSink = (*PubSubManager)(nil)

func NewPubSubManager(client *redis.Client, logger *logrus.Logger) *PubSubManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &PubSubManager{client: client, logger: logger}
}

// EventChannels lists the channels an event is published on.
func EventChannels(ev *models.PoolEvent) []string {
	return []string{
		constants.PubSubChannelEvents,               // All events
		constants.PubSubPoolChannelPrefix + ev.Pool, // Pool-specific
		constants.PubSubKindChannelPrefix + ev.Kind, // Kind-specific
	}
}

// PublishEvent publishes ev to every channel in EventChannels.
func (p *PubSubManager) PublishEvent(ctx context.Context, ev *models.PoolEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pipe := p.client.Pipeline()
	for _, channel := range EventChannels(ev) {
		pipe.Publish(ctx, channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe delivers events from channel to handler until ctx is done.
func (p *PubSubManager) Subscribe(ctx context.Context, channel string, handler storage.EventHandler) error {
	return p.consume(ctx, p.client.Subscribe(ctx, channel), channel, handler)
}

// PSubscribe is Subscribe for a channel pattern (e.g. "amm:events:pool:*").
func (p *PubSubManager) PSubscribe(ctx context.Context, pattern string, handler storage.EventHandler) error {
	return p.consume(ctx, p.client.PSubscribe(ctx, pattern), pattern, handler)
}

func (p *PubSubManager) consume(ctx context.Context, sub *redis.PubSub, name string, handler storage.EventHandler) error {
	defer sub.Close()

	// Wait for the subscription to be confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", name, err)
	}
	p.logger.WithField("channel", name).Info("subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.PoolEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				p.logger.WithError(err).WithField("channel", msg.Channel).Warn("dropping malformed event")
				continue
			}
			handler(&ev)
		}
	}
}
