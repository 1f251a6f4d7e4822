package event

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrAccessDenied = errors.New("access denied")

// AccessFunc решает, может ли подписчик читать топик.
// Личность подписчика захватывается замыканием на вызывающей стороне.
type AccessFunc func(topic string) bool

// Subscription — поток событий одного топика
type Subscription struct {
	C      <-chan Event
	cancel func()
}

func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Channel определяет pub/sub транспорт для событий изменений.
// Доставка best-effort, без переигрывания: подписчик, подключившийся
// после публикации, событие не получит.
type Channel interface {
	Publish(ctx context.Context, topic string, ev Event) error
	Subscribe(ctx context.Context, topic string, allowed AccessFunc) (*Subscription, error)
}

type RedisChannel struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisChannel(client *redis.Client, logger *zap.Logger) *RedisChannel {
	return &RedisChannel{
		client: client,
		logger: logger,
	}
}

func (c *RedisChannel) Publish(ctx context.Context, topic string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, topic, data).Err()
}

func (c *RedisChannel) Subscribe(ctx context.Context, topic string, allowed AccessFunc) (*Subscription, error) {
	if allowed != nil && !allowed(topic) {
		return nil, ErrAccessDenied
	}

	ps := c.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil { // Ждем подтверждения подписки
		ps.Close()
		return nil, err
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				c.logger.Warn("dropping malformed event",
					zap.String("topic", topic),
					zap.Error(err),
				)
				continue
			}
			select {
			case out <- ev:
			default:
				// Медленный потребитель — доставка at-most-once
				c.logger.Warn("dropping event for slow subscriber",
					zap.String("topic", topic),
					zap.String("event_id", ev.ID),
				)
			}
		}
	}()

	return &Subscription{
		C:      out,
		cancel: func() { ps.Close() },
	}, nil
}
