package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/vitals/internal/infra"
)

// Publisher транслирует события в Redis Pub/Sub для внешних подписчиков (UI, соседние инстансы)
type Publisher struct {
	rdb     *redis.Client
	channel string
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb, channel: infra.RedisChanEvents}
}

func (p *Publisher) WriteBatch(ctx context.Context, events []Event) error {
	pipe := p.rdb.Pipeline()
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
		pipe.Publish(ctx, p.channel, data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Multi пишет в несколько хранилищ; ошибка одного не мешает остальным
type Multi []Storage

func (m Multi) WriteBatch(ctx context.Context, events []Event) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteBatch(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
