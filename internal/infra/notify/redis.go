package notify

import (
	"context"
	"encoding/json"
	"time"

	"libcirc/internal/pkg/config"
	"libcirc/internal/pkg/errs"
	"libcirc/internal/usecase/shared"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes circulation events as JSON on a pub/sub channel the
// notification service subscribes to.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(ctx context.Context, cfg config.RedisConfig) (*RedisSink, func(), error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, errs.Wrap(err, "failed to connect to redis")
	}

	cleanup := func() {
		_ = client.Close()
	}

	return &RedisSink{client: client, channel: cfg.Channel}, cleanup, nil
}

func (s *RedisSink) Publish(ctx context.Context, event shared.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errs.Wrap(err, "failed to marshal event")
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return errs.Wrap(err, "failed to publish event")
	}
	return nil
}

var _ shared.NotificationSink = (*RedisSink)(nil)
