package bootstrap

import (
	"context"
	"log/slog"

	"libcirc/internal/infra/notify"
	"libcirc/internal/pkg/config"
	"libcirc/internal/usecase/shared"

	"go.uber.org/fx"
)

var NotifyModule = fx.Module("notify",
	fx.Provide(
		NewNotificationSink,
	),
)

// NewNotificationSink picks the redis pub/sub sink when an address is
// configured and falls back to structured-log emission otherwise.
func NewNotificationSink(lc fx.Lifecycle, cfg config.Config, logger *slog.Logger) (shared.NotificationSink, error) {
	if cfg.Redis.Addr == "" {
		logger.Info("no redis address configured, circulation events go to the log")
		return notify.NewSlogSink(logger), nil
	}

	sink, cleanup, err := notify.NewRedisSink(context.Background(), cfg.Redis)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			cleanup()
			return nil
		},
	})

	logger.Info("redis notification sink initialized", "channel", cfg.Redis.Channel)
	return sink, nil
}
