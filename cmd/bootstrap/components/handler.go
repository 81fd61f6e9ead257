package components

import (
	"libcirc/internal/handler"
	"libcirc/internal/handler/api"
	"libcirc/internal/handler/middleware"
	"libcirc/internal/pkg/config"

	"go.uber.org/fx"
)

var HandlerModule = fx.Module("handler",
	fx.Provide(
		api.NewCirculationHandler,
		api.NewFineHandler,
		api.NewStaffHandler,
		middleware.NewAuthMiddleware,
		NewRateLimiter,
	),
	fx.Invoke(handler.NewRouter),
)

func NewRateLimiter(cfg config.Config) *middleware.RateLimiter {
	return middleware.NewRateLimiter(cfg.Circulation)
}
