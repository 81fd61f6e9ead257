package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"libcirc/internal/domain/user"
	"libcirc/internal/handler/api"
	"libcirc/internal/handler/middleware"
	"libcirc/internal/pkg/config"
)

type route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
	Mw      []gin.HandlerFunc
}

func NewRouter(
	engine *gin.Engine,
	cfg config.Config,
	circulationHandler *api.CirculationHandler,
	fineHandler *api.FineHandler,
	staffHandler *api.StaffHandler,
	authMiddleware *middleware.AuthMiddleware,
	rateLimiter *middleware.RateLimiter,
) {
	setupMiddleware(engine, cfg, rateLimiter)
	setupRoutes(engine, circulationHandler, fineHandler, staffHandler, authMiddleware)
}

func setupMiddleware(engine *gin.Engine, cfg config.Config, rateLimiter *middleware.RateLimiter) {
	// Recovery must be first (outermost) to catch panics from all other middleware
	engine.Use(middleware.CustomRecovery())
	engine.Use(middleware.NewCORSMiddleware(cfg.CORS))
	engine.Use(middleware.LoggingMiddleware(nil, cfg.Log))
	engine.Use(rateLimiter.Middleware())
	engine.Use(middleware.ErrorHandler())
}

func setupRoutes(
	engine *gin.Engine,
	circulationHandler *api.CirculationHandler,
	fineHandler *api.FineHandler,
	staffHandler *api.StaffHandler,
	authMiddleware *middleware.AuthMiddleware,
) {
	engine.GET("/health", healthCheck)

	apiGroup := engine.Group("/api")
	{
		books := apiGroup.Group("/books")
		books.Use(authMiddleware.RequireAuth())
		{
			addRoutes(books, []route{
				{Method: http.MethodPost, Path: "/:id/reserve", Handler: circulationHandler.Reserve},
				{Method: http.MethodPost, Path: "/:id/waitlist", Handler: circulationHandler.JoinWaitlist},
				{Method: http.MethodGet, Path: "/:id/waitlist", Handler: circulationHandler.GetWaitlistPosition},
				{Method: http.MethodGet, Path: "/:id/availability", Handler: circulationHandler.GetBookAvailability},
			})
		}

		circulation := apiGroup.Group("/circulation")
		circulation.Use(authMiddleware.RequireAuth())
		{
			addRoutes(circulation, []route{
				{Method: http.MethodGet, Path: "/records", Handler: circulationHandler.ListRecords},
				{Method: http.MethodGet, Path: "/pending", Handler: circulationHandler.ListPendingPickups},
				{Method: http.MethodPost, Path: "/records/:id/pickup-token", Handler: circulationHandler.GeneratePickupToken},
				{Method: http.MethodPost, Path: "/records/:id/return-token", Handler: circulationHandler.GenerateReturnToken},
				{Method: http.MethodPost, Path: "/records/:id/cancel", Handler: circulationHandler.CancelReservation},
			})
		}

		fines := apiGroup.Group("/fines")
		fines.Use(authMiddleware.RequireAuth())
		{
			addRoutes(fines, []route{
				{Method: http.MethodGet, Path: "", Handler: fineHandler.ListFines},
				{Method: http.MethodPost, Path: "/:id/pay", Handler: fineHandler.PayFine},
				{Method: http.MethodPost, Path: "/pay-all", Handler: fineHandler.PayAllFines},
			})
		}

		staff := apiGroup.Group("/staff")
		staff.Use(authMiddleware.RequireAuth())
		staff.Use(authMiddleware.RequireRoleAtLeast(user.RoleLibrarian))
		{
			addRoutes(staff, []route{
				{Method: http.MethodPost, Path: "/tokens/validate", Handler: staffHandler.ValidateToken},
				{Method: http.MethodPost, Path: "/records/:id/issue", Handler: staffHandler.ConfirmPickup},
				{Method: http.MethodPost, Path: "/records/:id/return", Handler: staffHandler.Return},
				{Method: http.MethodPost, Path: "/waitlist/sweep", Handler: staffHandler.SweepWaitlist},
				{Method: http.MethodPost, Path: "/reminders", Handler: staffHandler.SendReminders},
				{Method: http.MethodPost, Path: "/books/:id/promote", Handler: staffHandler.PromoteNext},
			})
		}
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Service is healthy",
	})
}

func addRoutes(g *gin.RouterGroup, rs []route) {
	for _, r := range rs {
		h := r.Handler
		if len(r.Mw) > 0 {
			h = chainHandlers(append(r.Mw, r.Handler)...)
		}
		switch r.Method {
		case http.MethodGet:
			g.GET(r.Path, h)
		case http.MethodPost:
			g.POST(r.Path, h)
		case http.MethodPut:
			g.PUT(r.Path, h)
		case http.MethodPatch:
			g.PATCH(r.Path, h)
		case http.MethodDelete:
			g.DELETE(r.Path, h)
		default:
			g.Any(r.Path, h)
		}
	}
}

func chainHandlers(hs ...gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range hs {
			h(c)
			if c.IsAborted() {
				return
			}
		}
	}
}
