package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RegisterRoutes mounts the /v1 pool, balance, whitelist and flag routes.
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	e.HTTPErrorHandler = h.jsonErrors()

	e.Use(apiHeaders)

	// Optional API key authentication
	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
		}))
	}

	// Mutating routes share one per-client limiter
	rps, burst := cfg.RateLimitRPS, cfg.RateLimitBurst
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	limited := middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(rps),
		Burst:     burst,
		ExpiresIn: 2 * time.Minute,
	}))

	v1 := e.Group("/v1")
	v1.GET("/health", h.Health)

	pools := v1.Group("/pools")
	pools.GET("", h.ListPools)
	pools.POST("", h.CreatePool, limited)
	pools.GET("/:pool", h.GetPool)
	pools.GET("/:pool/quote", h.Quote)
	pools.GET("/:pool/events", h.Events)
	pools.POST("/:pool/deposit", h.Deposit, limited)
	pools.POST("/:pool/withdraw", h.Withdraw, limited)
	pools.POST("/:pool/swap", h.Swap, limited)

	v1.GET("/balances/:asset/:owner", h.Balance)
	if cfg.DevMode {
		v1.POST("/faucet", h.Faucet, limited)
	}

	wl := v1.Group("/whitelist")
	wl.GET("/:asset", h.WhitelistList)
	wl.POST("/:asset", h.WhitelistAdd, limited)
	wl.DELETE("/:asset/:account", h.WhitelistRemove, limited)

	// Kill switches
	flagGroup := v1.Group("/flags")
	flagGroup.GET("", h.FlagsList)
	flagGroup.POST("", h.FlagsUpsert)
	flagGroup.GET("/:key", h.FlagsGet)
	flagGroup.PUT("/:key", h.FlagsUpdate)
	flagGroup.DELETE("/:key", h.FlagsDelete)

	// Catch-all route for 404 responses
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
