// Package http provides the HTTP servers of the gateway.
package http

import (
	"time"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/auth"
	"github.com/gensart-projs/openai-like-api/internal/config"
	"github.com/gensart-projs/openai-like-api/internal/service"
	"github.com/gensart-projs/openai-like-api/internal/transport/http/httpx"
	"github.com/gensart-projs/openai-like-api/internal/transport/http/internalapi"
	v1 "github.com/gensart-projs/openai-like-api/internal/transport/http/v1"
	"github.com/gensart-projs/openai-like-api/internal/transport/ws"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// NewExternalServer creates the client-facing server: the OpenAI-compatible
// API, session management and the WebSocket endpoint.
func NewExternalServer(cfg *config.Config, svc *service.Service, verifier auth.TokenVerifier, wsServer *ws.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpx.ErrorHandler(cfg.IsDevelopment())

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(httpx.RequestLogger("external"))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		ExposeHeaders: []string{v1.HeaderSessionID},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if cfg.RateLimitRPS > 0 {
		e.Use(rateLimiter(cfg))
	}

	// Handlers
	v1Handler := v1.NewHandler(svc, httpx.RequireAuth(verifier))

	// Register Routes
	v1Handler.RegisterRoutes(e)
	wsServer.RegisterRoutes(e)

	return e
}

// NewInternalServer creates the server used by upstream workflows and other
// trusted components. It must not be exposed publicly.
func NewInternalServer(cfg *config.Config, svc *service.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpx.ErrorHandler(cfg.IsDevelopment())

	// Middleware
	e.Use(httpx.RequestLogger("internal"))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	// Handlers
	internalHandler := internalapi.NewHandler(svc)

	// Register Routes
	internalHandler.RegisterRoutes(e)

	return e
}

func rateLimiter(cfg *config.Config) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RateLimitRPS),
		Burst:     cfg.RateLimitBurst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return apperr.Forbidden("", "unable to identify client").WithCause(err)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return apperr.RateLimited("Too many requests, please retry later")
		},
	})
}
