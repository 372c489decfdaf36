// Package http assembles the HTTP server.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hebes/smscrm/internal/config"
	"github.com/hebes/smscrm/internal/logging"
	"github.com/hebes/smscrm/internal/service"
	v1 "github.com/hebes/smscrm/internal/transport/http/v1"
	"github.com/hebes/smscrm/internal/transport/http/webhooks"
	"github.com/hebes/smscrm/internal/transport/ws"
)

// NewServer creates the echo server carrying the JSON API, the provider
// webhooks and, when stream is non-nil, the event stream.
func NewServer(svc *service.Service, cfg *config.Config, stream *ws.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(logging.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1.NewHandler(svc).RegisterRoutes(e)
	webhooks.NewHandler(svc, cfg).RegisterRoutes(e)
	if stream != nil {
		stream.RegisterRoutes(e)
	}

	return e
}
