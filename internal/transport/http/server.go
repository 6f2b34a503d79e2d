// Package http provides the HTTP server for the agent.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/procureflow/agent/internal/service"
	"github.com/procureflow/agent/internal/stream"
	v1 "github.com/procureflow/agent/internal/transport/http/v1"
)

// NewServer creates and configures the HTTP server.
func NewServer(svc *service.Service, broadcaster *stream.Broadcaster) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	v1Handler := v1.NewHandler(svc, broadcaster)
	v1Handler.RegisterRoutes(e)

	return e
}
