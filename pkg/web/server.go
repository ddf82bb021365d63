// Package web serves the bridge status and operator commands over HTTP
// and streams live telemetry to dashboard websocket clients.
package web

import (
	"context"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-teleop/pkg/bridge"
	"github.com/teslashibe/go-teleop/pkg/gaze"
	"github.com/teslashibe/go-teleop/pkg/hub"
)

// Controller is the bridge surface exposed by the server.
type Controller interface {
	Status() bridge.Status
	SkinStatus() (bridge.SkinStatus, error)
	GazeStatus() (gaze.Status, error)
	Recalibrate() error
	Reset(ctx context.Context) error
	GazeTuning() (gaze.TuningParams, error)
	SetGazeTuning(p gaze.TuningParams) (gaze.TuningParams, error)
}

var _ Controller = (*bridge.Bridge)(nil)

// Server is the dashboard API server.
type Server struct {
	app  *fiber.App
	port string
	ctrl Controller
	log  *slog.Logger

	// status fan-out, run by the caller
	statusHub *hub.Hub
}

// NewServer creates a server for ctrl. statusHub carries the per-tick
// snapshots; the caller runs it.
func NewServer(port string, ctrl Controller, statusHub *hub.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		port:      port,
		ctrl:      ctrl,
		log:       logger,
		statusHub: statusHub,
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-teleop",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/skin", s.handleSkin)
	api.Get("/gaze", s.handleGaze)
	api.Post("/skin/calibrate", s.handleCalibrate)
	api.Post("/reset", s.handleReset)
	api.Get("/tuning", s.handleGetTuning)
	api.Post("/tuning", s.handleSetTuning)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// Start listens on the configured port. It blocks until Shutdown.
func (s *Server) Start() error {
	s.log.Info("web dashboard listening", "url", "http://localhost:"+s.port)
	return s.app.Listen(":" + s.port)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.log.Error("web server stopped", "error", err)
		}
	}()
}

// Shutdown stops the server and closes open connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
