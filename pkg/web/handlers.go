package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-teleop/pkg/bridge"
	"github.com/teslashibe/go-teleop/pkg/gaze"
	"github.com/teslashibe/go-teleop/pkg/hub"
)

// errorResponse maps a controller error to a status code.
func errorResponse(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if errors.Is(err, bridge.ErrSkinDisabled) || errors.Is(err, bridge.ErrGazeDisabled) {
		code = fiber.StatusNotFound
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// handleStatus returns the whole bridge snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleSkin(c *fiber.Ctx) error {
	st, err := s.ctrl.SkinStatus()
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(st)
}

func (s *Server) handleGaze(c *fiber.Ctx) error {
	st, err := s.ctrl.GazeStatus()
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(st)
}

// handleCalibrate restarts the skin calibration. The hand must stay
// unloaded until the skin reports running again.
func (s *Server) handleCalibrate(c *fiber.Ctx) error {
	if err := s.ctrl.Recalibrate(); err != nil {
		return errorResponse(c, err)
	}
	s.log.Info("skin calibration requested", "remote", c.IP())
	st, err := s.ctrl.SkinStatus()
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(st)
}

// handleReset restarts the calibration and re-homes the eyes
func (s *Server) handleReset(c *fiber.Ctx) error {
	if err := s.ctrl.Reset(c.UserContext()); err != nil {
		return errorResponse(c, err)
	}
	s.log.Info("bridge reset", "remote", c.IP())
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	p, err := s.ctrl.GazeTuning()
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(p)
}

// handleSetTuning applies the positive fields of the request body
func (s *Server) handleSetTuning(c *fiber.Ctx) error {
	var req gaze.TuningParams
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid tuning body: " + err.Error(),
		})
	}
	p, err := s.ctrl.SetGazeTuning(req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(p)
}

// handleStatusWS sends the current snapshot, then streams hub updates
func (s *Server) handleStatusWS(c *websocket.Conn) {
	snapshot, err := hub.NewMessage("status", s.ctrl.Status())
	if err != nil {
		s.log.Warn("status snapshot not encodable", "error", err)
		return
	}
	if s.statusHub == nil {
		if data, err := snapshot.Bytes(); err == nil {
			c.WriteMessage(websocket.TextMessage, data)
		}
		return
	}
	client := hub.NewClient(s.statusHub, c)
	if client == nil {
		return
	}
	client.Run(snapshot)
}
