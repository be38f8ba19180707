package api

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	customlog "github.com/open-teleop/joypad/pkg/log"
)

// JoystickHandler serves the REST side of the joystick.
type JoystickHandler struct {
	ctrl   JoystickController
	logger customlog.Logger
}

// NewJoystickHandler creates the handler.
func NewJoystickHandler(ctrl JoystickController, logger customlog.Logger) *JoystickHandler {
	if ctrl == nil {
		panic("Controller cannot be nil in NewJoystickHandler")
	}
	return &JoystickHandler{ctrl: ctrl, logger: logger}
}

// RegisterJoystickRoutes registers the emergency stop and state endpoints.
func RegisterJoystickRoutes(app *fiber.App, ctrl JoystickController, logger customlog.Logger) {
	h := NewJoystickHandler(ctrl, logger)

	apiGroup := app.Group("/api/v1")
	apiGroup.Post("/estop", h.handleEmergencyStop)
	apiGroup.Get("/joystick", h.handleGetJoystick)

	logger.Infof("Registered joystick API endpoints under /api/v1")
}

// handleEmergencyStop answers 502 when the robot did not take the stop.
func (h *JoystickHandler) handleEmergencyStop(c *fiber.Ctx) error {
	if err := h.ctrl.EmergencyStop(c.UserContext()); err != nil {
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{
			"error":  err.Error(),
			"status": h.ctrl.Snapshot().Status,
		})
	}
	return c.JSON(fiber.Map{
		"message": "Emergency stop sent",
		"status":  h.ctrl.Snapshot().Status,
	})
}

func (h *JoystickHandler) handleGetJoystick(c *fiber.Ctx) error {
	return c.JSON(h.ctrl.Snapshot())
}
