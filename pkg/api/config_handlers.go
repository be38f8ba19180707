package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	customlog "github.com/open-teleop/joypad/pkg/log"
	"github.com/open-teleop/joypad/services"
)

// ConfigHandler holds dependencies for configuration API endpoints.
type ConfigHandler struct {
	configService services.JoystickConfigService
	logger        customlog.Logger
}

// NewConfigHandler creates a new handler for configuration endpoints.
func NewConfigHandler(configService services.JoystickConfigService, logger customlog.Logger) *ConfigHandler {
	if configService == nil {
		panic("ConfigService cannot be nil in NewConfigHandler")
	}
	if logger == nil {
		panic("Logger cannot be nil in NewConfigHandler")
	}
	return &ConfigHandler{
		configService: configService,
		logger:        logger,
	}
}

// RegisterConfigRoutes registers the configuration API endpoints with the Fiber app.
func RegisterConfigRoutes(app *fiber.App, configService services.JoystickConfigService, logger customlog.Logger) {
	h := NewConfigHandler(configService, logger)

	apiGroup := app.Group("/api/v1/config")
	apiGroup.Get("/joystick", h.handleGetJoystickConfig)
	apiGroup.Put("/joystick", h.handleUpdateJoystickConfig)

	logger.Infof("Registered joystick configuration API endpoints under /api/v1/config")
}

// handleGetJoystickConfig returns the active joystick settings as YAML.
func (h *ConfigHandler) handleGetJoystickConfig(c *fiber.Ctx) error {
	h.logger.Debugf("Handling GET request for /api/v1/config/joystick")
	yamlData, err := h.configService.GetCurrentSettingsYAML()
	if err != nil {
		h.logger.Errorf("Failed to get current joystick settings YAML: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to retrieve configuration: %v", err),
		})
	}

	c.Set(fiber.HeaderContentType, "application/x-yaml")
	return c.Send(yamlData)
}

// handleUpdateJoystickConfig replaces the joystick settings with the YAML body.
func (h *ConfigHandler) handleUpdateJoystickConfig(c *fiber.Ctx) error {
	h.logger.Debugf("Handling PUT request for /api/v1/config/joystick")

	switch ct := c.Get(fiber.HeaderContentType); ct {
	case "application/x-yaml", "application/yaml", "text/yaml":
	default:
		// Relaxed check, the body is still parsed.
		h.logger.Warnf("Received PUT request with unexpected Content-Type: %s", ct)
	}

	newSettingsYAML := c.Body()
	if len(newSettingsYAML) == 0 {
		h.logger.Errorf("Received empty body in PUT request for joystick settings update.")
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "Request body cannot be empty.",
		})
	}

	if err := h.configService.UpdateSettings(newSettingsYAML); err != nil {
		h.logger.Errorf("Failed to update joystick settings: %v", err)
		var verr interface{ IsValidationError() bool }
		if errors.As(err, &verr) && verr.IsValidationError() {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("Configuration update failed: %v", err),
			})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Internal server error during configuration update: %v", err),
		})
	}

	h.logger.Infof("Successfully processed PUT request to update joystick settings.")
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":  "Joystick settings updated successfully.",
		"settings": h.configService.GetCurrentSettings(),
	})
}
