package services

import (
	"fmt"
	"os"
	"sync"

	"github.com/open-teleop/joypad/pkg/config"
	customlog "github.com/open-teleop/joypad/pkg/log"
	"gopkg.in/yaml.v3"
)

// LimitsApplier receives new joystick limits. The joystick controller
// implements it.
type LimitsApplier interface {
	UpdateLimits(maxSpeed, maxTurn int) error
}

// JoystickConfigService defines the interface for managing the runtime joystick settings.
type JoystickConfigService interface {
	GetCurrentSettings() config.JoystickSettings
	GetCurrentSettingsYAML() ([]byte, error)
	UpdateSettings(newSettingsYAML []byte) error
}

// ValidationError marks an update rejected because of its content.
type ValidationError struct {
	err error
}

func (e *ValidationError) Error() string           { return e.err.Error() }
func (e *ValidationError) Unwrap() error           { return e.err }
func (e *ValidationError) IsValidationError() bool { return true }

// joystickConfigService implements the JoystickConfigService interface.
type joystickConfigService struct {
	settingsPath string
	applier      LimitsApplier
	logger       customlog.Logger
	current      config.JoystickSettings
	mu           sync.RWMutex
}

// NewJoystickConfigService creates the settings service. An empty
// settingsPath keeps updates in memory only.
func NewJoystickConfigService(settingsPath string, initial config.JoystickSettings, applier LimitsApplier, logger customlog.Logger) (JoystickConfigService, error) {
	if applier == nil {
		return nil, fmt.Errorf("limits applier cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initial joystick settings: %w", err)
	}

	if settingsPath == "" {
		logger.Infof("No data directory configured, joystick settings will not be persisted")
	} else {
		logger.Infof("Joystick settings are persisted to: %s", settingsPath)
	}

	return &joystickConfigService{
		settingsPath: settingsPath,
		applier:      applier,
		logger:       logger,
		current:      initial,
	}, nil
}

// GetCurrentSettings returns the active settings.
func (s *joystickConfigService) GetCurrentSettings() config.JoystickSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// GetCurrentSettingsYAML renders the active settings as YAML.
func (s *joystickConfigService) GetCurrentSettingsYAML() ([]byte, error) {
	current := s.GetCurrentSettings()

	data, err := yaml.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("error encoding joystick settings: %w", err)
	}
	return data, nil
}

// UpdateSettings validates, persists and applies new settings. Nothing is
// applied when persisting fails.
func (s *joystickConfigService) UpdateSettings(newSettingsYAML []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Attempting to update joystick settings from provided YAML")

	newSettings, err := config.ParseJoystickSettings(newSettingsYAML)
	if err != nil {
		s.logger.Errorf("Rejected joystick settings: %v", err)
		return &ValidationError{err: err}
	}

	if newSettings == s.current {
		s.logger.Infof("Provided joystick settings are identical to the current ones. No update needed.")
		return nil
	}

	if err := s.persistSettingsUnlocked(newSettingsYAML); err != nil {
		return err
	}

	if err := s.applier.UpdateLimits(newSettings.MaxSpeed, newSettings.MaxTurn); err != nil {
		return fmt.Errorf("failed to apply joystick settings: %w", err)
	}

	old := s.current
	s.current = newSettings
	s.logger.Infof("Joystick settings updated: max_speed %d -> %d, max_turn %d -> %d",
		old.MaxSpeed, newSettings.MaxSpeed, old.MaxTurn, newSettings.MaxTurn)
	return nil
}

// persistSettingsUnlocked assumes the caller holds the lock.
func (s *joystickConfigService) persistSettingsUnlocked(yamlData []byte) error {
	if s.settingsPath == "" {
		return nil
	}

	if err := os.WriteFile(s.settingsPath, yamlData, 0644); err != nil {
		s.logger.Errorf("Error writing joystick settings file '%s': %v", s.settingsPath, err)
		return fmt.Errorf("error writing joystick settings file '%s': %w", s.settingsPath, err)
	}
	s.logger.Debugf("Persisted joystick settings to %s", s.settingsPath)
	return nil
}
