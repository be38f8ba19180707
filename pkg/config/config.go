package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxSpeedLimit caps speed and turn percentages.
const MaxSpeedLimit = 100

// DefaultMaxSpeedInput is what an empty operator answer resolves to.
const DefaultMaxSpeedInput = "30"

// JoystickSettings are the limits that can be changed while the console runs.
type JoystickSettings struct {
	Version  string `yaml:"version" json:"version"`
	MaxSpeed int    `yaml:"max_speed" json:"max_speed"`
	MaxTurn  int    `yaml:"max_turn" json:"max_turn"`
}

// Validate checks both limits are usable percentages.
func (s JoystickSettings) Validate() error {
	if s.MaxSpeed < 1 || s.MaxSpeed > MaxSpeedLimit {
		return fmt.Errorf("validation failed: max_speed %d out of range 1..%d", s.MaxSpeed, MaxSpeedLimit)
	}
	if s.MaxTurn < 1 || s.MaxTurn > MaxSpeedLimit {
		return fmt.Errorf("validation failed: max_turn %d out of range 1..%d", s.MaxTurn, MaxSpeedLimit)
	}
	return nil
}

// ParseJoystickSettings parses and validates a settings YAML document.
func ParseJoystickSettings(data []byte) (JoystickSettings, error) {
	var s JoystickSettings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return JoystickSettings{}, fmt.Errorf("invalid YAML format: %w", err)
	}
	if err := s.Validate(); err != nil {
		return JoystickSettings{}, err
	}
	return s, nil
}

// LoadJoystickSettings reads a settings file from disk.
func LoadJoystickSettings(path string) (JoystickSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return JoystickSettings{}, fmt.Errorf("error reading settings file '%s': %w", path, err)
	}
	return ParseJoystickSettings(data)
}

// ParseMaxSpeed turns the operator's max speed answer into a percentage.
// Empty input means DefaultMaxSpeedInput. A trailing "%" is accepted.
// Anything that is not a positive integer falls back to the default, and
// values above MaxSpeedLimit are capped.
func ParseMaxSpeed(input string) int {
	fallback, _ := strconv.Atoi(DefaultMaxSpeedInput)

	s := strings.TrimSpace(input)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		s = DefaultMaxSpeedInput
	}

	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return fallback
	}
	if v > MaxSpeedLimit {
		return MaxSpeedLimit
	}
	return v
}

// PromptMaxSpeed asks the operator for the max speed percentage on out and
// reads one line from in. EOF counts as an empty answer.
func PromptMaxSpeed(in io.Reader, out io.Writer) (int, error) {
	if _, err := fmt.Fprintf(out, "Enter max speed percentage [%s]: ", DefaultMaxSpeedInput); err != nil {
		return 0, fmt.Errorf("failed to write prompt: %w", err)
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("failed to read max speed: %w", err)
	}
	return ParseMaxSpeed(line), nil
}
