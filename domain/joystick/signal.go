// Package joystick turns drag gestures on a circular virtual joystick into
// speed/turn commands for a remote device, and owns the emergency stop.
package joystick

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r2"
)

// Signal is the commanded motion. Speed is forward-only throttle in
// [0, MaxSpeed]; Turn is signed in [-MaxTurn, MaxTurn], positive to the right.
type Signal struct {
	Speed int `json:"speed"`
	Turn  int `json:"turn"`
}

// IsZero reports whether the signal commands no motion.
func (s Signal) IsZero() bool {
	return s.Speed == 0 && s.Turn == 0
}

func (s Signal) String() string {
	return fmt.Sprintf("speed=%d turn=%d", s.Speed, s.Turn)
}

// Settings configure the mapping and the send loop.
type Settings struct {
	MaxSpeed          int
	MaxTurn           int
	MaxDistance       float64
	ControlInterval   time.Duration
	StatusRevertDelay time.Duration
}

// DefaultSettings returns the stock joystick: 30% speed and turn, a 100px
// radius, a 100ms send loop and a 3s emergency status.
func DefaultSettings() Settings {
	return Settings{
		MaxSpeed:          30,
		MaxTurn:           30,
		MaxDistance:       100,
		ControlInterval:   100 * time.Millisecond,
		StatusRevertDelay: 3 * time.Second,
	}
}

// Validate rejects settings the controller cannot work with.
func (s Settings) Validate() error {
	if s.MaxSpeed < 1 || s.MaxTurn < 1 {
		return fmt.Errorf("max speed and max turn must be positive (got %d, %d)", s.MaxSpeed, s.MaxTurn)
	}
	if s.MaxDistance <= 0 {
		return fmt.Errorf("max distance must be positive (got %v)", s.MaxDistance)
	}
	if s.ControlInterval <= 0 {
		return fmt.Errorf("control interval must be positive (got %v)", s.ControlInterval)
	}
	if s.StatusRevertDelay < 0 {
		return fmt.Errorf("status revert delay must not be negative (got %v)", s.StatusRevertDelay)
	}
	return nil
}

// ClampOffset scales d down to length maxDistance when it is longer,
// keeping its direction. Shorter vectors are returned unchanged.
func ClampOffset(d r2.Point, maxDistance float64) r2.Point {
	if n := d.Norm(); n > maxDistance {
		return d.Mul(maxDistance / n)
	}
	return d
}

// SignalFor maps a clamped handle offset to a signal. Screen Y grows
// downward, so dragging up is forward; dragging down never reverses.
func (s Settings) SignalFor(offset r2.Point) Signal {
	speed := roundHalfUp(-offset.Y / s.MaxDistance * float64(s.MaxSpeed))
	turn := roundHalfUp(offset.X / s.MaxDistance * float64(s.MaxTurn))

	return Signal{
		Speed: clampInt(int(speed), 0, s.MaxSpeed),
		Turn:  clampInt(int(turn), -s.MaxTurn, s.MaxTurn),
	}
}

// roundHalfUp rounds .5 toward positive infinity, the way the page's
// scripting runtime rounds, so -2.5 becomes -2 rather than -3.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
