package api

import (
	"github.com/golang/geo/r2"

	"github.com/open-teleop/joypad/domain/joystick"
)

// --- Data Structures for WebSocket Messages ---

// Inbound joystick event types.
const (
	EventStart = "start"
	EventMove  = "move"
	EventEnd   = "end"
	EventStop  = "stop"
)

// EventRect is the joystick container's bounding box in page coordinates.
type EventRect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect converts the box to an r2.Rect.
func (r EventRect) Rect() r2.Rect {
	return r2.RectFromPoints(
		r2.Point{X: r.Left, Y: r.Top},
		r2.Point{X: r.Left + r.Width, Y: r.Top + r.Height},
	)
}

// JoystickEvent is one pointer/touch event sent by the page.
type JoystickEvent struct {
	Type string     `json:"type"`
	X    float64    `json:"x"`
	Y    float64    `json:"y"`
	Rect *EventRect `json:"rect,omitempty"`
}

// Outbound display update types.
const (
	UpdateSignal = "signal"
	UpdateHandle = "handle"
	UpdateStatus = "status"
)

// SignalUpdate carries the last signal the robot accepted.
type SignalUpdate struct {
	Type  string `json:"type"`
	Speed int    `json:"speed"`
	Turn  int    `json:"turn"`
}

// HandleUpdate moves the joystick handle relative to the container center.
type HandleUpdate struct {
	Type    string  `json:"type"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Animate bool    `json:"animate"`
}

// StatusUpdate sets the status line.
type StatusUpdate struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Color string `json:"color"`
}

func newSignalUpdate(sig joystick.Signal) SignalUpdate {
	return SignalUpdate{Type: UpdateSignal, Speed: sig.Speed, Turn: sig.Turn}
}

func newHandleUpdate(offset r2.Point, animate bool) HandleUpdate {
	return HandleUpdate{Type: UpdateHandle, X: offset.X, Y: offset.Y, Animate: animate}
}

func newStatusUpdate(status joystick.Status) StatusUpdate {
	return StatusUpdate{Type: UpdateStatus, Text: status.Text, Color: status.Color}
}
