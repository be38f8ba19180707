package joystick

import (
	"context"
	"fmt"
)

// Status is the operator-facing status line.
type Status struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

var (
	StatusReady      = Status{Text: "Ready"}
	StatusEmergency  = Status{Text: "EMERGENCY STOP ACTIVE", Color: "#ff4757"}
	StatusStopFailed = Status{Text: "EMERGENCY STOP FAILED", Color: "#ffa502"}
)

// EmergencyStop asks the device to stop. On success the status shows the
// emergency state, the signal is zeroed, and one revert to Ready is scheduled
// after StatusRevertDelay, replacing any revert still pending. On failure the
// status shows StatusStopFailed until the next successful stop.
func (c *Controller) EmergencyStop(ctx context.Context) error {
	c.logger.Warnf("Emergency stop requested")

	if err := c.tx.SendStop(ctx); err != nil {
		c.logger.Errorf("Stop error: %v", err)
		c.mu.Lock()
		c.stats.StopFailures++
		c.status = StatusStopFailed
		c.mu.Unlock()
		c.display.ShowStatus(StatusStopFailed)
		return fmt.Errorf("emergency stop failed: %w", err)
	}

	c.mu.Lock()
	c.stats.Stops++
	c.status = StatusEmergency
	c.current = Signal{}
	if c.cancelRevert != nil {
		c.cancelRevert()
	}
	c.revertGen++
	gen := c.revertGen
	c.cancelRevert = c.schedule(c.settings.StatusRevertDelay, func() { c.revertStatus(gen) })
	c.mu.Unlock()

	c.display.ShowStatus(StatusEmergency)
	c.display.ShowSignal(Signal{})
	return nil
}

// revertStatus restores Ready unless a newer stop has rescheduled it.
func (c *Controller) revertStatus(gen uint64) {
	c.mu.Lock()
	if gen != c.revertGen {
		c.mu.Unlock()
		return
	}
	c.status = StatusReady
	c.cancelRevert = nil
	c.mu.Unlock()

	c.display.ShowStatus(StatusReady)
}
