package joystick

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	customlog "github.com/open-teleop/joypad/pkg/log"
)

// Transmitter delivers commands to the remote device.
type Transmitter interface {
	SendControl(ctx context.Context, sig Signal) error
	SendStop(ctx context.Context) error
}

// Display renders controller state for the operator. Implementations must be
// safe for concurrent use; updates are idempotent and may arrive out of order.
type Display interface {
	ShowSignal(sig Signal)
	ShowHandle(offset r2.Point, animate bool)
	ShowStatus(status Status)
}

// Dispatcher runs transmissions without blocking the caller. Submit returns
// false when the job could not be queued.
type Dispatcher interface {
	Submit(job func(ctx context.Context) error) bool
}

// Stats counts what the send loop and the stop button have done.
type Stats struct {
	Sent         uint64    `json:"sent"`
	Failed       uint64    `json:"failed"`
	Dropped      uint64    `json:"dropped"`
	Coalesced    uint64    `json:"coalesced"`
	ForcedZero   uint64    `json:"forced_zero"`
	Stops        uint64    `json:"stops"`
	StopFailures uint64    `json:"stop_failures"`
	LastAcked    Signal    `json:"last_acked"`
	LastAckedAt  time.Time `json:"last_acked_at"`
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	Dragging bool    `json:"dragging"`
	OffsetX  float64 `json:"offset_x"`
	OffsetY  float64 `json:"offset_y"`
	Signal   Signal  `json:"signal"`
	LastSent Signal  `json:"last_sent"`
	Pending  bool    `json:"pending"`
	Status   Status  `json:"status"`
	MaxSpeed int     `json:"max_speed"`
	MaxTurn  int     `json:"max_turn"`
	Stats    Stats   `json:"stats"`
}

// scheduleFunc runs f after d and returns a function cancelling it.
type scheduleFunc func(d time.Duration, f func()) (cancel func())

func afterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

type goDispatcher struct{}

func (goDispatcher) Submit(job func(ctx context.Context) error) bool {
	go job(context.Background())
	return true
}

type nopDisplay struct{}

func (nopDisplay) ShowSignal(Signal)        {}
func (nopDisplay) ShowHandle(r2.Point, bool) {}
func (nopDisplay) ShowStatus(Status)        {}

// Controller tracks a single joystick drag, derives the signal from it and
// pushes changes to the Transmitter on a fixed period.
type Controller struct {
	mu       sync.Mutex
	settings Settings
	tx       Transmitter
	display  Display
	dispatch Dispatcher
	logger   customlog.Logger
	schedule scheduleFunc

	dragging bool
	offset   r2.Point
	current  Signal
	prevSent Signal
	pending  bool

	// outbox holds the signal the queued send job will transmit. While
	// queued is set, newer signals replace it instead of queueing more jobs.
	outbox Signal
	queued bool

	status       Status
	revertGen    uint64
	cancelRevert func()

	stats Stats
}

// NewController creates a controller. A nil display discards updates and a
// nil dispatcher runs every transmission on its own goroutine.
func NewController(settings Settings, tx Transmitter, display Display, dispatch Dispatcher, logger customlog.Logger) (*Controller, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid joystick settings: %w", err)
	}
	if tx == nil {
		return nil, fmt.Errorf("transmitter cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if display == nil {
		display = nopDisplay{}
	}
	if dispatch == nil {
		dispatch = goDispatcher{}
	}

	return &Controller{
		settings: settings,
		tx:       tx,
		display:  display,
		dispatch: dispatch,
		logger:   logger,
		schedule: afterFunc,
		status:   StatusReady,
	}, nil
}

// StartDrag enters dragging mode. The handle follows the pointer without
// animation until the drag ends.
func (c *Controller) StartDrag() {
	c.mu.Lock()
	c.dragging = true
	offset := c.offset
	c.mu.Unlock()

	c.logger.Debugf("Drag started")
	c.display.ShowHandle(offset, false)
}

// Move updates the drag from the pointer position and the joystick
// container's bounds, both in the same screen coordinates. It is a no-op
// when no drag is active.
func (c *Controller) Move(pointer r2.Point, container r2.Rect) {
	c.mu.Lock()
	if !c.dragging {
		c.mu.Unlock()
		return
	}

	offset := ClampOffset(pointer.Sub(container.Center()), c.settings.MaxDistance)
	c.offset = offset
	c.current = c.settings.SignalFor(offset)
	c.pending = true
	c.mu.Unlock()

	c.display.ShowHandle(offset, false)
}

// EndDrag releases the joystick: the handle springs back to the center and
// the signal drops to zero. It is a no-op when no drag is active.
func (c *Controller) EndDrag() {
	c.mu.Lock()
	if !c.dragging {
		c.mu.Unlock()
		return
	}

	c.dragging = false
	c.offset = r2.Point{}
	c.current = Signal{}
	c.pending = true
	c.mu.Unlock()

	c.logger.Debugf("Drag ended")
	c.display.ShowHandle(r2.Point{}, true)
}

// Tick is one pass of the send loop. A pending change is sent when it
// differs from the last sent signal. With nothing pending, a non-zero last
// signal is forced back to zero so the device stops even if a release was
// never seen.
func (c *Controller) Tick() {
	c.mu.Lock()
	var (
		send   bool
		forced bool
		sig    Signal
	)
	prev := c.prevSent
	if c.pending {
		if c.current != c.prevSent {
			sig = c.current
			c.prevSent = sig
			c.pending = false
			send = true
		}
	} else if !c.prevSent.IsZero() {
		c.current = Signal{}
		c.prevSent = Signal{}
		sig = Signal{}
		send = true
		forced = true
		c.stats.ForcedZero++
	}
	c.mu.Unlock()

	if !send {
		return
	}
	if forced {
		c.logger.Debugf("Nothing pending, forcing zero")
	}
	c.transmit(sig, prev)
}

// Run calls Tick every ControlInterval until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.settings.ControlInterval)
	defer ticker.Stop()

	c.logger.Infof("Control loop started (interval %v)", c.settings.ControlInterval)
	for {
		select {
		case <-ctx.Done():
			c.logger.Infof("Control loop stopped")
			return ctx.Err()
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Shutdown zeroes the device synchronously if the last command sent or
// acknowledged was non-zero, and cancels any pending status revert. Call it
// after Run returns and after the dispatcher has drained, so nothing queued
// reaches the device after the final zero.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.cancelRevert != nil {
		c.cancelRevert()
		c.cancelRevert = nil
	}
	wasMoving := !c.prevSent.IsZero() || !c.stats.LastAcked.IsZero()
	c.dragging = false
	c.offset = r2.Point{}
	c.current = Signal{}
	c.prevSent = Signal{}
	c.outbox = Signal{}
	c.pending = false
	c.mu.Unlock()

	if !wasMoving {
		return nil
	}

	c.logger.Infof("Sending final zero command before shutdown")
	if err := c.tx.SendControl(ctx, Signal{}); err != nil {
		c.recordFailure()
		return fmt.Errorf("failed to send final zero command: %w", err)
	}
	c.recordAck(Signal{})
	return nil
}

// transmit puts sig in the outbox and makes sure a send job is queued for
// it. A job that has not started yet picks up the newest signal, so a slow
// device never works through stale positions. When the dispatcher rejects
// the job, prev is restored and the change stays pending for the next tick.
func (c *Controller) transmit(sig, prev Signal) {
	c.mu.Lock()
	c.outbox = sig
	if c.queued {
		c.stats.Coalesced++
		c.mu.Unlock()
		return
	}
	c.queued = true
	c.mu.Unlock()

	if c.dispatch.Submit(c.sendOutbox) {
		return
	}

	c.logger.Warnf("Transmission queue rejected command (%s), retrying next tick", sig)
	c.mu.Lock()
	c.queued = false
	c.stats.Dropped++
	if c.prevSent == sig {
		c.prevSent = prev
		c.pending = true
	}
	c.mu.Unlock()
}

// sendOutbox is the dispatched job. The display is only refreshed once the
// device has acknowledged the signal.
func (c *Controller) sendOutbox(ctx context.Context) error {
	c.mu.Lock()
	sig := c.outbox
	c.queued = false
	c.mu.Unlock()

	if err := c.tx.SendControl(ctx, sig); err != nil {
		c.logger.Errorf("Control error (%s): %v", sig, err)
		c.recordFailure()
		return err
	}
	c.recordAck(sig)
	c.display.ShowSignal(sig)
	return nil
}

func (c *Controller) recordAck(sig Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Sent++
	c.stats.LastAcked = sig
	c.stats.LastAckedAt = time.Now()
}

func (c *Controller) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Failed++
}

// UpdateLimits changes MaxSpeed and MaxTurn. The new ranges apply from the
// next Move.
func (c *Controller) UpdateLimits(maxSpeed, maxTurn int) error {
	if maxSpeed < 1 || maxTurn < 1 {
		return fmt.Errorf("max speed and max turn must be positive (got %d, %d)", maxSpeed, maxTurn)
	}

	c.mu.Lock()
	c.settings.MaxSpeed = maxSpeed
	c.settings.MaxTurn = maxTurn
	c.mu.Unlock()

	c.logger.Infof("Joystick limits updated: max_speed=%d max_turn=%d", maxSpeed, maxTurn)
	return nil
}

// Settings returns the active settings.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Dragging: c.dragging,
		OffsetX:  c.offset.X,
		OffsetY:  c.offset.Y,
		Signal:   c.current,
		LastSent: c.prevSent,
		Pending:  c.pending,
		Status:   c.status,
		MaxSpeed: c.settings.MaxSpeed,
		MaxTurn:  c.settings.MaxTurn,
		Stats:    c.stats,
	}
}
