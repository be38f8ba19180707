package api

import (
	"sync"
	"time"

	"github.com/golang/geo/r2"

	"github.com/open-teleop/joypad/domain/joystick"
	customlog "github.com/open-teleop/joypad/pkg/log"
)

// DefaultWriteTimeout bounds each write to a page.
const DefaultWriteTimeout = 250 * time.Millisecond

// DisplaySink receives display updates. A websocket connection is one.
type DisplaySink interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var _ joystick.Display = (*DisplayHub)(nil)

// DisplayHub fans controller display updates out to every connected page and
// remembers the latest state so late joiners start in sync. Writes are
// serialised, so a sink never sees concurrent WriteJSON calls. Every write
// carries a deadline; a sink that misses it is closed and dropped, so one
// stalled page holds up the others for at most WriteTimeout.
type DisplayHub struct {
	mu           sync.Mutex
	sinks        map[string]DisplaySink
	signal       SignalUpdate
	handle       HandleUpdate
	status       StatusUpdate
	writeTimeout time.Duration
	logger       customlog.Logger
}

// NewDisplayHub creates a hub showing a zero signal and the Ready status.
func NewDisplayHub(logger customlog.Logger) *DisplayHub {
	return &DisplayHub{
		sinks:        make(map[string]DisplaySink),
		signal:       newSignalUpdate(joystick.Signal{}),
		handle:       newHandleUpdate(r2.Point{}, false),
		status:       newStatusUpdate(joystick.StatusReady),
		writeTimeout: DefaultWriteTimeout,
		logger:       logger,
	}
}

// Add registers a sink and replays the current state to it.
func (h *DisplayHub) Add(id string, sink DisplaySink) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, msg := range []interface{}{h.status, h.signal, h.handle} {
		if err := h.write(sink, msg); err != nil {
			return err
		}
	}
	h.sinks[id] = sink
	h.logger.Debugf("Display sink %s added (%d connected)", id, len(h.sinks))
	return nil
}

// Remove unregisters a sink. Unknown ids are ignored.
func (h *DisplayHub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sinks[id]; !ok {
		return
	}
	delete(h.sinks, id)
	h.logger.Debugf("Display sink %s removed (%d connected)", id, len(h.sinks))
}

// Count returns the number of connected sinks.
func (h *DisplayHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sinks)
}

func (h *DisplayHub) ShowSignal(sig joystick.Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signal = newSignalUpdate(sig)
	h.broadcastLocked(h.signal)
}

func (h *DisplayHub) ShowHandle(offset r2.Point, animate bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handle = newHandleUpdate(offset, animate)
	h.broadcastLocked(h.handle)
}

func (h *DisplayHub) ShowStatus(status joystick.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = newStatusUpdate(status)
	h.broadcastLocked(h.status)
}

// broadcastLocked closes and drops sinks whose write fails. Closing ends the
// page's reader goroutine, and the page reconnects.
func (h *DisplayHub) broadcastLocked(msg interface{}) {
	for id, sink := range h.sinks {
		if err := h.write(sink, msg); err != nil {
			h.logger.Warnf("Dropping display sink %s: %v", id, err)
			delete(h.sinks, id)
			_ = sink.Close()
		}
	}
}

func (h *DisplayHub) write(sink DisplaySink, msg interface{}) error {
	if err := sink.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	return sink.WriteJSON(msg)
}
