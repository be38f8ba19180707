package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/golang/geo/r2"
	"github.com/google/uuid"

	"github.com/open-teleop/joypad/domain/joystick"
	customlog "github.com/open-teleop/joypad/pkg/log"
)

// JoystickController is what the handlers drive. *joystick.Controller
// implements it.
type JoystickController interface {
	StartDrag()
	Move(pointer r2.Point, container r2.Rect)
	EndDrag()
	EmergencyStop(ctx context.Context) error
	Snapshot() joystick.Snapshot
}

// joystickConn is the part of *websocket.Conn the handler uses.
type joystickConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
	RemoteAddr() net.Addr
}

// JoystickWebSocketHandler reads joystick events from one page until it
// disconnects. Display updates reach the page through hub. A drag started on
// this connection is ended when the connection goes away.
func JoystickWebSocketHandler(conn joystickConn, ctrl JoystickController, hub *DisplayHub, logger customlog.Logger) {
	sessionID := uuid.NewString()
	log := logger.WithField("session", sessionID)
	log.Infof("Joystick WebSocket connected: %s", conn.RemoteAddr())

	if err := hub.Add(sessionID, conn); err != nil {
		log.Errorf("Failed to send initial display state: %v", err)
		return
	}

	dragging := false
	defer func() {
		hub.Remove(sessionID)
		if dragging {
			log.Warnf("Connection lost during drag, releasing joystick")
			ctrl.EndDrag()
		}
		log.Infof("Joystick WebSocket disconnected: %s", conn.RemoteAddr())
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Errorf("Joystick WS read error: %v", err)
			} else if !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
				log.Infof("Joystick WS connection closed: %v", err)
			}
			return
		}

		if mt != websocket.TextMessage {
			log.Infof("Ignoring non-text joystick WS message type: %d", mt)
			continue
		}

		var event JoystickEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			log.Warnf("Failed to unmarshal joystick event: %v. Message: %s", err, string(msg))
			continue
		}

		if err := handleJoystickEvent(ctrl, event, &dragging); err != nil {
			log.Warnf("Rejected joystick event: %v", err)
		}
	}
}

// handleJoystickEvent applies one event to ctrl and tracks whether this
// connection owns an active drag.
func handleJoystickEvent(ctrl JoystickController, event JoystickEvent, dragging *bool) error {
	switch event.Type {
	case EventStart:
		*dragging = true
		ctrl.StartDrag()
	case EventMove:
		if event.Rect == nil {
			return fmt.Errorf("move event without container rect")
		}
		ctrl.Move(r2.Point{X: event.X, Y: event.Y}, event.Rect.Rect())
	case EventEnd:
		*dragging = false
		ctrl.EndDrag()
	case EventStop:
		// Failures are logged and shown by the controller.
		_ = ctrl.EmergencyStop(context.Background())
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}
	return nil
}
