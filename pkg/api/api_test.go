package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-teleop/joypad/domain/joystick"
	"github.com/open-teleop/joypad/pkg/config"
	customlog "github.com/open-teleop/joypad/pkg/log"
	"github.com/open-teleop/joypad/services"
)

type fakeController struct {
	mu      sync.Mutex
	calls   []string
	moves   []r2.Point
	rects   []r2.Rect
	stopErr error
	status  joystick.Status
}

func (f *fakeController) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeController) StartDrag() { f.record("start") }
func (f *fakeController) EndDrag()   { f.record("end") }

func (f *fakeController) Move(pointer r2.Point, container r2.Rect) {
	f.record("move")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, pointer)
	f.rects = append(f.rects, container)
}

func (f *fakeController) EmergencyStop(context.Context) error {
	f.record("stop")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		f.status = joystick.StatusStopFailed
		return f.stopErr
	}
	f.status = joystick.StatusEmergency
	return nil
}

func (f *fakeController) Snapshot() joystick.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return joystick.Snapshot{Status: f.status, MaxSpeed: 30, MaxTurn: 30, Signal: joystick.Signal{Speed: 12, Turn: -3}}
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeSink struct {
	msgs      []map[string]interface{}
	err       error
	deadlines []time.Time
	closed    bool
}

func (s *fakeSink) SetWriteDeadline(t time.Time) error {
	s.deadlines = append(s.deadlines, t)
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSink) WriteJSON(v interface{}) error {
	if s.err != nil {
		return s.err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *fakeSink) types() []string {
	var out []string
	for _, m := range s.msgs {
		out = append(out, m["type"].(string))
	}
	return out
}

type wsFrame struct {
	mt   int
	data string
}

// fakeConn replays frames, then reports the connection gone.
type fakeConn struct {
	fakeSink
	frames []wsFrame
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	if len(c.frames) == 0 {
		return 0, nil, io.EOF
	}
	f := c.frames[0]
	c.frames = c.frames[1:]
	return f.mt, []byte(f.data), nil
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000}
}

func TestDisplayHubReplaysStateToNewSinks(t *testing.T) {
	hub := NewDisplayHub(customlog.Discard())
	hub.ShowSignal(joystick.Signal{Speed: 10, Turn: 2})
	hub.ShowStatus(joystick.StatusEmergency)

	sink := &fakeSink{}
	require.NoError(t, hub.Add("a", sink))

	assert.Equal(t, []string{UpdateStatus, UpdateSignal, UpdateHandle}, sink.types())
	assert.Equal(t, "EMERGENCY STOP ACTIVE", sink.msgs[0]["text"])
	assert.Equal(t, "#ff4757", sink.msgs[0]["color"])
	assert.Equal(t, 10.0, sink.msgs[1]["speed"])
	assert.Equal(t, 1, hub.Count())
}

func TestDisplayHubBroadcastsAndDropsBrokenSinks(t *testing.T) {
	hub := NewDisplayHub(customlog.Discard())
	good := &fakeSink{}
	bad := &fakeSink{}
	require.NoError(t, hub.Add("good", good))
	require.NoError(t, hub.Add("bad", bad))
	bad.err = errors.New("broken pipe")

	hub.ShowHandle(r2.Point{X: 30, Y: -40}, false)

	assert.Equal(t, 1, hub.Count())
	last := good.msgs[len(good.msgs)-1]
	assert.Equal(t, UpdateHandle, last["type"])
	assert.Equal(t, 30.0, last["x"])
	assert.Equal(t, -40.0, last["y"])
	assert.Equal(t, false, last["animate"])

	assert.True(t, bad.closed, "a dropped sink is closed so its page reconnects")
	assert.False(t, good.closed)

	hub.Remove("good")
	hub.Remove("unknown")
	assert.Equal(t, 0, hub.Count())
}

func TestDisplayHubBoundsEveryWrite(t *testing.T) {
	hub := NewDisplayHub(customlog.Discard())
	sink := &fakeSink{}

	before := time.Now()
	require.NoError(t, hub.Add("a", sink))
	hub.ShowSignal(joystick.Signal{Speed: 1})

	require.Len(t, sink.deadlines, len(sink.msgs))
	for _, d := range sink.deadlines {
		assert.False(t, d.Before(before.Add(DefaultWriteTimeout)))
		assert.False(t, d.After(time.Now().Add(DefaultWriteTimeout)))
	}

	// A page that misses its deadline no longer holds up the broadcast.
	sink.err = errors.New("i/o timeout")
	hub.ShowStatus(joystick.StatusEmergency)
	assert.True(t, sink.closed)
	assert.Equal(t, 0, hub.Count())
}

func TestHandleJoystickEvent(t *testing.T) {
	ctrl := &fakeController{}
	dragging := false

	require.NoError(t, handleJoystickEvent(ctrl, JoystickEvent{Type: EventStart}, &dragging))
	assert.True(t, dragging)

	ev := JoystickEvent{Type: EventMove, X: 150, Y: 60, Rect: &EventRect{Left: 10, Top: 20, Width: 200, Height: 200}}
	require.NoError(t, handleJoystickEvent(ctrl, ev, &dragging))
	assert.Equal(t, r2.Point{X: 150, Y: 60}, ctrl.moves[0])
	assert.Equal(t, r2.Point{X: 110, Y: 120}, ctrl.rects[0].Center())

	assert.Error(t, handleJoystickEvent(ctrl, JoystickEvent{Type: EventMove, X: 1, Y: 1}, &dragging))
	assert.Error(t, handleJoystickEvent(ctrl, JoystickEvent{Type: "jump"}, &dragging))

	require.NoError(t, handleJoystickEvent(ctrl, JoystickEvent{Type: EventEnd}, &dragging))
	assert.False(t, dragging)

	ctrl.stopErr = errors.New("robot offline")
	require.NoError(t, handleJoystickEvent(ctrl, JoystickEvent{Type: EventStop}, &dragging))

	assert.Equal(t, []string{"start", "move", "end", "stop"}, ctrl.Calls())
}

func TestJoystickWebSocketHandlerEndsDragOnDisconnect(t *testing.T) {
	ctrl := &fakeController{}
	hub := NewDisplayHub(customlog.Discard())
	conn := &fakeConn{frames: []wsFrame{
		{websocket.TextMessage, `{"type":"start"}`},
		{websocket.TextMessage, `not json`},
		{websocket.BinaryMessage, `{"type":"end"}`},
		{websocket.TextMessage, `{"type":"move","x":5,"y":6,"rect":{"left":0,"top":0,"width":10,"height":10}}`},
	}}

	JoystickWebSocketHandler(conn, ctrl, hub, customlog.Discard())

	assert.Equal(t, []string{"start", "move", "end"}, ctrl.Calls())
	assert.Equal(t, 0, hub.Count())
	assert.Equal(t, []string{UpdateStatus, UpdateSignal, UpdateHandle}, conn.types())
}

func TestJoystickWebSocketHandlerLeavesOtherDragsAlone(t *testing.T) {
	ctrl := &fakeController{}
	conn := &fakeConn{frames: []wsFrame{
		{websocket.TextMessage, `{"type":"start"}`},
		{websocket.TextMessage, `{"type":"end"}`},
	}}

	JoystickWebSocketHandler(conn, ctrl, NewDisplayHub(customlog.Discard()), customlog.Discard())

	assert.Equal(t, []string{"start", "end"}, ctrl.Calls())
}

func decodeBody(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&m))
	return m
}

func TestEmergencyStopEndpoint(t *testing.T) {
	ctrl := &fakeController{}
	app := fiber.New()
	RegisterJoystickRoutes(app, ctrl, customlog.Discard())

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/estop", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	status := decodeBody(t, resp.Body)["status"].(map[string]interface{})
	assert.Equal(t, "EMERGENCY STOP ACTIVE", status["text"])

	ctrl.stopErr = errors.New("robot offline")
	resp, err = app.Test(httptest.NewRequest("POST", "/api/v1/estop", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	body := decodeBody(t, resp.Body)
	assert.Contains(t, body["error"], "robot offline")
}

func TestGetJoystickEndpoint(t *testing.T) {
	app := fiber.New()
	RegisterJoystickRoutes(app, &fakeController{}, customlog.Discard())

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/joystick", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var snap joystick.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, joystick.Signal{Speed: 12, Turn: -3}, snap.Signal)
	assert.Equal(t, 30, snap.MaxSpeed)
}

type nopApplier struct{}

func (nopApplier) UpdateLimits(int, int) error { return nil }

func newConfigApp(t *testing.T) *fiber.App {
	t.Helper()
	svc, err := services.NewJoystickConfigService("", config.JoystickSettings{Version: "1", MaxSpeed: 30, MaxTurn: 30}, nopApplier{}, customlog.Discard())
	require.NoError(t, err)

	app := fiber.New()
	RegisterConfigRoutes(app, svc, customlog.Discard())
	return app
}

func TestConfigEndpoints(t *testing.T) {
	app := newConfigApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/config/joystick", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-yaml", resp.Header.Get(fiber.HeaderContentType))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "max_speed: 30")

	req := httptest.NewRequest("PUT", "/api/v1/config/joystick", strings.NewReader("max_speed: 50\nmax_turn: 25\n"))
	req.Header.Set(fiber.HeaderContentType, "application/x-yaml")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/config/joystick", nil))
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "max_speed: 50")
}

func TestConfigUpdateRejectsBadBodies(t *testing.T) {
	app := newConfigApp(t)

	for _, body := range []string{"", "max_speed: 0\nmax_turn: 10\n", "max_speed: ["} {
		req := httptest.NewRequest("PUT", "/api/v1/config/joystick", strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, "text/yaml")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "body %q", body)
	}
}
