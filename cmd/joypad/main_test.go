package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-teleop/joypad/domain/joystick"
	"github.com/open-teleop/joypad/pkg/config"
	customlog "github.com/open-teleop/joypad/pkg/log"
	"github.com/open-teleop/joypad/pkg/processing"
)

func testBootstrap(t *testing.T, dataDir string) *config.BootstrapConfig {
	t.Helper()
	yml := "robot:\n  base_url: http://robot.local\n"
	if dataDir != "" {
		yml += "data:\n  directory: " + dataDir + "\n"
	}
	cfg, err := config.ParseBootstrapConfig([]byte(yml))
	require.NoError(t, err)
	return cfg
}

func TestResolveJoystickSettingsDefaults(t *testing.T) {
	s, err := resolveJoystickSettings(testBootstrap(t, ""), "", false, true, customlog.Discard())
	require.NoError(t, err)
	assert.Equal(t, 30, s.MaxSpeed)
	assert.Equal(t, 30, s.MaxTurn)
}

func TestResolveJoystickSettingsFlagWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.DefaultSettingsFilename)
	require.NoError(t, os.WriteFile(path, []byte("max_speed: 70\nmax_turn: 40\n"), 0644))
	cfg := testBootstrap(t, dir)

	s, err := resolveJoystickSettings(cfg, "", false, true, customlog.Discard())
	require.NoError(t, err)
	assert.Equal(t, 70, s.MaxSpeed)
	assert.Equal(t, 40, s.MaxTurn)

	s, err = resolveJoystickSettings(cfg, "55%", true, true, customlog.Discard())
	require.NoError(t, err)
	assert.Equal(t, 55, s.MaxSpeed)
	assert.Equal(t, 40, s.MaxTurn)

	s, err = resolveJoystickSettings(cfg, "fast", true, true, customlog.Discard())
	require.NoError(t, err)
	assert.Equal(t, 30, s.MaxSpeed)
}

func TestCustomErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: customErrorHandler})
	app.Get("/missing", func(c *fiber.Ctx) error { return fiber.ErrNotFound })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

// gatedTransmitter blocks every control send until gate is closed.
type gatedTransmitter struct {
	gate    chan struct{}
	started chan struct{}
	mu      sync.Mutex
	sent    []joystick.Signal
}

func (g *gatedTransmitter) SendControl(_ context.Context, sig joystick.Signal) error {
	select {
	case g.started <- struct{}{}:
	default:
	}
	<-g.gate
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sig)
	return nil
}

func (g *gatedTransmitter) SendStop(context.Context) error { return nil }

func (g *gatedTransmitter) Sent() []joystick.Signal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]joystick.Signal(nil), g.sent...)
}

func TestStopControlSendsZeroLast(t *testing.T) {
	tx := &gatedTransmitter{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	pool := processing.NewPool("transmit", 1, 4, customlog.Discard())
	pool.Start()

	ctrl, err := joystick.NewController(joystick.DefaultSettings(), tx, nil, pool, customlog.Discard())
	require.NoError(t, err)

	container := r2.RectFromPoints(r2.Point{X: 0, Y: 0}, r2.Point{X: 200, Y: 200})
	ctrl.StartDrag()
	ctrl.Move(r2.Point{X: 100, Y: 0}, container)
	ctrl.Tick()
	<-tx.started

	// Queued behind the send still waiting on the robot.
	ctrl.Move(r2.Point{X: 150, Y: 0}, container)
	ctrl.Tick()

	time.AfterFunc(20*time.Millisecond, func() { close(tx.gate) })
	require.NoError(t, stopControl(context.Background(), ctrl, pool))

	assert.Equal(t, []joystick.Signal{{Speed: 30}, {Speed: 27, Turn: 13}, {}}, tx.Sent())
}
