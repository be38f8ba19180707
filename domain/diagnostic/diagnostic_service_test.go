package diagnostic

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-teleop/joypad/domain/joystick"
	"github.com/open-teleop/joypad/pkg/processing"
)

type fakeController struct{ snap joystick.Snapshot }

func (f fakeController) Snapshot() joystick.Snapshot { return f.snap }

type fakeClients int

func (f fakeClients) Count() int { return int(f) }

type fakePool struct{ metrics processing.PoolMetrics }

func (f fakePool) GetName() string                    { return "transmit" }
func (f fakePool) GetMetrics() processing.PoolMetrics { return f.metrics }

func newTestService() *DiagnosticService {
	ctrl := fakeController{snap: joystick.Snapshot{
		Status: joystick.StatusEmergency,
		Stats:  joystick.Stats{Sent: 7, Failed: 2, Stops: 1},
	}}
	pool := fakePool{metrics: processing.PoolMetrics{ProcessedCount: 9, ErrorCount: 2, QueueCapacity: 16}}

	svc := NewDiagnosticService(ctrl, pool, fakeClients(2), "http://robot.local")
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.startedAt = start
	svc.now = func() time.Time { return start.Add(90 * time.Second) }
	return svc
}

func TestGetMetrics(t *testing.T) {
	m := newTestService().GetMetrics()

	assert.Equal(t, 90.0, m.UptimeSeconds)
	assert.Equal(t, joystick.StatusEmergency, m.Status)
	assert.Equal(t, uint64(7), m.Joystick.Sent)
	assert.Equal(t, 2, m.Clients)
	assert.Equal(t, "transmit", m.Pool.Name)
	assert.Equal(t, int64(9), m.Pool.Metrics.ProcessedCount)
}

func TestGetMetricsHandler(t *testing.T) {
	app := fiber.New()
	app.Get("/api/v1/diagnostics", newTestService().GetMetricsHandler)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/diagnostics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out struct {
		Status  string        `json:"status"`
		Metrics SystemMetrics `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, "http://robot.local", out.Metrics.RobotURL)
	assert.Equal(t, uint64(2), out.Metrics.Joystick.Failed)
	assert.Equal(t, 16, out.Metrics.Pool.Metrics.QueueCapacity)
}
