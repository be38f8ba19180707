package diagnostic

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/joypad/domain/joystick"
	"github.com/open-teleop/joypad/pkg/processing"
)

// SnapshotSource provides the joystick controller state.
type SnapshotSource interface {
	Snapshot() joystick.Snapshot
}

// PoolMetricsSource provides transmit pool metrics.
type PoolMetricsSource interface {
	GetName() string
	GetMetrics() processing.PoolMetrics
}

// ClientCounter reports how many operator pages are connected.
type ClientCounter interface {
	Count() int
}

// SystemMetrics represents the console's diagnostics
type SystemMetrics struct {
	Timestamp     time.Time       `json:"timestamp"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	RobotURL      string          `json:"robot_url"`
	Clients       int             `json:"clients"`
	Status        joystick.Status `json:"status"`
	Joystick      joystick.Stats  `json:"joystick"`
	Pool          PoolStatus      `json:"pool"`
}

// PoolStatus names a pool next to its metrics.
type PoolStatus struct {
	Name    string                 `json:"name"`
	Metrics processing.PoolMetrics `json:"metrics"`
}

// DiagnosticService handles system diagnostics
type DiagnosticService struct {
	controller SnapshotSource
	pool       PoolMetricsSource
	clients    ClientCounter
	robotURL   string
	startedAt  time.Time
	now        func() time.Time
}

// NewDiagnosticService creates a new diagnostic service instance
func NewDiagnosticService(controller SnapshotSource, pool PoolMetricsSource, clients ClientCounter, robotURL string) *DiagnosticService {
	return &DiagnosticService{
		controller: controller,
		pool:       pool,
		clients:    clients,
		robotURL:   robotURL,
		startedAt:  time.Now(),
		now:        time.Now,
	}
}

// GetMetrics returns the current system metrics
func (s *DiagnosticService) GetMetrics() SystemMetrics {
	now := s.now()
	snap := s.controller.Snapshot()

	return SystemMetrics{
		Timestamp:     now,
		UptimeSeconds: now.Sub(s.startedAt).Seconds(),
		RobotURL:      s.robotURL,
		Clients:       s.clients.Count(),
		Status:        snap.Status,
		Joystick:      snap.Stats,
		Pool: PoolStatus{
			Name:    s.pool.GetName(),
			Metrics: s.pool.GetMetrics(),
		},
	}
}

// GetMetricsHandler handles API requests for system metrics
func (s *DiagnosticService) GetMetricsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"metrics": s.GetMetrics(),
	})
}
