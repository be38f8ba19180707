package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli"

	"github.com/open-teleop/joypad/domain/diagnostic"
	"github.com/open-teleop/joypad/domain/joystick"
	"github.com/open-teleop/joypad/pkg/api"
	"github.com/open-teleop/joypad/pkg/config"
	customlog "github.com/open-teleop/joypad/pkg/log"
	"github.com/open-teleop/joypad/pkg/processing"
	"github.com/open-teleop/joypad/pkg/robot"
	"github.com/open-teleop/joypad/pkg/ui"
	"github.com/open-teleop/joypad/pkg/zeromq"
	"github.com/open-teleop/joypad/services"
)

func main() {
	app := makeapp()
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("joypad: %v", err)
	}
}

func makeapp() *cli.App {
	app := cli.NewApp()
	app.Name = "joypad"
	app.Usage = "Web joystick console for a remote robot"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config-dir", Value: "config", Usage: "Directory holding " + config.BootstrapFileName, EnvVar: "JOYPAD_CONFIG_DIR"},
		cli.IntFlag{Name: "port", Usage: "HTTP port; overrides server.http_port", EnvVar: "PORT"},
		cli.StringFlag{Name: "max-speed", Usage: "Max speed percentage; skips the prompt"},
		cli.BoolFlag{Name: "no-prompt", Usage: "Never ask for the max speed on the terminal"},
	}
	app.Action = func(c *cli.Context) error {
		return run(c.String("config-dir"), c.Int("port"), c.String("max-speed"), c.IsSet("max-speed"), c.Bool("no-prompt"))
	}
	return app
}

func run(configDir string, port int, maxSpeedFlag string, maxSpeedSet, noPrompt bool) error {
	cfg, err := config.LoadBootstrapConfig(configDir)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.HTTPPort = port
	}

	appLogger, err := customlog.NewLogrusLogger(cfg.Logging.Level, cfg.Logging.LogPath)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	appLogger.Infof("Loaded configuration from %s", filepath.Join(configDir, config.BootstrapFileName))

	settings, err := resolveJoystickSettings(cfg, maxSpeedFlag, maxSpeedSet, noPrompt, appLogger)
	if err != nil {
		return err
	}

	robotClient, err := robot.NewClient(cfg.Robot, appLogger.WithField("component", "robot"))
	if err != nil {
		return err
	}
	var tx joystick.Transmitter = robotClient

	var publisher *zeromq.Publisher
	if addr := cfg.ZeroMQ.PublishBindAddress; addr != "" {
		publisher, err = zeromq.NewPublisher(addr, appLogger.WithField("component", "telemetry"))
		if err != nil {
			return err
		}
		defer publisher.Close()
		tx = zeromq.NewTelemetryTransmitter(robotClient, publisher, appLogger.WithField("component", "telemetry"))
	}

	pool := processing.NewPool("transmit", cfg.Processing.TransmitWorkers, cfg.Processing.QueueSize, appLogger.WithField("component", "pool"))
	pool.Start()

	hub := api.NewDisplayHub(appLogger.WithField("component", "display"))

	ctrl, err := joystick.NewController(joystick.Settings{
		MaxSpeed:          settings.MaxSpeed,
		MaxTurn:           settings.MaxTurn,
		MaxDistance:       cfg.Joystick.MaxDistance,
		ControlInterval:   cfg.Joystick.ControlInterval(),
		StatusRevertDelay: cfg.Joystick.StatusRevertDelay(),
	}, tx, hub, pool, appLogger.WithField("component", "joystick"))
	if err != nil {
		pool.Stop()
		return err
	}

	configService, err := services.NewJoystickConfigService(cfg.Data.SettingsPath(), settings, ctrl, appLogger.WithField("component", "settings"))
	if err != nil {
		pool.Stop()
		return err
	}

	diagnosticService := diagnostic.NewDiagnosticService(ctrl, pool, hub, cfg.Robot.BaseURL)

	app := fiber.New(fiber.Config{
		AppName:               "Joypad",
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/", ui.IndexHandler)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	wsLogger := appLogger.WithField("component", "ws")
	app.Get("/ws/joystick", websocket.New(func(conn *websocket.Conn) {
		api.JoystickWebSocketHandler(conn, ctrl, hub, wsLogger)
	}))

	api.RegisterJoystickRoutes(app, ctrl, appLogger)
	api.RegisterConfigRoutes(app, configService, appLogger)
	app.Get("/api/v1/diagnostics", diagnosticService.GetMetricsHandler)

	runCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := ctrl.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			appLogger.Errorf("Control loop exited: %v", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
		appLogger.Infof("Server starting on %s (robot %s, max speed %d%%)", addr, cfg.Robot.BaseURL, settings.MaxSpeed)
		serverErr <- app.Listen(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Infof("Received %s, shutting down...", sig)
	case err := <-serverErr:
		runErr = fmt.Errorf("failed to start server: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()

	stopLoop()
	<-loopDone
	if err := stopControl(ctx, ctrl, pool); err != nil {
		appLogger.Errorf("%v", err)
	}

	if err := app.ShutdownWithContext(ctx); err != nil {
		appLogger.Errorf("Server forced to shutdown: %v", err)
	}

	appLogger.Infof("Server exited properly")
	return runErr
}

// stopControl drains the transmit pool before the controller sends its final
// zero, so the zero is the last command the robot sees.
func stopControl(ctx context.Context, ctrl *joystick.Controller, pool *processing.Pool) error {
	pool.Stop()
	return ctrl.Shutdown(ctx)
}

// resolveJoystickSettings layers the limits: bootstrap config, then the
// persisted settings file, then the --max-speed flag or the terminal prompt.
func resolveJoystickSettings(cfg *config.BootstrapConfig, maxSpeedFlag string, maxSpeedSet, noPrompt bool, logger customlog.Logger) (config.JoystickSettings, error) {
	settings := config.JoystickSettings{
		MaxSpeed: cfg.Joystick.MaxSpeed,
		MaxTurn:  cfg.Joystick.MaxTurn,
	}

	if path := cfg.Data.SettingsPath(); path != "" {
		persisted, err := config.LoadJoystickSettings(path)
		switch {
		case err == nil:
			logger.Infof("Loaded persisted joystick settings from %s", path)
			settings = persisted
		case errors.Is(err, os.ErrNotExist):
			logger.Debugf("No persisted joystick settings at %s", path)
		default:
			logger.Warnf("Ignoring persisted joystick settings: %v", err)
		}
	}

	switch {
	case maxSpeedSet:
		settings.MaxSpeed = config.ParseMaxSpeed(maxSpeedFlag)
	case !noPrompt && isatty.IsTerminal(os.Stdin.Fd()):
		maxSpeed, err := config.PromptMaxSpeed(os.Stdin, os.Stdout)
		if err != nil {
			return config.JoystickSettings{}, err
		}
		settings.MaxSpeed = maxSpeed
	}

	logger.Infof("Max speed set to %d%%", settings.MaxSpeed)
	return settings, nil
}

// Custom error handler
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
