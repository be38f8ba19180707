package zeromq

import (
	"context"
	"time"

	"github.com/open-teleop/joypad/domain/joystick"
	customlog "github.com/open-teleop/joypad/pkg/log"
	"github.com/open-teleop/joypad/pkg/wire"
)

// Telemetry topics.
const (
	TopicControl = "teleop.control.velocity"
	TopicStop    = "teleop.control.stop"
)

// MessagePublisher defines the interface for publishing messages
type MessagePublisher interface {
	PublishMessage(topic string, data []byte) error
}

var _ joystick.Transmitter = (*TelemetryTransmitter)(nil)

// TelemetryTransmitter forwards to the wrapped transmitter and publishes every
// command the device accepted. Publish failures are logged and never fail the
// command.
type TelemetryTransmitter struct {
	next      joystick.Transmitter
	publisher MessagePublisher
	logger    customlog.Logger
	now       func() time.Time
}

// NewTelemetryTransmitter wraps next.
func NewTelemetryTransmitter(next joystick.Transmitter, publisher MessagePublisher, logger customlog.Logger) *TelemetryTransmitter {
	return &TelemetryTransmitter{
		next:      next,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (t *TelemetryTransmitter) SendControl(ctx context.Context, sig joystick.Signal) error {
	if err := t.next.SendControl(ctx, sig); err != nil {
		return err
	}
	t.publish(TopicControl, wire.Command{
		TimestampNs: t.now().UnixNano(),
		Speed:       int32(sig.Speed),
		Turn:        int32(sig.Turn),
	})
	return nil
}

func (t *TelemetryTransmitter) SendStop(ctx context.Context) error {
	if err := t.next.SendStop(ctx); err != nil {
		return err
	}
	t.publish(TopicStop, wire.Command{
		TimestampNs: t.now().UnixNano(),
		Stop:        true,
	})
	return nil
}

func (t *TelemetryTransmitter) publish(topic string, cmd wire.Command) {
	if err := t.publisher.PublishMessage(topic, wire.EncodeCommand(cmd)); err != nil {
		t.logger.Warnf("Failed to publish telemetry on '%s': %v", topic, err)
	}
}
