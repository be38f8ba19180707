package zeromq

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pebbe/zmq4"

	customlog "github.com/open-teleop/joypad/pkg/log"
)

// ErrPublisherClosed is returned after Close.
var ErrPublisherClosed = errors.New("zeromq publisher is closed")

// Publisher owns a bound PUB socket. Each message goes out as two frames:
// the topic, then the payload.
type Publisher struct {
	ctx     *zmq4.Context
	socket  *zmq4.Socket
	logger  customlog.Logger
	running bool
	mu      sync.Mutex
}

// NewPublisher binds a PUB socket on address.
func NewPublisher(address string, logger customlog.Logger) (*Publisher, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}

	socket, err := ctx.NewSocket(zmq4.PUB)
	if err != nil {
		ctx.Term()
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}

	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		ctx.Term()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}

	if err := socket.Bind(address); err != nil {
		socket.Close()
		ctx.Term()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	logger.Infof("Telemetry publisher bound on %s", address)

	return &Publisher{
		ctx:     ctx,
		socket:  socket,
		logger:  logger,
		running: true,
	}, nil
}

// PublishMessage sends message under topic.
func (p *Publisher) PublishMessage(topic string, message []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return ErrPublisherClosed
	}

	if _, err := p.socket.Send(topic, zmq4.SNDMORE); err != nil {
		return fmt.Errorf("failed to send topic: %w", err)
	}
	if _, err := p.socket.SendBytes(message, 0); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close releases the socket and the context.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false

	if p.socket != nil {
		p.socket.Close()
		p.socket = nil
	}
	if p.ctx != nil {
		p.ctx.Term()
		p.ctx = nil
	}
	p.logger.Infof("Telemetry publisher closed")
}
