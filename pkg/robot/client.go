// Package robot talks to the remote device's HTTP command endpoints.
package robot

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/open-teleop/joypad/domain/joystick"
	"github.com/open-teleop/joypad/pkg/config"
	customlog "github.com/open-teleop/joypad/pkg/log"
)

const contentTypeForm = "application/x-www-form-urlencoded"

// ErrUnexpectedStatus is wrapped into errors for non-2xx responses.
var ErrUnexpectedStatus = errors.New("unexpected response status")

var _ joystick.Transmitter = (*Client)(nil)

// Client posts control and stop commands. Response bodies are ignored.
type Client struct {
	controlURL string
	stopURL    string
	timeout    time.Duration
	http       *fasthttp.Client
	logger     customlog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying fasthttp client.
func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient builds a client for the endpoints described by cfg.
func NewClient(cfg config.RobotConfig, logger customlog.Logger, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("robot base URL cannot be empty")
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultRequestTimeoutMs) * time.Millisecond
	}

	c := &Client{
		controlURL: cfg.BaseURL + cfg.ControlPath,
		stopURL:    cfg.BaseURL + cfg.StopPath,
		timeout:    timeout,
		http: &fasthttp.Client{
			Name:            "joypad",
			MaxConnsPerHost: 4,
			ReadTimeout:     timeout,
			WriteTimeout:    timeout,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	logger.Infof("Robot client targeting control=%s stop=%s (timeout %v)", c.controlURL, c.stopURL, timeout)
	return c, nil
}

// SendControl posts speed and turn as form fields.
func (c *Client) SendControl(ctx context.Context, sig joystick.Signal) error {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("speed", strconv.Itoa(sig.Speed))
	args.Set("turn", strconv.Itoa(sig.Turn))

	if err := c.post(ctx, c.controlURL, contentTypeForm, args.QueryString()); err != nil {
		return errors.Wrapf(err, "control %s", sig)
	}
	c.logger.Debugf("Control sent: %s", sig)
	return nil
}

// SendStop posts an empty stop request.
func (c *Client) SendStop(ctx context.Context) error {
	if err := c.post(ctx, c.stopURL, "", nil); err != nil {
		return errors.Wrap(err, "stop")
	}
	c.logger.Infof("Stop sent")
	return nil
}

func (c *Client) post(ctx context.Context, url, contentType string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	if contentType != "" {
		req.Header.SetContentType(contentType)
	}
	req.SetBody(body)

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return errors.Wrapf(err, "POST %s", url)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return errors.Wrapf(ErrUnexpectedStatus, "POST %s: %d", url, status)
	}
	return nil
}
