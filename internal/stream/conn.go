package stream

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"fundingflow/internal/backoff"
	"fundingflow/logger"
)

// State is the lifecycle phase of one stream connection. It is owned by the
// connection's Run loop; the accessor exists for logging and tests.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// Handler consumes one raw frame. Returning an error marks the frame as
// undecodable; the frame is discarded and the connection stays open. The
// handler runs synchronously on the receive loop and must not block.
type Handler func(data []byte) error

// Dialer abstracts websocket dialing for tests.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Config describes one subscription.
type Config struct {
	URL  string
	Name string // log label, e.g. "btcusdt@markPrice"

	Backoff *backoff.Controller
	Dialer  Dialer

	HandshakeTimeout time.Duration
}

// Conn owns one websocket subscription for the process lifetime. Run cycles
// through connecting, streaming and backoff until the context is cancelled;
// no failure is fatal.
type Conn struct {
	cfg     Config
	handler Handler
	log     *logger.Log
	state   atomic.Int32

	// sleep waits for the given duration or context cancellation; it is
	// replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

// New builds a connection for the given subscription. Handler must be
// non-nil.
func New(cfg Config, handler Handler) *Conn {
	if cfg.Backoff == nil {
		cfg.Backoff = backoff.New(backoff.DefaultInitial, backoff.DefaultMax)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	}
	return &Conn{
		cfg:     cfg,
		handler: handler,
		log:     logger.GetLogger(),
		sleep:   sleepCtx,
	}
}

// State reports the current lifecycle phase.
func (c *Conn) State() State {
	return State(c.state.Load())
}

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
}

// Run keeps the subscription alive until ctx is cancelled. Transport
// failures trigger backoff and reconnection; a successful streaming period
// resets the failure count.
func (c *Conn) Run(ctx context.Context) {
	log := c.log.WithComponent("stream").WithFields(logger.Fields{
		"stream": c.cfg.Name,
		"url":    c.cfg.URL,
	})

	attempt := 0
	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		c.setState(StateConnecting)
		ws, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return
			}
			delay := c.cfg.Backoff.Next(attempt)
			attempt++
			c.setState(StateBackoff)
			log.WithError(err).WithFields(logger.Fields{
				"attempt":     attempt,
				"retry_after": delay.String(),
			}).Warn("stream connect failed")
			if !c.sleep(ctx, delay) {
				c.setState(StateDisconnected)
				return
			}
			continue
		}

		c.setState(StateStreaming)
		attempt = 0
		log.Info("stream connected")

		err = c.readLoop(ctx, ws)
		ws.Close()

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			log.Info("stream stopped")
			return
		}

		delay := c.cfg.Backoff.Next(attempt)
		attempt++
		c.setState(StateBackoff)
		log.WithError(err).WithFields(logger.Fields{
			"retry_after": delay.String(),
		}).Warn("stream closed, reconnecting")
		if !c.sleep(ctx, delay) {
			c.setState(StateDisconnected)
			return
		}
	}
}

// readLoop receives frames until a transport error. Handler errors are
// logged and the loop continues; a single malformed frame never tears the
// connection down.
func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	log := c.log.WithComponent("stream").WithFields(logger.Fields{"stream": c.cfg.Name})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// Unblocks ReadMessage so Run can observe the cancellation.
			ws.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if err := c.handler(data); err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"frame_bytes": len(data),
			}).Warn("discarding malformed frame")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
