package client

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nvalerio/portalsync/internal/reconcile"
	"github.com/nvalerio/portalsync/internal/reliability"
	"github.com/nvalerio/portalsync/internal/stream"
)

type StreamConfig struct {
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 8 * time.Second
	}
	return c
}

// StreamClient consumes the step-event websocket and folds every event into a
// reconciled task state. A dropped connection is retried with capped backoff;
// events missed while disconnected are gone for good; the stream has no
// replay and the reconciler's fold rules tolerate the gap.
type StreamClient struct {
	url      string
	cfg      StreamConfig
	dialer   *websocket.Dialer
	onChange func(reconcile.State)

	mu    sync.Mutex
	state reconcile.State
}

// NewStreamClient takes the full ws:// URL of the events endpoint, including
// any project_ref query parameter.
func NewStreamClient(url string, cfg StreamConfig, onChange func(reconcile.State)) *StreamClient {
	return &StreamClient{
		url:      url,
		cfg:      cfg.withDefaults(),
		dialer:   websocket.DefaultDialer,
		onChange: onChange,
	}
}

// State returns the current reconciled snapshot.
func (c *StreamClient) State() reconcile.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run connects and consumes until ctx is cancelled. It returns ctx.Err() on
// cancellation; all transport errors are absorbed by the reconnect loop.
func (c *StreamClient) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, res, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if res != nil {
				res.Body.Close()
			}
			attempt++
			if err := c.wait(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		attempt = 0
		_ = c.consume(ctx, conn)
		_ = conn.Close()
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		if err := c.wait(ctx, attempt); err != nil {
			return err
		}
	}
}

func (c *StreamClient) wait(ctx context.Context, attempt int) error {
	backoff := reliability.ExponentialBackoff(attempt-1, c.cfg.BaseBackoff, c.cfg.MaxBackoff)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
		return nil
	}
}

func (c *StreamClient) consume(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var ev stream.StepEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		c.mu.Lock()
		c.state = reconcile.Apply(c.state, ev)
		snap := c.state
		c.mu.Unlock()
		if c.onChange != nil {
			c.onChange(snap)
		}
	}
}
