package session

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	"github.com/1ureka/rtun/internal/config"
	"github.com/1ureka/rtun/internal/transport"
	"github.com/1ureka/rtun/internal/util"
)

// Reconnector keeps one logical control session alive forever: it builds a
// fresh session, hands control to it, and re-dials after a fixed delay
// whenever a connect attempt fails or an established session dies.
type Reconnector struct {
	cfg    *config.Config
	dialer transport.Dialer

	notify  chan struct{}
	backoff *backoff.Backoff
}

// NewReconnector creates a supervisor for the configured relay.
func NewReconnector(cfg *config.Config, dialer transport.Dialer) *Reconnector {
	return &Reconnector{
		cfg:    cfg,
		dialer: dialer,
		notify: make(chan struct{}, 1),
		// Min == Max keeps the retry delay fixed. There is no upper bound
		// on attempts; this is deliberately a run-forever client.
		backoff: &backoff.Backoff{
			Min: cfg.RetryDelay,
			Max: cfg.RetryDelay,
		},
	}
}

// Run blocks until ctx is cancelled, cycling through connect, wait for
// disconnect, delay, reconnect.
func (r *Reconnector) Run(ctx context.Context) error {
	for {
		if err := r.connect(ctx); err != nil {
			return err
		}

		select {
		case <-r.notify:
			util.LogWarning("control session lost, reconnecting in %s", r.cfg.RetryDelay)
			if err := r.wait(ctx); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// connect builds fresh control sessions until one reaches the relay.
// Half-open sessions from failed attempts are closed and discarded, never
// reused.
func (r *Reconnector) connect(ctx context.Context) error {
	for {
		c := NewControl(r.cfg, r.dialer)
		c.OnDisconnect(func(*Control) {
			select {
			case r.notify <- struct{}{}:
			default:
			}
		})

		err := c.Connect(ctx)
		if err == nil {
			r.backoff.Reset()
			util.LogInfo("control session established with %s", r.cfg.ControlAddr())
			return nil
		}

		c.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		d := r.backoff.Duration()
		util.LogWarning("relay connect failed: %v (retrying in %s)", err, d)
		if err := r.sleep(ctx, d); err != nil {
			return err
		}
	}
}

// wait sleeps out the reconnect delay after a lost session.
func (r *Reconnector) wait(ctx context.Context) error {
	return r.sleep(ctx, r.backoff.Duration())
}

func (r *Reconnector) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
