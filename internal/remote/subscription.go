package remote

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Feed delivers full-record snapshots of one identity's document.
type Feed interface {
	Events() <-chan Snapshot
	Errors() <-chan error
	Close()
}

// Subscription holds a dedicated LISTEN connection. Snapshots include the
// subscriber's own writes echoing back.
type Subscription struct {
	events chan Snapshot
	errs   chan error
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (c *Client) Subscribe(ctx context.Context, uid string) (Feed, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "listen "+notifyChannel); err != nil {
		conn.Release()
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		events: make(chan Snapshot, 8),
		errs:   make(chan error, 4),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(runCtx, c, conn, uid)
	return s, nil
}

func (s *Subscription) Events() <-chan Snapshot { return s.events }

func (s *Subscription) Errors() <-chan error { return s.errs }

// Close stops the watch and waits for it to release its connection. Safe to
// call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

func (s *Subscription) run(ctx context.Context, c *Client, conn *pgxpool.Conn, uid string) {
	defer close(s.done)
	defer close(s.events)
	defer func() {
		unlistenCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(unlistenCtx, "unlisten "+notifyChannel)
		conn.Release()
	}()

	if !s.push(ctx, c, uid) {
		return
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.report(err)
			return
		}
		if n.Payload != uid {
			continue
		}
		if !s.push(ctx, c, uid) {
			return
		}
	}
}

// push fetches the current document and delivers it. It returns false once
// the subscription is closing.
func (s *Subscription) push(ctx context.Context, c *Client, uid string) bool {
	snap, err := c.Get(ctx, uid)
	if errors.Is(err, ErrNotFound) {
		return ctx.Err() == nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.report(err)
		return true
	}
	select {
	case s.events <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Subscription) report(err error) {
	select {
	case s.errs <- err:
	default: // drop if nobody is reading
	}
}
