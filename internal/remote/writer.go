package remote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"duo/internal/todo"
)

const (
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 500 * time.Millisecond
)

// ErrBacklog is reported once each time the queue fills. Later saves are
// merged into one pending write until the queue drains.
var ErrBacklog = errors.New("remote writes backed up; merging pending saves")

// Saver is the write half of Backend.
type Saver interface {
	Save(ctx context.Context, uid string, fields todo.Fields) (int64, error)
}

// Writer applies saves for one identity in order on a background goroutine so
// the caller never waits on the network. Failed saves are retried a bounded
// number of times, then reported.
type Writer struct {
	saver    Saver
	uid      string
	onErr    func(error)
	attempts int
	backoff  time.Duration
	timeout  time.Duration
	size     int

	mu       sync.Mutex
	closed   bool
	queue    chan todo.Fields
	overflow todo.Fields
	done     chan struct{}

	pending atomic.Int64
	acked   atomic.Int64
}

type WriterOption func(*Writer)

func WithRetry(attempts int, backoff time.Duration) WriterOption {
	return func(w *Writer) {
		if attempts < 1 {
			attempts = 1
		}
		w.attempts = attempts
		w.backoff = backoff
	}
}

func WithQueueSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.size = n
		}
	}
}

func NewWriter(saver Saver, uid string, onErr func(error), opts ...WriterOption) *Writer {
	w := &Writer{
		saver:    saver,
		uid:      uid,
		onErr:    onErr,
		attempts: DefaultRetryAttempts,
		backoff:  DefaultRetryBackoff,
		timeout:  10 * time.Second,
		size:     256,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan todo.Fields, w.size)
	go w.loop()
	return w
}

// Enqueue schedules a save without blocking. It reports false if the writer
// is closed.
func (w *Writer) Enqueue(fields todo.Fields) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	backlog := false
	if w.overflow == nil {
		w.pending.Add(1)
		select {
		case w.queue <- fields:
			w.mu.Unlock()
			return true
		default:
		}
		w.overflow = make(todo.Fields, len(fields))
		backlog = true
	}
	for name, list := range fields {
		w.overflow[name] = list
	}
	w.mu.Unlock()
	if backlog && w.onErr != nil {
		w.onErr(ErrBacklog)
	}
	return true
}

// Pending is the number of saves accepted but not yet finished.
func (w *Writer) Pending() int64 { return w.pending.Load() }

// Acked is the highest document version a save of this writer produced.
func (w *Writer) Acked() int64 { return w.acked.Load() }

// Close stops accepting saves and waits for queued ones to finish.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *Writer) loop() {
	defer close(w.done)
	for fields := range w.queue {
		w.run(fields)
		if f := w.takeOverflow(); f != nil {
			w.run(f)
		}
	}
	if f := w.takeOverflow(); f != nil {
		w.run(f)
	}
}

// takeOverflow hands out the merged backlog once everything queued before it
// has been written.
func (w *Writer) takeOverflow() todo.Fields {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) > 0 {
		return nil
	}
	f := w.overflow
	w.overflow = nil
	return f
}

func (w *Writer) run(fields todo.Fields) {
	defer w.pending.Add(-1)
	version, err := w.save(fields)
	if err != nil {
		if w.onErr != nil {
			w.onErr(err)
		}
		return
	}
	for {
		cur := w.acked.Load()
		if version <= cur || w.acked.CompareAndSwap(cur, version) {
			return
		}
	}
}

func (w *Writer) save(fields todo.Fields) (int64, error) {
	var err error
	for attempt := 0; attempt < w.attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * w.backoff)
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		var version int64
		version, err = w.saver.Save(ctx, w.uid, fields)
		cancel()
		if err == nil {
			return version, nil
		}
	}
	return 0, err
}
