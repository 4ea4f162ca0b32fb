// Package outbox delivers snapshots to a sink in the background. Enqueue
// never waits for the write; callers only guarantee that each record is
// complete.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("knoldrill: outbox closed")

// Sink persists records.
type Sink interface {
	Deliver(ctx context.Context, r Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, r Record) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, r Record) error {
	return f(ctx, r)
}

// Fanout delivers every record to all of its sinks.
type Fanout []Sink

// Deliver implements Sink. All sinks are tried; their errors are joined.
func (f Fanout) Deliver(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range f {
		if err := s.Deliver(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Option configures an Outbox.
type Option func(*Outbox)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Outbox) {
		o.logger = l
	}
}

// WithRetry sets how many times a failed delivery is retried and the initial
// backoff, which doubles after each attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(o *Outbox) {
		o.retries = max(attempts, 0)
		o.backoff = backoff
	}
}

// Outbox queues records and delivers them from a single worker goroutine.
type Outbox struct {
	sink    Sink
	logger  *slog.Logger
	retries int
	backoff time.Duration

	mu      sync.Mutex
	pending []Record
	closed  bool

	wake   chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// New starts an outbox delivering to sink.
func New(sink Sink, opts ...Option) *Outbox {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Outbox{
		sink:    sink,
		logger:  slog.Default(),
		retries: 3,
		backoff: 100 * time.Millisecond,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	go o.run()
	return o
}

// Enqueue schedules r for delivery and returns immediately. A pending record
// with the same Kind and Key is replaced in place.
func (o *Outbox) Enqueue(r Record) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	replaced := false
	for i := range o.pending {
		if o.pending[i].slot() == r.slot() {
			o.pending[i] = r
			replaced = true
			break
		}
	}
	if !replaced {
		o.pending = append(o.pending, r)
	}
	select {
	case o.wake <- struct{}{}:
	default:
	}
	o.mu.Unlock()
	return nil
}

// Pending returns the number of records waiting for delivery.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Close stops accepting records and waits until the pending ones are
// delivered or ctx is done. Undelivered records are dropped when ctx expires.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.wake)
	}
	o.mu.Unlock()

	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		o.cancel()
		<-o.done
		if n := o.Pending(); n > 0 {
			o.logger.Warn("Outbox closed with undelivered records", "pending", n)
		}
		return ctx.Err()
	}
}

func (o *Outbox) run() {
	defer close(o.done)
	defer o.cancel()
	for range o.wake {
		o.drain()
	}
	o.drain()
}

func (o *Outbox) drain() {
	for {
		if o.ctx.Err() != nil {
			return
		}
		o.mu.Lock()
		if len(o.pending) == 0 {
			o.mu.Unlock()
			return
		}
		r := o.pending[0]
		o.pending = o.pending[1:]
		o.mu.Unlock()

		o.deliver(r)
	}
}

func (o *Outbox) deliver(r Record) {
	backoff := o.backoff
	for attempt := 0; ; attempt++ {
		err := o.sink.Deliver(o.ctx, r)
		if err == nil {
			o.logger.Debug("Delivered record", "kind", r.Kind, "key", r.Key)
			return
		}
		if attempt >= o.retries || o.ctx.Err() != nil {
			o.logger.Error("Dropping record after failed delivery", "kind", r.Kind, "key", r.Key, "attempts", attempt+1, "error", err)
			return
		}
		o.logger.Warn("Delivery failed, retrying", "kind", r.Kind, "key", r.Key, "attempt", attempt+1, "error", err)
		select {
		case <-time.After(backoff):
		case <-o.ctx.Done():
		}
		backoff *= 2
	}
}
