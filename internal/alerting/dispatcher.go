package alerting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"price-move-alerts/internal/faults"
)

// ErrDispatcherClosed is returned by Notify after Close.
var ErrDispatcherClosed = errors.New("alerting: dispatcher closed")

// DispatcherOptions tune the asynchronous delivery queue.
type DispatcherOptions struct {
	QueueSize       int
	DeliveryTimeout time.Duration
}

// Dispatcher hands notifications to a single background worker so a slow
// transport never stalls the polling loop. Delivery order is FIFO.
type Dispatcher struct {
	next    Notifier
	opts    DispatcherOptions
	logger  zerolog.Logger
	queue   chan Notification
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	closing sync.Once
}

// NewDispatcher starts the delivery worker.
func NewDispatcher(next Notifier, opts DispatcherOptions, logger zerolog.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}
	d := &Dispatcher{
		next:   next,
		opts:   opts,
		logger: logger.With().Str("component", "dispatcher").Logger(),
		queue:  make(chan Notification, opts.QueueSize),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Channel implements Notifier.
func (d *Dispatcher) Channel() string { return d.next.Channel() }

// Notify enqueues the notification. It blocks only while the queue is full.
func (d *Dispatcher) Notify(ctx context.Context, note Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- note:
		return nil
	case <-ctx.Done():
		return &faults.TransportFault{Channel: d.Channel(), Pair: note.Pair, Err: ctx.Err()}
	}
}

// Close stops accepting notifications and waits for queued ones to be delivered
// or for ctx to expire, whichever comes first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closing.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.logger.Warn().Int("pending", len(d.queue)).Msg("notification drain timed out")
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for note := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.DeliveryTimeout)
		err := d.next.Notify(ctx, note)
		cancel()
		if err != nil {
			if !faults.IsTransport(err) {
				err = &faults.TransportFault{Channel: d.next.Channel(), Pair: note.Pair, Err: err}
			}
			d.logger.Error().Err(err).Str("pair", note.Pair).Str("kind", string(note.Kind)).Msg("failed to deliver notification")
		}
	}
}

var _ Notifier = (*Dispatcher)(nil)
