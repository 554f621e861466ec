package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/google/uuid"
)

const (
	defaultQueueSize = 256
	defaultWorkers   = 2
	defaultTimeout   = 3 * time.Second
)

// Options tunes the dispatcher.
type Options struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

type job struct {
	ctx   context.Context
	event Event
}

// Dispatcher is a Tracker that queues events and delivers them to a Sink on
// background workers. A full queue drops the event.
type Dispatcher struct {
	sink    Sink
	logg    *logger.Logger
	metrics *metrics.AnalyticsMetrics
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

// NewDispatcher starts the worker pool. Call Close to drain it.
func NewDispatcher(sink Sink, opts Options, logg *logger.Logger, m *metrics.AnalyticsMetrics) (*Dispatcher, error) {
	if sink == nil {
		return nil, errors.New("analytics sink is required")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	d := &Dispatcher{
		sink:    sink,
		logg:    logg,
		metrics: m,
		timeout: opts.Timeout,
		now:     time.Now,
		queue:   make(chan job, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d, nil
}

// Track enqueues the event without waiting for delivery.
func (d *Dispatcher) Track(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.Observe(event.Name.String(), metrics.OutcomeDropped)
		return
	}
	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		d.metrics.Observe(event.Name.String(), metrics.OutcomeDropped)
		if d.logg != nil {
			d.logg.Warn(d.logg.WithField(ctx, "event", event.Name), "analytics queue full, event dropped")
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining analytics queue: %w", ctx.Err())
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			d.metrics.Observe(j.event.Name.String(), metrics.OutcomeFailed)
			if d.logg != nil {
				d.logg.Error(ctx, "analytics sink panicked", fmt.Errorf("panic: %v", rec))
			}
		}
	}()

	if err := d.sink.Send(ctx, j.event); err != nil {
		d.metrics.Observe(j.event.Name.String(), metrics.OutcomeFailed)
		if d.logg != nil {
			d.logg.Error(d.logg.WithField(ctx, "event", j.event.Name), "analytics delivery failed", err)
		}
		return
	}
	d.metrics.Observe(j.event.Name.String(), metrics.OutcomeDelivered)
}
