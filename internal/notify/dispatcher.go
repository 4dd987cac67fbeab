package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"identity/internal/observability/metrics"
	"identity/internal/observability/middleware"
)

var ErrDispatcherClosed = errors.New("notify: dispatcher closed")

type DispatcherConfig struct {
	BufferSize int
	// DropIfFull makes Send non-blocking when the queue is full.
	DropIfFull bool
	// SendTimeout bounds each delivery attempt.
	SendTimeout time.Duration
}

type job struct {
	msg       Message
	requestID string
	traceID   string
}

// Dispatcher queues messages and delivers them from a single worker so
// callers never wait on the mail server. Failed deliveries are logged and
// counted; they are not retried.
type Dispatcher struct {
	cfg       DispatcherConfig
	next      Notifier
	ch        chan job
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg DispatcherConfig, next Notifier) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	d := &Dispatcher{
		cfg:  cfg,
		next: next,
		ch:   make(chan job, cfg.BufferSize),
		done: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case j := <-d.ch:
			d.deliver(j)
		case <-d.done:
			for {
				select {
				case j := <-d.ch:
					d.deliver(j)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(middleware.WithIDs(context.Background(), j.requestID, j.traceID), d.cfg.SendTimeout)
	defer cancel()

	if err := d.next.Send(ctx, j.msg); err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(j.msg.Kind), "failure").Inc()
		middleware.Logger(ctx).Error("notification failed", "kind", string(j.msg.Kind), "error", err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(j.msg.Kind), "success").Inc()
}

// Send enqueues msg. It only fails when the dispatcher is closed or, with
// DropIfFull, when the queue is full.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	if d.closed.Load() {
		return ErrDispatcherClosed
	}
	j := job{msg: msg, requestID: middleware.RequestIDFromContext(ctx), traceID: middleware.TraceIDFromContext(ctx)}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- j:
			return nil
		case <-d.done:
			return ErrDispatcherClosed
		default:
			d.dropped.Add(1)
			metrics.NotificationsTotal.WithLabelValues(string(msg.Kind), "dropped").Inc()
			return nil
		}
	}

	select {
	case d.ch <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDispatcherClosed
	}
}

// Close stops accepting messages and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }
