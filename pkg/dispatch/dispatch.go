// Package dispatch runs jobs from an in-memory FIFO on a fixed pool of workers.
//
// Each job kind is routed to exactly one registered handler. Jobs are held
// only in memory and are lost on process exit.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"

	"stickergif/pkg/job"
	"stickergif/pkg/logger"
)

var (
	ErrClosed           = errors.New("dispatcher closed")
	ErrUnroutable       = errors.New("no handler registered for job kind")
	ErrDuplicateHandler = errors.New("handler already registered for job kind")
)

// Handler processes one job on a worker goroutine.
type Handler func(ctx context.Context, j job.Job)

// Overflow decides what Submit does when a bounded queue is full.
type Overflow int

const (
	// OverflowBlock makes Submit wait for space.
	OverflowBlock Overflow = iota
	// OverflowDropOldest evicts the head of the queue.
	OverflowDropOldest
)

func (o Overflow) String() string {
	switch o {
	case OverflowDropOldest:
		return "drop_oldest"
	default:
		return "block"
	}
}

// ParseOverflow maps a config value to an Overflow policy. Empty means block.
func ParseOverflow(value string) (Overflow, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "block":
		return OverflowBlock, nil
	case "drop_oldest", "drop-oldest":
		return OverflowDropOldest, nil
	default:
		return OverflowBlock, fmt.Errorf("unknown overflow policy %q", value)
	}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCapacity bounds the queue to n pending jobs. n <= 0 keeps it unbounded.
func WithCapacity(n int, policy Overflow) Option {
	return func(d *Dispatcher) {
		d.capacity = n
		d.overflow = policy
	}
}

// WithContext sets the context handed to handlers. It defaults to
// context.Background so in-flight work outlives the intake shutdown signal.
func WithContext(ctx context.Context) Option {
	return func(d *Dispatcher) {
		if ctx != nil {
			d.baseCtx = ctx
		}
	}
}

// Stats is a point-in-time snapshot of dispatcher counters.
type Stats struct {
	Workers   int    `json:"workers"`
	Queued    int    `json:"queued"`
	InFlight  int    `json:"in_flight"`
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
	Closed    bool   `json:"closed"`
}

// Dispatcher owns the queue and the worker goroutines.
type Dispatcher struct {
	workers  int
	capacity int
	overflow Overflow
	baseCtx  context.Context
	log      *slog.Logger

	handlersMu sync.RWMutex
	handlers   map[job.Kind]Handler

	mu        sync.Mutex
	notEmpty  *sync.Cond
	notFull   *sync.Cond
	queue     []job.Job
	closed    bool
	inFlight  int
	processed uint64
	dropped   uint64

	wg   sync.WaitGroup
	done chan struct{}
}

// New starts workers goroutines (at least one) and returns the dispatcher.
func New(workers int, log *slog.Logger, opts ...Option) *Dispatcher {
	if workers < 1 {
		workers = 1
	}

	d := &Dispatcher{
		workers:  workers,
		baseCtx:  context.Background(),
		log:      logger.Component(log, "dispatch"),
		handlers: make(map[job.Kind]Handler),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.notEmpty = sync.NewCond(&d.mu)
	d.notFull = sync.NewCond(&d.mu)

	d.log.Info("Dispatcher starting", "workers", d.workers, "capacity", d.capacity, "overflow", d.overflow.String())

	for i := range d.workers {
		d.wg.Add(1)
		go d.work(i)
	}
	go func() {
		d.wg.Wait()
		close(d.done)
	}()

	return d
}

// RegisterHandler installs the handler for kind. Each kind accepts one handler.
func (d *Dispatcher) RegisterHandler(kind job.Kind, h Handler) error {
	if h == nil {
		return fmt.Errorf("register %s: nil handler", kind)
	}

	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()

	if _, exists := d.handlers[kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, kind)
	}
	d.handlers[kind] = h
	return nil
}

func (d *Dispatcher) handler(kind job.Kind) (Handler, bool) {
	d.handlersMu.RLock()
	defer d.handlersMu.RUnlock()
	h, ok := d.handlers[kind]
	return h, ok
}

// Submit enqueues j. It never blocks unless the queue is bounded with OverflowBlock.
func (d *Dispatcher) Submit(j job.Job) error {
	if j == nil {
		return errors.New("submit nil job")
	}

	if _, ok := d.handler(j.Kind()); !ok {
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		d.log.Info("Dropping job without handler", "kind", j.Kind(), "job_id", j.ID())
		return fmt.Errorf("%w: %s", ErrUnroutable, j.Kind())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	if d.capacity > 0 {
		switch d.overflow {
		case OverflowDropOldest:
			for len(d.queue) >= d.capacity {
				evicted := d.pop()
				d.dropped++
				d.log.Warn("Queue full, dropping oldest job", "kind", evicted.Kind(), "job_id", evicted.ID())
			}
		default:
			for len(d.queue) >= d.capacity && !d.closed {
				d.notFull.Wait()
			}
			if d.closed {
				return ErrClosed
			}
		}
	}

	d.queue = append(d.queue, j)
	d.notEmpty.Signal()
	d.log.Debug("Job queued", "kind", j.Kind(), "job_id", j.ID(), "queued", len(d.queue))
	return nil
}

// pop removes the queue head. Callers hold d.mu and ensure the queue is not empty.
func (d *Dispatcher) pop() job.Job {
	j := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	if len(d.queue) == 0 {
		d.queue = nil
	}
	return j
}

// next blocks until a job is available. It returns false once the
// dispatcher is closed and the queue drained.
func (d *Dispatcher) next() (job.Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.queue) == 0 && !d.closed {
		d.notEmpty.Wait()
	}
	if len(d.queue) == 0 {
		return nil, false
	}

	j := d.pop()
	d.inFlight++
	d.notFull.Signal()
	return j, true
}

func (d *Dispatcher) work(worker int) {
	defer d.wg.Done()

	log := d.log.With("worker", worker)
	for {
		j, ok := d.next()
		if !ok {
			log.Debug("Worker exiting")
			return
		}

		d.run(log, j)

		d.mu.Lock()
		d.inFlight--
		d.processed++
		d.mu.Unlock()
	}
}

func (d *Dispatcher) run(log *slog.Logger, j job.Job) {
	h, ok := d.handler(j.Kind())
	if !ok {
		log.Info("Dropping job without handler", "kind", j.Kind(), "job_id", j.ID())
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job handler panicked",
				"kind", j.Kind(),
				"job_id", j.ID(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	h(d.baseCtx, j)
}

// Shutdown stops intake. Queued and in-flight jobs still run. It is safe to
// call more than once.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	d.notEmpty.Broadcast()
	d.notFull.Broadcast()
	d.log.Info("Dispatcher shutting down", "queued", len(d.queue), "in_flight", d.inFlight)
}

// Wait blocks until every worker has exited or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		d.log.Info("Dispatcher drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for dispatcher drain: %w", ctx.Err())
	}
}

// Done is closed once every worker has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Stats{
		Workers:   d.workers,
		Queued:    len(d.queue),
		InFlight:  d.inFlight,
		Processed: d.processed,
		Dropped:   d.dropped,
		Closed:    d.closed,
	}
}
