// ABOUTME: Recurring tick driver for the beat clock engine
// ABOUTME: Ticks the engine from a host clock and serializes control calls
package beatclock

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/linkclock-go/pkg/link"
)

// ErrStopped is returned by Do once the runner has been stopped.
var ErrStopped = errors.New("beatclock: runner stopped")

// RunnerConfig holds runner configuration
type RunnerConfig struct {
	// Interval between ticks. Zero re-runs the tick as soon as the
	// previous one returns.
	Interval time.Duration

	// QueueSize bounds pending control calls (default 64)
	QueueSize int
}

// Runner calls Engine.Tick repeatedly on a single goroutine. Control calls
// submitted with Do run on the same goroutine between ticks, so the engine
// never sees concurrent access.
type Runner struct {
	engine   *Engine
	clock    link.Clock
	interval time.Duration
	calls    chan func(*Engine)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	started bool

	ticks atomic.Int64
}

// NewRunner creates a runner; call Start to begin ticking
func NewRunner(engine *Engine, clock link.Clock, config RunnerConfig) *Runner {
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		engine:   engine,
		clock:    clock,
		interval: config.Interval,
		calls:    make(chan func(*Engine), config.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start launches the tick loop. Calling Start more than once, or after
// Stop, has no effect.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started || r.ctx.Err() != nil {
		return
	}
	r.started = true

	go r.run()
}

// Do queues fn to run on the tick goroutine before the next tick
func (r *Runner) Do(fn func(*Engine)) error {
	if r.ctx.Err() != nil {
		return ErrStopped
	}

	select {
	case r.calls <- fn:
		return nil
	case <-r.ctx.Done():
		return ErrStopped
	}
}

// Stop ends the tick loop and waits for it to exit. Safe to call twice.
func (r *Runner) Stop() {
	r.mu.Lock()
	started := r.started
	r.cancel()
	r.mu.Unlock()

	if started {
		<-r.done
	}
}

// Ticks returns how many ticks have run
func (r *Runner) Ticks() int64 {
	return r.ticks.Load()
}

// run is the tick loop: tick, then resubmit
func (r *Runner) run() {
	defer close(r.done)

	var tickC <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		r.engine.Tick(r.clock.Now())
		r.ticks.Add(1)

		if tickC == nil {
			select {
			case <-r.ctx.Done():
				return
			case fn := <-r.calls:
				fn(r.engine)
			default:
				runtime.Gosched()
			}
			continue
		}

	wait:
		for {
			select {
			case <-r.ctx.Done():
				return
			case fn := <-r.calls:
				fn(r.engine)
			case <-tickC:
				break wait
			}
		}
	}
}
