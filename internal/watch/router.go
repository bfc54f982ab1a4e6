package watch

import (
	"context"
	"slices"
	"sync"

	"github.com/bguthro/seestar-alp/internal/event"
)

// DefaultBacklogWarning is the mailbox depth at which a watcher is reported
// as falling behind.
const DefaultBacklogWarning = 64

// delivery is one queued event for a watcher.
type delivery struct {
	kind    event.Kind
	payload event.Payload
}

// worker owns one watcher's mailbox and goroutine.
type worker struct {
	watcher Watcher
	events  []event.Kind

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []delivery
	closed     bool
	warned     bool
	delivered  uint64
	panics     uint64
	maxBacklog int
}

func newWorker(w Watcher) *worker {
	wk := &worker{watcher: w}
	wk.cond = sync.NewCond(&wk.mu)
	return wk
}

// WorkerStats describes a watcher's mailbox for the ops API.
type WorkerStats struct {
	Watcher    string       `json:"watcher"`
	Events     []event.Kind `json:"events"`
	Queued     int          `json:"queued"`
	Delivered  uint64       `json:"delivered"`
	Panics     uint64       `json:"panics"`
	MaxBacklog int          `json:"max_backlog"`
}

// Router delivers device events to the watchers subscribed to them.
//
// Subscriptions are resolved once in NewRouter. Every watcher runs on its
// own goroutine and processes its events one at a time, in the order they
// were dispatched. For a given event, watchers are enqueued in registration
// order.
//
// Thread Safety: Dispatch, Routes, Stats and Reports are safe for
// concurrent use.
type Router struct {
	dev     Device
	logger  Logger
	workers []*worker
	routes  map[event.Kind][]*worker

	backlogWarning int

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRouter creates a router for the given watchers.
//
// Each watcher's Events is read exactly once here. A kind listed more than
// once by the same watcher is delivered to it only once. Nil watchers are
// skipped.
func NewRouter(dev Device, watchers ...Watcher) *Router {
	r := &Router{
		dev:            dev,
		logger:         deviceLogger(dev),
		routes:         make(map[event.Kind][]*worker),
		backlogWarning: DefaultBacklogWarning,
	}

	for _, w := range watchers {
		if w == nil {
			continue
		}
		wk := newWorker(w)
		for _, k := range w.Events() {
			if slices.Contains(wk.events, k) {
				continue
			}
			wk.events = append(wk.events, k)
			r.routes[k] = append(r.routes[k], wk)
		}
		r.workers = append(r.workers, wk)
	}

	return r
}

// SetLogger sets the router's own logger. Watchers keep using the device's.
func (r *Router) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// SetBacklogWarning sets the mailbox depth that triggers a backlog warning.
// Zero or negative disables the warning. Must be called before Start.
func (r *Router) SetBacklogWarning(n int) {
	r.backlogWarning = n
}

// Start launches one goroutine per watcher. Handlers receive ctx.
//
// Events dispatched before Start are queued and delivered once it runs.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrRouterStopped
	}
	if r.started {
		return ErrRouterStarted
	}
	r.started = true

	for _, wk := range r.workers {
		r.wg.Add(1)
		go func(wk *worker) {
			defer r.wg.Done()
			r.run(ctx, wk)
		}(wk)
	}

	r.logger.Info("watch router started", "watchers", len(r.workers), "kinds", len(r.routes))
	return nil
}

// Dispatch queues ev for every watcher subscribed to its kind and returns
// the number of watchers it was queued for. It never blocks on a watcher.
// Events dispatched after Stop are dropped.
func (r *Router) Dispatch(ev event.Event) int {
	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		return 0
	}

	targets := r.routes[ev.Kind]
	queued := 0
	for _, wk := range targets {
		if r.enqueue(wk, delivery{kind: ev.Kind, payload: ev.Payload.Clone()}) {
			queued++
		}
	}

	if len(targets) == 0 {
		r.logger.Debug("no watchers for event", "kind", ev.Kind)
	}
	return queued
}

func (r *Router) enqueue(wk *worker, d delivery) bool {
	wk.mu.Lock()
	if wk.closed {
		wk.mu.Unlock()
		return false
	}
	wk.queue = append(wk.queue, d)
	depth := len(wk.queue)
	if depth > wk.maxBacklog {
		wk.maxBacklog = depth
	}
	warn := r.backlogWarning > 0 && depth >= r.backlogWarning && !wk.warned
	if warn {
		wk.warned = true
	}
	wk.mu.Unlock()
	wk.cond.Signal()

	if warn {
		r.logger.Warn("watcher falling behind",
			"watcher", wk.watcher.Name(),
			"queued", depth,
		)
	}
	return true
}

// run drains wk's mailbox until it is closed and empty.
func (r *Router) run(ctx context.Context, wk *worker) {
	for {
		wk.mu.Lock()
		for len(wk.queue) == 0 && !wk.closed {
			wk.cond.Wait()
		}
		if len(wk.queue) == 0 {
			wk.mu.Unlock()
			return
		}
		d := wk.queue[0]
		wk.queue[0] = delivery{}
		wk.queue = wk.queue[1:]
		if len(wk.queue) == 0 {
			wk.warned = false
		}
		wk.mu.Unlock()

		r.deliver(ctx, wk, d)
	}
}

// deliver invokes the handler, recovering any panic so the worker survives.
func (r *Router) deliver(ctx context.Context, wk *worker, d delivery) {
	defer func() {
		if rec := recover(); rec != nil {
			wk.mu.Lock()
			wk.panics++
			wk.mu.Unlock()
			r.logger.Error("watcher panic recovered",
				"watcher", wk.watcher.Name(),
				"kind", d.kind,
				"panic", rec,
			)
		}
	}()

	wk.watcher.HandleEvent(ctx, r.dev, d.payload)

	wk.mu.Lock()
	wk.delivered++
	wk.mu.Unlock()
}

// Stop closes every mailbox, waits for queued events to be handled and
// for all workers to exit. It is safe to call more than once. Events still
// queued on a router that was never started are discarded.
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		started := r.started
		r.mu.Unlock()

		for _, wk := range r.workers {
			wk.mu.Lock()
			wk.closed = true
			if !started {
				wk.queue = nil
			}
			wk.mu.Unlock()
			wk.cond.Broadcast()
		}

		r.wg.Wait()
		for _, wk := range r.workers {
			if f, ok := wk.watcher.(Flusher); ok {
				f.Flush()
			}
		}
		r.logger.Info("watch router stopped")
	})
}

// Routes returns the watcher names subscribed to each kind, in delivery
// order.
func (r *Router) Routes() map[event.Kind][]string {
	out := make(map[event.Kind][]string, len(r.routes))
	for k, workers := range r.routes {
		names := make([]string, 0, len(workers))
		for _, wk := range workers {
			names = append(names, wk.watcher.Name())
		}
		out[k] = names
	}
	return out
}

// Stats returns mailbox statistics for every watcher in registration order.
func (r *Router) Stats() []WorkerStats {
	stats := make([]WorkerStats, 0, len(r.workers))
	for _, wk := range r.workers {
		wk.mu.Lock()
		stats = append(stats, WorkerStats{
			Watcher:    wk.watcher.Name(),
			Events:     slices.Clone(wk.events),
			Queued:     len(wk.queue),
			Delivered:  wk.delivered,
			Panics:     wk.panics,
			MaxBacklog: wk.maxBacklog,
		})
		wk.mu.Unlock()
	}
	return stats
}

// Reports returns a StatusReport for every watcher that provides one.
func (r *Router) Reports() []StatusReport {
	reports := make([]StatusReport, 0, len(r.workers))
	for _, wk := range r.workers {
		if rep, ok := wk.watcher.(Reporter); ok {
			reports = append(reports, rep.Snapshot())
		}
	}
	return reports
}

// Watchers returns the registered watchers in registration order.
func (r *Router) Watchers() []Watcher {
	out := make([]Watcher, 0, len(r.workers))
	for _, wk := range r.workers {
		out = append(out, wk.watcher)
	}
	return out
}
