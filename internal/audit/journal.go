package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bguthro/seestar-alp/internal/process"
	"github.com/bguthro/seestar-alp/internal/rig"
	"github.com/bguthro/seestar-alp/internal/watch"
)

// Source identifies alpwatch as the writer of journal entries.
const Source = "alpwatch"

const (
	defaultQueueSize = 256
	drainTimeout     = 5 * time.Second
)

// Logger is the logging surface the journal needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Journal queues entries from the rig client, the process launcher and
// watchers, and writes them to a Repository on its own goroutine.
//
// Record methods never block: when the queue is full the entry is dropped
// and a warning logged.
type Journal struct {
	repo   Repository
	logger Logger
	queue  chan Entry

	mu      sync.Mutex
	closed  bool
	dropped int
}

var (
	_ rig.Journal    = (*Journal)(nil)
	_ watch.Notifier = (*Journal)(nil)
)

// NewJournal creates a journal. queueSize <= 0 uses a default.
func NewJournal(repo Repository, queueSize int, logger Logger) *Journal {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Journal{
		repo:   repo,
		logger: logger,
		queue:  make(chan Entry, queueSize),
	}
}

// Run writes queued entries until ctx is done, then drains what is left.
// No entries are accepted once Run returns.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case e := <-j.queue:
			j.write(ctx, e)
		case <-ctx.Done():
			j.mu.Lock()
			j.closed = true
			j.mu.Unlock()

			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			defer cancel()
			for {
				select {
				case e := <-j.queue:
					j.write(drainCtx, e)
				default:
					return nil
				}
			}
		}
	}
}

func (j *Journal) write(ctx context.Context, e Entry) {
	if err := j.repo.Create(ctx, &e); err != nil && !errors.Is(err, context.Canceled) {
		j.logger.Error("writing audit entry", "action", e.Action, "entity_id", e.EntityID, "error", err)
	}
}

// enqueue adds e without blocking.
func (j *Journal) enqueue(e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Source = Source

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		j.dropped++
		j.logger.Warn("audit journal stopped, dropping entry", "action", e.Action, "dropped", j.dropped)
		return
	}
	select {
	case j.queue <- e:
	default:
		j.dropped++
		j.logger.Warn("audit queue full, dropping entry", "action", e.Action, "dropped", j.dropped)
	}
}

// Dropped returns how many entries were dropped, either because the queue
// was full or because Run had already returned.
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// RecordCommand records a device command outcome.
func (j *Journal) RecordCommand(_ context.Context, rec rig.CommandRecord) {
	details := map[string]any{
		"command_id":  rec.ID,
		"method":      rec.Method,
		"duration_ms": rec.Duration.Milliseconds(),
	}
	if len(rec.Params) > 0 {
		details["params"] = rec.Params
	}
	if rec.Err != nil {
		details["error"] = rec.Err.Error()
	}
	j.enqueue(Entry{
		Action:     ActionCommand,
		EntityType: EntityDevice,
		EntityID:   rec.DeviceID,
		Details:    details,
	})
}

// Notify records a watcher action.
func (j *Journal) Notify(a watch.Action) {
	details := map[string]any{"type": a.Type}
	for k, v := range a.Detail {
		details[k] = v
	}
	if a.Error != "" {
		details["error"] = a.Error
	}
	j.enqueue(Entry{
		Action:     ActionWatcher,
		EntityType: EntityWatcher,
		EntityID:   a.Watcher,
		Details:    details,
		CreatedAt:  a.At,
	})
}

// ScriptExited records a finished user script. It matches
// process.Config.OnExit.
func (j *Journal) ScriptExited(e process.ExitInfo) {
	details := map[string]any{
		"execute":     e.CommandLine,
		"pid":         e.PID,
		"exit_code":   e.ExitCode,
		"duration_ms": e.Duration.Milliseconds(),
	}
	if e.Err != nil {
		details["error"] = e.Err.Error()
	}
	j.enqueue(Entry{
		Action:     ActionScript,
		EntityType: EntityScript,
		EntityID:   e.CommandLine,
		Details:    details,
	})
}
