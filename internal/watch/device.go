package watch

import (
	"context"

	"github.com/bguthro/seestar-alp/internal/event"
)

// Logger is the logging surface watchers use.
// It matches the subset of *logging.Logger the package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Command is a device command sent synchronously to the rig.
type Command struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// Device command methods issued by watchers.
const (
	MethodShutdown = "pi_shutdown"
)

// SchedulerOptions are passed through to the device's pause and resume
// operations. An empty value means the device defaults.
type SchedulerOptions map[string]any

// Device is the view of the rig that watchers act on.
//
// All methods may block on the device. Implementations must be safe for
// concurrent use since every watcher runs on its own goroutine.
type Device interface {
	// Logger returns the device's logger. It must not return nil.
	Logger() Logger

	// SendCommand sends a command and waits for the device to accept it.
	SendCommand(ctx context.Context, cmd Command) error

	// CanPauseScheduler reports whether the scheduler is currently in a
	// state that can be paused.
	CanPauseScheduler(ctx context.Context) bool

	// PauseScheduler pauses the imaging scheduler.
	PauseScheduler(ctx context.Context, opts SchedulerOptions) error

	// ResumeScheduler resumes a paused scheduler.
	ResumeScheduler(ctx context.Context, opts SchedulerOptions) error

	// AttemptCalibrationFrame captures a fresh dark calibration frame.
	AttemptCalibrationFrame(ctx context.Context) error
}

// Launcher starts external processes on behalf of user scripts.
type Launcher interface {
	// Launch starts commandLine detached from the caller and returns as
	// soon as the process has started.
	Launch(ctx context.Context, commandLine string) error
}

// Watcher reacts to device events.
type Watcher interface {
	// Name identifies the watcher in logs and status reports.
	Name() string

	// Events returns the event kinds the watcher subscribes to. The result
	// must be the same on every call; the router reads it once.
	Events() []event.Kind

	// HandleEvent applies a payload delivered for one of the watcher's
	// events. It must tolerate missing or unexpected keys and never panics
	// on malformed input.
	HandleEvent(ctx context.Context, dev Device, payload event.Payload)
}

// StatusReport is a point-in-time view of a watcher for the ops API.
type StatusReport struct {
	Name   string         `json:"name"`
	State  string         `json:"state"`
	Events []event.Kind   `json:"events"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Reporter is implemented by watchers that expose a StatusReport.
type Reporter interface {
	Snapshot() StatusReport
}

// Flusher is implemented by watchers that buffer output. Router.Stop calls
// Flush once every mailbox has drained.
type Flusher interface {
	Flush()
}

// deviceLogger returns the device's logger, falling back to a noop logger.
func deviceLogger(dev Device) Logger {
	if dev == nil {
		return noopLogger{}
	}
	if l := dev.Logger(); l != nil {
		return l
	}
	return noopLogger{}
}
