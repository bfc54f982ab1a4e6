package watch

import (
	"context"
	"errors"
	"sync"

	"github.com/bguthro/seestar-alp/internal/event"
)

// fakeDevice records every facade call in order.
type fakeDevice struct {
	mu    sync.Mutex
	calls []string
	cmds  []Command

	canPause     bool
	sendErr      error
	pauseErr     error
	calibrateErr error
	resumeErr    error
	pausePanic   bool

	pauseCtxErr  error
	resumeCtxErr error
}

func (d *fakeDevice) record(name string) {
	d.mu.Lock()
	d.calls = append(d.calls, name)
	d.mu.Unlock()
}

func (d *fakeDevice) Logger() Logger { return noopLogger{} }

func (d *fakeDevice) SendCommand(_ context.Context, cmd Command) error {
	d.mu.Lock()
	d.calls = append(d.calls, "send:"+cmd.Method)
	d.cmds = append(d.cmds, cmd)
	d.mu.Unlock()
	return d.sendErr
}

func (d *fakeDevice) CanPauseScheduler(context.Context) bool {
	d.record("can_pause")
	return d.canPause
}

func (d *fakeDevice) PauseScheduler(ctx context.Context, _ SchedulerOptions) error {
	d.record("pause")
	if d.pausePanic {
		panic("pause exploded")
	}
	d.mu.Lock()
	d.pauseCtxErr = ctx.Err()
	d.mu.Unlock()
	return d.pauseErr
}

func (d *fakeDevice) ResumeScheduler(ctx context.Context, _ SchedulerOptions) error {
	d.record("resume")
	d.mu.Lock()
	d.resumeCtxErr = ctx.Err()
	d.mu.Unlock()
	return d.resumeErr
}

func (d *fakeDevice) AttemptCalibrationFrame(context.Context) error {
	d.record("calibrate")
	return d.calibrateErr
}

func (d *fakeDevice) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDevice) Commands() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Command(nil), d.cmds...)
}

// fakeLauncher records launched command lines.
type fakeLauncher struct {
	mu       sync.Mutex
	launched []string
	err      error
}

func (l *fakeLauncher) Launch(_ context.Context, commandLine string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.launched = append(l.launched, commandLine)
	return nil
}

func (l *fakeLauncher) Launched() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.launched...)
}

// recordingNotifier collects watcher actions.
type recordingNotifier struct {
	mu      sync.Mutex
	actions []Action
}

func (n *recordingNotifier) Notify(a Action) {
	n.mu.Lock()
	n.actions = append(n.actions, a)
	n.mu.Unlock()
}

func (n *recordingNotifier) Actions() []Action {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Action(nil), n.actions...)
}

var errDevice = errors.New("device unavailable")

func snapshotWith(st event.Status) event.Snapshot {
	return event.Snapshot{Status: &st}
}

func ptr[T any](v T) *T { return &v }
