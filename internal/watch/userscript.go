package watch

import (
	"context"
	"slices"
	"sync"

	"github.com/bguthro/seestar-alp/internal/event"
)

// UserScript binds an operator command line to device events.
type UserScript struct {
	// Name identifies the script in logs. Optional.
	Name string

	// Events are the kinds that launch the script. Empty means none.
	Events []event.Kind

	// Execute is the command line passed to the launcher.
	Execute string
}

// UserScriptEvent launches a user script on every subscribed event.
//
// It never waits for the script, never inspects its exit status and never
// latches: each delivered event launches the script again.
type UserScriptEvent struct {
	notifier

	script   UserScript
	events   []event.Kind
	launcher Launcher

	mu       sync.Mutex
	launches int
	failures int
}

// NewUserScriptEvent creates a watcher for script using launcher to start it.
func NewUserScriptEvent(dev Device, script UserScript, launcher Launcher) *UserScriptEvent {
	w := &UserScriptEvent{
		script:   script,
		events:   slices.Clone(script.Events),
		launcher: launcher,
	}
	if w.events == nil {
		w.events = []event.Kind{}
	}
	deviceLogger(dev).Info("user script watch initialised",
		"script", w.Name(),
		"events", w.events,
		"execute", script.Execute,
	)
	return w
}

// Name returns the script name, or "user_script" when unnamed.
func (w *UserScriptEvent) Name() string {
	if w.script.Name != "" {
		return "user_script:" + w.script.Name
	}
	return "user_script"
}

// Events returns the subscribed kinds.
func (w *UserScriptEvent) Events() []event.Kind {
	return slices.Clone(w.events)
}

// HandleEvent launches the script. The payload is not inspected.
func (w *UserScriptEvent) HandleEvent(ctx context.Context, dev Device, _ event.Payload) {
	log := deviceLogger(dev)
	log.Info("user script event fired", "script", w.Name(), "execute", w.script.Execute)

	var err error
	if w.launcher == nil {
		err = errNoLauncher
	} else {
		err = w.launcher.Launch(ctx, w.script.Execute)
	}

	w.mu.Lock()
	if err != nil {
		w.failures++
	} else {
		w.launches++
	}
	w.mu.Unlock()

	if err != nil {
		log.Error("user script launch failed", "script", w.Name(), "error", err)
	}
	w.notify(w.Name(), ActionScript, map[string]any{"execute": w.script.Execute}, err)
}

// Launches returns the number of successful launches.
func (w *UserScriptEvent) Launches() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.launches
}

// Snapshot reports launch counts for the script.
func (w *UserScriptEvent) Snapshot() StatusReport {
	w.mu.Lock()
	defer w.mu.Unlock()
	return StatusReport{
		Name:   w.Name(),
		State:  "ready",
		Events: w.Events(),
		Fields: map[string]any{
			"execute":  w.script.Execute,
			"launches": w.launches,
			"failures": w.failures,
		},
	}
}
