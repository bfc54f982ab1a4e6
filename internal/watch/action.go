package watch

import (
	"sync"
	"time"
)

// Action types reported by watchers.
const (
	ActionShutdown      = "shutdown"
	ActionRecalibrate   = "recalibrate"
	ActionDriftObserved = "drift_observed"
	ActionScript        = "script"
)

// Action describes something a watcher did (or decided not to do).
type Action struct {
	Watcher string         `json:"watcher"`
	Type    string         `json:"type"`
	Detail  map[string]any `json:"detail,omitempty"`
	Error   string         `json:"error,omitempty"`
	At      time.Time      `json:"at"`
}

// Notifier receives watcher actions, e.g. to broadcast them to ops clients.
// Notify is called on the watcher's goroutine and must not block.
type Notifier interface {
	Notify(a Action)
}

// notifier holds an optional Notifier for a watcher.
type notifier struct {
	mu sync.RWMutex
	n  Notifier
}

// SetNotifier sets the receiver for the watcher's actions. Nil disables it.
func (n *notifier) SetNotifier(nt Notifier) {
	n.mu.Lock()
	n.n = nt
	n.mu.Unlock()
}

func (n *notifier) notify(watcher, typ string, detail map[string]any, err error) {
	n.mu.RLock()
	nt := n.n
	n.mu.RUnlock()
	if nt == nil {
		return
	}
	a := Action{
		Watcher: watcher,
		Type:    typ,
		Detail:  detail,
		At:      time.Now().UTC(),
	}
	if err != nil {
		a.Error = err.Error()
	}
	nt.Notify(a)
}

// Notifiers fans an action out to several notifiers in order.
type Notifiers []Notifier

// Notify passes a to every non-nil notifier.
func (ns Notifiers) Notify(a Action) {
	for _, n := range ns {
		if n != nil {
			n.Notify(a)
		}
	}
}
