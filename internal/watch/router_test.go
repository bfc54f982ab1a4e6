package watch

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bguthro/seestar-alp/internal/event"
)

// recordingWatcher records the payload sequence it receives.
type recordingWatcher struct {
	name   string
	events []event.Kind

	mu       sync.Mutex
	received []event.Payload
	gate     chan struct{}
	panicOn  string
	calls    int
}

func (w *recordingWatcher) Name() string         { return w.name }
func (w *recordingWatcher) Events() []event.Kind { w.calls++; return w.events }

func (w *recordingWatcher) HandleEvent(_ context.Context, _ Device, p event.Payload) {
	if w.gate != nil {
		<-w.gate
	}
	if v, _ := p.String("id"); v != "" && v == w.panicOn {
		panic("handler failed on " + v)
	}
	p["touched"] = w.name
	w.mu.Lock()
	w.received = append(w.received, p)
	w.mu.Unlock()
}

func (w *recordingWatcher) ids() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.received))
	for _, p := range w.received {
		v, _ := p.String("id")
		out = append(out, v)
	}
	return out
}

func ev(kind event.Kind, id string) event.Event {
	return event.Event{Kind: kind, Payload: event.Payload{"id": id}}
}

func TestRouterDeliversOnlyToSubscribers(t *testing.T) {
	status := &recordingWatcher{name: "status", events: []event.Kind{event.PiStatus}}
	goTo := &recordingWatcher{name: "goto", events: []event.Kind{event.GotoComplete, event.AutoGoto}}
	none := &recordingWatcher{name: "none"}

	r := NewRouter(&fakeDevice{}, status, goTo, none)
	require.NoError(t, r.Start(context.Background()))

	assert.Equal(t, 1, r.Dispatch(ev(event.PiStatus, "a")))
	assert.Equal(t, 1, r.Dispatch(ev(event.AutoGoto, "b")))
	assert.Equal(t, 0, r.Dispatch(ev(event.Stack, "c")))
	r.Stop()

	assert.Equal(t, []string{"a"}, status.ids())
	assert.Equal(t, []string{"b"}, goTo.ids())
	assert.Empty(t, none.ids())
}

func TestRouterReadsEventsOnce(t *testing.T) {
	w := &recordingWatcher{name: "w", events: []event.Kind{event.PiStatus}}
	r := NewRouter(&fakeDevice{}, w)
	require.NoError(t, r.Start(context.Background()))
	for i := 0; i < 5; i++ {
		r.Dispatch(ev(event.PiStatus, "x"))
	}
	r.Stop()

	assert.Equal(t, 1, w.calls)
}

func TestRouterPreservesPerWatcherOrder(t *testing.T) {
	w := &recordingWatcher{name: "w", events: []event.Kind{event.PiStatus, event.Stack}}
	r := NewRouter(&fakeDevice{}, w)
	require.NoError(t, r.Start(context.Background()))

	var want []string
	for i := 0; i < 200; i++ {
		id := strconv.Itoa(i)
		kind := event.PiStatus
		if i%3 == 0 {
			kind = event.Stack
		}
		r.Dispatch(ev(kind, id))
		want = append(want, id)
	}
	r.Stop()

	assert.Equal(t, want, w.ids())
}

func TestRouterSlowWatcherDoesNotStallOthers(t *testing.T) {
	gate := make(chan struct{})
	slow := &recordingWatcher{name: "slow", events: []event.Kind{event.PiStatus}, gate: gate}
	fast := &recordingWatcher{name: "fast", events: []event.Kind{event.PiStatus}}

	r := NewRouter(&fakeDevice{}, slow, fast)
	r.SetBacklogWarning(2)
	require.NoError(t, r.Start(context.Background()))

	for _, id := range []string{"1", "2", "3"} {
		assert.Equal(t, 2, r.Dispatch(ev(event.PiStatus, id)))
	}

	assert.Eventually(t, func() bool { return len(fast.ids()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, slow.ids())

	close(gate)
	r.Stop()
	assert.Equal(t, []string{"1", "2", "3"}, slow.ids())

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "slow", stats[0].Watcher)
	assert.Equal(t, uint64(3), stats[0].Delivered)
	assert.GreaterOrEqual(t, stats[0].MaxBacklog, 2)
	assert.Equal(t, 0, stats[0].Queued)
}

func TestRouterIsolatesPanicsAndPayloads(t *testing.T) {
	bad := &recordingWatcher{name: "bad", events: []event.Kind{event.PiStatus}, panicOn: "boom"}
	good := &recordingWatcher{name: "good", events: []event.Kind{event.PiStatus}}

	r := NewRouter(&fakeDevice{}, bad, good)
	require.NoError(t, r.Start(context.Background()))

	original := ev(event.PiStatus, "boom")
	r.Dispatch(original)
	r.Dispatch(ev(event.PiStatus, "after"))
	r.Stop()

	assert.Equal(t, []string{"after"}, bad.ids(), "worker survives a panic")
	assert.Equal(t, []string{"boom", "after"}, good.ids())
	assert.False(t, original.Payload.Has("touched"), "handlers get their own copy")

	good.mu.Lock()
	assert.Equal(t, "good", good.received[0]["touched"])
	good.mu.Unlock()

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats[0].Panics)
	assert.Equal(t, uint64(1), stats[0].Delivered)
}

func TestRouterRoutesFollowRegistrationOrder(t *testing.T) {
	a := &recordingWatcher{name: "a", events: []event.Kind{event.PiStatus, event.PiStatus}}
	b := &recordingWatcher{name: "b", events: []event.Kind{event.PiStatus, event.Alert}}

	r := NewRouter(&fakeDevice{}, a, nil, b)

	routes := r.Routes()
	assert.Equal(t, []string{"a", "b"}, routes[event.PiStatus])
	assert.Equal(t, []string{"b"}, routes[event.Alert])
	assert.Len(t, r.Watchers(), 2)

	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, 2, r.Dispatch(ev(event.PiStatus, "once")))
	r.Stop()
	assert.Equal(t, []string{"once"}, a.ids(), "duplicate subscription delivers once")
}

func TestRouterLifecycle(t *testing.T) {
	w := &recordingWatcher{name: "w", events: []event.Kind{event.PiStatus}}
	r := NewRouter(&fakeDevice{}, w)

	// Queued before Start, delivered after.
	assert.Equal(t, 1, r.Dispatch(ev(event.PiStatus, "early")))
	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Start(context.Background()), ErrRouterStarted)

	r.Stop()
	r.Stop()
	assert.Equal(t, []string{"early"}, w.ids())

	assert.Equal(t, 0, r.Dispatch(ev(event.PiStatus, "late")))
	assert.ErrorIs(t, r.Start(context.Background()), ErrRouterStopped)
}

// flushingWatcher records how many events it had handled when flushed.
type flushingWatcher struct {
	recordingWatcher
	flushedAfter []int
}

func (w *flushingWatcher) Flush() {
	w.mu.Lock()
	w.flushedAfter = append(w.flushedAfter, len(w.received))
	w.mu.Unlock()
}

func TestRouterStopFlushesAfterDrain(t *testing.T) {
	gate := make(chan struct{})
	w := &flushingWatcher{recordingWatcher: recordingWatcher{
		name: "buffered", events: []event.Kind{event.PiStatus}, gate: gate,
	}}
	r := NewRouter(&fakeDevice{}, w)
	require.NoError(t, r.Start(context.Background()))

	r.Dispatch(ev(event.PiStatus, "1"))
	r.Dispatch(ev(event.PiStatus, "2"))
	close(gate)

	r.Stop()
	r.Stop()
	assert.Equal(t, []int{2}, w.flushedAfter, "flushed once, after both events")
}

func TestRouterReports(t *testing.T) {
	dev := &fakeDevice{}
	battery := NewBatteryWatch(dev, event.Snapshot{}, BatteryConfig{LowCapacityLimit: 5})
	plain := &recordingWatcher{name: "plain", events: []event.Kind{event.Stack}}
	script := NewUserScriptEvent(dev, UserScript{Name: "s", Events: []event.Kind{event.Stack}, Execute: "true"}, &fakeLauncher{})

	r := NewRouter(dev, battery, plain, script)
	reports := r.Reports()

	require.Len(t, reports, 2)
	assert.Equal(t, "battery", reports[0].Name)
	assert.Equal(t, "armed", reports[0].State)
	assert.Equal(t, "user_script:s", reports[1].Name)
}

func TestRouterWithWatchersEndToEnd(t *testing.T) {
	dev := &fakeDevice{canPause: true}
	battery := NewBatteryWatch(dev, event.Snapshot{}, BatteryConfig{LowCapacityLimit: 15})
	temp := NewSensorTempWatch(dev, event.Snapshot{}, SensorTempConfig{MaxChange: 2, Recalibrate: true})

	r := NewRouter(dev, battery, temp)
	require.NoError(t, r.Start(context.Background()))

	r.Dispatch(event.Event{Kind: event.PiStatus, Payload: event.Payload{event.FieldTemp: 5.0}})
	r.Dispatch(event.Event{Kind: event.PiStatus, Payload: event.Payload{
		event.FieldTemp:            9.0,
		event.FieldBatteryCapacity: float64(10),
		event.FieldChargerStatus:   "Discharging",
		event.FieldChargeOnline:    false,
	}})
	r.Stop()

	assert.Len(t, dev.Commands(), 1)
	assert.Equal(t, BatteryFired, battery.State())
	ref, _ := temp.Reference()
	assert.Equal(t, 9.0, ref)
}
