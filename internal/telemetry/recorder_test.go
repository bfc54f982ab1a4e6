package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bguthro/seestar-alp/internal/event"
	"github.com/bguthro/seestar-alp/internal/watch"
)

type sample struct {
	deviceID string
	fields   map[string]any
	ts       time.Time
}

type fakeWriter struct {
	mu      sync.Mutex
	samples []sample
	flushes int
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	w.flushes++
	w.mu.Unlock()
}

func (w *fakeWriter) WriteDeviceStatus(deviceID string, fields map[string]any, ts time.Time) {
	w.mu.Lock()
	w.samples = append(w.samples, sample{deviceID, fields, ts})
	w.mu.Unlock()
}

func TestStatusRecorderWritesPresentFields(t *testing.T) {
	w := &fakeWriter{}
	r := NewStatusRecorder("s50", w)
	fixed := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.HandleEvent(context.Background(), nil, event.Payload{
		"Event":                    "PiStatus",
		event.FieldBatteryCapacity: json.Number("58"),
		event.FieldChargerStatus:   "Discharging",
		event.FieldTemp:            json.Number("34.2"),
		"unrelated":                "ignored",
	})

	require.Len(t, w.samples, 1)
	s := w.samples[0]
	assert.Equal(t, "s50", s.deviceID)
	assert.Equal(t, fixed, s.ts)
	assert.Equal(t, map[string]any{
		event.FieldBatteryCapacity: 58,
		event.FieldChargerStatus:   "Discharging",
		"discharging":              true,
		event.FieldTemp:            34.2,
	}, s.fields)

	rep := r.Snapshot()
	assert.Equal(t, "status_recorder", rep.Name)
	assert.Equal(t, 1, rep.Fields["samples"])
	assert.Equal(t, fixed, rep.Fields["last_sample"])
}

func TestStatusRecorderSkipsEmptyUpdates(t *testing.T) {
	w := &fakeWriter{}
	r := NewStatusRecorder("s50", w)

	r.HandleEvent(context.Background(), nil, event.Payload{"Event": "PiStatus"})
	r.HandleEvent(context.Background(), nil, event.Payload{event.FieldBatteryCapacity: "lots"})

	assert.Empty(t, w.samples)
	rep := r.Snapshot()
	assert.Equal(t, 2, rep.Fields["skipped"])
	assert.NotContains(t, rep.Fields, "last_sample")
}

func TestStatusRecorderEvents(t *testing.T) {
	r := NewStatusRecorder("s50", &fakeWriter{})
	assert.Equal(t, []event.Kind{event.PiStatus}, r.Events())
}

func TestStatusRecorderFlushedOnRouterStop(t *testing.T) {
	w := &fakeWriter{}
	r := NewStatusRecorder("s50", w)
	router := watch.NewRouter(nil, r)
	require.NoError(t, router.Start(context.Background()))

	router.Dispatch(event.Event{Kind: event.PiStatus, Payload: event.Payload{event.FieldTemp: json.Number("30")}})
	router.Stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Len(t, w.samples, 1)
	assert.Equal(t, 1, w.flushes)
}
