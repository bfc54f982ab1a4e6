// Package telemetry records rig status events to a time-series store.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/bguthro/seestar-alp/internal/event"
	"github.com/bguthro/seestar-alp/internal/watch"
)

// Writer stores one status sample. Writes may be buffered until Flush.
// *influxdb.Client satisfies it.
type Writer interface {
	WriteDeviceStatus(deviceID string, fields map[string]any, ts time.Time)
	Flush()
}

// StatusRecorder is a watcher that writes every PiStatus update to a Writer.
// Only fields present in the update are written.
type StatusRecorder struct {
	deviceID string
	writer   Writer
	now      func() time.Time

	mu       sync.Mutex
	samples  int
	skipped  int
	lastSeen time.Time
}

var (
	_ watch.Watcher  = (*StatusRecorder)(nil)
	_ watch.Reporter = (*StatusRecorder)(nil)
	_ watch.Flusher  = (*StatusRecorder)(nil)
)

// NewStatusRecorder creates a recorder tagging samples with deviceID.
func NewStatusRecorder(deviceID string, w Writer) *StatusRecorder {
	return &StatusRecorder{deviceID: deviceID, writer: w, now: time.Now}
}

// Name returns the watcher name.
func (r *StatusRecorder) Name() string { return "status_recorder" }

// Events returns the subscribed kinds.
func (r *StatusRecorder) Events() []event.Kind { return []event.Kind{event.PiStatus} }

// HandleEvent writes the status fields present in payload.
func (r *StatusRecorder) HandleEvent(_ context.Context, _ watch.Device, payload event.Payload) {
	fields := statusFields(event.DecodeStatus(payload))
	ts := r.now()

	r.mu.Lock()
	if len(fields) == 0 {
		r.skipped++
		r.mu.Unlock()
		return
	}
	r.samples++
	r.lastSeen = ts
	r.mu.Unlock()

	r.writer.WriteDeviceStatus(r.deviceID, fields, ts)
}

// Flush sends buffered samples. The router calls it on Stop, after the
// last PiStatus update has been handled.
func (r *StatusRecorder) Flush() {
	r.writer.Flush()
}

// statusFields flattens a Status into point fields.
func statusFields(s event.Status) map[string]any {
	fields := make(map[string]any, 5)
	if s.ChargerStatus != nil {
		fields[event.FieldChargerStatus] = *s.ChargerStatus
	}
	if d, ok := s.Discharging(); ok {
		fields["discharging"] = d
	}
	if s.ChargeOnline != nil {
		fields[event.FieldChargeOnline] = *s.ChargeOnline
	}
	if s.BatteryCapacity != nil {
		fields[event.FieldBatteryCapacity] = *s.BatteryCapacity
	}
	if s.Temp != nil {
		fields[event.FieldTemp] = *s.Temp
	}
	return fields
}

// Snapshot reports how many samples were written.
func (r *StatusRecorder) Snapshot() watch.StatusReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	fields := map[string]any{
		"device_id": r.deviceID,
		"samples":   r.samples,
		"skipped":   r.skipped,
	}
	if !r.lastSeen.IsZero() {
		fields["last_sample"] = r.lastSeen.UTC()
	}
	return watch.StatusReport{
		Name:   r.Name(),
		State:  "recording",
		Events: r.Events(),
		Fields: fields,
	}
}
