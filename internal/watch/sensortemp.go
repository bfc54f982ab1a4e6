package watch

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bguthro/seestar-alp/internal/event"
)

// SensorTempConfig configures a SensorTempWatch.
type SensorTempConfig struct {
	// MaxChange is the drift in degrees that triggers a recalibration.
	MaxChange float64

	// Recalibrate enables the pause, calibrate and resume sequence.
	// When false a drift is only logged.
	Recalibrate bool

	// Timeout bounds the pause and calibration steps. Zero means no limit.
	// The resume step is not bounded by it.
	Timeout time.Duration
}

// SensorTempState is the SensorTempWatch state.
type SensorTempState int

const (
	// TempUnseeded means no reference temperature is known yet.
	TempUnseeded SensorTempState = iota
	// TempStable means the reading is within MaxChange of the reference.
	TempStable
	// TempDriftObserved means a drift was seen but no recalibration ran.
	TempDriftObserved
	// TempRecalibrating means the pause and calibrate sequence is running.
	TempRecalibrating
)

func (s SensorTempState) String() string {
	switch s {
	case TempUnseeded:
		return "unseeded"
	case TempStable:
		return "stable"
	case TempDriftObserved:
		return "drift_observed"
	case TempRecalibrating:
		return "recalibrating"
	default:
		return fmt.Sprintf("SensorTempState(%d)", int(s))
	}
}

// SensorTempWatch recalibrates when the sensor temperature drifts.
//
// The reference temperature comes from the snapshot, or from the first
// reading when the snapshot has none. A reading further than MaxChange
// from the reference triggers a recalibration if it is enabled and the
// scheduler can be paused. The reference moves to the new reading only
// after a successful pause and calibration; otherwise it is kept so the
// next reading is compared against the same baseline.
type SensorTempWatch struct {
	notifier

	cfg SensorTempConfig

	mu           sync.Mutex
	reference    float64
	state        SensorTempState
	triggered    bool
	lastReading  *float64
	recalibrated int
}

// NewSensorTempWatch creates a SensorTempWatch seeded from the snapshot.
func NewSensorTempWatch(dev Device, snap event.Snapshot, cfg SensorTempConfig) *SensorTempWatch {
	w := &SensorTempWatch{cfg: cfg}

	if st := snap.StatusOrEmpty(); st.Temp != nil {
		w.reference = *st.Temp
		w.state = TempStable
	}

	args := []any{"max_change", cfg.MaxChange, "recalibrate", cfg.Recalibrate}
	if w.state == TempStable {
		args = append(args, "reference_temp", w.reference)
	}
	deviceLogger(dev).Info("sensor temperature watch initialised", args...)
	return w
}

// Name returns the watcher name.
func (w *SensorTempWatch) Name() string { return "sensor_temp" }

// Events returns the subscribed kinds.
func (w *SensorTempWatch) Events() []event.Kind { return []event.Kind{event.PiStatus} }

// HandleEvent compares a temperature reading with the reference.
func (w *SensorTempWatch) HandleEvent(ctx context.Context, dev Device, payload event.Payload) {
	log := deviceLogger(dev)

	if !payload.Has(event.FieldTemp) {
		return
	}
	reading, ok := payload.Float(event.FieldTemp)
	if !ok {
		log.Warn("sensor temperature watch ignoring malformed reading", "value", payload[event.FieldTemp])
		return
	}

	w.mu.Lock()
	w.lastReading = &reading
	if w.state == TempUnseeded {
		w.reference = reading
		w.state = TempStable
		w.mu.Unlock()
		log.Debug("sensor temperature reference seeded", "reference_temp", reading)
		return
	}
	reference := w.reference
	drift := math.Abs(reference - reading)
	if drift <= w.cfg.MaxChange {
		w.state = TempStable
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	log.Warn("sensor temperature drift above limit",
		"reference_temp", reference,
		"temp", reading,
		"max_change", w.cfg.MaxChange,
	)

	if !w.cfg.Recalibrate || !dev.CanPauseScheduler(ctx) {
		w.mu.Lock()
		w.state = TempDriftObserved
		w.triggered = true
		w.mu.Unlock()
		log.Info("sensor temperature drift noted, recalibration not run",
			"recalibrate", w.cfg.Recalibrate,
		)
		w.notify(w.Name(), ActionDriftObserved, map[string]any{"reference_temp": reference, "temp": reading}, nil)
		return
	}

	w.mu.Lock()
	w.state = TempRecalibrating
	w.triggered = true
	w.mu.Unlock()

	err := w.recalibrate(ctx, dev, log)

	w.mu.Lock()
	if err == nil {
		w.reference = reading
		w.state = TempStable
		w.recalibrated++
	} else {
		w.state = TempDriftObserved
	}
	w.mu.Unlock()

	if err != nil {
		log.Error("sensor temperature recalibration failed", "error", err)
	} else {
		log.Info("sensor temperature recalibration complete", "reference_temp", reading)
	}
	w.notify(w.Name(), ActionRecalibrate, map[string]any{"reference_temp": reference, "temp": reading}, err)
}

// recalibrate runs pause, calibrate and resume. Resume is attempted on every
// exit path, including panics in the device, using a context that survives
// cancellation of ctx.
func (w *SensorTempWatch) recalibrate(ctx context.Context, dev Device, log Logger) (err error) {
	resumeCtx := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recalibration panicked: %v", r)
		}
		if resumeErr := dev.ResumeScheduler(resumeCtx, SchedulerOptions{}); resumeErr != nil {
			log.Error("resume scheduler failed", "error", resumeErr)
		}
	}()

	stepCtx := ctx
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	if err := dev.PauseScheduler(stepCtx, SchedulerOptions{}); err != nil {
		return fmt.Errorf("pause scheduler: %w", err)
	}
	if err := dev.AttemptCalibrationFrame(stepCtx); err != nil {
		return fmt.Errorf("calibration frame: %w", err)
	}
	return nil
}

// State returns the current state.
func (w *SensorTempWatch) State() SensorTempState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Reference returns the reference temperature and whether it is seeded.
func (w *SensorTempWatch) Reference() (float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reference, w.state != TempUnseeded
}

// Triggered reports whether a drift above MaxChange has ever been observed.
// It is informational only and does not suppress later recalibrations.
func (w *SensorTempWatch) Triggered() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.triggered
}

// Snapshot reports the watcher's current view of the sensor temperature.
func (w *SensorTempWatch) Snapshot() StatusReport {
	w.mu.Lock()
	defer w.mu.Unlock()
	fields := map[string]any{
		"max_change":   w.cfg.MaxChange,
		"recalibrate":  w.cfg.Recalibrate,
		"triggered":    w.triggered,
		"recalibrated": w.recalibrated,
	}
	if w.state != TempUnseeded {
		fields["reference_temp"] = w.reference
	}
	if w.lastReading != nil {
		fields["last_temp"] = *w.lastReading
	}
	return StatusReport{
		Name:   w.Name(),
		State:  w.state.String(),
		Events: w.Events(),
		Fields: fields,
	}
}
