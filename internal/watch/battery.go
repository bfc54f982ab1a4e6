package watch

import (
	"context"
	"sync"

	"github.com/bguthro/seestar-alp/internal/event"
)

// BatteryConfig configures a BatteryWatch.
type BatteryConfig struct {
	// LowCapacityLimit is the capacity percentage at or below which the
	// rig is shut down when running on battery.
	LowCapacityLimit int
}

// BatteryState is the BatteryWatch latch.
type BatteryState int

const (
	// BatteryArmed means the shutdown has not been issued.
	BatteryArmed BatteryState = iota
	// BatteryFired means the shutdown was issued. It is never cleared.
	BatteryFired
)

func (s BatteryState) String() string {
	if s == BatteryFired {
		return "fired"
	}
	return "armed"
}

// Battery defaults used when the snapshot has no value.
const (
	defaultDischarging     = false
	defaultChargeOnline    = true
	defaultBatteryCapacity = 100
)

// BatteryWatch shuts the rig down once when the battery runs low.
//
// The trigger holds when the battery is discharging, external power is
// offline and the capacity is at or below LowCapacityLimit. The shutdown
// command is sent at most once per process lifetime, even if it fails.
type BatteryWatch struct {
	notifier

	cfg BatteryConfig

	mu           sync.Mutex
	discharging  bool
	chargeOnline bool
	capacity     int
	state        BatteryState
}

// NewBatteryWatch creates a BatteryWatch seeded from the snapshot.
// Fields absent from the snapshot take safe defaults that cannot trigger.
func NewBatteryWatch(dev Device, snap event.Snapshot, cfg BatteryConfig) *BatteryWatch {
	w := &BatteryWatch{
		cfg:          cfg,
		discharging:  defaultDischarging,
		chargeOnline: defaultChargeOnline,
		capacity:     defaultBatteryCapacity,
	}

	st := snap.StatusOrEmpty()
	if d, ok := st.Discharging(); ok {
		w.discharging = d
	}
	if st.ChargeOnline != nil {
		w.chargeOnline = *st.ChargeOnline
	}
	if st.BatteryCapacity != nil && validCapacity(*st.BatteryCapacity) {
		w.capacity = *st.BatteryCapacity
	}

	deviceLogger(dev).Info("battery watch initialised",
		"low_capacity_limit", cfg.LowCapacityLimit,
		"discharging", w.discharging,
		"charge_online", w.chargeOnline,
		"battery_capacity", w.capacity,
	)
	return w
}

// Name returns the watcher name.
func (w *BatteryWatch) Name() string { return "battery" }

// Events returns the subscribed kinds.
func (w *BatteryWatch) Events() []event.Kind { return []event.Kind{event.PiStatus} }

// HandleEvent applies a status update and issues the shutdown if due.
func (w *BatteryWatch) HandleEvent(ctx context.Context, dev Device, payload event.Payload) {
	log := deviceLogger(dev)

	w.mu.Lock()
	if v, ok := payload.String(event.FieldChargerStatus); ok {
		w.discharging = v == event.ChargerDischarging
	}
	if v, ok := payload.Bool(event.FieldChargeOnline); ok {
		w.chargeOnline = v
	}
	if payload.Has(event.FieldBatteryCapacity) {
		v, ok := payload.Int(event.FieldBatteryCapacity)
		switch {
		case !ok:
			log.Warn("battery watch ignoring malformed capacity", "value", payload[event.FieldBatteryCapacity])
		case !validCapacity(v):
			log.Warn("battery watch ignoring out of range capacity", "battery_capacity", v)
		default:
			w.capacity = v
		}
	}

	fire := w.state == BatteryArmed && w.discharging && !w.chargeOnline && w.capacity <= w.cfg.LowCapacityLimit
	capacity := w.capacity
	if fire {
		// Latch before sending so a failed or slow command can never be repeated.
		w.state = BatteryFired
	}
	w.mu.Unlock()

	if !fire {
		return
	}

	log.Warn("battery capacity at lower limit, shutting down",
		"battery_capacity", capacity,
		"low_capacity_limit", w.cfg.LowCapacityLimit,
	)
	err := dev.SendCommand(ctx, Command{Method: MethodShutdown})
	if err != nil {
		log.Error("shutdown command failed", "error", err)
	}
	w.notify(w.Name(), ActionShutdown, map[string]any{"battery_capacity": capacity}, err)
}

// State returns the latch state.
func (w *BatteryWatch) State() BatteryState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Snapshot reports the watcher's current view of the battery.
func (w *BatteryWatch) Snapshot() StatusReport {
	w.mu.Lock()
	defer w.mu.Unlock()
	return StatusReport{
		Name:   w.Name(),
		State:  w.state.String(),
		Events: w.Events(),
		Fields: map[string]any{
			"discharging":        w.discharging,
			"charge_online":      w.chargeOnline,
			"battery_capacity":   w.capacity,
			"low_capacity_limit": w.cfg.LowCapacityLimit,
		},
	}
}

func validCapacity(v int) bool {
	return v >= 0 && v <= 100
}
