package event

// Status field names as reported by the controller.
const (
	FieldChargerStatus   = "charger_status"
	FieldChargeOnline    = "charge_online"
	FieldBatteryCapacity = "battery_capacity"
	FieldTemp            = "temp"

	// StatusSection is the snapshot key holding the device-wide status.
	StatusSection = "pi_status"
)

// Charger status values.
const (
	ChargerDischarging = "Discharging"
	ChargerCharging    = "Charging"
	ChargerFull        = "Full"
)

// Status is the device-wide status section. Each field is nil when the
// controller did not report it (or reported it with the wrong type).
type Status struct {
	ChargerStatus   *string  `json:"charger_status,omitempty"`
	ChargeOnline    *bool    `json:"charge_online,omitempty"`
	BatteryCapacity *int     `json:"battery_capacity,omitempty"`
	Temp            *float64 `json:"temp,omitempty"`
}

// DecodeStatus extracts whichever status fields are present in p.
func DecodeStatus(p Payload) Status {
	var s Status
	if v, ok := p.String(FieldChargerStatus); ok {
		s.ChargerStatus = &v
	}
	if v, ok := p.Bool(FieldChargeOnline); ok {
		s.ChargeOnline = &v
	}
	if v, ok := p.Int(FieldBatteryCapacity); ok {
		s.BatteryCapacity = &v
	}
	if v, ok := p.Float(FieldTemp); ok {
		s.Temp = &v
	}
	return s
}

// Discharging reports whether the charger status says the battery is
// discharging. The second result is false when no charger status is known.
func (s Status) Discharging() (bool, bool) {
	if s.ChargerStatus == nil {
		return false, false
	}
	return *s.ChargerStatus == ChargerDischarging, true
}

// IsEmpty reports whether no status field is set.
func (s Status) IsEmpty() bool {
	return s.ChargerStatus == nil && s.ChargeOnline == nil && s.BatteryCapacity == nil && s.Temp == nil
}

// Snapshot is the device's best-known full state when watchers are built.
// Status is nil when the controller did not return a status section.
type Snapshot struct {
	Status *Status
}

// ParseSnapshot reads the status section from a raw device state object.
// A missing or malformed section yields an empty snapshot.
func ParseSnapshot(raw map[string]any) Snapshot {
	section, ok := Payload(raw).Section(StatusSection)
	if !ok {
		return Snapshot{}
	}
	s := DecodeStatus(section)
	return Snapshot{Status: &s}
}

// StatusOrEmpty returns the status section, or an empty Status if absent.
func (s Snapshot) StatusOrEmpty() Status {
	if s.Status == nil {
		return Status{}
	}
	return *s.Status
}
