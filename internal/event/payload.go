package event

import (
	"encoding/json"
	"maps"
	"math"
)

// Payload is a partial state update carried by an event.
//
// Values follow encoding/json's decoding into any: numbers are float64 (or
// json.Number when decoded with UseNumber), booleans are bool, strings are
// string. Fields absent from a payload leave watcher state unchanged.
type Payload map[string]any

// Clone returns a shallow copy of p. A nil payload clones to an empty one.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	return maps.Clone(p)
}

// Has reports whether key is present, whatever its type.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Bool returns the boolean at key.
func (p Payload) Bool(key string) (bool, bool) {
	v, ok := p[key].(bool)
	return v, ok
}

// String returns the string at key.
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

// Float returns the number at key as a float64.
// NaN and infinities are rejected.
func (p Payload) Float(key string) (float64, bool) {
	f, ok := toFloat(p[key])
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int returns the number at key as an int.
// Non-integral numbers are rejected rather than truncated.
func (p Payload) Int(key string) (int, bool) {
	f, ok := p.Float(key)
	if !ok || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// Section returns the nested object at key.
func (p Payload) Section(key string) (Payload, bool) {
	switch v := p[key].(type) {
	case map[string]any:
		return Payload(v), true
	case Payload:
		return v, true
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
