package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// eventNameField is the key the controller uses for the event name.
const eventNameField = "Event"

// Event is a single named event as delivered to the router.
type Event struct {
	Kind       Kind      `json:"kind"`
	Payload    Payload   `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// Decode parses a JSON event body.
//
// The name in the body's "Event" field takes precedence over topicKind
// (the name derived from the transport, e.g. the last MQTT topic level).
// Unknown names are rejected so they cannot reach the router.
//
// Parameters:
//   - topicKind: fallback event name, may be empty
//   - data: JSON object
//
// Returns:
//   - Event: decoded event stamped with the current UTC time
//   - error: ErrMalformedEvent or ErrUnknownKind
func Decode(topicKind string, data []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if body == nil {
		return Event{}, fmt.Errorf("%w: body is not an object", ErrMalformedEvent)
	}

	name := topicKind
	if v, ok := body[eventNameField].(string); ok && v != "" {
		name = v
	}
	if name == "" {
		return Event{}, fmt.Errorf("%w: no event name", ErrMalformedEvent)
	}

	kind, err := ParseKind(name)
	if err != nil {
		return Event{}, err
	}

	return Event{
		Kind:       kind,
		Payload:    Payload(body),
		ReceivedAt: time.Now().UTC(),
	}, nil
}
