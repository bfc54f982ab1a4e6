package event

import "errors"

// Domain errors for event decoding.
var (
	// ErrUnknownKind is returned when an event name is not in the Kind table.
	ErrUnknownKind = errors.New("event: unknown kind")

	// ErrMalformedEvent is returned when an event body is not a JSON object
	// or carries no usable event name.
	ErrMalformedEvent = errors.New("event: malformed event")
)
