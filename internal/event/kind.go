package event

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies a named device event.
type Kind string

// Events reported by the rig controller.
const (
	// PiStatus carries battery, charger and temperature telemetry.
	PiStatus Kind = "PiStatus"

	GotoComplete       Kind = "GotoComplete"
	AutoGoto           Kind = "AutoGoto"
	ScopeGoto          Kind = "ScopeGoto"
	ScopeHome          Kind = "ScopeHome"
	ScopeTrack         Kind = "ScopeTrack"
	AutoFocus          Kind = "AutoFocus"
	FocuserMove        Kind = "FocuserMove"
	DarkLibrary        Kind = "DarkLibrary"
	Stack              Kind = "Stack"
	ContinuousExposure Kind = "ContinuousExposure"
	PlateSolve         Kind = "PlateSolve"
	Annotate           Kind = "Annotate"
	SaveImage          Kind = "SaveImage"
	View               Kind = "View"
	Initialise         Kind = "Initialise"
	BalanceSensor      Kind = "BalanceSensor"
	DiskSpace          Kind = "DiskSpace"
	Alert              Kind = "Alert"
)

var known = map[Kind]struct{}{
	PiStatus:           {},
	GotoComplete:       {},
	AutoGoto:           {},
	ScopeGoto:          {},
	ScopeHome:          {},
	ScopeTrack:         {},
	AutoFocus:          {},
	FocuserMove:        {},
	DarkLibrary:        {},
	Stack:              {},
	ContinuousExposure: {},
	PlateSolve:         {},
	Annotate:           {},
	SaveImage:          {},
	View:               {},
	Initialise:         {},
	BalanceSensor:      {},
	DiskSpace:          {},
	Alert:              {},
}

// ParseKind converts an event name to a Kind.
//
// Names are matched exactly after trimming surrounding whitespace; the
// controller's event names are case-sensitive.
//
// Returns:
//   - Kind: the parsed kind
//   - error: ErrUnknownKind if the name is not a known event
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(s))
	if _, ok := known[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// ParseKinds parses a list of event names, stopping at the first unknown one.
func ParseKinds(names []string) ([]Kind, error) {
	kinds := make([]Kind, 0, len(names))
	for _, n := range names {
		k, err := ParseKind(n)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Known returns all known kinds in lexical order.
func Known() []Kind {
	kinds := make([]Kind, 0, len(known))
	for k := range known {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// IsKnown reports whether k is in the Kind table.
func (k Kind) IsKnown() bool {
	_, ok := known[k]
	return ok
}

func (k Kind) String() string {
	return string(k)
}
