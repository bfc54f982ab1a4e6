package watch

import "errors"

// Domain errors for the watch package.
var (
	// ErrRouterStopped is returned by operations on a router that has been stopped.
	ErrRouterStopped = errors.New("watch: router stopped")

	// ErrRouterStarted is returned when Start is called more than once.
	ErrRouterStarted = errors.New("watch: router already started")
)

// errNoLauncher is logged when a user script has no launcher configured.
var errNoLauncher = errors.New("watch: no process launcher configured")
