// Package event defines the named events a Seestar-class rig controller
// emits, the partial-update payloads they carry, and the bootstrap snapshot
// watchers are constructed from.
//
// Event names are a closed, typed set (Kind). Operator configuration is
// parsed into Kinds at startup so that a misspelt event name fails config
// validation instead of silently never matching at runtime.
//
// Payloads are untyped JSON objects. Accessors never panic: a missing key
// and a key holding the wrong type are both reported as ok=false, which
// watchers treat as "field not present in this update".
package event
