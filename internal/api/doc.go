// Package api implements the alpwatch ops HTTP API and WebSocket feed.
//
// This package provides:
//   - GET /api/v1/health with per-component checks
//   - GET /api/v1/watchers for event routes, watcher status and mailbox stats
//   - GET /api/v1/audit for the command and action journal
//   - GET /api/v1/ws, a WebSocket feed of device events and watcher actions
//
// # Architecture
//
// The server is read-only. It never sends commands to the rig; watchers do
// that through the rig client. Device events reach the feed through
// Hub.PublishEvent, and watcher actions through Hub.Notify, which makes the
// hub a watch.Notifier.
//
// WebSocket clients subscribe to the "device.event" and "watcher.action"
// channels. A slow client misses messages rather than stalling a watcher.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
