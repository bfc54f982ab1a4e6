// Package watch provides the rig watchers and the router that delivers
// device events to them.
//
// A Watcher declares the event kinds it cares about and receives each
// matching event's payload as a partial state update. Watchers never return
// errors: failures are logged through the device's logger and the watcher
// carries on with the next event.
//
// # Watchers
//
//   - BatteryWatch: sends a one-shot shutdown command when the battery is
//     discharging, off external power and at or below the configured limit.
//   - SensorTempWatch: pauses the scheduler, captures a calibration frame and
//     resumes when the sensor temperature drifts beyond a threshold.
//   - UserScriptEvent: launches a user-configured command line on every
//     subscribed event.
//
// # Dispatch
//
// The Router resolves subscriptions once at construction. Each watcher gets
// its own goroutine and an unbounded FIFO mailbox, so a watcher sees its
// events one at a time and in arrival order while a slow watcher never holds
// up the others. Dispatch never blocks the event source.
//
// # Usage
//
//	snap := event.ParseSnapshot(state)
//	battery := watch.NewBatteryWatch(dev, snap, watch.BatteryConfig{LowCapacityLimit: 5})
//	temp := watch.NewSensorTempWatch(dev, snap, watch.SensorTempConfig{MaxChange: 5, Recalibrate: true})
//
//	router := watch.NewRouter(dev, battery, temp)
//	router.Start(ctx)
//	defer router.Stop()
//
//	router.Dispatch(ev)
package watch
