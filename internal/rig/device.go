package rig

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bguthro/seestar-alp/internal/event"
	"github.com/bguthro/seestar-alp/internal/infrastructure/mqtt"
	"github.com/bguthro/seestar-alp/internal/watch"
)

// Device methods used by the watch.Device implementation.
const (
	MethodGetDeviceState    = "get_device_state"
	MethodGetSchedulerState = "get_scheduler_state"
	MethodPauseScheduler    = "pause_scheduler"
	MethodContinueScheduler = "continue_scheduler"
	MethodStartCreateDark   = "start_create_dark"
)

// schedulerWorking is the scheduler state in which it can be paused.
const schedulerWorking = "working"

var _ watch.Device = (*Client)(nil)

// Logger returns the client's logger.
func (c *Client) Logger() watch.Logger {
	return c.getLogger()
}

// SendCommand sends cmd and waits for the device to answer.
func (c *Client) SendCommand(ctx context.Context, cmd watch.Command) error {
	_, err := c.Call(ctx, cmd.Method, cmd.Params)
	return err
}

// CanPauseScheduler reports whether the scheduler is running.
// Any error querying the device counts as false.
func (c *Client) CanPauseScheduler(ctx context.Context) bool {
	result, err := c.Call(ctx, MethodGetSchedulerState, nil)
	if err != nil {
		return false
	}

	var state struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(result, &state); err != nil {
		c.getLogger().Warn("unreadable scheduler state", "error", err)
		return false
	}
	return state.State == schedulerWorking
}

// PauseScheduler pauses the imaging scheduler.
func (c *Client) PauseScheduler(ctx context.Context, opts watch.SchedulerOptions) error {
	_, err := c.Call(ctx, MethodPauseScheduler, opts)
	return err
}

// ResumeScheduler resumes a paused scheduler.
func (c *Client) ResumeScheduler(ctx context.Context, opts watch.SchedulerOptions) error {
	_, err := c.Call(ctx, MethodContinueScheduler, opts)
	return err
}

// AttemptCalibrationFrame asks the device to capture a new dark frame.
func (c *Client) AttemptCalibrationFrame(ctx context.Context) error {
	_, err := c.Call(ctx, MethodStartCreateDark, nil)
	return err
}

// FetchSnapshot reads the device's current state.
//
// Callers should fall back to an empty snapshot on error; watchers then
// start from their documented defaults.
func (c *Client) FetchSnapshot(ctx context.Context) (event.Snapshot, error) {
	result, err := c.Call(ctx, MethodGetDeviceState, nil)
	if err != nil {
		return event.Snapshot{}, err
	}
	raw, err := decodeObject(result)
	if err != nil {
		return event.Snapshot{}, fmt.Errorf("decoding device state: %w", err)
	}
	return event.ParseSnapshot(raw), nil
}

// Listen subscribes to the device's events and passes each decoded event
// to handler on the transport's goroutine. Undecodable events are logged
// and dropped.
func (c *Client) Listen(handler func(event.Event)) error {
	if handler == nil {
		return fmt.Errorf("listen: nil handler")
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.mu.RLock()
	listening := c.listening
	c.mu.RUnlock()
	if listening {
		return nil
	}

	err := c.transport.Subscribe(c.topics.AllDeviceEvents(c.opts.DeviceID), c.opts.QoS, func(topic string, payload []byte) error {
		kind, _ := mqtt.EventKindFromTopic(topic)
		ev, err := event.Decode(kind, payload)
		if err != nil {
			c.getLogger().Debug("dropping device event", "topic", topic, "error", err)
			return nil
		}
		handler(ev)
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}

	c.mu.Lock()
	c.listening = true
	c.mu.Unlock()
	return nil
}
