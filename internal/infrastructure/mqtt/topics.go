package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the rig and for alpwatch itself.
//
// Device topics: seestar/{device_id}/{category}[/{name}]
// Service topics: alpwatch/{category}[/{name}]
const (
	// TopicPrefixDevice is the base for all topics owned by a rig bridge.
	TopicPrefixDevice = "seestar"

	// TopicPrefixService is the base for topics alpwatch publishes about itself.
	TopicPrefixService = "alpwatch"
)

// Topics provides builders for the MQTT topics alpwatch uses.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	topics.DeviceEvent("seestar", "PiStatus")
//	// Returns: "seestar/seestar/event/PiStatus"
type Topics struct{}

// DeviceEvent returns the topic a bridge publishes a named event on.
//
// Example: seestar/s50/event/PiStatus
func (Topics) DeviceEvent(deviceID, kind string) string {
	return fmt.Sprintf("%s/%s/event/%s", TopicPrefixDevice, deviceID, kind)
}

// AllDeviceEvents returns the wildcard topic matching every event of a device.
//
// Example: seestar/s50/event/+
func (Topics) AllDeviceEvents(deviceID string) string {
	return fmt.Sprintf("%s/%s/event/+", TopicPrefixDevice, deviceID)
}

// DeviceCommand returns the topic commands are published to.
//
// Example: seestar/s50/command
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixDevice, deviceID)
}

// DeviceResponse returns the topic command responses arrive on.
//
// Example: seestar/s50/response
func (Topics) DeviceResponse(deviceID string) string {
	return fmt.Sprintf("%s/%s/response", TopicPrefixDevice, deviceID)
}

// ServiceStatus returns the alpwatch online/offline status topic.
//
// Example: alpwatch/status
func (Topics) ServiceStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixService)
}

// WatcherAction returns the topic a watcher's actions are published on.
//
// Example: alpwatch/action/battery
func (Topics) WatcherAction(watcher string) string {
	return fmt.Sprintf("%s/action/%s", TopicPrefixService, watcher)
}

// EventKindFromTopic extracts the event name from a device event topic.
//
// Example: "seestar/s50/event/PiStatus" returns ("PiStatus", true).
// Topics with any other shape return ("", false).
func EventKindFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefixDevice || parts[2] != "event" || parts[3] == "" {
		return "", false
	}
	return parts[3], true
}
