package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementDeviceStatus is the measurement rig status fields are written to.
const MeasurementDeviceStatus = "device_status"

// WriteDeviceStatus writes one device status sample.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Rig identifier, stored as the device_id tag
//   - fields: Status fields (e.g., "battery_capacity", "temp")
//   - ts: Sample time
//
// Example:
//
//	client.WriteDeviceStatus("s50", map[string]any{"temp": 31.5}, time.Now())
func (c *Client) WriteDeviceStatus(deviceID string, fields map[string]any, ts time.Time) {
	if len(fields) == 0 {
		return
	}
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(MeasurementDeviceStatus, map[string]string{"device_id": deviceID}, fields, ts)
	c.writeAPI.WritePoint(point)
}
