// Package mqtt provides MQTT client connectivity for alpwatch.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The rig controller is reached through a bridge that mirrors its event
// stream onto MQTT and executes commands published to it:
//
//	alpwatch ↔ MQTT Broker ↔ rig bridge ↔ rig controller
//
// Topic layout (see Topics):
//
//	seestar/{device}/event/{Kind}   events from the rig
//	seestar/{device}/command        JSON command envelopes to the rig
//	seestar/{device}/response       correlated command responses
//	alpwatch/status                 retained online/offline status
//	alpwatch/action/{watcher}       watcher actions
//
// # Security Considerations
//
//   - Use TLS when the broker is not on the rig's local network (cfg.Broker.TLS=true)
//   - Anyone able to publish to seestar/+/command can drive the rig; restrict it with broker ACLs
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceEvents("s50"), 1,
//	    func(topic string, payload []byte) error {
//	        kind, _ := mqtt.EventKindFromTopic(topic)
//	        log.Printf("event %s: %s", kind, payload)
//	        return nil
//	    })
package mqtt
