// Package rig is the MQTT facade to the imaging rig controller.
//
// A bridge process next to the rig mirrors the controller's event stream
// onto MQTT and executes JSON commands published to it. Client implements
// watch.Device on top of that bridge so the watchers never see the wire
// format.
//
// # Wire format
//
// Commands are published to seestar/{device}/command:
//
//	{"id":"<uuid>","method":"pause_scheduler","params":{}}
//
// and answered on seestar/{device}/response:
//
//	{"id":"<uuid>","result":{...}}
//	{"id":"<uuid>","error":{"code":207,"message":"busy"}}
//
// Events arrive on seestar/{device}/event/{Kind} as JSON objects.
//
// # Flow control
//
// Commands are rate limited (golang.org/x/time/rate) and correlated by id
// through a pending table with expiry (github.com/patrickmn/go-cache), so
// responses that arrive after their caller gave up are dropped.
//
// # Usage
//
//	client := rig.New(mqttClient, rig.Options{DeviceID: "s50", Timeout: 10 * time.Second})
//	client.SetLogger(log)
//	if err := client.Start(); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	snap, err := client.FetchSnapshot(ctx)
//	err = client.Listen(func(ev event.Event) { router.Dispatch(ev) })
package rig
