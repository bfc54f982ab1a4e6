package rig

import (
	"encoding/json"

	"github.com/bguthro/seestar-alp/internal/infrastructure/mqtt"
	"github.com/bguthro/seestar-alp/internal/watch"
)

// ActionPublisher publishes watcher actions to alpwatch/action/{watcher}.
type ActionPublisher struct {
	transport Transport
	qos       byte
	logger    Logger
}

var _ watch.Notifier = (*ActionPublisher)(nil)

// NewActionPublisher creates a publisher. A nil logger disables logging.
func NewActionPublisher(transport Transport, qos byte, logger Logger) *ActionPublisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ActionPublisher{transport: transport, qos: qos, logger: logger}
}

// Notify publishes a on its own goroutine so the watcher never waits on
// the broker.
func (p *ActionPublisher) Notify(a watch.Action) {
	payload, err := json.Marshal(a)
	if err != nil {
		p.logger.Warn("encoding watcher action", "watcher", a.Watcher, "error", err)
		return
	}
	topic := mqtt.Topics{}.WatcherAction(a.Watcher)
	go func() {
		if err := p.transport.Publish(topic, payload, p.qos, false); err != nil {
			p.logger.Warn("publishing watcher action", "topic", topic, "error", err)
		}
	}()
}
