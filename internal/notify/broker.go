package notify

import (
	"github.com/thoughtnest/nestclient/internal/sse"
)

// BrokerHost adapts an SSE broker: it is ready while at least one client
// is connected and delivers notifications as "notification" events.
type BrokerHost struct {
	broker *sse.Broker
}

var _ Host = (*BrokerHost)(nil)

func NewBrokerHost(b *sse.Broker) *BrokerHost {
	return &BrokerHost{broker: b}
}

func (h *BrokerHost) Ready() bool {
	return h.broker.ClientCount() > 0
}

func (h *BrokerHost) Deliver(n Notification) error {
	if !h.broker.Publish(sse.Event{Type: sse.TypeNotification, Data: n}) {
		return ErrHostUnavailable
	}
	return nil
}
