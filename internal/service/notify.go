package service

// Notifier pushes real-time events to connected terminals. Satisfied by
// *ws.Hub. Broadcast must never block the caller.
type Notifier interface {
	Broadcast(channel, event string, payload interface{})
}

// Channels terminals subscribe to.
const (
	ChannelCashier = "cashier"
	ChannelKitchen = "kitchen"
)

// NopNotifier discards events. Used in tests and in setups without the
// realtime endpoint.
type NopNotifier struct{}

func (NopNotifier) Broadcast(channel, event string, payload interface{}) {}
