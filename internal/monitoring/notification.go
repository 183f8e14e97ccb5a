package monitoring

import "github.com/awcullen/opcua/ua"

// Notification is a sampled value queued for the client that owns ClientHandle.
type Notification struct {
	ClientHandle uint32
	Value        ua.DataValue
}

// ToUA converts n to its wire representation.
func (n Notification) ToUA() ua.MonitoredItemNotification {
	return ua.MonitoredItemNotification{ClientHandle: n.ClientHandle, Value: n.Value}
}
