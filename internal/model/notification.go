package model

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/google/uuid"
)

// NotificationPayload is the outbound representation of a publish cycle,
// what gets encoded and handed to the MQTT/Kafka/log publishers.
type NotificationPayload struct {
	MessageID      string         `json:"messageId" cbor:"messageId"`
	SubscriptionID uint32         `json:"subscriptionId" cbor:"subscriptionId"`
	SequenceNumber uint32         `json:"sequenceNumber" cbor:"sequenceNumber"`
	PublishTime    time.Time      `json:"publishTime" cbor:"publishTime"`
	KeepAlive      bool           `json:"keepAlive" cbor:"keepAlive"`
	Notifications  []ItemSnapshot `json:"notifications" cbor:"notifications"`
}

// ItemSnapshot is one data change of a monitored item.
type ItemSnapshot struct {
	ClientHandle    uint32      `json:"clientHandle" cbor:"clientHandle"`
	Value           interface{} `json:"value" cbor:"value"`
	StatusCode      uint32      `json:"statusCode" cbor:"statusCode"`
	SourceTimestamp *time.Time  `json:"sourceTimestamp,omitempty" cbor:"sourceTimestamp,omitempty"`
	ServerTimestamp *time.Time  `json:"serverTimestamp,omitempty" cbor:"serverTimestamp,omitempty"`
}

// FromNotificationMessage flattens the data change notifications of msg.
// A message without notification data is a keep-alive.
func FromNotificationMessage(subscriptionID uint32, msg ua.NotificationMessage) NotificationPayload {
	p := NotificationPayload{
		MessageID:      uuid.NewString(),
		SubscriptionID: subscriptionID,
		SequenceNumber: msg.SequenceNumber,
		PublishTime:    msg.PublishTime.UTC(),
		KeepAlive:      len(msg.NotificationData) == 0,
		Notifications:  []ItemSnapshot{},
	}
	for _, data := range msg.NotificationData {
		dcn, ok := data.(ua.DataChangeNotification)
		if !ok {
			continue
		}
		for _, item := range dcn.MonitoredItems {
			p.Notifications = append(p.Notifications, ItemSnapshot{
				ClientHandle:    item.ClientHandle,
				Value:           item.Value.Value,
				StatusCode:      uint32(item.Value.StatusCode),
				SourceTimestamp: timestamp(item.Value.SourceTimestamp),
				ServerTimestamp: timestamp(item.Value.ServerTimestamp),
			})
		}
	}
	return p
}

// timestamp is nil for the zero time, so that it is left out of the payload.
func timestamp(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

// ToMap returns the payload as a tree of the plain types accepted by
// structpb.NewStruct.
func (p NotificationPayload) ToMap() map[string]interface{} {
	items := make([]interface{}, 0, len(p.Notifications))
	for _, n := range p.Notifications {
		item := map[string]interface{}{
			"clientHandle": n.ClientHandle,
			"value":        normalize(n.Value),
			"statusCode":   n.StatusCode,
		}
		if n.SourceTimestamp != nil {
			item["sourceTimestamp"] = n.SourceTimestamp.Format(time.RFC3339Nano)
		}
		if n.ServerTimestamp != nil {
			item["serverTimestamp"] = n.ServerTimestamp.Format(time.RFC3339Nano)
		}
		items = append(items, item)
	}
	return map[string]interface{}{
		"messageId":      p.MessageID,
		"subscriptionId": p.SubscriptionID,
		"sequenceNumber": p.SequenceNumber,
		"publishTime":    p.PublishTime.Format(time.RFC3339Nano),
		"keepAlive":      p.KeepAlive,
		"notifications":  items,
	}
}

func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, bool, string, float64, float32, int, int32, int64, uint, uint32, uint64:
		return x
	case int8:
		return int32(x)
	case int16:
		return int32(x)
	case uint8:
		return uint32(x)
	case uint16:
		return uint32(x)
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case ua.StatusCode:
		return uint32(x)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
