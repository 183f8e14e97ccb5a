package cli

import (
	"strings"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/component"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/monitoring"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/subscription"
	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
)

var ErrInvalidItemConfig = errors.New("invalid monitored item config")

// SubscriptionConfig maps the subscription section of the config.
func SubscriptionConfig(c component.Subscription) subscription.Config {
	return subscription.Config{
		PublishingInterval:         c.PublishingInterval,
		SamplingTick:               c.SamplingTick,
		MaxKeepAliveCount:          c.MaxKeepAliveCount,
		MaxNotificationsPerPublish: c.MaxNotificationsPerPublish,
		MaxQueueSize:               c.MaxQueueSize,
		RetransmissionCapacity:     c.RetransmissionCapacity,
		PublishingEnabled:          c.PublishingEnabled,
	}
}

// CreateRequest turns a configured monitored item into a create request.
func CreateRequest(item component.MonitoredItem) (monitoring.CreateRequest, error) {
	nodeID := ua.ParseNodeID(item.NodeId)
	if nodeID == nil {
		return monitoring.CreateRequest{}, errors.Wrapf(ErrInvalidItemConfig, "node id %q", item.NodeId)
	}
	mode, err := parseMonitoringMode(item.MonitoringMode)
	if err != nil {
		return monitoring.CreateRequest{}, err
	}
	filter, err := parseFilter(item.Filter)
	if err != nil {
		return monitoring.CreateRequest{}, err
	}
	encoded, err := monitoring.EncodeDataChangeFilter(filter)
	if err != nil {
		return monitoring.CreateRequest{}, err
	}
	attributeID := item.AttributeId
	if attributeID == 0 {
		attributeID = ua.AttributeIDValue
	}
	return monitoring.CreateRequest{
		ItemToMonitor:    ua.ReadValueID{NodeID: nodeID, AttributeID: attributeID},
		MonitoringMode:   mode,
		ClientHandle:     item.ClientHandle,
		SamplingInterval: item.SamplingInterval,
		Filter:           encoded,
		QueueSize:        item.QueueSize,
		DiscardOldest:    item.DiscardOldest,
	}, nil
}

func parseMonitoringMode(s string) (ua.MonitoringMode, error) {
	switch strings.ToLower(s) {
	case "", "reporting":
		return ua.MonitoringModeReporting, nil
	case "sampling":
		return ua.MonitoringModeSampling, nil
	case "disabled":
		return ua.MonitoringModeDisabled, nil
	}
	return 0, errors.Wrapf(ErrInvalidItemConfig, "monitoring mode %q", s)
}

func parseFilter(f component.DataChangeFilter) (ua.DataChangeFilter, error) {
	var out ua.DataChangeFilter
	switch strings.ToLower(f.Trigger) {
	case "status":
		out.Trigger = ua.DataChangeTriggerStatus
	case "", "statusvalue":
		out.Trigger = ua.DataChangeTriggerStatusValue
	case "statusvaluetimestamp":
		out.Trigger = ua.DataChangeTriggerStatusValueTimestamp
	default:
		return out, errors.Wrapf(ErrInvalidItemConfig, "trigger %q", f.Trigger)
	}
	switch strings.ToLower(f.DeadbandType) {
	case "", "none":
		out.DeadbandType = uint32(ua.DeadbandTypeNone)
	case "absolute":
		out.DeadbandType = uint32(ua.DeadbandTypeAbsolute)
	case "percent":
		out.DeadbandType = uint32(ua.DeadbandTypePercent)
	default:
		return out, errors.Wrapf(ErrInvalidItemConfig, "deadband type %q", f.DeadbandType)
	}
	out.DeadbandValue = f.DeadbandValue
	return out, nil
}
