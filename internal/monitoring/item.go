// Package monitoring implements the monitored item: the per-item sampling
// state machine, data change detection and the bounded notification queue.
//
// A MonitoredItem is not safe for concurrent use. The owning subscription
// ticks and drains its items from a single goroutine.
package monitoring

import (
	"io"
	"time"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/deadband"
	"github.com/awcullen/opcua/ua"
	"github.com/gammazero/deque"
	"github.com/sirupsen/logrus"
)

// CreateRequest carries the parameters of a monitored item to create.
type CreateRequest struct {
	ItemToMonitor    ua.ReadValueID
	MonitoringMode   ua.MonitoringMode
	ClientHandle     uint32
	SamplingInterval float64
	Filter           EncodedFilter
	QueueSize        uint32
	DiscardOldest    bool
}

// ModifyRequest carries the new parameters of a live monitored item.
type ModifyRequest struct {
	ClientHandle     uint32
	SamplingInterval float64
	Filter           EncodedFilter
	QueueSize        uint32
	DiscardOldest    bool
}

// ModifyResult reports the parameters in effect after Modify.
type ModifyResult struct {
	RevisedSamplingInterval float64
	RevisedQueueSize        uint32
}

// Observer is notified of sampling events. Implementations must be cheap;
// they run on the subscription goroutine.
type Observer interface {
	Sampled()
	Suppressed(kind Error)
	Enqueued()
	Overflowed()
}

type nopObserver struct{}

func (nopObserver) Sampled()         {}
func (nopObserver) Suppressed(Error) {}
func (nopObserver) Enqueued()        {}
func (nopObserver) Overflowed()      {}

// Option configures a MonitoredItem.
type Option func(*MonitoredItem)

// WithClock sets the clock read once at construction to seed the sampling timer.
func WithClock(now func() time.Time) Option {
	return func(mi *MonitoredItem) {
		mi.clock = now
	}
}

// WithLogger sets the logger used for suppressed samples.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(mi *MonitoredItem) {
		mi.logger = logger
	}
}

// WithObserver sets the Observer notified of sampling events.
func WithObserver(o Observer) Option {
	return func(mi *MonitoredItem) {
		mi.observer = o
	}
}

// MonitoredItem samples one attribute of one node and queues a Notification
// for every change its filter lets through.
type MonitoredItem struct {
	id               uint32
	itemToMonitor    ua.ReadValueID
	monitoringMode   ua.MonitoringMode
	clientHandle     uint32
	samplingInterval float64
	filter           Filter
	discardOldest    bool
	queueSize        uint32
	queue            deque.Deque[Notification]
	overflow         bool
	lastSampleTime   time.Time
	lastValue        *ua.DataValue

	clock    func() time.Time
	logger   logrus.FieldLogger
	observer Observer
}

// New validates req and returns a monitored item with an empty queue.
// A filter that is not a data change filter fails with FilterNotAllowed.
func New(id uint32, req CreateRequest, opts ...Option) (*MonitoredItem, error) {
	filter, err := decodeFilter(req.Filter)
	if err != nil {
		return nil, err
	}
	mi := &MonitoredItem{
		id:               id,
		itemToMonitor:    req.ItemToMonitor,
		monitoringMode:   req.MonitoringMode,
		clientHandle:     req.ClientHandle,
		samplingInterval: req.SamplingInterval,
		filter:           filter,
		discardOldest:    req.DiscardOldest,
		clock:            time.Now,
		observer:         nopObserver{},
	}
	for _, opt := range opts {
		opt(mi)
	}
	if mi.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		mi.logger = l
	}
	mi.logger = mi.logger.WithFields(logrus.Fields{
		"item":   id,
		"nodeId": req.ItemToMonitor.NodeID,
	})
	mi.setQueueSize(req.QueueSize)
	mi.lastSampleTime = mi.clock()
	return mi, nil
}

// ID returns the server assigned id.
func (mi *MonitoredItem) ID() uint32 { return mi.id }

// ItemToMonitor returns the monitored node and attribute.
func (mi *MonitoredItem) ItemToMonitor() ua.ReadValueID { return mi.itemToMonitor }

// ClientHandle returns the handle placed in every notification.
func (mi *MonitoredItem) ClientHandle() uint32 { return mi.clientHandle }

// SamplingInterval returns the sampling interval in milliseconds.
func (mi *MonitoredItem) SamplingInterval() float64 { return mi.samplingInterval }

// QueueSize returns the queue capacity.
func (mi *MonitoredItem) QueueSize() uint32 { return mi.queueSize }

// DiscardOldest returns the overflow policy.
func (mi *MonitoredItem) DiscardOldest() bool { return mi.discardOldest }

// MonitoringMode returns the monitoring mode.
func (mi *MonitoredItem) MonitoringMode() ua.MonitoringMode { return mi.monitoringMode }

// Filter returns the decoded filter.
func (mi *MonitoredItem) Filter() Filter { return mi.filter }

// Overflowed reports whether a notification was lost since the last Dequeue.
func (mi *MonitoredItem) Overflowed() bool { return mi.overflow }

// Len returns the number of queued notifications.
func (mi *MonitoredItem) Len() int { return mi.queue.Len() }

// Snapshot returns the queued notifications from front to back.
func (mi *MonitoredItem) Snapshot() []Notification {
	out := make([]Notification, mi.queue.Len())
	for i := range out {
		out[i] = mi.queue.At(i)
	}
	return out
}

// Tick samples the item if it is due at now and reports whether a
// notification was queued. subscriptionElapsed tells an item with a
// negative sampling interval that the publishing interval has elapsed.
func (mi *MonitoredItem) Tick(view addressspace.View, now time.Time, subscriptionElapsed bool) bool {
	if !mi.due(now, subscriptionElapsed) {
		return false
	}
	if now.After(mi.lastSampleTime) {
		mi.lastSampleTime = now
	}
	mi.observer.Sampled()

	node, ok := view.FindNode(mi.itemToMonitor.NodeID)
	if !ok {
		mi.suppress(NodeNotFound, nil)
		return false
	}
	if !addressspace.ValidAttributeID(mi.itemToMonitor.AttributeID) {
		mi.suppress(InvalidAttributeID, nil)
		return false
	}
	current, ok := node.FindAttribute(mi.itemToMonitor.AttributeID)
	if !ok {
		mi.suppress(AttributeNotFound, nil)
		return false
	}
	if mi.lastValue != nil && !mi.changed(node, current, *mi.lastValue) {
		return false
	}
	mi.lastValue = &current
	mi.enqueue(Notification{ClientHandle: mi.clientHandle, Value: current})
	return true
}

func (mi *MonitoredItem) due(now time.Time, subscriptionElapsed bool) bool {
	switch si := mi.samplingInterval; {
	case si > 0:
		// compared in ms, huge or infinite intervals overflow a Duration
		return float64(now.Sub(mi.lastSampleTime))/float64(time.Millisecond) >= si
	case si == 0:
		return true
	case si < 0:
		return subscriptionElapsed
	default:
		// NaN
		return mi.lastValue == nil
	}
}

func (mi *MonitoredItem) changed(node addressspace.Node, current, previous ua.DataValue) bool {
	switch {
	case current.Value == nil && previous.Value == nil:
		return false
	case current.Value == nil || previous.Value == nil:
		return true
	}
	var ctx deadband.Context
	if rn, ok := node.(addressspace.RangeNode); ok {
		if r, ok := rn.EURange(); ok {
			ctx.EURange = &r
		}
	}
	equivalent, err := mi.filter.equivalent(current, previous, ctx)
	if err != nil {
		mi.suppress(FilterEvaluationFailed, err)
		return false
	}
	return !equivalent
}

func (mi *MonitoredItem) suppress(kind Error, err error) {
	mi.observer.Suppressed(kind)
	entry := mi.logger.WithField("reason", kind.Error())
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Debugln("Sample suppressed 🔔")
}

// enqueue pushes n at the front. A full queue drops its back entry when
// discarding oldest, otherwise n replaces the front entry.
func (mi *MonitoredItem) enqueue(n Notification) {
	if mi.queue.Len() >= int(mi.queueSize) {
		if mi.discardOldest {
			mi.queue.PopBack()
		} else {
			mi.queue.PopFront()
		}
		mi.overflow = true
		mi.observer.Overflowed()
	}
	mi.queue.PushFront(n)
	mi.observer.Enqueued()
}

// Dequeue removes the front notification. It returns false on an empty queue.
// Entries come out newest first; a successful call clears the overflow flag.
func (mi *MonitoredItem) Dequeue() (Notification, bool) {
	if mi.queue.Len() == 0 {
		return Notification{}, false
	}
	n := mi.queue.PopFront()
	mi.overflow = false
	return n, true
}

// Modify applies req to the item. The item is unchanged when the filter is rejected.
func (mi *MonitoredItem) Modify(req ModifyRequest) (ModifyResult, error) {
	filter, err := decodeFilter(req.Filter)
	if err != nil {
		return ModifyResult{}, err
	}
	mi.filter = filter
	mi.clientHandle = req.ClientHandle
	mi.samplingInterval = req.SamplingInterval
	mi.discardOldest = req.DiscardOldest
	mi.setQueueSize(req.QueueSize)
	return ModifyResult{RevisedSamplingInterval: mi.samplingInterval, RevisedQueueSize: mi.queueSize}, nil
}

// SetMonitoringMode switches the mode. Disabling drops the queue, the
// overflow flag and the last observed value.
func (mi *MonitoredItem) SetMonitoringMode(mode ua.MonitoringMode) {
	if mi.monitoringMode == mode {
		return
	}
	mi.monitoringMode = mode
	if mode == ua.MonitoringModeDisabled {
		mi.queue.Clear()
		mi.overflow = false
		mi.lastValue = nil
	}
}

func (mi *MonitoredItem) setQueueSize(size uint32) {
	if size < 1 {
		size = 1
	}
	mi.queueSize = size
	for mi.queue.Len() > int(mi.queueSize) {
		if mi.discardOldest {
			mi.queue.PopBack()
		} else {
			mi.queue.PopFront()
		}
		mi.overflow = true
	}
}
