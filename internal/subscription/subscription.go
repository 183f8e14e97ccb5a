// Package subscription drives the monitored items of a subscription: it
// ticks them at the sampling quantum, collects their notifications every
// publishing interval and hands the resulting messages to a Publisher.
package subscription

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/monitoring"
	"github.com/awcullen/opcua/ua"
	"github.com/jellydator/ttlcache/v3"
	"github.com/sirupsen/logrus"
)

const (
	// MinPublishingInterval is the fastest publishing interval in milliseconds.
	MinPublishingInterval = 10.0
	// MaxPublishingInterval is the slowest publishing interval in milliseconds.
	MaxPublishingInterval = 60000.0

	defaultMaxKeepAliveCount      = 10
	defaultRetransmissionCapacity = 64
	retransmissionLifetimeFactor  = 3
)

var monitoredItemID uint32

// Publisher delivers notification messages.
type Publisher interface {
	Publish(ctx context.Context, subscriptionID uint32, msg ua.NotificationMessage) error
}

// Metrics receives subscription and monitored item events.
type Metrics interface {
	monitoring.Observer
	Published(subscriptionID uint32, notifications int)
	KeepAlive(subscriptionID uint32)
	PublishFailed(subscriptionID uint32)
	ItemsChanged(delta int)
}

type nopMetrics struct{}

func (nopMetrics) Sampled()                    {}
func (nopMetrics) Suppressed(monitoring.Error) {}
func (nopMetrics) Enqueued()                   {}
func (nopMetrics) Overflowed()                 {}
func (nopMetrics) Published(uint32, int)       {}
func (nopMetrics) KeepAlive(uint32)            {}
func (nopMetrics) PublishFailed(uint32)        {}
func (nopMetrics) ItemsChanged(int)            {}

// Config holds the requested parameters of a subscription. Intervals are in milliseconds.
type Config struct {
	PublishingInterval         float64
	SamplingTick               float64
	MaxKeepAliveCount          uint32
	MaxNotificationsPerPublish uint32
	MaxQueueSize               uint32
	RetransmissionCapacity     uint64
	PublishingEnabled          bool
}

// revise clamps the requested parameters to what the server supports.
func (c Config) revise() Config {
	if math.IsNaN(c.PublishingInterval) || c.PublishingInterval < MinPublishingInterval {
		c.PublishingInterval = MinPublishingInterval
	}
	if c.PublishingInterval > MaxPublishingInterval {
		c.PublishingInterval = MaxPublishingInterval
	}
	if c.SamplingTick <= 0 || c.SamplingTick > c.PublishingInterval {
		c.SamplingTick = c.PublishingInterval
	}
	if c.SamplingTick < 1 {
		c.SamplingTick = 1
	}
	if c.MaxKeepAliveCount == 0 {
		c.MaxKeepAliveCount = defaultMaxKeepAliveCount
	}
	if c.RetransmissionCapacity == 0 {
		c.RetransmissionCapacity = defaultRetransmissionCapacity
	}
	return c
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// CreateResult is the per-item outcome of CreateMonitoredItems.
type CreateResult struct {
	StatusCode              ua.StatusCode
	MonitoredItemID         uint32
	RevisedSamplingInterval float64
	RevisedQueueSize        uint32
}

// ModifyItemRequest pairs a monitored item id with its new parameters.
type ModifyItemRequest struct {
	MonitoredItemID uint32
	Parameters      monitoring.ModifyRequest
}

// ModifyItemResult is the per-item outcome of ModifyMonitoredItems.
type ModifyItemResult struct {
	StatusCode ua.StatusCode
	monitoring.ModifyResult
}

// Subscription owns a set of monitored items. All item access is serialized
// by the subscription lock; Publisher calls are made without holding it.
type Subscription struct {
	mu               sync.Mutex
	id               uint32
	cfg              Config
	view             addressspace.View
	publisher        Publisher
	metrics          Metrics
	logger           logrus.FieldLogger
	clock            func() time.Time
	items            map[uint32]*monitoring.MonitoredItem
	seqNum           uint32
	keepAliveCounter uint32
	lastPublish      time.Time
	retransmission   *ttlcache.Cache[uint32, ua.NotificationMessage]
}

// Option configures a Subscription.
type Option func(*Subscription)

// WithMetrics sets the Metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Subscription) {
		s.metrics = m
	}
}

// WithClock sets the clock used for item construction and the first publish cycle.
func WithClock(now func() time.Time) Option {
	return func(s *Subscription) {
		s.clock = now
	}
}

// New returns a subscription publishing to p.
func New(id uint32, cfg Config, view addressspace.View, p Publisher, logger logrus.FieldLogger, opts ...Option) *Subscription {
	cfg = cfg.revise()
	s := &Subscription{
		id:        id,
		cfg:       cfg,
		view:      view,
		publisher: p,
		metrics:   nopMetrics{},
		logger:    logger.WithField("subscription", id),
		clock:     time.Now,
		items:     make(map[uint32]*monitoring.MonitoredItem),
	}
	for _, opt := range opts {
		opt(s)
	}
	ttl := millis(cfg.PublishingInterval) * time.Duration(cfg.MaxKeepAliveCount) * retransmissionLifetimeFactor
	s.retransmission = ttlcache.New[uint32, ua.NotificationMessage](
		ttlcache.WithTTL[uint32, ua.NotificationMessage](ttl),
		ttlcache.WithCapacity[uint32, ua.NotificationMessage](cfg.RetransmissionCapacity),
		ttlcache.WithDisableTouchOnHit[uint32, ua.NotificationMessage](),
	)
	s.lastPublish = s.clock()
	return s
}

// ID returns the subscription id.
func (s *Subscription) ID() uint32 { return s.id }

// Config returns the revised parameters.
func (s *Subscription) Config() Config { return s.cfg }

// Len returns the number of monitored items.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// ItemIDs returns the monitored item ids in ascending order.
func (s *Subscription) ItemIDs() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedIDs()
}

func (s *Subscription) sortedIDs() []uint32 {
	ids := make([]uint32, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CreateMonitoredItems creates one item per request. A rejected request
// does not prevent the others from being created.
func (s *Subscription) CreateMonitoredItems(reqs []monitoring.CreateRequest) []CreateResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]CreateResult, len(reqs))
	for i, req := range reqs {
		if s.cfg.MaxQueueSize > 0 && req.QueueSize > s.cfg.MaxQueueSize {
			req.QueueSize = s.cfg.MaxQueueSize
		}
		id := atomic.AddUint32(&monitoredItemID, 1)
		item, err := monitoring.New(id, req,
			monitoring.WithClock(s.clock),
			monitoring.WithLogger(s.logger),
			monitoring.WithObserver(s.metrics),
		)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"nodeId": req.ItemToMonitor.NodeID,
				"error":  err,
			}).Warnln("Monitored item rejected ⛔")
			results[i] = CreateResult{StatusCode: monitoring.StatusCode(err)}
			continue
		}
		s.items[id] = item
		results[i] = CreateResult{
			StatusCode:              ua.Good,
			MonitoredItemID:         id,
			RevisedSamplingInterval: item.SamplingInterval(),
			RevisedQueueSize:        item.QueueSize(),
		}
	}
	if n := s.countGood(results); n > 0 {
		s.metrics.ItemsChanged(n)
	}
	return results
}

func (s *Subscription) countGood(results []CreateResult) int {
	n := 0
	for _, r := range results {
		if r.StatusCode == ua.Good {
			n++
		}
	}
	return n
}

// DeleteMonitoredItems removes the items with the given ids.
func (s *Subscription) DeleteMonitoredItems(ids []uint32) []ua.StatusCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]ua.StatusCode, len(ids))
	deleted := 0
	for i, id := range ids {
		if _, ok := s.items[id]; !ok {
			results[i] = ua.BadMonitoredItemIDInvalid
			continue
		}
		delete(s.items, id)
		deleted++
		results[i] = ua.Good
	}
	if deleted > 0 {
		s.metrics.ItemsChanged(-deleted)
	}
	return results
}

// SetMonitoringMode sets the monitoring mode of the items with the given ids.
func (s *Subscription) SetMonitoringMode(mode ua.MonitoringMode, ids []uint32) []ua.StatusCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]ua.StatusCode, len(ids))
	for i, id := range ids {
		item, ok := s.items[id]
		if !ok {
			results[i] = ua.BadMonitoredItemIDInvalid
			continue
		}
		item.SetMonitoringMode(mode)
		results[i] = ua.Good
	}
	return results
}

// ModifyMonitoredItems applies new parameters to existing items.
func (s *Subscription) ModifyMonitoredItems(reqs []ModifyItemRequest) []ModifyItemResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]ModifyItemResult, len(reqs))
	for i, req := range reqs {
		item, ok := s.items[req.MonitoredItemID]
		if !ok {
			results[i] = ModifyItemResult{StatusCode: ua.BadMonitoredItemIDInvalid}
			continue
		}
		p := req.Parameters
		if s.cfg.MaxQueueSize > 0 && p.QueueSize > s.cfg.MaxQueueSize {
			p.QueueSize = s.cfg.MaxQueueSize
		}
		res, err := item.Modify(p)
		if err != nil {
			results[i] = ModifyItemResult{StatusCode: monitoring.StatusCode(err)}
			continue
		}
		results[i] = ModifyItemResult{StatusCode: ua.Good, ModifyResult: res}
	}
	return results
}

// SetPublishingEnabled switches publishing. A disabled subscription keeps
// sampling but only sends keep-alive messages.
func (s *Subscription) SetPublishingEnabled(enabled bool) {
	s.mu.Lock()
	s.cfg.PublishingEnabled = enabled
	s.mu.Unlock()
}

// Run ticks the subscription at its sampling quantum until ctx is done.
func (s *Subscription) Run(ctx context.Context) {
	go s.retransmission.Start()
	defer s.retransmission.Stop()

	ticker := time.NewTicker(millis(s.cfg.SamplingTick))
	defer ticker.Stop()
	s.logger.WithFields(logrus.Fields{
		"publishingInterval": s.cfg.PublishingInterval,
		"samplingTick":       s.cfg.SamplingTick,
	}).Infoln("Subscription started ✅")
	for {
		select {
		case <-ctx.Done():
			s.logger.Infoln("Subscription stopped 🔔")
			return
		case now := <-ticker.C:
			s.Cycle(ctx, now)
		}
	}
}

// Cycle runs one driver step at now: every enabled item is ticked and, when
// the publishing interval has elapsed, a message is published. Messages that
// failed earlier are redelivered first; delivered messages are acknowledged.
func (s *Subscription) Cycle(ctx context.Context, now time.Time) {
	msg, ok := s.step(now)
	if !ok {
		return
	}
	s.redeliver(ctx, msg.SequenceNumber)
	if err := s.publisher.Publish(ctx, s.id, msg); err != nil {
		s.metrics.PublishFailed(s.id)
		s.logger.WithFields(logrus.Fields{
			"sequenceNumber": msg.SequenceNumber,
			"error":          err,
		}).Errorln("Failed to publish notification message ⛔")
		return
	}
	if len(msg.NotificationData) == 0 {
		s.metrics.KeepAlive(s.id)
		return
	}
	s.Acknowledge(msg.SequenceNumber)
	s.metrics.Published(s.id, notificationCount(msg))
}

// redeliver republishes the held messages older than seq, oldest first,
// and stops at the first failure.
func (s *Subscription) redeliver(ctx context.Context, seq uint32) {
	for _, held := range s.AvailableSequenceNumbers() {
		if held >= seq {
			return
		}
		msg, err := s.Republish(held)
		if err != nil {
			// expired
			continue
		}
		if err := s.publisher.Publish(ctx, s.id, msg); err != nil {
			s.logger.WithFields(logrus.Fields{
				"sequenceNumber": held,
				"error":          err,
			}).Warnln("Failed to republish notification message 🔔")
			return
		}
		s.Acknowledge(held)
		s.metrics.Published(s.id, notificationCount(msg))
	}
}

func (s *Subscription) step(now time.Time) (ua.NotificationMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := now.Sub(s.lastPublish) >= millis(s.cfg.PublishingInterval)
	ids := s.sortedIDs()
	for _, id := range ids {
		item := s.items[id]
		if item.MonitoringMode() == ua.MonitoringModeDisabled {
			continue
		}
		item.Tick(s.view, now, elapsed)
	}
	if !elapsed {
		return ua.NotificationMessage{}, false
	}
	s.lastPublish = now

	if s.cfg.PublishingEnabled {
		if mins := s.drain(ids); len(mins) > 0 {
			s.seqNum++
			msg := ua.NotificationMessage{
				SequenceNumber:   s.seqNum,
				PublishTime:      now,
				NotificationData: []ua.ExtensionObject{ua.DataChangeNotification{MonitoredItems: mins}},
			}
			s.retransmission.Set(msg.SequenceNumber, msg, ttlcache.DefaultTTL)
			s.keepAliveCounter = 0
			return msg, true
		}
	}

	s.keepAliveCounter++
	if s.keepAliveCounter < s.cfg.MaxKeepAliveCount {
		return ua.NotificationMessage{}, false
	}
	s.keepAliveCounter = 0
	// keep-alive carries the next sequence number without consuming it
	return ua.NotificationMessage{SequenceNumber: s.seqNum + 1, PublishTime: now}, true
}

func (s *Subscription) drain(ids []uint32) []ua.MonitoredItemNotification {
	limit := int(s.cfg.MaxNotificationsPerPublish)
	mins := make([]ua.MonitoredItemNotification, 0, 4)
	for _, id := range ids {
		item := s.items[id]
		if item.MonitoringMode() != ua.MonitoringModeReporting {
			continue
		}
		for limit == 0 || len(mins) < limit {
			n, ok := item.Dequeue()
			if !ok {
				break
			}
			mins = append(mins, n.ToUA())
		}
	}
	return mins
}

func notificationCount(msg ua.NotificationMessage) int {
	n := 0
	for _, d := range msg.NotificationData {
		if dcn, ok := d.(ua.DataChangeNotification); ok {
			n += len(dcn.MonitoredItems)
		}
	}
	return n
}

// Republish returns a message still held for retransmission, that is one
// whose delivery failed and has not been retried successfully yet.
func (s *Subscription) Republish(seq uint32) (ua.NotificationMessage, error) {
	item := s.retransmission.Get(seq)
	if item == nil {
		return ua.NotificationMessage{}, ua.BadMessageNotAvailable
	}
	return item.Value(), nil
}

// Acknowledge drops a message from the retransmission queue.
func (s *Subscription) Acknowledge(seq uint32) bool {
	if s.retransmission.Get(seq) == nil {
		return false
	}
	s.retransmission.Delete(seq)
	return true
}

// AvailableSequenceNumbers returns the sequence numbers held for retransmission.
func (s *Subscription) AvailableSequenceNumbers() []uint32 {
	keys := s.retransmission.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
