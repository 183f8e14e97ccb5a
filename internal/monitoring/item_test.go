package monitoring

import (
	"math"
	"testing"
	"time"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/addressspace"
	"github.com/awcullen/opcua/ua"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0         = time.Date(2022, 9, 1, 8, 0, 0, 0, time.UTC)
	sensorNode = ua.NewNodeIDString(2, "Temperature")
)

type recorder struct {
	sampled    int
	enqueued   int
	overflowed int
	suppressed []Error
}

func (r *recorder) Sampled()              { r.sampled++ }
func (r *recorder) Suppressed(kind Error) { r.suppressed = append(r.suppressed, kind) }
func (r *recorder) Enqueued()             { r.enqueued++ }
func (r *recorder) Overflowed()           { r.overflowed++ }

func filterOf(t *testing.T, f ua.DataChangeFilter) EncodedFilter {
	t.Helper()
	enc, err := EncodeDataChangeFilter(f)
	require.NoError(t, err)
	return enc
}

func request(t *testing.T, samplingInterval float64, queueSize uint32, discardOldest bool) CreateRequest {
	return CreateRequest{
		ItemToMonitor:    ua.ReadValueID{NodeID: sensorNode, AttributeID: ua.AttributeIDValue},
		MonitoringMode:   ua.MonitoringModeReporting,
		ClientHandle:     7,
		SamplingInterval: samplingInterval,
		Filter:           filterOf(t, ua.DataChangeFilter{Trigger: ua.DataChangeTriggerStatusValue}),
		QueueSize:        queueSize,
		DiscardOldest:    discardOldest,
	}
}

func newStore(t *testing.T) *addressspace.Store {
	t.Helper()
	s := addressspace.NewStore()
	_, err := s.AddVariable(sensorNode, ua.NewQualifiedName(2, "Temperature"), "")
	require.NoError(t, err)
	return s
}

func write(t *testing.T, s *addressspace.Store, v ua.Variant) {
	t.Helper()
	require.NoError(t, s.SetValue(sensorNode, ua.NewDataValue(v, ua.Good, t0, 0, t0, 0)))
}

func newItem(t *testing.T, req CreateRequest, opts ...Option) *MonitoredItem {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	mi, err := New(1, req, opts...)
	require.NoError(t, err)
	return mi
}

func notification(v string) Notification {
	return Notification{ClientHandle: 7, Value: ua.NewDataValue(v, ua.Good, t0, 0, t0, 0)}
}

func values(ns []Notification) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.Value.Value.(string)
	}
	return out
}

func TestNewClampsQueueSize(t *testing.T) {
	mi := newItem(t, request(t, 0, 0, true))
	assert.Equal(t, uint32(1), mi.QueueSize())
	assert.Equal(t, 0, mi.Len())
	assert.False(t, mi.Overflowed())
	assert.Equal(t, FilterKindDataChange, mi.Filter().Kind)
}

func TestNewRejectsFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter EncodedFilter
		want   ua.StatusCode
	}{
		{"event filter", EncodedFilter{TypeID: EventFilterEncodingID}, ua.BadFilterNotAllowed},
		{"aggregate filter", EncodedFilter{TypeID: AggregateFilterEncodingID}, ua.BadFilterNotAllowed},
		{"missing filter", EncodedFilter{}, ua.BadFilterNotAllowed},
		{"string encoding id", EncodedFilter{TypeID: ua.NewNodeIDString(0, "724")}, ua.BadFilterNotAllowed},
		{"undecodable payload", EncodedFilter{TypeID: DataChangeFilterEncodingID, Body: []byte{0x01}}, ua.BadDecodingError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(t, 0, 1, true)
			req.Filter = tt.filter
			mi, err := New(1, req)
			require.Error(t, err)
			assert.Nil(t, mi)
			assert.Equal(t, tt.want, StatusCode(err))
		})
	}
}

func TestNewRejectsInvalidDeadband(t *testing.T) {
	req := request(t, 0, 1, true)
	req.Filter = filterOf(t, ua.DataChangeFilter{
		Trigger:       ua.DataChangeTriggerStatusValue,
		DeadbandType:  uint32(ua.DeadbandTypeAbsolute),
		DeadbandValue: -1,
	})
	_, err := New(1, req)
	assert.ErrorIs(t, err, FilterNotAllowed)
	assert.Equal(t, ua.BadFilterNotAllowed, StatusCode(err))
}

func TestEnqueueDiscardOldest(t *testing.T) {
	mi := newItem(t, request(t, 0, 3, true))
	for _, v := range []string{"A", "B", "C"} {
		mi.enqueue(notification(v))
	}
	assert.False(t, mi.Overflowed())

	mi.enqueue(notification("D"))
	assert.Equal(t, []string{"D", "C", "B"}, values(mi.Snapshot()))
	assert.True(t, mi.Overflowed())
}

func TestEnqueueOverwrite(t *testing.T) {
	mi := newItem(t, request(t, 0, 3, false))
	for _, v := range []string{"A", "B", "C"} {
		mi.enqueue(notification(v))
	}
	assert.Equal(t, []string{"C", "B", "A"}, values(mi.Snapshot()))
	assert.False(t, mi.Overflowed())

	mi.enqueue(notification("D"))
	assert.Equal(t, []string{"D", "B", "A"}, values(mi.Snapshot()))
	assert.True(t, mi.Overflowed())
}

func TestQueueNeverExceedsCapacity(t *testing.T) {
	for _, discardOldest := range []bool{true, false} {
		for _, size := range []uint32{0, 1, 2, 5} {
			mi := newItem(t, request(t, 0, size, discardOldest))
			for i := 0; i < 50; i++ {
				mi.enqueue(notification("x"))
				require.LessOrEqual(t, mi.Len(), int(mi.QueueSize()))
			}
		}
	}
}

func TestOverflowClearsOnlyOnDequeue(t *testing.T) {
	mi := newItem(t, request(t, 0, 1, true))
	mi.enqueue(notification("A"))
	mi.enqueue(notification("B"))
	require.True(t, mi.Overflowed())

	_, ok := mi.Dequeue()
	require.True(t, ok)
	assert.False(t, mi.Overflowed())

	mi.enqueue(notification("C"))
	assert.False(t, mi.Overflowed(), "a successful enqueue does not set the flag")

	mi.enqueue(notification("D"))
	assert.True(t, mi.Overflowed())
	mi.enqueue(notification("E"))
	assert.True(t, mi.Overflowed(), "a successful enqueue does not clear the flag")

	_, ok = mi.Dequeue()
	require.True(t, ok)
	_, ok = mi.Dequeue()
	assert.False(t, ok)
}

// Dequeue takes from the front, so delivery is newest first.
func TestDequeueOrderIsNewestFirst(t *testing.T) {
	mi := newItem(t, request(t, 0, 5, true))
	for _, v := range []string{"A", "B", "C"} {
		mi.enqueue(notification(v))
	}

	var got []string
	for {
		n, ok := mi.Dequeue()
		if !ok {
			break
		}
		got = append(got, n.Value.Value.(string))
	}
	assert.Equal(t, []string{"C", "B", "A"}, got)
}

func TestTickIntervalZeroAlwaysDue(t *testing.T) {
	s := newStore(t)
	write(t, s, 1.0)
	rec := &recorder{}
	mi := newItem(t, request(t, 0, 10, true), WithObserver(rec))

	for i := 0; i < 5; i++ {
		mi.Tick(s, t0, false)
	}
	assert.Equal(t, 5, rec.sampled)
	assert.Equal(t, 1, mi.Len(), "unchanged value is not queued twice")
}

func TestTickPositiveInterval(t *testing.T) {
	s := newStore(t)
	write(t, s, 1.0)
	rec := &recorder{}
	mi := newItem(t, request(t, 50, 10, true), WithObserver(rec))

	assert.False(t, mi.Tick(s, t0.Add(20*time.Millisecond), false))
	assert.Equal(t, 0, rec.sampled)

	assert.True(t, mi.Tick(s, t0.Add(60*time.Millisecond), false))
	assert.Equal(t, 1, rec.sampled)

	write(t, s, 2.0)
	assert.False(t, mi.Tick(s, t0.Add(100*time.Millisecond), false))
	assert.True(t, mi.Tick(s, t0.Add(110*time.Millisecond), false))
}

func TestTickHugeIntervalNeverDue(t *testing.T) {
	for _, interval := range []float64{math.Inf(1), 1e13} {
		s := newStore(t)
		write(t, s, 1.0)
		rec := &recorder{}
		mi := newItem(t, request(t, interval, 10, true), WithObserver(rec))

		for i := 1; i <= 3; i++ {
			assert.False(t, mi.Tick(s, t0.Add(time.Duration(i)*time.Millisecond), false), "interval %v", interval)
		}
		assert.Equal(t, 0, rec.sampled, "interval %v", interval)
		assert.Equal(t, 0, mi.Len())
	}
}

func TestTickNegativeIntervalFollowsSubscription(t *testing.T) {
	s := newStore(t)
	write(t, s, 1.0)
	rec := &recorder{}
	mi := newItem(t, request(t, -1, 10, true), WithObserver(rec))

	for i := 0; i < 3; i++ {
		assert.False(t, mi.Tick(s, t0.Add(time.Duration(i)*time.Hour), false))
	}
	assert.Equal(t, 0, rec.sampled)

	mi.Tick(s, t0, true)
	mi.Tick(s, t0, true)
	assert.Equal(t, 2, rec.sampled)
}

func TestTickNaNIntervalSamplesOnce(t *testing.T) {
	s := newStore(t)
	write(t, s, 1.0)
	rec := &recorder{}
	mi := newItem(t, request(t, math.NaN(), 10, true), WithObserver(rec))

	assert.True(t, mi.Tick(s, t0, false))
	write(t, s, 2.0)
	assert.False(t, mi.Tick(s, t0.Add(time.Second), true))
	assert.Equal(t, 1, rec.sampled)
}

func TestTickFirstObservationNotifies(t *testing.T) {
	s := newStore(t)
	write(t, s, 21.5)
	mi := newItem(t, request(t, 0, 10, true))

	require.True(t, mi.Tick(s, t0, false))
	n, ok := mi.Dequeue()
	require.True(t, ok)
	assert.Equal(t, uint32(7), n.ClientHandle)
	assert.Equal(t, 21.5, n.Value.Value)
	assert.Equal(t, uint32(7), n.ToUA().ClientHandle)
}

func TestTickLookupMissesAreSilent(t *testing.T) {
	s := newStore(t)
	rec := &recorder{}

	t.Run("missing value", func(t *testing.T) {
		mi := newItem(t, request(t, 0, 10, true), WithObserver(rec))
		assert.False(t, mi.Tick(s, t0, false))
	})
	t.Run("invalid attribute", func(t *testing.T) {
		req := request(t, 0, 10, true)
		req.ItemToMonitor.AttributeID = 99
		mi := newItem(t, req, WithObserver(rec))
		write(t, s, 1.0)
		assert.False(t, mi.Tick(s, t0, false))
	})
	t.Run("missing node", func(t *testing.T) {
		req := request(t, 0, 10, true)
		req.ItemToMonitor.NodeID = ua.NewNodeIDString(2, "Humidity")
		mi := newItem(t, req, WithObserver(rec))
		assert.False(t, mi.Tick(s, t0, false))
	})
	assert.Equal(t, []Error{AttributeNotFound, InvalidAttributeID, NodeNotFound}, rec.suppressed)
}

func TestTickAdvancesSampleTimeOnMiss(t *testing.T) {
	s := addressspace.NewStore()
	rec := &recorder{}
	mi := newItem(t, request(t, 50, 10, true), WithObserver(rec))

	assert.False(t, mi.Tick(s, t0.Add(60*time.Millisecond), false))
	assert.Equal(t, t0.Add(60*time.Millisecond), mi.lastSampleTime)

	assert.False(t, mi.Tick(s, t0.Add(80*time.Millisecond), false))
	assert.Equal(t, 1, rec.sampled)
}

func TestTickSampleTimeNeverMovesBack(t *testing.T) {
	s := newStore(t)
	write(t, s, 1.0)
	mi := newItem(t, request(t, 0, 10, true))

	mi.Tick(s, t0.Add(time.Second), false)
	mi.Tick(s, t0.Add(500*time.Millisecond), false)
	assert.Equal(t, t0.Add(time.Second), mi.lastSampleTime)
}

func TestTickPresenceTransitions(t *testing.T) {
	s := newStore(t)
	mi := newItem(t, request(t, 0, 10, true))

	write(t, s, nil)
	assert.True(t, mi.Tick(s, t0, false), "first observation")
	assert.False(t, mi.Tick(s, t0, false), "both absent")

	write(t, s, 3.0)
	assert.True(t, mi.Tick(s, t0, false), "absent to present")

	write(t, s, nil)
	assert.True(t, mi.Tick(s, t0, false), "present to absent")
}

func TestTickAppliesDeadband(t *testing.T) {
	s := newStore(t)
	req := request(t, 0, 10, true)
	req.Filter = filterOf(t, ua.DataChangeFilter{
		Trigger:       ua.DataChangeTriggerStatusValue,
		DeadbandType:  uint32(ua.DeadbandTypeAbsolute),
		DeadbandValue: 0.5,
	})
	mi := newItem(t, req)

	write(t, s, 20.0)
	require.True(t, mi.Tick(s, t0, false))
	write(t, s, 20.3)
	assert.False(t, mi.Tick(s, t0, false))
	write(t, s, 20.6)
	assert.True(t, mi.Tick(s, t0, false))
	assert.Equal(t, 2, mi.Len())
}

func TestTickFilterFailureSuppresses(t *testing.T) {
	s := newStore(t)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	rec := &recorder{}

	req := request(t, 0, 10, true)
	// percent deadband without an EU range cannot be evaluated
	req.Filter = filterOf(t, ua.DataChangeFilter{
		Trigger:       ua.DataChangeTriggerStatusValue,
		DeadbandType:  uint32(ua.DeadbandTypePercent),
		DeadbandValue: 10,
	})
	mi := newItem(t, req, WithObserver(rec), WithLogger(logger))

	write(t, s, 1.0)
	require.True(t, mi.Tick(s, t0, false))
	write(t, s, 500.0)
	assert.False(t, mi.Tick(s, t0, false))
	assert.Equal(t, []Error{FilterEvaluationFailed}, rec.suppressed)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	assert.Equal(t, FilterEvaluationFailed.Error(), hook.LastEntry().Data["reason"])
}

func TestModify(t *testing.T) {
	mi := newItem(t, request(t, 100, 3, true))
	for _, v := range []string{"A", "B", "C"} {
		mi.enqueue(notification(v))
	}

	res, err := mi.Modify(ModifyRequest{
		ClientHandle:     9,
		SamplingInterval: 250,
		Filter:           filterOf(t, ua.DataChangeFilter{Trigger: ua.DataChangeTriggerStatus}),
		QueueSize:        1,
		DiscardOldest:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, ModifyResult{RevisedSamplingInterval: 250, RevisedQueueSize: 1}, res)
	assert.Equal(t, []string{"C"}, values(mi.Snapshot()))
	assert.True(t, mi.Overflowed())
	assert.Equal(t, uint32(9), mi.ClientHandle())

	_, err = mi.Modify(ModifyRequest{Filter: EncodedFilter{TypeID: EventFilterEncodingID}, QueueSize: 8})
	assert.Equal(t, ua.BadFilterNotAllowed, StatusCode(err))
	assert.Equal(t, uint32(1), mi.QueueSize())
}

func TestModifyTrimFront(t *testing.T) {
	mi := newItem(t, request(t, 100, 3, false))
	for _, v := range []string{"A", "B", "C"} {
		mi.enqueue(notification(v))
	}
	_, err := mi.Modify(ModifyRequest{
		Filter:    filterOf(t, ua.DataChangeFilter{Trigger: ua.DataChangeTriggerStatusValue}),
		QueueSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, values(mi.Snapshot()))
}

func TestSetMonitoringModeDisabledResets(t *testing.T) {
	s := newStore(t)
	write(t, s, 1.0)
	mi := newItem(t, request(t, 0, 1, true))
	mi.Tick(s, t0, false)
	mi.enqueue(notification("x"))
	require.True(t, mi.Overflowed())

	mi.SetMonitoringMode(ua.MonitoringModeDisabled)
	assert.Equal(t, ua.MonitoringModeDisabled, mi.MonitoringMode())
	assert.Equal(t, 0, mi.Len())
	assert.False(t, mi.Overflowed())

	mi.SetMonitoringMode(ua.MonitoringModeReporting)
	assert.True(t, mi.Tick(s, t0, false), "first observation after re-enable")
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, ua.Good, StatusCode(nil))
	assert.Equal(t, ua.BadNodeIDUnknown, StatusCode(NodeNotFound))
	assert.Equal(t, ua.BadAttributeIDInvalid, StatusCode(InvalidAttributeID))
	assert.Equal(t, ua.BadInternalError, StatusCode(FilterEvaluationFailed))
	assert.Equal(t, ua.BadTooManyOperations, StatusCode(ua.BadTooManyOperations))
}
