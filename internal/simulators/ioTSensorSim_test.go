package simulators

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	mu     sync.Mutex
	values []float64
	err    error
}

func (r *recordingSink) Write(_ string, v float64, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

func TestRandomWalkStaysNearMean(t *testing.T) {
	sim := NewIoTSensorSim("Temperature", 20, 5, 1, 3, true)
	for i := 0; i < 10000; i++ {
		v := sim.NextValue()
		assert.InDelta(t, 20, v, 50)
	}
}

func TestDelayBounds(t *testing.T) {
	sim := NewIoTSensorSim("Pressure", 80, 7, 2, 4, true)
	for i := 0; i < 200; i++ {
		d := sim.nextDelay()
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 4*time.Second)
	}

	fixed := NewIoTSensorSim("Flow", 1, 1, 0, 0, true)
	assert.Equal(t, time.Second, fixed.nextDelay())
}

func TestRunWritesUntilCancelled(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sim := NewIoTSensorSim("Temperature", 20, 5, 1, 2, true)
	sim.SetDelayUnit(time.Millisecond)
	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sim.Run(ctx, sink, logger)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sink.count() >= 5 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("simulator did not stop")
	}
}

func TestRunLogsSinkErrors(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sim := NewIoTSensorSim("Temperature", 20, 5, 1, 1, false)
	sim.SetDelayUnit(time.Hour)
	sink := &recordingSink{err: errors.New("unknown sensor")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sim.Run(ctx, sink, logger)
		close(done)
	}()
	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done

	var errs int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errs++
		}
	}
	assert.Equal(t, 1, errs)
}
