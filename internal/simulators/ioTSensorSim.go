package simulators

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Sink receives the values produced by a simulator.
type Sink interface {
	Write(id string, value float64, t time.Time) error
}

type IoTSensorSim struct {
	// Sensor Id
	SensorId string
	// sensor data mean value
	mean float64
	// sensor data standard deviation value
	standardDeviation float64
	// sensor data current value
	currentValue float64

	// Delay between each data point
	delayMin int
	delayMax int
	// Randomize delay between data points if true,
	// otherwise delayMin will be set as fixed delay
	randomize bool
	delayUnit time.Duration

	mu        sync.Mutex
	rnd       *rand.Rand
	isRunning bool
}

func NewIoTSensorSim(
	id string,
	mean,
	standardDeviation float64,
	delayMin int,
	delayMax int,
	randomize bool,
) *IoTSensorSim {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	if delayMin <= 0 {
		delayMin = 1
	}
	if delayMax < delayMin {
		delayMax = delayMin
	}
	return &IoTSensorSim{
		SensorId:          id,
		mean:              mean,
		standardDeviation: math.Abs(standardDeviation),
		currentValue:      mean - rnd.Float64(),
		delayMin:          delayMin,
		delayMax:          delayMax,
		randomize:         randomize,
		delayUnit:         time.Second,
		rnd:               rnd,
	}
}

// SetDelayUnit changes the unit of delayMin/delayMax, seconds by default.
func (s *IoTSensorSim) SetDelayUnit(unit time.Duration) {
	s.mu.Lock()
	s.delayUnit = unit
	s.mu.Unlock()
}

// NextValue advances the random walk and returns the new value.
func (s *IoTSensorSim) NextValue() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calculateNextValue()
}

func (s *IoTSensorSim) calculateNextValue() float64 {
	// first calculate how much the value will be changed
	valueChange := s.rnd.Float64() * s.standardDeviation / 10
	// second decide if the value is increased or decreased
	factor := s.decideFactor()
	s.currentValue += valueChange * factor
	return s.currentValue
}

func (s *IoTSensorSim) decideFactor() float64 {
	var (
		continueDirection, changeDirection float64
		distance                           float64 // the distance from the mean.
	)
	if s.currentValue > s.mean {
		distance = s.currentValue - s.mean
		continueDirection = 1
		changeDirection = -1
	} else {
		distance = s.mean - s.currentValue
		continueDirection = -1
		changeDirection = 1
	}
	// Half of the standard deviation gives a 50/50 chance at the mean; the
	// further away from it, the likelier the walk turns back. The division
	// by 50 was found empirically.
	chance := (s.standardDeviation / 2) - (distance / 50)
	randomValue := s.standardDeviation * s.rnd.Float64()
	if randomValue < chance {
		return continueDirection
	}
	return changeDirection
}

func (s *IoTSensorSim) UpdateSensorParams(
	mean float64,
	standardDeviation float64,
) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mean = mean
	s.currentValue = mean - s.rnd.Float64()
	s.standardDeviation = math.Abs(standardDeviation)
}

func (s *IoTSensorSim) nextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	delay := s.delayMin
	if s.randomize && s.delayMax > s.delayMin {
		delay = s.rnd.Intn(s.delayMax-s.delayMin+1) + s.delayMin
	}
	return time.Duration(delay) * s.delayUnit
}

// Run writes a first value immediately and then one value per delay until
// ctx is done. It blocks; a second concurrent call returns at once.
func (s *IoTSensorSim) Run(ctx context.Context, sink Sink, log *logrus.Logger) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		log.WithField("Sensor Id", s.SensorId).Debugln("Already running 🔔")
		return
	}
	s.isRunning = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	write := func() {
		if err := sink.Write(s.SensorId, s.NextValue(), time.Now()); err != nil {
			log.WithFields(logrus.Fields{
				"Sensor Id": s.SensorId,
				"Err":       err,
			}).Errorln("Failed to write sensor value ⛔")
		}
	}

	log.WithField("Sensor Id", s.SensorId).Debugln("Started running 🔔")
	write()
	timer := time.NewTimer(s.nextDelay())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.WithField("Sensor Id", s.SensorId).Debugln("Got shutdown signal 🔔")
			return
		case <-timer.C:
			write()
			timer.Reset(s.nextDelay())
		}
	}
}
