package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/deadband"
	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrUnknownSensor = errors.New("unknown sensor")

// SensorSink receives the readings of the simulators.
type SensorSink interface {
	AddSensor(id string, eu deadband.Range) (ua.NodeID, error)
	Write(id string, value float64, t time.Time) error
}

// SensorSimService exposes each simulated sensor as an analog variable of
// the OPC UA server, with an EURange property.
type SensorSimService struct {
	Srv *UaSrvService

	mu    sync.RWMutex
	nodes map[string]*server.VariableNode
	log   *logrus.Logger
}

func NewSensorSimService(srv *UaSrvService, log *logrus.Logger) *SensorSimService {
	return &SensorSimService{
		Srv:   srv,
		nodes: make(map[string]*server.VariableNode),
		log:   log,
	}
}

func (sensorSim *SensorSimService) CreateNewVariableNode(nsi uint16, nodeName string) *server.VariableNode {
	return server.NewVariableNode(
		sensorSim.Srv.server,
		ua.NodeIDString{NamespaceIndex: nsi, ID: nodeName},
		ua.QualifiedName{NamespaceIndex: nsi, Name: nodeName},
		ua.LocalizedText{Text: nodeName},
		ua.LocalizedText{Text: fmt.Sprint(nodeName, " IoT Sensor Simulator")},
		nil,
		[]ua.Reference{
			{
				ReferenceTypeID: ua.ReferenceTypeIDHasComponent,
				IsInverse:       true,
				TargetID:        ua.ExpandedNodeID{NodeID: sensorSim.Srv.RootNodeID()},
			},
			{
				ReferenceTypeID: ua.ReferenceTypeIDHasTypeDefinition,
				TargetID:        ua.ExpandedNodeID{NodeID: ua.VariableTypeIDAnalogItemType},
			},
		},
		ua.DataValue{},
		ua.DataTypeIDDouble,
		ua.ValueRankScalar,
		[]uint32{},
		ua.AccessLevelsCurrentRead|ua.AccessLevelsHistoryRead,
		250.0,
		false,
		sensorSim.Srv.server.Historian(),
	)
}

// CreateEURangeProperty returns the EURange property node of the sensor variable parent.
func (sensorSim *SensorSimService) CreateEURangeProperty(parent ua.NodeIDString, eu deadband.Range) *server.VariableNode {
	return server.NewVariableNode(
		sensorSim.Srv.server,
		ua.NodeIDString{NamespaceIndex: parent.NamespaceIndex, ID: parent.ID + ".EURange"},
		ua.QualifiedName{NamespaceIndex: 0, Name: "EURange"},
		ua.LocalizedText{Text: "EURange"},
		ua.LocalizedText{Text: "Engineering units range of the sensor."},
		nil,
		[]ua.Reference{
			{
				ReferenceTypeID: ua.ReferenceTypeIDHasProperty,
				IsInverse:       true,
				TargetID:        ua.ExpandedNodeID{NodeID: parent},
			},
			{
				ReferenceTypeID: ua.ReferenceTypeIDHasTypeDefinition,
				TargetID:        ua.ExpandedNodeID{NodeID: ua.VariableTypeIDPropertyType},
			},
		},
		ua.NewDataValue(ua.Range{Low: eu.Low, High: eu.High}, ua.Good, time.Time{}, 0, time.Now().UTC(), 0),
		ua.DataTypeIDRange,
		ua.ValueRankScalar,
		[]uint32{},
		ua.AccessLevelsCurrentRead,
		0,
		false,
		nil,
	)
}

func (sensorSim *SensorSimService) AddVariableNode(node server.Node) error {
	return sensorSim.Srv.server.NamespaceManager().AddNode(node)
}

// AddSensor implements SensorSink. A zero width range adds no EURange property.
func (sensorSim *SensorSimService) AddSensor(id string, eu deadband.Range) (ua.NodeID, error) {
	sensorSim.mu.Lock()
	defer sensorSim.mu.Unlock()
	if _, ok := sensorSim.nodes[id]; ok {
		return nil, errors.Errorf("sensor %s already exists", id)
	}
	nsi := sensorSim.Srv.NamespaceIndex()
	node := sensorSim.CreateNewVariableNode(nsi, id)
	if err := sensorSim.AddVariableNode(node); err != nil {
		return nil, errors.Wrapf(err, "add sensor %s", id)
	}
	nodeID := ua.NodeIDString{NamespaceIndex: nsi, ID: id}
	if eu.Span() > 0 {
		if err := sensorSim.AddVariableNode(sensorSim.CreateEURangeProperty(nodeID, eu)); err != nil {
			return nil, errors.Wrapf(err, "add EURange of %s", id)
		}
	}
	sensorSim.nodes[id] = node
	sensorSim.log.WithField("NodeId", nodeID.String()).Infoln("IoT sensor node added ✅")
	return nodeID, nil
}

// Write implements SensorSink.
func (sensorSim *SensorSimService) Write(id string, value float64, t time.Time) error {
	sensorSim.mu.RLock()
	node, ok := sensorSim.nodes[id]
	sensorSim.mu.RUnlock()
	if !ok {
		return errors.Wrap(ErrUnknownSensor, id)
	}
	t = t.UTC()
	node.SetValue(ua.NewDataValue(value, ua.Good, t, 0, t, 0))
	return nil
}

// StoreSensorSink writes sensor readings into an in-memory address space.
type StoreSensorSink struct {
	Store          *addressspace.Store
	NamespaceIndex uint16
}

func NewStoreSensorSink(store *addressspace.Store, nsi uint16) *StoreSensorSink {
	return &StoreSensorSink{Store: store, NamespaceIndex: nsi}
}

func (s *StoreSensorSink) nodeID(id string) ua.NodeID {
	return ua.NodeIDString{NamespaceIndex: s.NamespaceIndex, ID: id}
}

func (s *StoreSensorSink) AddSensor(id string, eu deadband.Range) (ua.NodeID, error) {
	nodeID := s.nodeID(id)
	if _, err := s.Store.AddVariable(nodeID, ua.QualifiedName{NamespaceIndex: s.NamespaceIndex, Name: id}, fmt.Sprint(id, " IoT Sensor Simulator")); err != nil {
		return nil, err
	}
	if eu.Span() > 0 {
		if err := s.Store.SetEURange(nodeID, eu); err != nil {
			return nil, err
		}
	}
	return nodeID, nil
}

func (s *StoreSensorSink) Write(id string, value float64, t time.Time) error {
	t = t.UTC()
	if err := s.Store.SetValue(s.nodeID(id), ua.NewDataValue(value, ua.Good, t, 0, t, 0)); err != nil {
		return errors.Wrap(ErrUnknownSensor, id)
	}
	return nil
}
