package addressspace

import (
	"sync"
	"time"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/deadband"
	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
)

// ErrNodeExists is returned by AddVariable for a node id already in the store.
var ErrNodeExists = errors.New("addressspace: node already exists")

// ErrNodeUnknown is returned when writing to a node that is not in the store.
var ErrNodeUnknown = errors.New("addressspace: unknown node")

// Store is an in-memory address space of variable nodes.
type Store struct {
	mu    sync.RWMutex
	nodes map[ua.NodeID]*Variable
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{nodes: make(map[ua.NodeID]*Variable)}
}

// Variable is a variable node held by a Store.
type Variable struct {
	mu          sync.RWMutex
	nodeID      ua.NodeID
	browseName  ua.QualifiedName
	displayName ua.LocalizedText
	description ua.LocalizedText
	value       ua.DataValue
	hasValue    bool
	euRange     *deadband.Range
}

// AddVariable adds a variable node without a value.
func (s *Store) AddVariable(id ua.NodeID, browseName ua.QualifiedName, description string) (*Variable, error) {
	if id == nil {
		return nil, errors.Wrap(ErrNodeUnknown, "nil node id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; ok {
		return nil, errors.Wrapf(ErrNodeExists, "%s", id)
	}
	v := &Variable{
		nodeID:      id,
		browseName:  browseName,
		displayName: ua.NewLocalizedText(browseName.Name, ""),
		description: ua.NewLocalizedText(description, ""),
	}
	s.nodes[id] = v
	return v, nil
}

// SetValue replaces the value of the node id.
func (s *Store) SetValue(id ua.NodeID, value ua.DataValue) error {
	v, ok := s.variable(id)
	if !ok {
		return errors.Wrapf(ErrNodeUnknown, "%s", id)
	}
	v.SetValue(value)
	return nil
}

// SetEURange attaches an engineering units range to the node id.
func (s *Store) SetEURange(id ua.NodeID, r deadband.Range) error {
	v, ok := s.variable(id)
	if !ok {
		return errors.Wrapf(ErrNodeUnknown, "%s", id)
	}
	v.mu.Lock()
	v.euRange = &r
	v.mu.Unlock()
	return nil
}

// Remove deletes the node id, reporting whether it existed.
func (s *Store) Remove(id ua.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return false
	}
	delete(s.nodes, id)
	return true
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// FindNode implements View.
func (s *Store) FindNode(id ua.NodeID) (Node, bool) {
	v, ok := s.variable(id)
	if !ok {
		return nil, false
	}
	return v, true
}

func (s *Store) variable(id ua.NodeID) (*Variable, bool) {
	if id == nil {
		return nil, false
	}
	s.mu.RLock()
	v, ok := s.nodes[id]
	s.mu.RUnlock()
	return v, ok
}

// NodeID returns the node id of the variable.
func (v *Variable) NodeID() ua.NodeID {
	return v.nodeID
}

// SetValue replaces the current value, stamping the server timestamp when absent.
func (v *Variable) SetValue(value ua.DataValue) {
	if value.ServerTimestamp.IsZero() {
		value.ServerTimestamp = time.Now()
	}
	v.mu.Lock()
	v.value = value
	v.hasValue = true
	v.mu.Unlock()
}

// FindAttribute implements Node.
func (v *Variable) FindAttribute(attributeID uint32) (ua.DataValue, bool) {
	switch attributeID {
	case ua.AttributeIDValue:
		v.mu.RLock()
		defer v.mu.RUnlock()
		return v.value, v.hasValue
	case ua.AttributeIDNodeID:
		return constant(v.nodeID), true
	case ua.AttributeIDNodeClass:
		return constant(int32(ua.NodeClassVariable)), true
	case ua.AttributeIDBrowseName:
		return constant(v.browseName), true
	case ua.AttributeIDDisplayName:
		return constant(v.displayName), true
	case ua.AttributeIDDescription:
		return constant(v.description), true
	default:
		return ua.DataValue{}, false
	}
}

// EURange implements RangeNode.
func (v *Variable) EURange() (deadband.Range, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.euRange == nil {
		return deadband.Range{}, false
	}
	return *v.euRange, true
}
