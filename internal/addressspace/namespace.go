package addressspace

import (
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/deadband"
	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
)

// NamespaceView serves lookups from the namespace manager of an awcullen server.
type NamespaceView struct {
	nm *server.NamespaceManager
}

// NewNamespaceView wraps the namespace manager of srv.
func NewNamespaceView(srv *server.Server) *NamespaceView {
	return &NamespaceView{nm: srv.NamespaceManager()}
}

// FindNode implements View.
func (v *NamespaceView) FindNode(id ua.NodeID) (Node, bool) {
	if id == nil {
		return nil, false
	}
	n, ok := v.nm.FindNode(id)
	if !ok {
		return nil, false
	}
	return serverNode{nm: v.nm, n: n}, true
}

type serverNode struct {
	nm *server.NamespaceManager
	n  server.Node
}

func (s serverNode) FindAttribute(attributeID uint32) (ua.DataValue, bool) {
	switch attributeID {
	case ua.AttributeIDValue:
		if vn, ok := s.n.(*server.VariableNode); ok {
			return vn.Value(), true
		}
		return ua.DataValue{}, false
	case ua.AttributeIDNodeID:
		return constant(s.n.NodeID()), true
	case ua.AttributeIDNodeClass:
		return constant(int32(s.n.NodeClass())), true
	case ua.AttributeIDBrowseName:
		return constant(s.n.BrowseName()), true
	case ua.AttributeIDDisplayName:
		return constant(s.n.DisplayName()), true
	case ua.AttributeIDDescription:
		return constant(s.n.Description()), true
	default:
		return ua.DataValue{}, false
	}
}

// EURange reads the EURange property of an analog item.
func (s serverNode) EURange() (deadband.Range, bool) {
	p, ok := s.nm.FindProperty(s.n, ua.NewQualifiedName(0, "EURange"))
	if !ok {
		return deadband.Range{}, false
	}
	r, ok := p.Value().Value.(ua.Range)
	if !ok {
		return deadband.Range{}, false
	}
	return deadband.Range{Low: r.Low, High: r.High}, true
}
