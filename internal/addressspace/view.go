// Package addressspace exposes the node and attribute lookups the sampling
// engine needs, backed either by an in-memory store or by the namespace of
// the running OPC UA server.
package addressspace

import (
	"time"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/deadband"
	"github.com/awcullen/opcua/ua"
)

// maxAttributeID is AccessLevelEx, the highest attribute id defined by Part 6.
const maxAttributeID = 27

// View is a read-only view over the nodes of an address space.
// Implementations must be safe for concurrent use.
type View interface {
	FindNode(id ua.NodeID) (Node, bool)
}

// Node resolves the current value of one of its attributes.
type Node interface {
	FindAttribute(attributeID uint32) (ua.DataValue, bool)
}

// RangeNode is implemented by analog nodes that carry an engineering units range.
type RangeNode interface {
	Node
	EURange() (deadband.Range, bool)
}

// ValidAttributeID reports whether id is a known attribute identifier.
func ValidAttributeID(id uint32) bool {
	return id >= ua.AttributeIDNodeID && id <= maxAttributeID
}

func constant(v ua.Variant) ua.DataValue {
	t := time.Now()
	return ua.NewDataValue(v, ua.Good, time.Time{}, 0, t, 0)
}
