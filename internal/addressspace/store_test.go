package addressspace

import (
	"sync"
	"testing"
	"time"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/deadband"
	"github.com/awcullen/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLookup(t *testing.T) {
	s := NewStore()
	id := ua.NewNodeIDString(2, "Temperature")

	_, ok := s.FindNode(id)
	assert.False(t, ok)

	_, err := s.AddVariable(id, ua.NewQualifiedName(2, "Temperature"), "Simulated temperature sensor")
	require.NoError(t, err)
	_, err = s.AddVariable(id, ua.NewQualifiedName(2, "Temperature"), "")
	assert.ErrorIs(t, err, ErrNodeExists)

	n, ok := s.FindNode(ua.ParseNodeID("ns=2;s=Temperature"))
	require.True(t, ok)

	_, ok = n.FindAttribute(ua.AttributeIDValue)
	assert.False(t, ok, "value is absent until written")

	now := time.Now()
	require.NoError(t, s.SetValue(id, ua.NewDataValue(21.5, ua.Good, now, 0, now, 0)))
	dv, ok := n.FindAttribute(ua.AttributeIDValue)
	require.True(t, ok)
	assert.Equal(t, 21.5, dv.Value)

	dv, ok = n.FindAttribute(ua.AttributeIDBrowseName)
	require.True(t, ok)
	assert.Equal(t, ua.NewQualifiedName(2, "Temperature"), dv.Value)

	_, ok = n.FindAttribute(ua.AttributeIDEventNotifier)
	assert.False(t, ok)

	assert.True(t, s.Remove(id))
	assert.False(t, s.Remove(id))
	assert.ErrorIs(t, s.SetValue(id, dv), ErrNodeUnknown)
}

func TestStoreEURange(t *testing.T) {
	s := NewStore()
	id := ua.NewNodeIDString(2, "Pressure")
	_, err := s.AddVariable(id, ua.NewQualifiedName(2, "Pressure"), "")
	require.NoError(t, err)

	n, _ := s.FindNode(id)
	rn, ok := n.(RangeNode)
	require.True(t, ok)
	_, ok = rn.EURange()
	assert.False(t, ok)

	require.NoError(t, s.SetEURange(id, deadband.Range{Low: 0, High: 200}))
	r, ok := rn.EURange()
	require.True(t, ok)
	assert.Equal(t, 200.0, r.Span())
}

func TestValidAttributeID(t *testing.T) {
	assert.False(t, ValidAttributeID(0))
	assert.True(t, ValidAttributeID(ua.AttributeIDNodeID))
	assert.True(t, ValidAttributeID(ua.AttributeIDValue))
	assert.True(t, ValidAttributeID(27))
	assert.False(t, ValidAttributeID(28))
}

func TestStoreConcurrentReads(t *testing.T) {
	s := NewStore()
	id := ua.NewNodeIDNumeric(2, 1001)
	_, err := s.AddVariable(id, ua.NewQualifiedName(2, "Level"), "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i == 0 {
					_ = s.SetValue(id, ua.NewDataValue(float64(j), ua.Good, time.Now(), 0, time.Time{}, 0))
					continue
				}
				if n, ok := s.FindNode(id); ok {
					n.FindAttribute(ua.AttributeIDValue)
				}
			}
		}(i)
	}
	wg.Wait()

	n, _ := s.FindNode(id)
	dv, ok := n.FindAttribute(ua.AttributeIDValue)
	require.True(t, ok)
	assert.Equal(t, 99.0, dv.Value)
	assert.False(t, dv.ServerTimestamp.IsZero())
}
