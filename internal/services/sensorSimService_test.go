package services

import (
	"testing"
	"time"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/addressspace"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/component"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/deadband"
	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *UaSrvService {
	t.Helper()
	srv, err := NewUaSrvService(component.Server{
		Host:             "localhost",
		Port:             46011,
		NamespaceURI:     "http://github.com/amine-amaach/simulators/ioTSensorsOPCUA",
		AllowAnonymous:   true,
		Users:            []component.UserId{{Username: "root", Password: "secret"}},
		SecurityProfiles: []string{"None", "Basic256Sha256"},
		Certificate:      component.Certificate{PKIPath: t.TempDir()},
	}, quietLogger())
	require.NoError(t, err)
	return srv
}

func TestServerSensorNodes(t *testing.T) {
	srv := newTestServer(t)
	sim := NewSensorSimService(srv, quietLogger())

	id, err := sim.AddSensor("Temperature", deadband.Range{Low: -40, High: 120})
	require.NoError(t, err)
	assert.Equal(t, ua.NodeIDString{NamespaceIndex: srv.NamespaceIndex(), ID: "Temperature"}, id)

	_, err = sim.AddSensor("Temperature", deadband.Range{})
	assert.Error(t, err)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, sim.Write("Temperature", 21.5, ts))
	assert.True(t, errors.Is(sim.Write("Humidity", 1, ts), ErrUnknownSensor))

	view := addressspace.NewNamespaceView(srv.GetServer())
	node, ok := view.FindNode(id)
	require.True(t, ok)
	dv, ok := node.FindAttribute(ua.AttributeIDValue)
	require.True(t, ok)
	assert.Equal(t, 21.5, dv.Value)
	assert.Equal(t, ts, dv.SourceTimestamp)

	rn, ok := node.(addressspace.RangeNode)
	require.True(t, ok)
	eu, ok := rn.EURange()
	require.True(t, ok)
	assert.Equal(t, deadband.Range{Low: -40, High: 120}, eu)

	_, ok = view.FindNode(srv.RootNodeID())
	assert.True(t, ok)
}

func TestStoreSensorSink(t *testing.T) {
	store := addressspace.NewStore()
	sink := NewStoreSensorSink(store, 2)

	id, err := sink.AddSensor("Pressure", deadband.Range{Low: 0, High: 200})
	require.NoError(t, err)
	_, err = sink.AddSensor("Pressure", deadband.Range{})
	assert.Error(t, err)

	ts := time.Now()
	require.NoError(t, sink.Write("Pressure", 80.5, ts))
	assert.True(t, errors.Is(sink.Write("Flow", 1, ts), ErrUnknownSensor))

	node, ok := store.FindNode(id)
	require.True(t, ok)
	dv, ok := node.FindAttribute(ua.AttributeIDValue)
	require.True(t, ok)
	assert.Equal(t, 80.5, dv.Value)
	eu, ok := node.(addressspace.RangeNode).EURange()
	require.True(t, ok)
	assert.Equal(t, 200.0, eu.Span())
}
