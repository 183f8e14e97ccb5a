package services

import (
	"context"
	"net/url"
	"time"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/component"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type MqttSessionSvc struct {
	Log         *logrus.Logger
	MqttConfigs component.MQTTConfig
	MqttClient  *autopaho.ConnectionManager
}

func NewMqttSessionSvc(log *logrus.Logger, cfg component.MQTTConfig) *MqttSessionSvc {
	return &MqttSessionSvc{Log: log, MqttConfigs: cfg}
}

// ClientConfig builds the autopaho configuration from the MQTT section of the config.
func (m *MqttSessionSvc) ClientConfig() (autopaho.ClientConfig, error) {
	connectTimeout, err := time.ParseDuration(m.MqttConfigs.ConnectTimeout)
	if err != nil {
		m.Log.Errorf("Unable to parse connect timeout duration string: %v ⛔", err)
		return autopaho.ClientConfig{}, errors.Wrap(err, "connect timeout")
	}

	srvURL, err := url.Parse(m.MqttConfigs.URL)
	if err != nil {
		m.Log.Errorf("Unable to parse server URL [%s] : %v ⛔", m.MqttConfigs.URL, err)
		return autopaho.ClientConfig{}, errors.Wrap(err, "broker url")
	}

	cliId := m.MqttConfigs.ClientID
	if cliId == "" {
		id, err := nanoid.New()
		if err != nil {
			m.Log.Errorln("Unable to auto-generate client id ⛔")
			return autopaho.ClientConfig{}, errors.Wrap(err, "client id")
		}
		cliId = "IoTSensorsOPCUA::" + id
	}

	cliCfg := autopaho.ClientConfig{
		BrokerUrls:        []*url.URL{srvURL},
		KeepAlive:         m.MqttConfigs.KeepAlive,
		ConnectRetryDelay: time.Duration(m.MqttConfigs.ConnectRetry) * time.Second,
		ConnectTimeout:    connectTimeout,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, c *paho.Connack) {
			m.Log.Infoln("MQTT connection up ✅")
		},
		OnConnectError: func(err error) {
			m.Log.Errorf("Error whilst attempting connection %s ⛔", err)
		},
		Debug: m.Log,
		ClientConfig: paho.ClientConfig{
			ClientID: cliId,
			OnClientError: func(err error) {
				m.Log.Errorf("MQTT client error: %s ⛔", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil {
					m.Log.Errorf("Server requested disconnect: %s ⛔", d.Properties.ReasonString)
				} else {
					m.Log.Errorf("Server requested disconnect; reason code : %d ⛔", d.ReasonCode)
				}
			},
		},
	}

	if m.MqttConfigs.User != "" {
		cliCfg.SetUsernamePassword(m.MqttConfigs.User, []byte(m.MqttConfigs.Password))
	}
	return cliCfg, nil
}

// EstablishMqttSession starts the connection manager; it returns as soon as the
// connection process has been initiated.
func (m *MqttSessionSvc) EstablishMqttSession(ctx context.Context) error {
	if m.MqttClient != nil {
		m.Log.Warnln("MQTT session already exists 🔔")
		return nil
	}

	m.Log.Debugln("Setting up an MQTT client options 🔔")
	cliCfg, err := m.ClientConfig()
	if err != nil {
		return err
	}

	m.Log.Infof("Trying to establish an MQTT Session to %v 🔔", cliCfg.BrokerUrls)
	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return errors.Wrap(err, "mqtt connection")
	}

	m.MqttClient = cm
	return nil
}

func (m *MqttSessionSvc) Close(ctx context.Context) {
	m.Log.WithField("Broker", m.MqttConfigs.URL).Debugln("Closing MQTT connection.. 🔔")
	if m.MqttClient != nil {
		if err := m.MqttClient.Disconnect(ctx); err == nil {
			m.Log.WithField("Broker", m.MqttConfigs.URL).Infoln("MQTT connection closed ✅")
		}
	}
}
