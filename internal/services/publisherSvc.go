package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/model"
	"github.com/awcullen/opcua/ua"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// ErrPublishRejected is returned when the broker answers a publish with a
// failure reason code.
var ErrPublishRejected = errors.New("publish rejected by broker")

// LogPublisher writes every notification message to the logger.
type LogPublisher struct {
	Log     *logrus.Logger
	Encoder PayloadEncoder
}

func NewLogPublisher(log *logrus.Logger, encoder PayloadEncoder) *LogPublisher {
	return &LogPublisher{Log: log, Encoder: encoder}
}

func (p *LogPublisher) Publish(_ context.Context, subscriptionID uint32, msg ua.NotificationMessage) error {
	payload := model.FromNotificationMessage(subscriptionID, msg)
	out, err := p.Encoder.Encode(payload)
	if err != nil {
		return err
	}
	entry := p.Log.WithFields(logrus.Fields{
		"Subscription": subscriptionID,
		"Seq":          msg.SequenceNumber,
		"Items":        len(payload.Notifications),
	})
	if payload.KeepAlive {
		entry.Debugln("Keep-alive 🔔")
		return nil
	}
	if p.Encoder.Name() == "json" {
		entry.Infoln(string(out))
	} else {
		entry.WithField("Bytes", len(out)).Infoln("Notification message ✅")
	}
	return nil
}

// MessagePublisher is the publish side of an MQTT connection;
// *autopaho.ConnectionManager satisfies it.
type MessagePublisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// MqttPublisher publishes notification messages to <prefix>/<subscription id>.
type MqttPublisher struct {
	Client      MessagePublisher
	Encoder     PayloadEncoder
	TopicPrefix string
	QoS         byte
	Log         *logrus.Logger
}

func NewMqttPublisher(client MessagePublisher, encoder PayloadEncoder, topicPrefix string, qos byte, log *logrus.Logger) *MqttPublisher {
	return &MqttPublisher{
		Client:      client,
		Encoder:     encoder,
		TopicPrefix: strings.TrimSuffix(topicPrefix, "/"),
		QoS:         qos,
		Log:         log,
	}
}

func (p *MqttPublisher) Topic(subscriptionID uint32) string {
	return fmt.Sprintf("%s/%d", p.TopicPrefix, subscriptionID)
}

func (p *MqttPublisher) Publish(ctx context.Context, subscriptionID uint32, msg ua.NotificationMessage) error {
	out, err := p.Encoder.Encode(model.FromNotificationMessage(subscriptionID, msg))
	if err != nil {
		return err
	}
	topic := p.Topic(subscriptionID)
	resp, err := p.Client.Publish(ctx, &paho.Publish{
		QoS:     p.QoS,
		Topic:   topic,
		Payload: out,
	})
	if err != nil {
		return errors.Wrapf(err, "mqtt publish to %s", topic)
	}
	// 16 = the broker accepted the message but there are no subscribers
	if resp != nil && resp.ReasonCode != 0 && resp.ReasonCode != 16 {
		return errors.Wrapf(ErrPublishRejected, "reason code %d", resp.ReasonCode)
	}
	p.Log.WithFields(logrus.Fields{
		"Topic": topic,
		"Seq":   msg.SequenceNumber,
	}).Debugln("Notification message published ✅")
	return nil
}

// MessageWriter is the producer side of a Kafka client; *kafka.Writer satisfies it.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes notification messages to <prefix>.<subscription id>,
// keyed by sequence number.
type KafkaPublisher struct {
	Writer      MessageWriter
	Encoder     PayloadEncoder
	TopicPrefix string
	Log         *logrus.Logger
}

func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(writer MessageWriter, encoder PayloadEncoder, topicPrefix string, log *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		Writer:      writer,
		Encoder:     encoder,
		TopicPrefix: strings.Trim(strings.ReplaceAll(topicPrefix, "/", "."), "."),
		Log:         log,
	}
}

func (p *KafkaPublisher) Topic(subscriptionID uint32) string {
	return fmt.Sprintf("%s.%d", p.TopicPrefix, subscriptionID)
}

func (p *KafkaPublisher) Publish(ctx context.Context, subscriptionID uint32, msg ua.NotificationMessage) error {
	out, err := p.Encoder.Encode(model.FromNotificationMessage(subscriptionID, msg))
	if err != nil {
		return err
	}
	topic := p.Topic(subscriptionID)
	if err := p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(strconv.FormatUint(uint64(msg.SequenceNumber), 10)),
		Value: out,
	}); err != nil {
		return errors.Wrapf(err, "kafka write to %s", topic)
	}
	p.Log.WithFields(logrus.Fields{
		"Topic": topic,
		"Seq":   msg.SequenceNumber,
	}).Debugln("Notification message published ✅")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.Writer.Close()
}
