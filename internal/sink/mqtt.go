package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"thermostat_runtime/internal/models"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Topic    string // prefix; the device ID is appended
	Username string
	Password string
	QoS      byte
}

// publisher is the subset of paho.Client the sink needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes each event as JSON to <topic>/<device_id>.
type MQTTSink struct {
	client publisher
	topic  string
	qos    byte
}

// NewMQTTSink connects to the broker and returns a ready sink.
func NewMQTTSink(o MQTTOptions) (*MQTTSink, error) {
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if o.Username != "" {
		opts.SetUsername(o.Username).SetPassword(o.Password)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to broker: %w", err)
	}
	return newMQTTSink(client, o.Topic, o.QoS), nil
}

func newMQTTSink(client publisher, topic string, qos byte) *MQTTSink {
	return &MQTTSink{client: client, topic: strings.TrimRight(topic, "/"), qos: qos}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Post(ctx context.Context, ev models.OutboundEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("mqtt: marshal payload: %w", err)
	}

	token := s.client.Publish(s.topic+"/"+ev.DeviceID, s.qos, false, payload)
	wait := mqttPublishTimeout
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until < wait {
			wait = until
		}
	}
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("mqtt: publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	s.client.Disconnect(1000)
	return nil
}
