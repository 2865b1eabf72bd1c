package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/raoulx24/rec-pruner/internal/config"
)

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes a JSON event per message on <topic>/<kind>.
type MQTT struct {
	topic   string
	qos     byte
	timeout time.Duration
	client  publisher
}

type mqttEvent struct {
	Event   Kind      `json:"event"`
	Subject string    `json:"subject"`
	At      time.Time `json:"at"`
	Data    any       `json:"data,omitempty"`
}

// DialMQTT connects to the broker. The client reconnects on its own afterwards.
func DialMQTT(cfg config.MQTTConfig) (*MQTT, mqtt.Client, error) {
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(10 * time.Second) {
		return nil, nil, fmt.Errorf("connecting to %s: timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", cfg.Broker, err)
	}

	return newMQTT(cfg, client), client, nil
}

func newMQTT(cfg config.MQTTConfig, client publisher) *MQTT {
	return &MQTT{
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		timeout: 10 * time.Second,
		client:  client,
	}
}

func (m *MQTT) name() string { return "mqtt" }

func (m *MQTT) send(ctx context.Context, msg Message) (Receipt, error) {
	payload, err := json.Marshal(mqttEvent{
		Event:   msg.Kind,
		Subject: msg.Subject,
		At:      time.Now().UTC(),
		Data:    msg.Data,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("encoding event: %w", err)
	}

	topic := m.topic + "/" + string(msg.Kind)
	tok := m.client.Publish(topic, m.qos, false, payload)

	select {
	case <-tok.Done():
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	case <-time.After(m.timeout):
		return Receipt{}, fmt.Errorf("publishing to %s: timed out", topic)
	}
	if err := tok.Error(); err != nil {
		return Receipt{}, fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return Receipt{Sink: m.name(), ID: topic}, nil
}
