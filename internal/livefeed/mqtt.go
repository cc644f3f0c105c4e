package livefeed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	// DefaultMQTTTopic is the topic hive firmware publishes readings on.
	DefaultMQTTTopic = "beehive/{device_id}/telemetry"

	mqttConnectTimeout = 10 * time.Second
	mqttQuiesce        = 250 // milliseconds
)

// MQTTConfig holds broker settings for MQTTTransport.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Topic may contain a {device_id} placeholder.
	Topic string
}

// MQTTTransport subscribes to a hive's firmware topic on an MQTT broker. Each
// session uses its own client so closing one never affects the next.
type MQTTTransport struct {
	cfg MQTTConfig
}

func NewMQTTTransport(cfg MQTTConfig) (*MQTTTransport, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultMQTTTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "hivewatch"
	}
	return &MQTTTransport{cfg: cfg}, nil
}

// formatTopic replaces the {device_id} placeholder.
func formatTopic(pattern, deviceID string) string {
	return strings.ReplaceAll(pattern, "{device_id}", deviceID)
}

func (t *MQTTTransport) Run(ctx context.Context, deviceID string, emit func(Event)) {
	defer emit(Event{Kind: EventClose})

	lost := make(chan error, 1)
	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.cfg.Broker)
	opts.SetClientID(t.cfg.ClientID + "-" + randomSuffix())
	opts.SetUsername(t.cfg.Username)
	opts.SetPassword(t.cfg.Password)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetOrderMatters(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		select {
		case lost <- err:
		default:
		}
	})

	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		if ctx.Err() == nil {
			emit(Event{Kind: EventError, Err: fmt.Errorf("connect %s: %w", t.cfg.Broker, err)})
		}
		return
	}
	defer client.Disconnect(mqttQuiesce)

	emit(Event{Kind: EventOpen})

	topic := formatTopic(t.cfg.Topic, deviceID)
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		emit(Event{Kind: EventMessage, Payload: msg.Payload()})
	}
	if err := waitToken(ctx, client.Subscribe(topic, 1, handler)); err != nil {
		if ctx.Err() == nil {
			emit(Event{Kind: EventError, Err: fmt.Errorf("subscribe %s: %w", topic, err)})
		}
		return
	}

	select {
	case <-ctx.Done():
		client.Unsubscribe(topic).WaitTimeout(time.Second)
	case err := <-lost:
		emit(Event{Kind: EventError, Err: fmt.Errorf("connection lost: %w", err)})
	}
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
