package transport

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// MQTTPublisher publishes to an actual MQTT broker.
type MQTTPublisher struct {
	client paho.Client
}

// NewMQTTPublisher connects to broker as clientID.
func NewMQTTPublisher(broker, clientID string) (*MQTTPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return &MQTTPublisher{client: client}, nil
}

// Publish sends payload at QoS 1, giving up after timeout.
func (p *MQTTPublisher) Publish(topic string, payload []byte, timeout time.Duration) error {
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish %s: timeout after %s", topic, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the client currently holds a connection.
func (p *MQTTPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
