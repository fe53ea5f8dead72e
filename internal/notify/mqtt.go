package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// MQTTDispatcher publishes notifications to per-user MQTT topics
// (garage/notifications/<user_id>). Clients subscribe to their own topic
// for in-app push delivery.
type MQTTDispatcher struct {
	client mqtt.Client
}

// NewMQTTDispatcher connects to the broker and returns a dispatcher.
func NewMQTTDispatcher(brokerURL, clientID string) (*MQTTDispatcher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout for broker %s", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}
	return &MQTTDispatcher{client: client}, nil
}

// Dispatch publishes the notification to each recipient's topic.
// Failures are logged and not retried.
func (d *MQTTDispatcher) Dispatch(ctx context.Context, n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		log.WithError(err).Error("failed to marshal notification")
		return
	}

	for _, userID := range n.UserIDs {
		topic := "garage/notifications/" + userID
		token := d.client.Publish(topic, 1, false, payload)
		if !token.WaitTimeout(5 * time.Second) {
			log.WithFields(log.Fields{"topic": topic, "type": n.Type}).
				Warn("notification publish timed out")
			continue
		}
		if err := token.Error(); err != nil {
			log.WithError(err).WithFields(log.Fields{"topic": topic, "type": n.Type}).
				Error("notification publish failed")
		}
	}
}

// Close disconnects from the broker.
func (d *MQTTDispatcher) Close() {
	d.client.Disconnect(250)
}
