// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var errNoBroker = errors.New("MQTT_BROKER is not set")

// connectMQTT dials the broker for one of the subscriber tools.
func connectMQTT(component, broker, clientID string) (mqtt.Client, error) {
	if broker == "" {
		return nil, errNoBroker
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("%s: MQTT connect %s: %w", component, broker, token.Error())
	}
	log.Printf("%s: connected to MQTT broker at %s", component, broker)
	return client, nil
}

// subscribe registers h on topic. An empty topic is skipped.
func subscribe(client mqtt.Client, component, topic string, h mqtt.MessageHandler) error {
	if topic == "" {
		return nil
	}
	token := client.Subscribe(topic, 0, h)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("%s: subscribe %s: %w", component, topic, token.Error())
	}
	log.Printf("%s: subscribed to %s", component, topic)
	return nil
}

// jsonHandler decodes each payload into a T before calling fn. Payloads that
// do not decode are logged and dropped.
func jsonHandler[T any](component, what string, fn func(T)) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var v T
		if err := json.Unmarshal(msg.Payload(), &v); err != nil {
			log.Printf("%s: %s unmarshal error: %v", component, what, err)
			return
		}
		fn(v)
	}
}
