// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry publishes biofeedback, trial events and run status to
// MQTT for the console, web and display clients.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/force_feedback/internal/sample"
)

// Publisher is what the control loop publishes to. Calls never block.
type Publisher interface {
	Feedback(m sample.FeedbackMsg)
	Trial(e sample.TrialEvent)
	Status(s sample.Status)
	Close()
}

// Topics names the MQTT topics.
type Topics struct {
	Feedback string
	Trial    string
	Status   string
}

// Nop discards everything.
type Nop struct{}

func (Nop) Feedback(sample.FeedbackMsg) {}
func (Nop) Trial(sample.TrialEvent)     {}
func (Nop) Status(sample.Status)        {}
func (Nop) Close()                      {}

const (
	queueLen       = 256
	publishTimeout = time.Second
)

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// MQTT publishes JSON payloads through a background goroutine so the
// control loop never waits on the broker.
type MQTT struct {
	client  mqtt.Client
	topics  Topics
	queue   chan message
	done    chan struct{}
	dropped atomic.Int64
	once    sync.Once
}

// Connect dials the broker and starts the publisher.
func Connect(broker, clientID string, topics Topics) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("telemetry: MQTT connect %s: %w", broker, token.Error())
	}
	log.Printf("telemetry: connected to MQTT broker at %s", broker)
	return New(client, topics), nil
}

// New wraps a connected client.
func New(client mqtt.Client, topics Topics) *MQTT {
	p := &MQTT{
		client: client,
		topics: topics,
		queue:  make(chan message, queueLen),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *MQTT) run() {
	defer close(p.done)
	for m := range p.queue {
		token := p.client.Publish(m.topic, 0, m.retained, m.payload)
		if !token.WaitTimeout(publishTimeout) {
			log.Printf("telemetry: publish to %s timed out", m.topic)
			continue
		}
		if err := token.Error(); err != nil {
			log.Printf("telemetry: publish to %s: %v", m.topic, err)
		}
	}
}

func (p *MQTT) publish(topic string, retained bool, v interface{}) {
	if topic == "" {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("telemetry: marshal for %s: %v", topic, err)
		return
	}
	select {
	case p.queue <- message{topic: topic, retained: retained, payload: payload}:
	default:
		p.dropped.Add(1)
	}
}

// Feedback publishes a biofeedback level change (retained, so a display
// that connects mid-run shows the current level).
func (p *MQTT) Feedback(m sample.FeedbackMsg) { p.publish(p.topics.Feedback, true, m) }

// Trial publishes a perturbation start or end.
func (p *MQTT) Trial(e sample.TrialEvent) { p.publish(p.topics.Trial, false, e) }

// Status publishes a run snapshot (retained).
func (p *MQTT) Status(s sample.Status) { p.publish(p.topics.Status, true, s) }

// Dropped returns the number of messages discarded because the queue was full.
func (p *MQTT) Dropped() int64 { return p.dropped.Load() }

// Close flushes pending messages and disconnects.
func (p *MQTT) Close() {
	p.once.Do(func() {
		close(p.queue)
		<-p.done
		p.client.Disconnect(250)
		if n := p.dropped.Load(); n > 0 {
			log.Printf("telemetry: %d messages dropped", n)
		}
	})
}
