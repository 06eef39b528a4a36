// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/force_feedback/internal/sample"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeClient records publishes; the embedded interface panics on anything
// else.
type fakeClient struct {
	mqtt.Client
	mu           sync.Mutex
	msgs         []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic, retained, payload.([]byte)})
	return doneToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

var topics = Topics{Feedback: "ff/feedback", Trial: "ff/trial", Status: "ff/status"}

func TestMQTTPublishesJSON(t *testing.T) {
	c := &fakeClient{}
	p := New(c, topics)

	p.Feedback(sample.FeedbackMsg{RunID: "r1", Level: "below", Symbol: "+++", Average: 0.02})
	p.Trial(sample.TrialEvent{RunID: "r1", Trial: 1, Kind: "start", Elapsed: 1.5, Magnitude: 0.15})
	p.Status(sample.Status{RunID: "r1", Trial: 1, Trials: 20})
	p.Close()

	require.Len(t, c.msgs, 3)
	assert.True(t, c.disconnected)

	assert.Equal(t, "ff/feedback", c.msgs[0].topic)
	assert.True(t, c.msgs[0].retained)
	var fb sample.FeedbackMsg
	require.NoError(t, json.Unmarshal(c.msgs[0].payload, &fb))
	assert.Equal(t, "+++", fb.Symbol)

	assert.Equal(t, "ff/trial", c.msgs[1].topic)
	assert.False(t, c.msgs[1].retained)
	var ev sample.TrialEvent
	require.NoError(t, json.Unmarshal(c.msgs[1].payload, &ev))
	assert.Equal(t, 1.5, ev.Elapsed)

	assert.Equal(t, "ff/status", c.msgs[2].topic)
	assert.Zero(t, p.Dropped())
}

func TestMQTTSkipsUnsetTopics(t *testing.T) {
	c := &fakeClient{}
	p := New(c, Topics{Trial: "ff/trial"})
	p.Feedback(sample.FeedbackMsg{})
	p.Status(sample.Status{})
	p.Trial(sample.TrialEvent{})
	p.Close()
	p.Close()
	require.Len(t, c.msgs, 1)
}
