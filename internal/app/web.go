// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/force_feedback/internal/config"
	"github.com/relabs-tech/force_feedback/internal/sample"
)

const (
	// recentTrials is how many trial events /api/status keeps.
	recentTrials = 64

	clientSendLen = 32
	writeWait     = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// RunWeb serves the live run state received over MQTT.
func RunWeb() error {
	cfg := config.Get()

	client, err := connectMQTT("web", cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	live := newLiveState()
	if err := subscribe(client, "web", cfg.TopicFeedback,
		jsonHandler("web", "feedback", live.setFeedback)); err != nil {
		return err
	}
	if err := subscribe(client, "web", cfg.TopicTrial,
		jsonHandler("web", "trial", live.addTrial)); err != nil {
		return err
	}
	if err := subscribe(client, "web", cfg.TopicStatus,
		jsonHandler("web", "status", live.setStatus)); err != nil {
		return err
	}

	mux := live.routes()
	mux.Handle("/", http.FileServer(http.Dir("web")))

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

// Snapshot is the body of /api/status.
type Snapshot struct {
	Status   *sample.Status      `json:"status,omitempty"`
	Feedback *sample.FeedbackMsg `json:"feedback,omitempty"`
	Trials   []sample.TrialEvent `json:"trials"`
}

// envelope is one websocket message.
type envelope struct {
	Type string      `json:"type"` // snapshot, feedback, trial, status
	Data interface{} `json:"data"`
}

// liveState keeps the latest messages and fans them out to websocket
// clients.
type liveState struct {
	mu       sync.RWMutex
	status   *sample.Status
	feedback *sample.FeedbackMsg
	trials   []sample.TrialEvent

	clientsMu sync.Mutex
	clients   map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newLiveState() *liveState {
	return &liveState{clients: make(map[*wsClient]struct{})}
}

func (l *liveState) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", l.handleStatus)
	mux.HandleFunc("/ws", l.handleWS)
	return mux
}

func (l *liveState) setFeedback(m sample.FeedbackMsg) {
	l.mu.Lock()
	l.feedback = &m
	l.mu.Unlock()
	l.broadcast("feedback", m)
}

func (l *liveState) addTrial(e sample.TrialEvent) {
	l.mu.Lock()
	if e.RunID != "" && len(l.trials) > 0 && l.trials[0].RunID != e.RunID {
		l.trials = l.trials[:0]
	}
	l.trials = append(l.trials, e)
	if len(l.trials) > recentTrials {
		l.trials = l.trials[len(l.trials)-recentTrials:]
	}
	l.mu.Unlock()
	l.broadcast("trial", e)
}

func (l *liveState) setStatus(s sample.Status) {
	l.mu.Lock()
	l.status = &s
	l.mu.Unlock()
	l.broadcast("status", s)
}

func (l *liveState) snapshot() (Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := Snapshot{
		Status:   l.status,
		Feedback: l.feedback,
		Trials:   append([]sample.TrialEvent{}, l.trials...),
	}
	return snap, l.status != nil || l.feedback != nil || len(l.trials) > 0
}

func (l *liveState) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := l.snapshot()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (l *liveState) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientSendLen)}
	l.register(c)
	go c.writeLoop()

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	l.drop(c)
}

// register queues the current snapshot for c and adds it to the broadcast
// set in one step, so every update is either in the snapshot or sent after
// it.
func (l *liveState) register(c *wsClient) {
	l.clientsMu.Lock()
	defer l.clientsMu.Unlock()

	snap, _ := l.snapshot()
	if b, err := json.Marshal(envelope{Type: "snapshot", Data: snap}); err == nil {
		c.send <- b
	} else {
		log.Printf("web: json marshal error (snapshot): %v", err)
	}
	l.clients[c] = struct{}{}
}

func (l *liveState) drop(c *wsClient) {
	l.clientsMu.Lock()
	if _, ok := l.clients[c]; ok {
		delete(l.clients, c)
		close(c.send)
	}
	l.clientsMu.Unlock()
}

// broadcast queues v for every client. A client whose queue is full is
// disconnected.
func (l *liveState) broadcast(kind string, v interface{}) {
	b, err := json.Marshal(envelope{Type: kind, Data: v})
	if err != nil {
		log.Printf("web: json marshal error (%s): %v", kind, err)
		return
	}

	l.clientsMu.Lock()
	defer l.clientsMu.Unlock()
	for c := range l.clients {
		select {
		case c.send <- b:
		default:
			log.Printf("web: dropping slow websocket client %s", c.conn.RemoteAddr())
			delete(l.clients, c)
			close(c.send)
		}
	}
}

func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for b := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Printf("web: websocket write error: %v", err)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}
