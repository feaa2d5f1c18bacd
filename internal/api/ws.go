package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	RunID string `json:"runId,omitempty"`
}

type wsEvent struct {
	Type  string         `json:"type"`
	ID    string         `json:"id,omitempty"`
	RunID string         `json:"runId,omitempty"`
	Event string         `json:"event,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// RunEventsWSHandler streams run lifecycle events over a WebSocket.
// Clients send {"type":"subscribe","id":...,"runId":...} after an init
// message; each subscription relays broker events until unsubscribed.
func (s *Server) RunEventsWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	type sub struct {
		runID string
		ch    chan SSEEvent
		done  chan struct{}
	}
	subs := map[string]sub{}
	defer func() {
		for _, su := range subs {
			close(su.done)
			s.Broker.Unsubscribe(su.runID, su.ch)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	writes := make(chan wsEvent, 16)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		ping := time.NewTicker(25 * time.Second)
		defer ping.Stop()
		for {
			select {
			case <-quit:
				return
			case evt := <-writes:
				data, _ := json.Marshal(evt)
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			writes <- wsEvent{Type: "connection_ack"}
		case "subscribe":
			if msg.RunID == "" || msg.ID == "" {
				writes <- wsEvent{Type: "error", ID: msg.ID, Data: map[string]any{"message": "id and runId required"}}
				continue
			}
			ch := s.Broker.Subscribe(msg.RunID)
			done := make(chan struct{})
			subs[msg.ID] = sub{runID: msg.RunID, ch: ch, done: done}
			go func(id, runID string, ch chan SSEEvent, done chan struct{}) {
				for {
					select {
					case <-done:
						return
					case evt, ok := <-ch:
						if !ok {
							return
						}
						select {
						case writes <- wsEvent{Type: "next", ID: id, RunID: runID, Event: evt.Type, Data: evt.Data}:
						case <-done:
							return
						}
					}
				}
			}(msg.ID, msg.RunID, ch, done)
		case "unsubscribe":
			if su, ok := subs[msg.ID]; ok {
				close(su.done)
				s.Broker.Unsubscribe(su.runID, su.ch)
				delete(subs, msg.ID)
			}
		}
	}
}
