// Package main runs a demo WebSocket client for run events: it starts a
// small recovery run, subscribes to its event stream and prints what
// arrives.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	RunID string          `json:"runId,omitempty"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect WS before starting the run so no event is missed.
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}

	// Start a single-flight recovery run.
	body := []byte(`{
		"flights": [{
			"id": "F1", "number": "XX100", "carrier": "XX",
			"departureAirport": "AAA", "arrivalAirport": "BBB",
			"scheduledDeparture": "2026-09-05T08:00:00Z",
			"scheduledArrival": "2026-09-05T10:00:00Z",
			"passengers": 120, "revenue": 45000
		}],
		"strategies": [{"name": "baseline"}]
	}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/recover", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var runResp struct {
		RunID string `json:"runId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&runResp); err != nil {
		log.Fatal(err)
	}
	log.Printf("Run ID: %s", runResp.RunID)

	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", RunID: runResp.RunID}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s %s: %s", m.Type, m.Event, string(m.Data))
		}
	}()

	select {
	case <-time.After(3 * time.Second):
	case <-done:
	}
}
