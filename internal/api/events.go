package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// eventFilter keeps the event types listed in ?types=a,b; empty keeps all.
func eventFilter(r *http.Request) func(string) bool {
	raw := strings.TrimSpace(r.URL.Query().Get("types"))
	if raw == "" {
		return func(string) bool { return true }
	}
	want := map[string]bool{}
	for _, t := range strings.Split(raw, ",") {
		want[strings.TrimSpace(t)] = true
	}
	return func(t string) bool { return want[t] }
}

// EventsStreamHandler streams the tenant's allocation events as SSE.
func (s *Server) EventsStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	keep := eventFilter(r)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(p.Tenant)
	defer s.Broker.Unsubscribe(p.Tenant, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"tenantId\":%q,\"ts\":%q}\n\n", p.Tenant, time.Now().UTC().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if !keep(evt.Type) {
				continue
			}
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		case <-ticker.C:
			heartbeat()
		}
	}
}

type wsMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// EventsWSHandler streams the tenant's allocation events over a WebSocket.
// Clients may send {"type":"ping"} and receive {"type":"pong"}.
func (s *Server) EventsWSHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	keep := eventFilter(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	ch := s.Broker.Subscribe(p.Tenant)
	done := make(chan struct{})
	defer func() {
		close(done)
		s.Broker.Unsubscribe(p.Tenant, ch)
	}()
	_ = write(wsMessage{Type: "connection_ack", Data: map[string]any{"tenantId": p.Tenant}})

	// Fanout and keepalive
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if keep(evt.Type) {
					if err := write(wsMessage{Type: evt.Type, Data: evt.Data}); err != nil {
						return
					}
				}
			case <-ticker.C:
				wmu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				wmu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	// Read loop
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		if msg.Type == "ping" {
			_ = write(wsMessage{Type: "pong"})
		}
	}
}
