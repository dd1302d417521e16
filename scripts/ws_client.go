// Package main runs a demo WebSocket client for allocation events.
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
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

const demoAllocation = `{
 "name": "ws demo",
 "supply": [{"name":"Cairo","location":{"lat":30.04,"lng":31.24},"available":100},{"name":"Giza","location":{"lat":30.01,"lng":31.21},"available":50}],
 "demand": [{"name":"Helwan","location":{"lat":29.85,"lng":31.33},"required":80},{"name":"Shubra","location":{"lat":30.12,"lng":31.24},"required":70}],
 "drivers": [{"name":"Ali","maxHours":8,"maxLoad":200}],
 "cost": [[1,5],[4,2]],
 "options": {"fetchTravelTimes": true}
}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect WS first so the started event is not missed
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = c.Close() }()
	var ack wsMessage
	if err := c.ReadJSON(&ack); err != nil || ack.Type != "connection_ack" {
		log.Fatalf("no ack: %v %+v", err, ack)
	}

	req, _ := http.NewRequest(http.MethodPost, base+"/v1/allocations", bytes.NewReader([]byte(demoAllocation)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("POST /v1/allocations: %s", resp.Status)

	_ = c.SetReadDeadline(time.Now().Add(30 * time.Second))
	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			log.Fatal(err)
		}
		b, _ := json.Marshal(msg.Data)
		log.Printf("%s %s", msg.Type, b)
		if msg.Type == "allocation.completed" || msg.Type == "allocation.failed" {
			return
		}
	}
}
