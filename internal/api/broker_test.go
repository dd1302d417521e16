package api

import (
	"os"
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("t1")
	other := b.Subscribe("t2")

	evt := SSEEvent{Type: "allocation.completed", Data: map[string]any{"x": 1}}
	b.Publish("t1", evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["x"].(int) != 1 {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	select {
	case got := <-other:
		t.Fatalf("event leaked to another tenant: %+v", got)
	default:
	}

	b.Unsubscribe("t1", ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// a second unsubscribe must not panic on the closed channel
	b.Unsubscribe("t1", ch)
	b.Publish("t1", evt)
}

func TestRedisBroker(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	b, err := NewRedisBroker(url)
	if err != nil {
		t.Fatalf("NewRedisBroker: %v", err)
	}
	defer b.Close()
	tenant := "t_" + time.Now().Format("150405.000000")
	ch := b.Subscribe(tenant)
	b.Publish(tenant, SSEEvent{Type: "allocation.started", Data: map[string]any{"id": "r1"}})
	select {
	case got := <-ch:
		if got.Type != "allocation.started" || got.Data["id"] != "r1" {
			t.Fatalf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis event")
	}
	b.Unsubscribe(tenant, ch)
}
