package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"freightplan/internal/model"
	"freightplan/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "t1", "", "allocation.completed", srv.URL, "secret", []byte(`{"id":"evt1"}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce()

	if gotSig == "" || gotType != "allocation.completed" {
		t.Fatalf("missing signature/type headers: sig=%q type=%q", gotSig, gotType)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_Fail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 1}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "", "allocation.completed", srv.URL, "", []byte(`{}`))
	w.processOnce()
	if len(rs.fails) == 0 {
		t.Fatalf("expected fail recorded")
	}
	if rs.fails[0].Code != 500 || rs.fails[0].LastErr != "status 500" {
		t.Fatalf("fail record %+v", rs.fails[0])
	}
}

func TestWorkerProcessOnce_Retry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(503) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 3)
	w.HTTP = srv.Client()
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "", "allocation.failed", srv.URL, "", []byte(`{}`))
	w.processOnce()
	if len(rs.marks) != 1 || rs.marks[0].Success || len(rs.fails) != 0 {
		t.Fatalf("expected one retry mark, got marks=%+v fails=%+v", rs.marks, rs.fails)
	}
	// The retry is scheduled in the future, so a second pass sends nothing.
	w.processOnce()
	if len(rs.marks) != 1 {
		t.Fatalf("retry was not backed off: %+v", rs.marks)
	}
}

func TestNextBackoff(t *testing.T) {
	if nextBackoff(0) != time.Second || nextBackoff(3) != 8*time.Second {
		t.Fatalf("unexpected backoff")
	}
	if nextBackoff(50) != 1024*time.Second {
		t.Fatalf("backoff must cap attempts at 10")
	}
}

func TestPublisherEmit(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://a", Events: []string{model.EventAllocationCompleted}, Secret: "s"})
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://b", Events: []string{model.EventAllocationFailed}})
	n := NewPublisher(m).Emit(ctx, "t1", model.EventAllocationCompleted, map[string]any{"id": "r1"})
	if n != 1 {
		t.Fatalf("queued %d, want 1", n)
	}
	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].URL != "http://a" {
		t.Fatalf("due %+v", due)
	}
	var ev Event
	if err := json.Unmarshal(due[0].Payload, &ev); err != nil || ev.Type != model.EventAllocationCompleted || ev.TenantID != "t1" {
		t.Fatalf("payload %s: %v", due[0].Payload, err)
	}
	if !VerifyHMAC("s", due[0].Payload, SignHMAC("s", due[0].Payload)) {
		t.Fatalf("signature round trip failed")
	}
}

func TestSignature(t *testing.T) {
	body := []byte(`{"type":"allocation.completed"}`)
	sig := SignHMAC("s3cret", body)
	if len(sig) != len(SignaturePrefix)+64 || sig[:len(SignaturePrefix)] != SignaturePrefix {
		t.Fatalf("signature %q", sig)
	}
	if !VerifyHMAC("s3cret", body, sig) || !VerifyHMAC("s3cret", body, sig[len(SignaturePrefix):]) {
		t.Fatalf("valid signature rejected")
	}
	if VerifyHMAC("other", body, sig) || VerifyHMAC("s3cret", append(body, ' '), sig) || VerifyHMAC("s3cret", body, "sha256=zz") {
		t.Fatalf("invalid signature accepted")
	}
}
