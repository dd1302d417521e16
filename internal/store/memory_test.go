package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"freightplan/internal/model"
)

func TestMemoryRuns(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Now().Add(-time.Hour)
	for i, st := range []string{"Optimal", "Infeasible", "Optimal"} {
		run := model.Run{ID: string(rune('a' + i)), Status: st, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := m.SaveRun(ctx, "t1", run); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if _, err := m.GetRun(ctx, "t2", "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant get: %v", err)
	}

	page, next, _ := m.ListRuns(ctx, "t1", "", "", 2)
	if len(page) != 2 || page[0].ID != "c" || page[1].ID != "b" || next != "b" {
		t.Fatalf("first page %v next %q", page, next)
	}
	page, next, _ = m.ListRuns(ctx, "t1", "", next, 2)
	if len(page) != 1 || page[0].ID != "a" || next != "" {
		t.Fatalf("second page %v next %q", page, next)
	}
	opt, _, _ := m.ListRuns(ctx, "t1", "Optimal", "", 10)
	if len(opt) != 2 {
		t.Fatalf("status filter %v", opt)
	}

	n, _ := m.PurgeRuns(ctx, base.Add(90*time.Second))
	if n != 2 {
		t.Fatalf("purged %d, want 2", n)
	}
	if _, err := m.GetRun(ctx, "t1", "c"); err != nil {
		t.Fatalf("newest run should survive: %v", err)
	}
}

func TestMemoryWebhookLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, _ := m.EnqueueWebhook(ctx, "t1", "s1", "allocation.completed", "http://x", "sec", []byte(`{}`))
	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("due %v", due)
	}
	later := time.Now().Add(time.Hour)
	_ = m.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 3)
	if due, _ := m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 0 {
		t.Fatalf("retry scheduled in the future must not be due: %v", due)
	}
	_ = m.FailWebhookDelivery(ctx, id, "boom", 500, 3)
	dlq, _, _ := m.ListWebhookDLQ(ctx, "t1", "", 10)
	if len(dlq) != 1 || dlq[0]["deliveryId"] != id {
		t.Fatalf("dlq %v", dlq)
	}
	if err := m.RequeueWebhookDLQ(ctx, "t1", dlq[0]["id"].(string)); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if due, _ := m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 1 || due[0].ID == id {
		t.Fatalf("requeued delivery should be a new pending one: %v", due)
	}
	items, _, _ := m.ListWebhookDeliveries(ctx, "t1", DeliveryFailed, "", 10)
	if len(items) != 1 || items[0]["lastError"] != "boom" {
		t.Fatalf("failed deliveries %v", items)
	}
	if err := m.RetryWebhookDelivery(ctx, "t2", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant retry: %v", err)
	}
}

func TestMemorySubscriptions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s, _ := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://x", Events: []string{model.EventAllocationCompleted}})
	got, _ := m.GetSubscriptionsForEvent(ctx, "t1", model.EventAllocationCompleted)
	if len(got) != 1 || got[0].ID != s.ID {
		t.Fatalf("matching subscriptions %v", got)
	}
	if got, _ := m.GetSubscriptionsForEvent(ctx, "t1", model.EventAllocationFailed); len(got) != 0 {
		t.Fatalf("unexpected match %v", got)
	}
	if err := m.DeleteSubscription(ctx, "t1", s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.DeleteSubscription(ctx, "t1", s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}
