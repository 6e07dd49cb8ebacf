package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestOnSubscribeHook(t *testing.T) {
	counts := make(chan int, 2)
	b := NewBroker(WithOnSubscribe(func(n int) { counts <- n }))
	defer b.Close()

	ch1 := b.Subscribe()
	defer b.Unsubscribe(ch1)
	ch2 := b.Subscribe()
	defer b.Unsubscribe(ch2)

	got := map[int]bool{}
	for i := 0; i < 2; i++ {
		select {
		case n := <-counts:
			got[n] = true
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for subscribe hook")
		}
	}
	if !got[1] || !got[2] {
		t.Errorf("hook counts = %v, want 1 and 2", got)
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	if !b.Publish(Event{Type: TypeNotification, Data: map[string]string{"message": "Article published."}}) {
		t.Fatal("publish reported closed broker")
	}

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: notification") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"message":"Article published."`) {
			t.Errorf("missing data in %q", s)
		}
		if !strings.HasPrefix(s, "id: 1\n") {
			t.Errorf("first event should carry id 1: %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishArticleEvent_ListsThrottle(t *testing.T) {
	b := NewBroker(WithListsThrottle(500 * time.Millisecond))
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First event triggers lists.stale, the second one is throttled.
	b.PublishArticleEvent("deleted", "42")
	b.PublishArticleEvent("published", "7")

	time.Sleep(50 * time.Millisecond)
	staleCount := 0
	articleCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, TypeListsStale) {
				staleCount++
			} else {
				articleCount++
			}
		default:
			break loop
		}
	}

	if articleCount != 2 {
		t.Errorf("article events = %d, want 2", articleCount)
	}
	if staleCount != 1 {
		t.Errorf("lists.stale events = %d, want 1 (throttled)", staleCount)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: TypeArticleUpdated, Data: map[string]string{"id": "3"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.HasPrefix(body, "retry: 3000\n\n") {
		t.Errorf("handler output missing retry hint: %q", body)
	}
	if !strings.Contains(body, "event: article.updated") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestEventIDsIncrease(t *testing.T) {
	b := NewBroker(WithListsThrottle(time.Hour))
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishArticleEvent("created", "5")
	b.Publish(Event{Type: TypeNotification, Data: map[string]string{"message": "Article created."}})

	want := []string{"id: 1\nevent: article.created", "id: 2\nevent: lists.stale", "id: 3\nevent: notification"}
	for _, prefix := range want {
		select {
		case msg := <-ch:
			if !strings.HasPrefix(string(msg), prefix) {
				t.Errorf("event = %q, want prefix %q", msg, prefix)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %q", prefix)
		}
	}
}

func TestUnknownArticleKindIgnored(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishArticleEvent("archived", "9")
	b.Publish(Event{Type: TypeNotification, Data: map[string]string{}})

	select {
	case msg := <-ch:
		if !strings.Contains(string(msg), "event: notification") {
			t.Errorf("unknown kind produced %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestHeartbeat(t *testing.T) {
	b := NewBroker(WithHeartbeat(10*time.Millisecond), WithRetry(0))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if strings.Contains(body, "retry:") {
		t.Errorf("retry hint sent while disabled: %q", body)
	}
	if !strings.Contains(body, ": ping\n\n") {
		t.Errorf("no keepalive in %q", body)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	if b.Publish(Event{Type: TypeArticleUpdated, Data: map[string]string{"id": "1"}}) {
		t.Error("publish after close reported success")
	}
	b.PublishArticleEvent("updated", "1")
}
