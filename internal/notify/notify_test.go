package notify

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thoughtnest/nestclient/internal/sse"
)

type fakeHost struct {
	ready    atomic.Bool
	failures atomic.Int32
	calls    atomic.Int32

	mu  sync.Mutex
	got []Notification
}

func (h *fakeHost) Ready() bool { return h.ready.Load() }

func (h *fakeHost) Deliver(n Notification) error {
	h.calls.Add(1)
	if h.failures.Load() > 0 {
		h.failures.Add(-1)
		return errors.New("render failed")
	}
	h.mu.Lock()
	h.got = append(h.got, n)
	h.mu.Unlock()
	return nil
}

func (h *fakeHost) delivered() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Notification(nil), h.got...)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
	}{
		{"info", Info},
		{"SUCCESS", Success},
		{" warning", Warning},
		{"error", Error},
		{"fatal", Info},
		{"", Info},
	}
	for _, tt := range tests {
		if got := ParseSeverity(tt.in); got != tt.want {
			t.Errorf("ParseSeverity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQueue_DeliversWhenReady(t *testing.T) {
	host := &fakeHost{}
	host.ready.Store(true)
	q := NewQueue(host, Options{RetryDelay: 10 * time.Millisecond, MaxAttempts: 3}, nil)
	defer q.Close()

	q.Notify("Article deleted successfully.", Success)
	eventually(t, func() bool { return len(host.delivered()) == 1 })

	n := host.delivered()[0]
	if n.Message != "Article deleted successfully." || n.Severity != Success {
		t.Errorf("notification = %+v", n)
	}
	if n.ID == "" || n.At.IsZero() {
		t.Errorf("missing id or timestamp: %+v", n)
	}
}

func TestQueue_WaitsForMarkReady(t *testing.T) {
	host := &fakeHost{}
	q := NewQueue(host, Options{RetryDelay: time.Hour, MaxAttempts: 2}, nil)
	defer q.Close()

	q.Notify("hello", Info)
	time.Sleep(30 * time.Millisecond)
	if len(host.delivered()) != 0 {
		t.Fatal("delivered before host was ready")
	}

	host.ready.Store(true)
	q.MarkReady()
	eventually(t, func() bool { return len(host.delivered()) == 1 })
}

func TestQueue_DropsAfterMaxAttempts(t *testing.T) {
	host := &fakeHost{}
	q := NewQueue(host, Options{RetryDelay: 5 * time.Millisecond, MaxAttempts: 3}, nil)
	defer q.Close()

	q.Notify("lost", Warning)
	eventually(t, func() bool {
		_, dropped := q.Stats()
		return dropped == 1
	})
	if host.calls.Load() != 0 {
		t.Errorf("Deliver called %d times on a host that was never ready", host.calls.Load())
	}
}

func TestQueue_DeliverErrorCountsAsAttempt(t *testing.T) {
	host := &fakeHost{}
	host.ready.Store(true)
	host.failures.Store(1)
	q := NewQueue(host, Options{RetryDelay: 5 * time.Millisecond, MaxAttempts: 2}, nil)
	defer q.Close()

	q.Notify("retry me", Error)
	eventually(t, func() bool { return len(host.delivered()) == 1 })
	if host.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", host.calls.Load())
	}
}

func TestQueue_NotifyNeverBlocks(t *testing.T) {
	host := &fakeHost{}
	q := NewQueue(host, Options{RetryDelay: time.Hour, MaxAttempts: 2, Size: 2}, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			q.Notify("spam", Info)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	q.Close()
	q.Notify("after close", Info)
	delivered, dropped := q.Stats()
	if delivered != 0 || dropped != 51 {
		t.Errorf("delivered=%d dropped=%d", delivered, dropped)
	}
}

func TestBrokerHost(t *testing.T) {
	b := sse.NewBroker()
	defer b.Close()
	host := NewBrokerHost(b)
	if host.Ready() {
		t.Fatal("ready without clients")
	}

	q := NewQueue(host, Options{RetryDelay: time.Hour, MaxAttempts: 2}, nil)
	defer q.Close()
	q.Notify("Article published.", Info)

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)
	q.MarkReady()

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: notification") || !strings.Contains(s, "Article published.") {
			t.Errorf("event = %q", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered through broker")
	}
}
