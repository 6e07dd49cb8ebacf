// Package notify delivers user-facing notifications to a host that may not
// be attached yet, through a bounded queue with a bounded retry policy.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Severity is the visual class of a notification.
type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// ParseSeverity maps s to a known severity, falling back to Info.
func ParseSeverity(s string) Severity {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case Info, Success, Warning, Error:
		return sev
	}
	return Info
}

// Notification is one message for the user.
type Notification struct {
	ID       string    `json:"id"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	At       time.Time `json:"at"`
}

// Host displays notifications. Ready reports whether a display is attached.
type Host interface {
	Deliver(Notification) error
	Ready() bool
}

// Notifier is what callers depend on to report outcomes.
type Notifier interface {
	Notify(message string, severity Severity)
}

// ErrHostUnavailable is returned by hosts that cannot take deliveries.
var ErrHostUnavailable = errors.New("notification host unavailable")

// Options is the queue's retry policy.
type Options struct {
	// RetryDelay is the wait between attempts while the host is not ready.
	RetryDelay time.Duration
	// MaxAttempts bounds delivery attempts per notification, ready checks included.
	MaxAttempts int
	// Size is the buffer length. Notifications beyond it are dropped.
	Size int
}

func (o Options) withDefaults() Options {
	if o.RetryDelay <= 0 {
		o.RetryDelay = 250 * time.Millisecond
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 4
	}
	if o.Size <= 0 {
		o.Size = 64
	}
	return o
}

// Queue buffers notifications and delivers them from one worker goroutine.
// Delivery is best effort; ordering holds only while nothing is retried.
type Queue struct {
	host   Host
	opts   Options
	logger *slog.Logger

	ch     chan Notification
	ready  chan struct{}
	stop   chan struct{}
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once

	delivered atomic.Int64
	dropped   atomic.Int64
}

var _ Notifier = (*Queue)(nil)

// NewQueue starts the worker. Call Close to stop it.
func NewQueue(host Host, opts Options, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	q := &Queue{
		host:   host,
		opts:   opts,
		logger: logger,
		ch:     make(chan Notification, opts.Size),
		ready:  make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Notify enqueues a message. It never blocks: when the buffer is full or
// the queue is closed the message is dropped and logged.
func (q *Queue) Notify(message string, severity Severity) {
	n := Notification{
		ID:       uuid.NewString(),
		Message:  message,
		Severity: ParseSeverity(string(severity)),
		At:       time.Now().UTC(),
	}
	if q.closed.Load() {
		q.drop(n, "queue closed")
		return
	}
	select {
	case q.ch <- n:
	default:
		q.drop(n, "queue full")
	}
}

// MarkReady signals that the host became ready, waking a waiting delivery.
func (q *Queue) MarkReady() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Close stops the worker. Pending notifications are discarded.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.closed.Store(true)
		close(q.stop)
	})
	<-q.done
}

// Stats returns the delivered and dropped counters.
func (q *Queue) Stats() (delivered, dropped int64) {
	return q.delivered.Load(), q.dropped.Load()
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.stop:
			q.discard()
			return
		case n := <-q.ch:
			if !q.deliver(n) {
				q.discard()
				return
			}
		}
	}
}

// deliver tries n up to MaxAttempts times. It returns false when the queue
// was stopped mid-retry.
func (q *Queue) deliver(n Notification) bool {
	var lastErr error
	for attempt := 1; attempt <= q.opts.MaxAttempts; attempt++ {
		if q.host.Ready() {
			err := q.host.Deliver(n)
			if err == nil {
				q.delivered.Add(1)
				return true
			}
			lastErr = err
		}
		if attempt == q.opts.MaxAttempts {
			break
		}
		timer := time.NewTimer(q.opts.RetryDelay)
		select {
		case <-q.stop:
			timer.Stop()
			q.drop(n, "queue closed")
			return false
		case <-q.ready:
			timer.Stop()
		case <-timer.C:
		}
	}
	reason := "host not ready"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	q.drop(n, reason)
	return true
}

func (q *Queue) discard() {
	for {
		select {
		case n := <-q.ch:
			q.drop(n, "queue closed")
		default:
			return
		}
	}
}

func (q *Queue) drop(n Notification, reason string) {
	q.dropped.Add(1)
	q.logger.Warn("notification dropped",
		slog.String("id", n.ID),
		slog.String("severity", string(n.Severity)),
		slog.String("message", n.Message),
		slog.String("reason", reason))
}

// Discard is a Notifier that only logs. It serves one-shot CLI commands.
type Discard struct {
	Logger *slog.Logger
}

func (d Discard) Notify(message string, severity Severity) {
	l := d.Logger
	if l == nil {
		l = slog.Default()
	}
	level := slog.LevelInfo
	if severity == Error {
		level = slog.LevelError
	}
	l.Log(context.Background(), level, message, slog.String("severity", string(severity)))
}
