package articles

import (
	"sync"

	"github.com/thoughtnest/nestclient/internal/apperr"
)

// MsgInProgress is reported when a second mutation targets a busy article.
const MsgInProgress = "Operation already in progress."

// Locks allows at most one in-flight mutation per article id. A second
// caller fails fast instead of queueing behind the first.
type Locks struct {
	mu   sync.Mutex
	busy map[ID]struct{}
}

// NewLocks returns an empty lock set.
func NewLocks() *Locks {
	return &Locks{busy: make(map[ID]struct{})}
}

// Acquire marks id busy and returns the release func, or a conflict error
// when id is already busy.
func (l *Locks) Acquire(id ID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.busy[id]; ok {
		return nil, &apperr.Error{Kind: apperr.KindServer, Message: MsgInProgress, Err: apperr.ErrConflict}
	}
	l.busy[id] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.busy, id)
			l.mu.Unlock()
		})
	}, nil
}

// Busy reports whether id has a mutation in flight.
func (l *Locks) Busy(id ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.busy[id]
	return ok
}
