// Package presence tracks which identities currently hold at least one open connection.
package presence

import (
	"sort"
	"sync"

	"github.com/park285/cheese-chess-arena/internal/domain"
	"go.uber.org/zap"
)

// Tracker is a reference-counted connection registry. OnChange fires when an identity comes
// online (first connection) or goes offline (last connection closed).
type Tracker struct {
	mu     sync.Mutex
	conns  map[string]*entry
	logger *zap.Logger

	onChange func()
}

type entry struct {
	identity domain.Identity
	refs     int
}

func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{conns: make(map[string]*entry), logger: logger}
}

// OnChange registers the callback run after every online/offline transition. It is called
// without the tracker lock held.
func (t *Tracker) OnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Connect registers one connection of id and returns its release function. Anonymous identities
// are ignored. Release is idempotent.
func (t *Tracker) Connect(id domain.Identity) (release func()) {
	if id.Anonymous() {
		return func() {}
	}
	t.mu.Lock()
	e, ok := t.conns[id.ID]
	if !ok {
		e = &entry{identity: id}
		t.conns[id.ID] = e
	}
	e.refs++
	if id.Name != "" {
		e.identity.Name = id.Name
	}
	cb := t.onChange
	t.mu.Unlock()

	if !ok {
		t.logger.Info("presence_online", zap.String("user_id", id.ID))
		if cb != nil {
			cb()
		}
	}

	var once sync.Once
	return func() { once.Do(func() { t.release(id.ID) }) }
}

func (t *Tracker) release(userID string) {
	t.mu.Lock()
	e, ok := t.conns[userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	e.refs--
	offline := e.refs <= 0
	if offline {
		delete(t.conns, userID)
	}
	cb := t.onChange
	t.mu.Unlock()

	if offline {
		t.logger.Info("presence_offline", zap.String("user_id", userID))
		if cb != nil {
			cb()
		}
	}
}

// Connected returns every online identity ordered by name.
func (t *Tracker) Connected() []domain.Identity {
	t.mu.Lock()
	out := make([]domain.Identity, 0, len(t.conns))
	for _, e := range t.conns {
		out = append(out, e.identity)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Online reports whether userID has an open connection.
func (t *Tracker) Online(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.conns[userID]
	return ok
}
