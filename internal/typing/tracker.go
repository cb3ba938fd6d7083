package typing

import (
	"sort"
	"sync"
	"time"
)

// DefaultTimeout is how long a typing indicator lasts without a refresh.
const DefaultTimeout = 3 * time.Second

// ExpireFunc is called, outside the tracker's lock, when an indicator
// lapses without an explicit stop.
type ExpireFunc func(roomID, userID, username string)

type typist struct {
	username string
	timer    *time.Timer
	gen      uint64
}

// Tracker holds the per-room set of users currently typing. Each
// (room, user) pair has one expiry timer; a fresh Start replaces it.
type Tracker struct {
	mu       sync.Mutex
	timeout  time.Duration
	onExpire ExpireFunc
	rooms    map[string]map[string]*typist
	gen      uint64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTimeout sets the quiescence window.
func WithTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithOnExpire registers the callback fired when an indicator lapses.
func WithOnExpire(fn ExpireFunc) Option {
	return func(t *Tracker) {
		t.onExpire = fn
	}
}

// NewTracker creates a Tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		timeout: DefaultTimeout,
		rooms:   make(map[string]map[string]*typist),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetOnExpire replaces the expiry callback.
func (t *Tracker) SetOnExpire(fn ExpireFunc) {
	t.mu.Lock()
	t.onExpire = fn
	t.mu.Unlock()
}

// Start marks the user as typing in the room and (re)arms the expiry
// timer. It reports whether the user was not already typing.
func (t *Tracker) Start(roomID, userID, username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	gen := t.gen

	set, ok := t.rooms[roomID]
	if !ok {
		set = make(map[string]*typist)
		t.rooms[roomID] = set
	}

	if cur, ok := set[userID]; ok {
		cur.timer.Stop()
		cur.gen = gen
		cur.username = username
		cur.timer = time.AfterFunc(t.timeout, func() { t.expire(roomID, userID, gen) })
		return false
	}

	set[userID] = &typist{
		username: username,
		gen:      gen,
		timer:    time.AfterFunc(t.timeout, func() { t.expire(roomID, userID, gen) }),
	}
	return true
}

// expire removes the entry if it still belongs to the timer that fired. A
// timer that lost the race against Stop or a newer Start does nothing.
func (t *Tracker) expire(roomID, userID string, gen uint64) {
	t.mu.Lock()
	cur, ok := t.rooms[roomID][userID]
	if !ok || cur.gen != gen {
		t.mu.Unlock()
		return
	}
	t.removeLocked(roomID, userID)
	fn := t.onExpire
	t.mu.Unlock()

	if fn != nil {
		fn(roomID, userID, cur.username)
	}
}

// Stop clears the user's indicator and reports whether one was set.
func (t *Tracker) Stop(roomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.rooms[roomID][userID]
	if !ok {
		return false
	}
	cur.timer.Stop()
	t.removeLocked(roomID, userID)
	return true
}

func (t *Tracker) removeLocked(roomID, userID string) {
	set := t.rooms[roomID]
	delete(set, userID)
	if len(set) == 0 {
		delete(t.rooms, roomID)
	}
}

// Current returns the sorted ids of users typing in the room.
func (t *Tracker) Current(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.rooms[roomID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close cancels every pending timer without firing callbacks.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, set := range t.rooms {
		for _, cur := range set {
			cur.timer.Stop()
		}
	}
	t.rooms = make(map[string]map[string]*typist)
}
