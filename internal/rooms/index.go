package rooms

import (
	"sort"
	"sync"
)

// Member is a connection that can receive room broadcasts. Send must not
// block; implementations queue or drop.
type Member interface {
	ID() string
	Send(frame []byte) bool
}

// Index maps rooms to the connections currently in them. It does not stop
// a connection from being in two rooms; the coordinator leaves the old
// room before joining a new one.
type Index struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Member // roomID -> connectionID -> member
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{rooms: make(map[string]map[string]Member)}
}

// Join adds m to the room.
func (x *Index) Join(roomID string, m Member) {
	x.mu.Lock()
	defer x.mu.Unlock()

	set, ok := x.rooms[roomID]
	if !ok {
		set = make(map[string]Member)
		x.rooms[roomID] = set
	}
	set[m.ID()] = m
}

// Leave removes the connection from the room and reports whether it was
// there. Empty rooms are dropped.
func (x *Index) Leave(roomID, connectionID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	set, ok := x.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok = set[connectionID]; !ok {
		return false
	}
	delete(set, connectionID)
	if len(set) == 0 {
		delete(x.rooms, roomID)
	}
	return true
}

// Members returns the sorted connection ids in the room.
func (x *Index) Members(roomID string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	set := x.rooms[roomID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether the connection is in the room.
func (x *Index) Contains(roomID, connectionID string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.rooms[roomID][connectionID]
	return ok
}

// Rooms returns the ids of rooms that have at least one member.
func (x *Index) Rooms() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]string, 0, len(x.rooms))
	for id := range x.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Broadcast delivers frame to every member of the room except those whose
// id is in exclude, and returns how many accepted it. The member set is
// held stable for the whole delivery, so a concurrent Leave either happens
// before the broadcast or after it reached everyone.
func (x *Index) Broadcast(roomID string, frame []byte, exclude ...string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	delivered := 0
	for id, m := range x.rooms[roomID] {
		if excluded(id, exclude) {
			continue
		}
		if m.Send(frame) {
			delivered++
		}
	}
	return delivered
}

func excluded(id string, exclude []string) bool {
	for _, e := range exclude {
		if e == id {
			return true
		}
	}
	return false
}
