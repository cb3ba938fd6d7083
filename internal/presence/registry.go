package presence

import "sync"

// Entry is what the registry knows about one live connection.
type Entry struct {
	ConnectionID string
	UserID       string
	Username     string
	Avatar       string
	RoomID       string // empty until the connection joins a room
}

// Registry maps live connections to their identity and current room.
// It is the in-process answer to "who is online right now". Durable
// mirroring is left to the caller.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry // connectionID -> entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register inserts or overwrites the entry for e.ConnectionID.
func (r *Registry) Register(e Entry) {
	r.mu.Lock()
	r.entries[e.ConnectionID] = e
	r.mu.Unlock()
}

// SetRoom updates the room of an existing entry and reports whether the
// connection was registered.
func (r *Registry) SetRoom(connectionID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connectionID]
	if !ok {
		return false
	}
	e.RoomID = roomID
	r.entries[connectionID] = e
	return true
}

// Unregister removes the entry and returns it. A second call for the same
// connection returns ok == false.
func (r *Registry) Unregister(connectionID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connectionID]
	if ok {
		delete(r.entries, connectionID)
	}
	return e, ok
}

// Lookup returns the entry for a connection.
func (r *Registry) Lookup(connectionID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connectionID]
	return e, ok
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ConnectionsOf returns the connection ids held by userID.
func (r *Registry) ConnectionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, e := range r.entries {
		if e.UserID == userID {
			out = append(out, id)
		}
	}
	return out
}
