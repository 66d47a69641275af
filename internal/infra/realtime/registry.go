package realtime

import "sync"

// Entry binds one live connection to an authenticated identity. Entries are
// ephemeral: they exist only while the connection lives and are lost on
// process restart.
type Entry struct {
	ConnectionID string
	UserID       string
	Role         string
	DisplayName  string
}

// UserRoom names the personal room every authenticated connection joins.
func UserRoom(userID string) string {
	return "user:" + userID
}

// ConversationRoom names the room for a conversation's live subscribers.
func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

// Registry owns the presence entries and the named broadcast rooms. A user
// may hold several concurrent connections; each is tracked independently.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]Entry                  // connectionID -> identity
	conns     map[string]*Connection            // connectionID -> connection
	rooms     map[string]map[string]*Connection // room -> connectionID -> connection
	connRooms map[string]map[string]struct{}    // connectionID -> joined rooms
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:   make(map[string]Entry),
		conns:     make(map[string]*Connection),
		rooms:     make(map[string]map[string]*Connection),
		connRooms: make(map[string]map[string]struct{}),
	}
}

// Register records a presence entry for an authenticated connection and
// joins it to its personal room.
func (r *Registry) Register(conn *Connection, entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ConnectionID = conn.ID
	r.entries[conn.ID] = entry
	r.conns[conn.ID] = conn
	r.connRooms[conn.ID] = make(map[string]struct{})
	r.joinLocked(conn.ID, UserRoom(entry.UserID))
}

// Unregister removes the connection's presence entry and all room
// memberships. The second return is false when the connection never
// authenticated, in which case disconnect is a no-op.
func (r *Registry) Unregister(connectionID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[connectionID]
	if !ok {
		return Entry{}, false
	}
	for room := range r.connRooms[connectionID] {
		r.leaveLocked(connectionID, room)
	}
	delete(r.connRooms, connectionID)
	delete(r.entries, connectionID)
	delete(r.conns, connectionID)
	return entry, true
}

// Lookup returns the presence entry for a connection.
func (r *Registry) Lookup(connectionID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[connectionID]
	return entry, ok
}

// Join adds an authenticated connection to a room. Ignored for connections
// without a presence entry.
func (r *Registry) Join(connectionID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[connectionID]; !ok {
		return false
	}
	r.joinLocked(connectionID, room)
	return true
}

// Leave removes a connection from a room.
func (r *Registry) Leave(connectionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connectionID, room)
}

// Broadcast delivers payload to every connection in the room. Connections
// that fail to accept the frame are skipped; their own lifecycle handles
// teardown.
func (r *Registry) Broadcast(room string, payload []byte) int {
	r.mu.RLock()
	members := make([]*Connection, 0, len(r.rooms[room]))
	for _, conn := range r.rooms[room] {
		members = append(members, conn)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, conn := range members {
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// BroadcastAll delivers payload to every registered connection.
func (r *Registry) BroadcastAll(payload []byte) int {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, conn := range conns {
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// RoomSize reports the number of connections in a room.
func (r *Registry) RoomSize(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Online reports the number of registered connections.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) joinLocked(connectionID, room string) {
	conn, ok := r.conns[connectionID]
	if !ok {
		return
	}
	members := r.rooms[room]
	if members == nil {
		members = make(map[string]*Connection)
		r.rooms[room] = members
	}
	members[connectionID] = conn

	joined := r.connRooms[connectionID]
	if joined == nil {
		joined = make(map[string]struct{})
		r.connRooms[connectionID] = joined
	}
	joined[room] = struct{}{}
}

func (r *Registry) leaveLocked(connectionID, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if joined, ok := r.connRooms[connectionID]; ok {
		delete(joined, room)
	}
}
