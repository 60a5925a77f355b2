// Package registry tracks live connections and the room each one has joined.
//
// Rooms are not stored entities. A room exists while at least one connection
// references it through its membership, and the room index entry is dropped
// as soon as the last member leaves or disconnects.
package registry

import "sync"

// Membership is the room and display name a connection joined with.
type Membership struct {
	Room string
	Name string
}

// Registry maps each live connection to at most one Membership. It is safe
// for concurrent use; every operation takes the registry lock for its own
// duration only.
type Registry[C comparable] struct {
	mu    sync.RWMutex
	conns map[C]*Membership // nil value means registered but not joined
	rooms map[string][]C    // room -> members in join order
}

// New returns an empty Registry.
func New[C comparable]() *Registry[C] {
	return &Registry[C]{
		conns: make(map[C]*Membership),
		rooms: make(map[string][]C),
	}
}

// Register adds conn with no room association. Registering a connection that
// is already known leaves its membership untouched.
func (r *Registry[C]) Register(conn C) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn]; !ok {
		r.conns[conn] = nil
	}
}

// SetMembership records room and name for conn, replacing any previous
// association. Unknown connections are added.
func (r *Registry[C]) SetMembership(conn C, room, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev := r.conns[conn]; prev != nil {
		if prev.Room == room {
			prev.Name = name
			return
		}
		r.leaveLocked(conn, prev.Room)
	}

	r.conns[conn] = &Membership{Room: room, Name: name}
	r.rooms[room] = append(r.rooms[room], conn)
}

// Lookup returns the membership of conn. The boolean is false for connections
// that never joined a room or were removed.
func (r *Registry[C]) Lookup(conn C) (Membership, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.conns[conn]
	if m == nil {
		return Membership{}, false
	}
	return *m, true
}

// MembersOf returns a snapshot of the connections in room, in join order.
// The returned slice is owned by the caller.
func (r *Registry[C]) MembersOf(room string) []C {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	if len(members) == 0 {
		return nil
	}
	return append([]C(nil), members...)
}

// Remove drops conn and returns the membership it held, if any. Removing an
// unknown connection is a no-op.
func (r *Registry[C]) Remove(conn C) (Membership, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, known := r.conns[conn]
	if !known {
		return Membership{}, false
	}
	delete(r.conns, conn)
	if m == nil {
		return Membership{}, false
	}

	r.leaveLocked(conn, m.Room)
	return *m, true
}

// leaveLocked removes conn from the room index. Caller must hold r.mu.
func (r *Registry[C]) leaveLocked(conn C, room string) {
	members := r.rooms[room]
	for i, member := range members {
		if member == conn {
			members = append(members[:i:i], members[i+1:]...)
			break
		}
	}

	if len(members) == 0 {
		delete(r.rooms, room)
		return
	}
	r.rooms[room] = members
}

// Len returns the number of registered connections, joined or not.
func (r *Registry[C]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// JoinedCount returns the number of connections that belong to a room.
func (r *Registry[C]) JoinedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := 0
	for _, members := range r.rooms {
		joined += len(members)
	}
	return joined
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry[C]) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// RoomSize returns the number of members in room.
func (r *Registry[C]) RoomSize(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}
