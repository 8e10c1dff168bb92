package registry

import (
	"sync"
)

// Party is a connected endpoint that can receive relayed frames. Deliver
// must not block; it reports false when the frame was dropped because the
// party's outbound buffer is full.
type Party interface {
	Deliver(data []byte) bool
}

type room struct {
	mu      sync.Mutex
	members map[Party]struct{}
}

// Registry maps session ids to the set of currently connected parties. It is
// the only owner of membership state; entries exist only while connections
// are live and are never persisted.
//
// A party may belong to several sessions at once: repeated joins accumulate,
// matching the relay's join semantics, and Leave clears all of them.
//
// Lock order is r.mu before room.mu, everywhere.
type Registry struct {
	mu      sync.RWMutex // guards rooms and byParty, not room members
	rooms   map[string]*room
	byParty map[Party]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		rooms:   make(map[string]*room),
		byParty: make(map[Party]map[string]struct{}),
	}
}

// Join adds p to the membership set for sessionID, creating the set if
// absent. Idempotent.
//
// The member insert happens while r.mu is still held: releasing it first
// would let a concurrent Leave reap the room as empty and strand p in an
// orphaned room that no broadcast can see.
func (r *Registry) Join(p Party, sessionID string) {
	if sessionID == "" {
		return
	}

	r.mu.Lock()
	rm, ok := r.rooms[sessionID]
	if !ok {
		rm = &room{members: make(map[Party]struct{})}
		r.rooms[sessionID] = rm
	}
	sessions, ok := r.byParty[p]
	if !ok {
		sessions = make(map[string]struct{})
		r.byParty[p] = sessions
	}
	sessions[sessionID] = struct{}{}

	rm.mu.Lock()
	rm.members[p] = struct{}{}
	rm.mu.Unlock()
	r.mu.Unlock()
}

// Leave removes p from every session it has joined. No-op if p never joined.
// Empty rooms are dropped so session ids do not accumulate forever.
//
// r.mu is held only to read the index and to drop empty rooms; the per-room
// member deletions run under each room's own lock so joins and snapshots on
// unrelated sessions are not serialized behind a disconnect.
func (r *Registry) Leave(p Party) {
	r.mu.Lock()
	sessions := r.byParty[p]
	delete(r.byParty, p)
	rooms := make(map[string]*room, len(sessions))
	for id := range sessions {
		if rm, ok := r.rooms[id]; ok {
			rooms[id] = rm
		}
	}
	r.mu.Unlock()

	for id, rm := range rooms {
		rm.mu.Lock()
		delete(rm.members, p)
		empty := len(rm.members) == 0
		rm.mu.Unlock()
		if !empty {
			continue
		}
		// Re-check under both locks before dropping: a join may have raced
		// in, or replaced the mapping, since the emptiness check.
		r.mu.Lock()
		if cur, ok := r.rooms[id]; ok && cur == rm {
			rm.mu.Lock()
			if len(rm.members) == 0 {
				delete(r.rooms, id)
			}
			rm.mu.Unlock()
		}
		r.mu.Unlock()
	}
}

// MembersOf returns a point-in-time snapshot of the parties attached to
// sessionID. The returned slice is owned by the caller.
func (r *Registry) MembersOf(sessionID string) []Party {
	r.mu.RLock()
	rm, ok := r.rooms[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	members := make([]Party, 0, len(rm.members))
	for p := range rm.members {
		members = append(members, p)
	}
	return members
}

// SessionsOf returns the session ids p is currently joined to.
func (r *Registry) SessionsOf(p Party) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byParty[p]))
	for id := range r.byParty[p] {
		ids = append(ids, id)
	}
	return ids
}

// SessionCount returns the number of sessions with at least one member.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
