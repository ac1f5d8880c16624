package server

import (
	"log/slog"
	"sync"
)

// Peer is a live connection handle. Send must not block: it queues frame for
// delivery and reports false when the connection is gone or cannot keep up.
type Peer interface {
	ID() string
	Send(frame []byte) bool
}

// Rooms tracks room membership and fans events out to members. Membership is
// independent of Presence; the lifecycle handlers keep the two in step.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[Peer]struct{}
	logger  *slog.Logger
}

// NewRooms returns an empty broadcaster.
func NewRooms(logger *slog.Logger) *Rooms {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rooms{
		members: make(map[string]map[Peer]struct{}),
		logger:  logger.With("component", "rooms"),
	}
}

// AddMember puts p in roomID and reports whether it was newly added.
func (r *Rooms) AddMember(roomID string, p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[roomID]
	if !ok {
		set = make(map[Peer]struct{})
		r.members[roomID] = set
	}
	if _, exists := set[p]; exists {
		return false
	}
	set[p] = struct{}{}
	return true
}

// RemoveMember takes p out of roomID.
func (r *Rooms) RemoveMember(roomID string, p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(roomID, p)
}

// RemovePeer takes p out of every room.
func (r *Rooms) RemovePeer(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID := range r.members {
		r.removeLocked(roomID, p)
	}
}

func (r *Rooms) removeLocked(roomID string, p Peer) {
	set, ok := r.members[roomID]
	if !ok {
		return
	}
	delete(set, p)
	if len(set) == 0 {
		delete(r.members, roomID)
	}
}

// IsMember reports whether p is in roomID.
func (r *Rooms) IsMember(roomID string, p Peer) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[roomID][p]
	return ok
}

// Members returns a snapshot of roomID's members.
func (r *Rooms) Members(roomID string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.members[roomID]
	out := make([]Peer, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// Broadcast delivers event to every member of roomID except exclude (which
// may be nil) and returns how many members accepted it. A member that
// refuses the frame is skipped without affecting the others.
func (r *Rooms) Broadcast(roomID, event string, payload any, exclude Peer) int {
	frame, err := encodeFrame(event, nil, payload)
	if err != nil {
		r.logger.Error("failed to encode broadcast", "event", event, "error", err)
		return 0
	}

	delivered := 0
	for _, p := range r.Members(roomID) {
		if exclude != nil && p == exclude {
			continue
		}
		if p.Send(frame) {
			delivered++
			continue
		}
		r.logger.Debug("dropped broadcast to stale connection", "event", event, "conn", p.ID())
	}
	return delivered
}

// Unicast delivers event to a single connection. A nil or stale connection
// drops the frame.
func (r *Rooms) Unicast(p Peer, event string, payload any) bool {
	if p == nil {
		return false
	}
	frame, err := encodeFrame(event, nil, payload)
	if err != nil {
		r.logger.Error("failed to encode unicast", "event", event, "error", err)
		return false
	}
	if !p.Send(frame) {
		r.logger.Debug("dropped unicast to stale connection", "event", event, "conn", p.ID())
		return false
	}
	return true
}
