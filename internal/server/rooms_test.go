package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomsMembership(t *testing.T) {
	r := NewRooms(discardLogger())
	p := newPeer("c1")

	assert.True(t, r.AddMember("main", p))
	assert.False(t, r.AddMember("main", p))
	assert.True(t, r.IsMember("main", p))
	assert.Len(t, r.Members("main"), 1)

	r.RemoveMember("main", p)
	assert.False(t, r.IsMember("main", p))
	assert.Empty(t, r.Members("main"))

	// Removing an absent member is a no-op.
	r.RemoveMember("main", p)
	r.RemoveMember("nowhere", p)
}

func TestRoomsRemovePeerLeavesAllRooms(t *testing.T) {
	r := NewRooms(discardLogger())
	p, other := newPeer("c1"), newPeer("c2")
	r.AddMember("main", p)
	r.AddMember("side", p)
	r.AddMember("side", other)

	r.RemovePeer(p)

	assert.False(t, r.IsMember("main", p))
	assert.False(t, r.IsMember("side", p))
	assert.True(t, r.IsMember("side", other))
}

func TestRoomsBroadcastExcludesSender(t *testing.T) {
	r := NewRooms(discardLogger())
	alice, bob, carol := newPeer("c1"), newPeer("c2"), newPeer("c3")
	for _, p := range []*fakePeer{alice, bob, carol} {
		r.AddMember("main", p)
	}

	n := r.Broadcast("main", EventUserJoined, UserPayload{Username: "alice"}, alice)

	assert.Equal(t, 2, n)
	assert.Empty(t, alice.all())
	for _, p := range []*fakePeer{bob, carol} {
		frames := p.framesFor(EventUserJoined)
		require.Len(t, frames, 1)
		assert.Nil(t, frames[0].Ack)
		assert.Equal(t, "alice", decodeAs[UserPayload](t, frames[0].Data).Username)
	}
}

func TestRoomsBroadcastSkipsStaleMember(t *testing.T) {
	r := NewRooms(discardLogger())
	stale, live := newPeer("c1"), newPeer("c2")
	stale.close()
	r.AddMember("main", stale)
	r.AddMember("main", live)

	n := r.Broadcast("main", EventUserLeft, UserPayload{Username: "bob"}, nil)

	assert.Equal(t, 1, n)
	assert.Len(t, live.framesFor(EventUserLeft), 1)
}

func TestRoomsBroadcastEmptyRoom(t *testing.T) {
	r := NewRooms(discardLogger())
	assert.Zero(t, r.Broadcast("main", EventUserLeft, UserPayload{Username: "bob"}, nil))
}

func TestRoomsUnicast(t *testing.T) {
	r := NewRooms(discardLogger())
	p := newPeer("c1")

	assert.True(t, r.Unicast(p, EventConnectionStatus, StatusPayload{Status: "connected"}))
	assert.Equal(t, []string{EventConnectionStatus}, p.events())

	assert.False(t, r.Unicast(nil, EventConnectionStatus, StatusPayload{Status: "connected"}))

	p.close()
	assert.False(t, r.Unicast(p, EventConnectionStatus, StatusPayload{Status: "connected"}))
}

func TestRoomsEncodeFailure(t *testing.T) {
	r := NewRooms(discardLogger())
	p := newPeer("c1")
	r.AddMember("main", p)

	assert.Zero(t, r.Broadcast("main", "bad", make(chan int), nil))
	assert.False(t, r.Unicast(p, "bad", make(chan int)))
	assert.Empty(t, p.all())
}
